package events

import (
	"context"
	"sync"
)

// MemorySink collects events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []PerformanceEvent

	// FailWith, when set, is returned by every Emit.
	FailWith error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(ctx context.Context, e PerformanceEvent) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of everything emitted so far.
func (s *MemorySink) Events() []PerformanceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PerformanceEvent, len(s.events))
	copy(out, s.events)
	return out
}

// ByKind filters emitted events by kind.
func (s *MemorySink) ByKind(k Kind) []PerformanceEvent {
	var out []PerformanceEvent
	for _, e := range s.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
