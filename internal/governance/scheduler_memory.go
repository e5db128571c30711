package governance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryScheduler is an in-memory Scheduler for tests.
type MemoryScheduler struct {
	mu     sync.Mutex
	timers []Timer
}

func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{}
}

func (s *MemoryScheduler) Schedule(ctx context.Context, t Timer) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = append(s.timers, t)
	return nil
}

func (s *MemoryScheduler) PopDue(ctx context.Context, now time.Time, limit int) ([]Timer, error) {
	_ = ctx
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(s.timers, func(i, j int) bool { return s.timers[i].FireAt.Before(s.timers[j].FireAt) })

	var due []Timer
	var rest []Timer
	for _, t := range s.timers {
		if len(due) < limit && !t.FireAt.After(now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	s.timers = rest
	return due, nil
}

// Pending returns a copy of the not-yet-popped timers, for assertions.
func (s *MemoryScheduler) Pending() []Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Timer, len(s.timers))
	copy(out, s.timers)
	return out
}
