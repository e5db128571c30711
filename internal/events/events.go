package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// PerformanceEvent is an append-only record consumed by the reporting side of
// the CRM. The orchestrator only produces these; it never reads them back.
type PerformanceEvent struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id,omitempty"`
	LeadID         string `json:"lead_id,omitempty"`
	CallID         string `json:"call_id,omitempty"`

	Kind Kind `json:"kind"`

	DurationSeconds int `json:"duration_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type Kind string

const (
	KindDialAttempt      Kind = "dial_attempt"
	KindConversation     Kind = "conversation"
	KindQualifiedContact Kind = "qualified_contact"
)

// Sink receives performance events.
//
// Emission is best-effort by contract: implementations may drop events under
// pressure, and callers must never treat a sink failure as their own.
type Sink interface {
	Emit(ctx context.Context, e PerformanceEvent) error
}

// Emitter wraps a Sink with the fire-and-forget policy: fill in defaults,
// bound the delivery time, and log failures instead of returning them.
type Emitter struct {
	sink  Sink
	log   *slog.Logger
	clock func() time.Time

	// Timeout bounds a single Emit call.
	Timeout time.Duration

	// Synchronous delivers inline instead of spawning a goroutine.
	// Failures are still swallowed. Used by tests.
	Synchronous bool
}

func NewEmitter(sink Sink, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{sink: sink, log: log, clock: time.Now, Timeout: 2 * time.Second}
}

// Emit delivers the event asynchronously. It returns immediately and never
// propagates sink errors.
func (e *Emitter) Emit(parent context.Context, ev PerformanceEvent) {
	if e == nil || e.sink == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = e.clock().UTC()
	}
	if ev.OrganizationID == "" || ev.Kind == "" {
		e.log.Warn("performance event dropped", "reason", "missing org or kind", "kind", ev.Kind)
		return
	}

	// Detach from the request context: the caller must not wait on delivery,
	// and the caller's cancellation must not abort it.
	_ = parent
	deliver := func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.Timeout)
		defer cancel()
		if err := e.sink.Emit(ctx, ev); err != nil {
			e.log.Warn("performance event emit failed", "kind", ev.Kind, "call_id", ev.CallID, "err", err)
		}
	}
	if e.Synchronous {
		deliver()
		return
	}
	go deliver()
}
