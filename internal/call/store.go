package call

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("call: not found")
	ErrInvalidArgument = errors.New("call: invalid argument")
)

// StatusUpdate is one partial, idempotent update produced by folding a status
// event. Nil pointer fields are left untouched; Status is a candidate that the
// store applies only when it advances the lifecycle.
type StatusUpdate struct {
	// Status is applied only if its rank is strictly higher than the current
	// status's rank. Terminal statuses are sticky.
	Status Status

	// DurationSeconds backfills even after a terminal status is set.
	DurationSeconds *int

	AnsweredAt *time.Time
	EndedAt    *time.Time

	// RecordingID is set when the event carried a recording reference.
	RecordingID *string

	UpdatedAt time.Time
}

// ApplyResult reports the state around one ApplyStatus call. Previous lets the
// caller detect transitions (into in_progress, into a terminal state) without
// a read-modify-write race.
type ApplyResult struct {
	Call     Call
	Previous Status
}

// Store is the persistence contract for call records.
//
// All mutations must be partial field updates so concurrent webhook handlers
// cannot clobber each other, and ApplyStatus must be atomic with respect to
// the terminal-stickiness rule.
type Store interface {
	Insert(ctx context.Context, c Call) error

	// Delete removes a provisional row after a provider-create failure.
	Delete(ctx context.Context, id string) error

	FindByID(ctx context.Context, id string) (Call, error)
	FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error)

	// SetProviderCallID reconciles the placeholder with the provider's real
	// identifier and advances pending → initiated.
	SetProviderCallID(ctx context.Context, id, providerCallID string) error

	// ApplyStatus atomically folds one status event into the record.
	ApplyStatus(ctx context.Context, id string, upd StatusUpdate) (ApplyResult, error)

	// SetLead attributes the call to a lead (late attribution).
	SetLead(ctx context.Context, id, leadID string) error

	SetOutcome(ctx context.Context, id, outcomeCode, note string) error

	SetRecording(ctx context.Context, id, recordingID string) error

	// ClearRecording nulls the recording fields after a retention deletion.
	ClearRecording(ctx context.Context, id string) error
}

// foldStatus implements the shared transition rule: candidate statuses only
// move the record forward, and once terminal the status never changes.
func foldStatus(current, candidate Status) Status {
	if candidate == "" {
		return current
	}
	if current.Terminal() {
		return current
	}
	if candidate.Rank() > current.Rank() {
		return candidate
	}
	return current
}
