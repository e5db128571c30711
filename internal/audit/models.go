package audit

import "time"

// Event is an immutable, append-only audit log record for actions the system
// takes on calls without an operator in the loop, plus operator actions worth
// a paper trail.
//
// Invariants:
// - Events are never updated or deleted.
// - organization_id is required for tenancy isolation.
// - Actor capture is best-effort; do not block critical flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event. System-initiated
	// events (timers, retention) leave it empty.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers (optional, depending on the event type).
	CallID      string `json:"call_id,omitempty" db:"call_id"`
	RecordingID string `json:"recording_id,omitempty" db:"recording_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeRecordingStarted  EventType = "recording_started"
	EventTypeRecordingDeleted  EventType = "recording_deleted"
	EventTypeForcedTermination EventType = "call_force_terminated"
	EventTypeOutcomeRecorded   EventType = "outcome_recorded"
)
