package call

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Call is the orchestrator's central record of one phone call.
//
// Invariants:
//   - ID is assigned locally at provisional-record creation and never changes.
//   - At most one row may hold a given non-placeholder ProviderCallID
//     (enforced by a unique index on provider_call_id).
//   - A terminal Status is sticky: later events may backfill duration and
//     timestamps, never the status.
//   - All updates are partial field updates; nothing ever replaces the row.
type Call struct {
	ID string `json:"id" db:"id"`

	// ProviderCallID starts as a local placeholder so the row is queryable
	// before the provider confirms, then is overwritten with the real id.
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	// LeadID may be empty at creation; attribution is best-effort and may
	// happen late, at terminal processing.
	LeadID         string `json:"lead_id,omitempty" db:"lead_id"`
	UserID         string `json:"user_id,omitempty" db:"user_id"`
	UserRole       string `json:"user_role,omitempty" db:"user_role"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	Direction Direction `json:"direction" db:"direction"`
	Mode      Mode      `json:"mode" db:"mode"`
	Status    Status    `json:"status" db:"status"`

	// Phone is the destination in dialable form; CallerID is the number or
	// client identity presented on the outbound leg.
	Phone    string `json:"phone" db:"phone"`
	CallerID string `json:"caller_id,omitempty" db:"caller_id"`

	// DurationSeconds is authoritative only once Status is terminal.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	InitiatedAt *time.Time `json:"initiated_at,omitempty" db:"initiated_at"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	RecordingID       string `json:"recording_id,omitempty" db:"recording_id"`
	RecordingEligible bool   `json:"recording_eligible" db:"recording_eligible"`

	// OutcomeCode is operator- or system-entered, independent of Status.
	OutcomeCode string `json:"outcome_code,omitempty" db:"outcome_code"`
	Note        string `json:"note,omitempty" db:"note"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type Mode string

const (
	// ModeAgentFirst dials the agent, announces, then bridges to the lead.
	ModeAgentFirst Mode = "agent_first_live"
	// ModeBrowserClient bridges a browser session directly to the lead.
	ModeBrowserClient Mode = "browser_client"
	// ModeVoicemailDrop plays a message to whoever answers, then hangs up.
	ModeVoicemailDrop Mode = "voicemail_drop"
)

func ValidMode(m Mode) bool {
	switch m {
	case ModeAgentFirst, ModeBrowserClient, ModeVoicemailDrop:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInitiated  Status = "initiated"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no_answer"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether s accepts no further status transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNoAnswer, StatusCancelled:
		return true
	default:
		return false
	}
}

// Rank orders statuses along the lifecycle. Folding only moves status to a
// strictly higher rank; all terminal statuses share the top rank so the first
// terminal event wins and later ones cannot replace it.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInitiated:
		return 1
	case StatusRinging:
		return 2
	case StatusInProgress:
		return 3
	case StatusCompleted, StatusFailed, StatusNoAnswer, StatusCancelled:
		return 4
	default:
		return -1
	}
}

// MapProviderStatus folds a provider status string into the local model.
// The second return is false for statuses we don't recognize.
func MapProviderStatus(providerStatus string) (Status, bool) {
	switch strings.ToLower(providerStatus) {
	case "queued", "ringing":
		return StatusRinging, true
	case "initiated":
		return StatusInitiated, true
	case "in-progress", "answered":
		return StatusInProgress, true
	case "completed":
		return StatusCompleted, true
	case "no-answer":
		return StatusNoAnswer, true
	case "busy", "failed":
		return StatusFailed, true
	case "canceled":
		return StatusCancelled, true
	default:
		return "", false
	}
}

// OutcomeMaxDuration marks calls force-terminated by the duration ceiling.
const OutcomeMaxDuration = "max_duration_reached"

const placeholderPrefix = "pending-"

// NewPlaceholderProviderID returns a locally unique token stored in
// provider_call_id until the provider assigns the real identifier. The prefix
// guarantees it can never collide with a provider id.
func NewPlaceholderProviderID() string {
	return placeholderPrefix + uuid.NewString()
}

// IsPlaceholderProviderID reports whether id is a local placeholder.
func IsPlaceholderProviderID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}
