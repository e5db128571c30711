package orgsettings

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidArgument = errors.New("orgsettings: invalid argument")

// Settings are the per-organization knobs the cost-governance engine reads.
// Zero values mean "unset"; Resolve fills them from defaults.
type Settings struct {
	OrganizationID string `json:"organization_id" db:"organization_id"`

	RecordingEnabled      bool `json:"recording_enabled" db:"recording_enabled"`
	RecordingDelaySeconds int  `json:"recording_delay_seconds" db:"recording_delay_seconds"`

	// Keep-threshold for recordings: final durations below this get the
	// recording deleted retroactively.
	RecordingKeepSeconds int `json:"recording_keep_seconds" db:"recording_keep_seconds"`

	// Role-keyed call-duration ceilings.
	AgentMaxCallSeconds   int `json:"agent_max_call_seconds" db:"agent_max_call_seconds"`
	ManagerMaxCallSeconds int `json:"manager_max_call_seconds" db:"manager_max_call_seconds"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Defaults are the fixed fallbacks applied when an organization has no row or
// leaves a field unset.
type Defaults struct {
	RecordingDelaySeconds int
	RecordingKeepSeconds  int
	AgentMaxCallSeconds   int
	ManagerMaxCallSeconds int
}

// Repository abstracts settings persistence.
type Repository interface {
	Find(ctx context.Context, orgID string) (Settings, bool, error)
}

// Service resolves effective settings for an organization.
type Service struct {
	repo     Repository
	defaults Defaults
}

func NewService(repo Repository, defaults Defaults) *Service {
	return &Service{repo: repo, defaults: defaults}
}

// Resolve returns the organization's settings with defaults applied.
// A missing row yields pure defaults with recording disabled.
func (s *Service) Resolve(ctx context.Context, orgID string) (Settings, error) {
	if orgID == "" {
		return Settings{}, ErrInvalidArgument
	}

	out := Settings{OrganizationID: orgID}
	if s.repo != nil {
		found, ok, err := s.repo.Find(ctx, orgID)
		if err != nil {
			return Settings{}, err
		}
		if ok {
			out = found
		}
	}

	if out.RecordingDelaySeconds <= 0 {
		out.RecordingDelaySeconds = s.defaults.RecordingDelaySeconds
	}
	if out.RecordingKeepSeconds <= 0 {
		out.RecordingKeepSeconds = s.defaults.RecordingKeepSeconds
	}
	if out.AgentMaxCallSeconds <= 0 {
		out.AgentMaxCallSeconds = s.defaults.AgentMaxCallSeconds
	}
	if out.ManagerMaxCallSeconds <= 0 {
		out.ManagerMaxCallSeconds = s.defaults.ManagerMaxCallSeconds
	}
	return out, nil
}

// MaxCallSecondsForRole returns the duration ceiling for an operator role.
// Unknown roles get the stricter agent ceiling.
func (s Settings) MaxCallSecondsForRole(role string) int {
	if role == "manager" {
		return s.ManagerMaxCallSeconds
	}
	return s.AgentMaxCallSeconds
}
