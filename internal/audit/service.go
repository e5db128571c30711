package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only: no Update/Delete methods.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrganizationID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogRecordingStarted records that a governance timer began recording a call.
func (s *Service) LogRecordingStarted(ctx context.Context, orgID, callID, recordingID string) error {
	return s.Append(ctx, Event{
		OrganizationID: orgID,
		Type:           EventTypeRecordingStarted,
		CallID:         callID,
		RecordingID:    recordingID,
		Message:        "recording started by grace timer",
	})
}

// LogRecordingDeleted records a retention deletion of a short-call recording.
func (s *Service) LogRecordingDeleted(ctx context.Context, orgID, callID, recordingID, reason string) error {
	return s.Append(ctx, Event{
		OrganizationID: orgID,
		Type:           EventTypeRecordingDeleted,
		CallID:         callID,
		RecordingID:    recordingID,
		Message:        reason,
	})
}

// LogForcedTermination records a call ended by a max-duration ceiling.
func (s *Service) LogForcedTermination(ctx context.Context, orgID, callID, reason string) error {
	return s.Append(ctx, Event{
		OrganizationID: orgID,
		Type:           EventTypeForcedTermination,
		CallID:         callID,
		Message:        reason,
	})
}

// LogOutcomeRecorded records an agent setting a call outcome.
func (s *Service) LogOutcomeRecorded(ctx context.Context, orgID, actorUserID, actorRole, callID, outcomeCode string) error {
	return s.Append(ctx, Event{
		OrganizationID: orgID,
		Type:           EventTypeOutcomeRecorded,
		ActorUserID:    actorUserID,
		ActorRole:      actorRole,
		CallID:         callID,
		Message:        "outcome set to " + outcomeCode,
	})
}
