package call

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests. It mirrors the Postgres
// store's fold semantics exactly, under one mutex.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[string]Call)}
}

func (s *MemoryStore) Insert(ctx context.Context, c Call) error {
	_ = ctx
	if c.ID == "" || c.OrganizationID == "" || c.ProviderCallID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c.ID] = c
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	if id == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, id)
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (Call, error) {
	_ = ctx
	if id == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	_ = ctx
	if providerCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (s *MemoryStore) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	_ = ctx
	if id == "" || providerCallID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.ProviderCallID = providerCallID
	if c.Status == StatusPending {
		c.Status = StatusInitiated
	}
	c.UpdatedAt = time.Now().UTC()
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) ApplyStatus(ctx context.Context, id string, upd StatusUpdate) (ApplyResult, error) {
	_ = ctx
	if id == "" {
		return ApplyResult{}, ErrInvalidArgument
	}
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ApplyResult{}, ErrNotFound
	}

	prev := c.Status
	c.Status = foldStatus(c.Status, upd.Status)
	if upd.DurationSeconds != nil {
		c.DurationSeconds = *upd.DurationSeconds
	}
	if upd.AnsweredAt != nil && c.AnsweredAt == nil {
		c.AnsweredAt = upd.AnsweredAt
	}
	if upd.EndedAt != nil && c.EndedAt == nil {
		c.EndedAt = upd.EndedAt
	}
	if upd.RecordingID != nil {
		c.RecordingID = *upd.RecordingID
	}
	c.UpdatedAt = upd.UpdatedAt
	s.calls[id] = c

	return ApplyResult{Call: c, Previous: prev}, nil
}

// Len reports how many rows the store holds.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// OrganizationByNumber mirrors the Postgres attribution lookup, preferring
// the most recently created match.
func (s *MemoryStore) OrganizationByNumber(ctx context.Context, number string) (string, error) {
	_ = ctx
	if number == "" {
		return "", ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var best Call
	found := false
	for _, c := range s.calls {
		if c.CallerID != number && c.Phone != number {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) {
			best = c
			found = true
		}
	}
	if !found {
		return "", ErrNotFound
	}
	return best.OrganizationID, nil
}

func (s *MemoryStore) SetLead(ctx context.Context, id, leadID string) error {
	_ = ctx
	if id == "" || leadID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	if c.LeadID == "" {
		c.LeadID = leadID
		c.UpdatedAt = time.Now().UTC()
		s.calls[id] = c
	}
	return nil
}

func (s *MemoryStore) SetOutcome(ctx context.Context, id, outcomeCode, note string) error {
	_ = ctx
	if id == "" || outcomeCode == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.OutcomeCode = outcomeCode
	c.Note = note
	c.UpdatedAt = time.Now().UTC()
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) SetRecording(ctx context.Context, id, recordingID string) error {
	_ = ctx
	if id == "" || recordingID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.RecordingID = recordingID
	c.RecordingEligible = true
	c.UpdatedAt = time.Now().UTC()
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) ClearRecording(ctx context.Context, id string) error {
	_ = ctx
	if id == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.RecordingID = ""
	c.RecordingEligible = false
	c.UpdatedAt = time.Now().UTC()
	s.calls[id] = c
	return nil
}
