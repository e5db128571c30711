package lead

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
type MemoryStore struct {
	mu    sync.Mutex
	leads map[string]Lead
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leads: make(map[string]Lead)}
}

func (s *MemoryStore) FindByID(ctx context.Context, orgID, leadID string) (Lead, error) {
	_ = ctx
	if orgID == "" || leadID == "" {
		return Lead{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.OrganizationID != orgID {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) FindByPhoneCandidates(ctx context.Context, orgID string, candidates []string) (Lead, bool, error) {
	_ = ctx
	if orgID == "" {
		return Lead{}, false, ErrInvalidArgument
	}
	if len(candidates) == 0 {
		return Lead{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stable iteration order to mimic the ORDER BY created_at of the SQL store.
	all := make([]Lead, 0, len(s.leads))
	for _, l := range s.leads {
		if l.OrganizationID == orgID {
			all = append(all, l)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	for _, l := range all {
		if l.Phone == "" {
			continue
		}
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if l.Phone == c || strings.Contains(l.Phone, c) {
				return l, true, nil
			}
		}
	}
	return Lead{}, false, nil
}

func (s *MemoryStore) Create(ctx context.Context, l Lead) error {
	_ = ctx
	if l.ID == "" || l.OrganizationID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = l
	return nil
}

func (s *MemoryStore) AssignOwner(ctx context.Context, orgID, leadID, userID string) (bool, error) {
	_ = ctx
	if orgID == "" || leadID == "" || userID == "" {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.OrganizationID != orgID {
		return false, ErrNotFound
	}
	if l.AssignedTo != "" {
		return false, nil
	}
	l.AssignedTo = userID
	l.UpdatedAt = time.Now().UTC()
	s.leads[leadID] = l
	return true, nil
}

func (s *MemoryStore) TouchLastContacted(ctx context.Context, orgID, leadID string) error {
	_ = ctx
	if orgID == "" || leadID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.OrganizationID != orgID {
		return ErrNotFound
	}
	now := time.Now().UTC()
	l.LastContactedAt = &now
	l.UpdatedAt = now
	s.leads[leadID] = l
	return nil
}
