package orgsettings

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Settings
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Settings)}
}

func (r *MemoryRepo) Put(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.OrganizationID] = s
}

func (r *MemoryRepo) Find(ctx context.Context, orgID string) (Settings, bool, error) {
	_ = ctx
	if orgID == "" {
		return Settings{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[orgID]
	return s, ok, nil
}
