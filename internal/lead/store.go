package lead

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("lead: not found")
	ErrInvalidArgument = errors.New("lead: invalid argument")
)

// Store abstracts lead persistence for the orchestrator.
//
// Scoping rules:
//   - Every method takes an explicit organization id. There is no per-user
//     row filtering here: these calls run inside provider callbacks that have
//     no authenticated user.
//   - FindByPhoneCandidates matches stored phones by equality OR substring
//     containment against each candidate. Substring matching is deliberate;
//     phone data is inconsistently formatted at ingestion.
type Store interface {
	FindByID(ctx context.Context, orgID, leadID string) (Lead, error)
	FindByPhoneCandidates(ctx context.Context, orgID string, candidates []string) (Lead, bool, error)
	Create(ctx context.Context, l Lead) error

	// AssignOwner sets assigned_to only when the lead is currently unassigned.
	// Returns true if the claim took effect.
	AssignOwner(ctx context.Context, orgID, leadID, userID string) (bool, error)

	TouchLastContacted(ctx context.Context, orgID, leadID string) error
}
