package lead

import (
	"context"
	"time"

	"salescrm-platform/internal/phone"

	"github.com/google/uuid"
)

// Matcher resolves phone numbers to lead records during call attribution.
//
// This is the only component allowed to create leads. Created records are
// minimal and tagged SourceCallAutoCreated.
//
// Known accepted risk: candidate matching is substring-based, so a short local
// number can match inside a longer stored one. Duplicate-phone leads are rare
// and wrong matches are corrected manually downstream.
type Matcher struct {
	store Store
	clock func() time.Time
}

func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store, clock: time.Now}
}

// Hint carries optional caller-supplied context used when creating a lead on
// the fly (e.g. a caller name or a source-system identifier reported by the
// provider).
type Hint struct {
	Name     string
	SourceID string
}

// Match resolves a phone string to a lead within the organization.
// No match is not an error: the second return is false.
func (m *Matcher) Match(ctx context.Context, orgID, rawPhone string) (Lead, bool, error) {
	if orgID == "" {
		return Lead{}, false, ErrInvalidArgument
	}
	candidates := phone.Candidates(rawPhone)
	if len(candidates) == 0 {
		return Lead{}, false, nil
	}
	return m.store.FindByPhoneCandidates(ctx, orgID, candidates)
}

// MatchOrCreate resolves a phone string to a lead, creating a minimal record
// when nothing matches and a hint identifies the contact.
func (m *Matcher) MatchOrCreate(ctx context.Context, orgID, rawPhone string, hint Hint) (Lead, error) {
	l, ok, err := m.Match(ctx, orgID, rawPhone)
	if err != nil {
		return Lead{}, err
	}
	if ok {
		return l, nil
	}

	if hint.Name == "" && hint.SourceID == "" {
		return Lead{}, ErrNotFound
	}

	now := m.clock().UTC()
	created := Lead{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           hint.Name,
		Phone:          rawPhone,
		Source:         SourceCallAutoCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Create(ctx, created); err != nil {
		return Lead{}, err
	}
	return created, nil
}
