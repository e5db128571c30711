package lead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore implements Store on the CRM leads table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID, leadID string) (Lead, error) {
	if orgID == "" || leadID == "" {
		return Lead{}, ErrInvalidArgument
	}
	const q = `
SELECT id, organization_id, name, phone, assigned_to, do_not_contact, source, last_contacted_at, created_at, updated_at
FROM leads
WHERE organization_id = $1 AND id = $2
`
	return scanLead(s.db.QueryRowContext(ctx, q, orgID, leadID))
}

func (s *PostgresStore) FindByPhoneCandidates(ctx context.Context, orgID string, candidates []string) (Lead, bool, error) {
	if orgID == "" {
		return Lead{}, false, ErrInvalidArgument
	}
	if len(candidates) == 0 {
		return Lead{}, false, nil
	}

	// One OR-clause per candidate: exact match or containment either way.
	// Ambiguity is accepted: the first row wins.
	var clauses []string
	args := []any{orgID}
	for _, c := range candidates {
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(phone = $%d OR phone LIKE $%d)", n+1, n+2))
		args = append(args, c, "%"+escapeLike(c)+"%")
	}

	q := `
SELECT id, organization_id, name, phone, assigned_to, do_not_contact, source, last_contacted_at, created_at, updated_at
FROM leads
WHERE organization_id = $1 AND (` + strings.Join(clauses, " OR ") + `)
ORDER BY created_at
LIMIT 1
`
	l, err := scanLead(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, ErrNotFound) {
		return Lead{}, false, nil
	}
	if err != nil {
		return Lead{}, false, err
	}
	return l, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, l Lead) error {
	if l.ID == "" || l.OrganizationID == "" {
		return ErrInvalidArgument
	}
	const q = `
INSERT INTO leads (id, organization_id, name, phone, assigned_to, do_not_contact, source, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
`
	_, err := s.db.ExecContext(ctx, q,
		l.ID,
		l.OrganizationID,
		l.Name,
		l.Phone,
		l.AssignedTo,
		l.DoNotContact,
		l.Source,
		l.CreatedAt,
	)
	return err
}

func (s *PostgresStore) AssignOwner(ctx context.Context, orgID, leadID, userID string) (bool, error) {
	if orgID == "" || leadID == "" || userID == "" {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE leads
SET assigned_to = $3, updated_at = $4
WHERE organization_id = $1 AND id = $2 AND (assigned_to IS NULL OR assigned_to = '')
`
	res, err := s.db.ExecContext(ctx, q, orgID, leadID, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) TouchLastContacted(ctx context.Context, orgID, leadID string) error {
	if orgID == "" || leadID == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE leads
SET last_contacted_at = $3, updated_at = $3
WHERE organization_id = $1 AND id = $2
`
	_, err := s.db.ExecContext(ctx, q, orgID, leadID, time.Now().UTC())
	return err
}

func scanLead(row *sql.Row) (Lead, error) {
	var l Lead
	var name, phone, assignedTo, source sql.NullString
	var lastContacted sql.NullTime
	err := row.Scan(
		&l.ID,
		&l.OrganizationID,
		&name,
		&phone,
		&assignedTo,
		&l.DoNotContact,
		&source,
		&lastContacted,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	l.Name = name.String
	l.Phone = phone.String
	l.AssignedTo = assignedTo.String
	l.Source = source.String
	if lastContacted.Valid {
		t := lastContacted.Time
		l.LastContactedAt = &t
	}
	return l, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
