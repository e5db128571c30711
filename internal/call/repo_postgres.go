package call

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore implements Store on the calls table.
//
// Assumed schema highlights:
//   - PRIMARY KEY (id)
//   - UNIQUE (provider_call_id): one row per provider identifier, placeholder
//     ids included since they embed a UUID.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callColumns = `
id, provider_call_id, lead_id, user_id, user_role, organization_id,
direction, mode, status, phone, caller_id, duration_seconds,
initiated_at, answered_at, ended_at, recording_id, recording_eligible,
outcome_code, note, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, c Call) error {
	if c.ID == "" || c.OrganizationID == "" || c.ProviderCallID == "" {
		return ErrInvalidArgument
	}
	const q = `
INSERT INTO calls (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.ProviderCallID, nullStr(c.LeadID), nullStr(c.UserID), nullStr(c.UserRole), c.OrganizationID,
		c.Direction, c.Mode, c.Status, c.Phone, nullStr(c.CallerID), c.DurationSeconds,
		c.InitiatedAt, c.AnsweredAt, c.EndedAt, nullStr(c.RecordingID), c.RecordingEligible,
		nullStr(c.OutcomeCode), nullStr(c.Note), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Call, error) {
	if id == "" {
		return Call{}, ErrInvalidArgument
	}
	const q = `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	if providerCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	const q = `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, providerCallID))
}

func (s *PostgresStore) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	if id == "" || providerCallID == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE calls
SET provider_call_id = $2,
    status = CASE WHEN status = 'pending' THEN 'initiated' ELSE status END,
    updated_at = $3
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, providerCallID, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ApplyStatus(ctx context.Context, id string, upd StatusUpdate) (ApplyResult, error) {
	if id == "" {
		return ApplyResult{}, ErrInvalidArgument
	}
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = time.Now().UTC()
	}

	// The CTE locks the row and exposes the pre-update status so transition
	// detection does not race with concurrent webhook handlers. The status
	// CASE is foldStatus expressed in SQL: terminal sticky, forward-only.
	q := `
WITH prev AS (
  SELECT id, status AS prev_status FROM calls WHERE id = $1 FOR UPDATE
)
UPDATE calls c
SET status = CASE
      WHEN p.prev_status IN ('completed','failed','no_answer','cancelled') THEN p.prev_status
      WHEN $2 = '' THEN p.prev_status
      WHEN (CASE $2
            WHEN 'pending' THEN 0
            WHEN 'initiated' THEN 1
            WHEN 'ringing' THEN 2
            WHEN 'in_progress' THEN 3
            ELSE 4
            END)
         > (CASE p.prev_status
            WHEN 'pending' THEN 0
            WHEN 'initiated' THEN 1
            WHEN 'ringing' THEN 2
            WHEN 'in_progress' THEN 3
            ELSE 4
            END)
      THEN $2
      ELSE p.prev_status
    END,
    duration_seconds = COALESCE($3, c.duration_seconds),
    answered_at = COALESCE(c.answered_at, $4),
    ended_at = COALESCE(c.ended_at, $5),
    recording_id = COALESCE($6, c.recording_id),
    updated_at = $7
FROM prev p
WHERE c.id = p.id
RETURNING ` + prefixedCallColumns("c") + `, p.prev_status
`
	row := s.db.QueryRowContext(ctx, q, id,
		string(upd.Status),
		upd.DurationSeconds,
		upd.AnsweredAt,
		upd.EndedAt,
		nullStrPtr(upd.RecordingID),
		upd.UpdatedAt,
	)

	var res ApplyResult
	var prev string
	c, err := scanCallFields(row, &prev)
	if err != nil {
		return ApplyResult{}, err
	}
	res.Call = c
	res.Previous = Status(prev)
	return res, nil
}

func (s *PostgresStore) SetLead(ctx context.Context, id, leadID string) error {
	if id == "" || leadID == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE calls
SET lead_id = COALESCE(lead_id, $2), updated_at = $3
WHERE id = $1
`
	_, err := s.db.ExecContext(ctx, q, id, leadID, time.Now().UTC())
	return err
}

func (s *PostgresStore) SetOutcome(ctx context.Context, id, outcomeCode, note string) error {
	if id == "" || outcomeCode == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE calls
SET outcome_code = $2, note = $3, updated_at = $4
WHERE id = $1
`
	_, err := s.db.ExecContext(ctx, q, id, outcomeCode, nullStr(note), time.Now().UTC())
	return err
}

func (s *PostgresStore) SetRecording(ctx context.Context, id, recordingID string) error {
	if id == "" || recordingID == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE calls
SET recording_id = $2, recording_eligible = TRUE, updated_at = $3
WHERE id = $1
`
	_, err := s.db.ExecContext(ctx, q, id, recordingID, time.Now().UTC())
	return err
}

func (s *PostgresStore) ClearRecording(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE calls
SET recording_id = NULL, recording_eligible = FALSE, updated_at = $2
WHERE id = $1
`
	_, err := s.db.ExecContext(ctx, q, id, time.Now().UTC())
	return err
}

// OrganizationByNumber attributes a phone number to an organization via call
// history: the number is either one of the org's caller ids or a destination
// it has dialed before. Used when reconstructing a row for an event the
// orchestrator has no record of.
func (s *PostgresStore) OrganizationByNumber(ctx context.Context, number string) (string, error) {
	if number == "" {
		return "", ErrInvalidArgument
	}
	const q = `
SELECT organization_id FROM calls
WHERE caller_id = $1 OR phone = $1
ORDER BY created_at DESC
LIMIT 1
`
	var orgID string
	if err := s.db.QueryRowContext(ctx, q, number).Scan(&orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return orgID, nil
}

func prefixedCallColumns(alias string) string {
	return alias + `.id, ` + alias + `.provider_call_id, ` + alias + `.lead_id, ` + alias + `.user_id, ` +
		alias + `.user_role, ` + alias + `.organization_id, ` + alias + `.direction, ` + alias + `.mode, ` +
		alias + `.status, ` + alias + `.phone, ` + alias + `.caller_id, ` + alias + `.duration_seconds, ` +
		alias + `.initiated_at, ` + alias + `.answered_at, ` + alias + `.ended_at, ` + alias + `.recording_id, ` +
		alias + `.recording_eligible, ` + alias + `.outcome_code, ` + alias + `.note, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row *sql.Row) (Call, error) {
	return scanCallFields(row)
}

func scanCallFields(row rowScanner, extra ...any) (Call, error) {
	var c Call
	var leadID, userID, userRole, callerID, recordingID, outcomeCode, note sql.NullString
	var initiatedAt, answeredAt, endedAt sql.NullTime

	dest := []any{
		&c.ID, &c.ProviderCallID, &leadID, &userID, &userRole, &c.OrganizationID,
		&c.Direction, &c.Mode, &c.Status, &c.Phone, &callerID, &c.DurationSeconds,
		&initiatedAt, &answeredAt, &endedAt, &recordingID, &c.RecordingEligible,
		&outcomeCode, &note, &c.CreatedAt, &c.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}

	c.LeadID = leadID.String
	c.UserID = userID.String
	c.UserRole = userRole.String
	c.CallerID = callerID.String
	c.RecordingID = recordingID.String
	c.OutcomeCode = outcomeCode.String
	c.Note = note.String
	c.InitiatedAt = nullTimePtr(initiatedAt)
	c.AnsweredAt = nullTimePtr(answeredAt)
	c.EndedAt = nullTimePtr(endedAt)
	return c, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStrPtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}
