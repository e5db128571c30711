package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends audit events to the audit_events table.
//
// The table is INSERT-only; no read path is exposed here since audit records
// are consumed by internal ops tooling, not the API.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
	id, organization_id, type, actor_user_id, actor_role,
	call_id, recording_id, message, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.OrganizationID, string(e.Type), nullStr(e.ActorUserID), nullStr(e.ActorRole),
		nullStr(e.CallID), nullStr(e.RecordingID), nullStr(e.Message), nullStr(e.Metadata), e.CreatedAt,
	)
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
