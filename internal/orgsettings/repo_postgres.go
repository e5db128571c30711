package orgsettings

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Find(ctx context.Context, orgID string) (Settings, bool, error) {
	if orgID == "" {
		return Settings{}, false, ErrInvalidArgument
	}
	const q = `
SELECT organization_id, recording_enabled, recording_delay_seconds, recording_keep_seconds,
       agent_max_call_seconds, manager_max_call_seconds, updated_at
FROM organization_settings
WHERE organization_id = $1
`
	var s Settings
	err := r.db.QueryRowContext(ctx, q, orgID).Scan(
		&s.OrganizationID,
		&s.RecordingEnabled,
		&s.RecordingDelaySeconds,
		&s.RecordingKeepSeconds,
		&s.AgentMaxCallSeconds,
		&s.ManagerMaxCallSeconds,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Settings{}, false, nil
		}
		return Settings{}, false, err
	}
	return s, true, nil
}
