package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertSyncRun = `-- name: InsertSyncRun :exec
INSERT INTO sync_runs (id, organization_code, mode, status, actor, backup_id, started_at, finished_at, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    backup_id = EXCLUDED.backup_id,
    finished_at = EXCLUDED.finished_at,
    payload = EXCLUDED.payload
`

type InsertSyncRunParams struct {
	ID               pgtype.UUID
	OrganizationCode string
	Mode             string
	Status           string
	Actor            string
	BackupID         pgtype.Text
	StartedAt        pgtype.Timestamptz
	FinishedAt       pgtype.Timestamptz
	Payload          []byte
}

func (q *Queries) InsertSyncRun(ctx context.Context, arg InsertSyncRunParams) error {
	_, err := q.db.Exec(ctx, insertSyncRun,
		arg.ID,
		arg.OrganizationCode,
		arg.Mode,
		arg.Status,
		arg.Actor,
		arg.BackupID,
		arg.StartedAt,
		arg.FinishedAt,
		arg.Payload,
	)
	return err
}

const listSyncRuns = `-- name: ListSyncRuns :many
SELECT id, organization_code, mode, status, actor, backup_id, started_at, finished_at, payload
FROM sync_runs
WHERE organization_code = $1
ORDER BY started_at DESC
LIMIT $2
`

type ListSyncRunsParams struct {
	OrganizationCode string
	Limit            int32
}

func (q *Queries) ListSyncRuns(ctx context.Context, arg ListSyncRunsParams) ([]SyncRun, error) {
	rows, err := q.db.Query(ctx, listSyncRuns, arg.OrganizationCode, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SyncRun
	for rows.Next() {
		var i SyncRun
		if err := rows.Scan(
			&i.ID,
			&i.OrganizationCode,
			&i.Mode,
			&i.Status,
			&i.Actor,
			&i.BackupID,
			&i.StartedAt,
			&i.FinishedAt,
			&i.Payload,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteAlerts = `-- name: DeleteAlerts :exec
DELETE FROM alerts WHERE organization_code = $1
`

func (q *Queries) DeleteAlerts(ctx context.Context, organizationCode string) error {
	_, err := q.db.Exec(ctx, deleteAlerts, organizationCode)
	return err
}

const insertAlert = `-- name: InsertAlert :exec
INSERT INTO alerts (organization_code, position, severity, kind, subject_key, payload, generated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type InsertAlertParams struct {
	OrganizationCode string
	Position         int32
	Severity         string
	Kind             string
	SubjectKey       string
	Payload          []byte
	GeneratedAt      pgtype.Timestamptz
}

func (q *Queries) InsertAlert(ctx context.Context, arg InsertAlertParams) error {
	_, err := q.db.Exec(ctx, insertAlert,
		arg.OrganizationCode,
		arg.Position,
		arg.Severity,
		arg.Kind,
		arg.SubjectKey,
		arg.Payload,
		arg.GeneratedAt,
	)
	return err
}

const listAlerts = `-- name: ListAlerts :many
SELECT organization_code, position, severity, kind, subject_key, payload, generated_at
FROM alerts
WHERE organization_code = $1
ORDER BY position
`

func (q *Queries) ListAlerts(ctx context.Context, organizationCode string) ([]Alert, error) {
	rows, err := q.db.Query(ctx, listAlerts, organizationCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Alert
	for rows.Next() {
		var i Alert
		if err := rows.Scan(
			&i.OrganizationCode,
			&i.Position,
			&i.Severity,
			&i.Kind,
			&i.SubjectKey,
			&i.Payload,
			&i.GeneratedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
