package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/repsync/internal/core"
	db "github.com/JonMunkholm/repsync/internal/database"
)

// History persists sync runs and alert sets in the sync_runs and alerts
// tables. Rows keep the full value as JSON; the other columns exist for
// filtering and ordering.
type History struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ core.RunRecorder = (*History)(nil)
	_ core.AlertSink   = (*History)(nil)
)

// NewHistory wraps an open pool.
func NewHistory(pool *pgxpool.Pool) *History {
	return &History{pool: pool, now: time.Now}
}

// RecordRun upserts run by ID.
func (h *History) RecordRun(ctx context.Context, run *core.SyncRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	finished := db.ToTimestamptz(run.FinishedAt)
	if run.FinishedAt.IsZero() {
		finished.Valid = false
	}
	err = db.New(h.pool).InsertSyncRun(ctx, db.InsertSyncRunParams{
		ID:               db.ToUUID(run.ID),
		OrganizationCode: run.OrganizationCode,
		Mode:             string(run.Mode),
		Status:           string(run.Status),
		Actor:            run.Actor,
		BackupID:         db.ToText(run.BackupID),
		StartedAt:        db.ToTimestamptz(run.StartedAt),
		FinishedAt:       finished,
		Payload:          payload,
	})
	if err != nil {
		return mapError("record run", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (h *History) ListRuns(ctx context.Context, orgCode string, limit int) ([]*core.SyncRun, error) {
	rows, err := db.New(h.pool).ListSyncRuns(ctx, db.ListSyncRunsParams{
		OrganizationCode: orgCode,
		Limit:            int32(limit),
	})
	if err != nil {
		return nil, mapError("list runs", err)
	}
	out := make([]*core.SyncRun, 0, len(rows))
	for _, r := range rows {
		var run core.SyncRun
		if err := json.Unmarshal(r.Payload, &run); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", db.UUIDToString(r.ID), err)
		}
		out = append(out, &run)
	}
	return out, nil
}

// ReplaceAlerts deletes and re-inserts the organization's alerts in one
// transaction, so readers never see a half-written set.
func (h *History) ReplaceAlerts(ctx context.Context, orgCode string, alerts []core.Alert) error {
	generated := db.ToTimestamptz(h.now())
	return pgx.BeginFunc(ctx, h.pool, func(tx pgx.Tx) error {
		q := db.New(tx)
		if err := q.DeleteAlerts(ctx, orgCode); err != nil {
			return mapError("clear alerts", err)
		}
		for i, a := range alerts {
			payload, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("marshal alert: %w", err)
			}
			err = q.InsertAlert(ctx, db.InsertAlertParams{
				OrganizationCode: orgCode,
				Position:         int32(i),
				Severity:         string(a.Severity),
				Kind:             string(a.Kind),
				SubjectKey:       a.SubjectKey,
				Payload:          payload,
				GeneratedAt:      generated,
			})
			if err != nil {
				return mapError("insert alert", err)
			}
		}
		return nil
	})
}

// Alerts returns the organization's alerts in stored order.
func (h *History) Alerts(ctx context.Context, orgCode string) ([]core.Alert, error) {
	rows, err := db.New(h.pool).ListAlerts(ctx, orgCode)
	if err != nil {
		return nil, mapError("list alerts", err)
	}
	out := make([]core.Alert, 0, len(rows))
	for _, r := range rows {
		var a core.Alert
		if err := json.Unmarshal(r.Payload, &a); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}
