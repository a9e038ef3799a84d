package core

// scheduler.go refreshes compliance alerts in the background.
//
// Alerts go stale without any sync: a service expires on a calendar date,
// not when a file is imported. The scheduler regenerates every
// organization's alert set on a fixed interval. Failures are logged per
// organization and never stop the loop.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultAlertInterval is how often the alert scheduler runs.
const DefaultAlertInterval = 6 * time.Hour

// StartAlertScheduler regenerates alerts for all organizations. It runs
// immediately on start, then every interval, until ctx is cancelled.
func (s *Service) StartAlertScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAlertInterval
	}
	slog.Info("alert scheduler started", "interval", interval.String())

	s.runAlertJob(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("alert scheduler stopped")
			return
		case <-ticker.C:
			s.runAlertJob(ctx)
		}
	}
}

// runAlertJob performs one pass over every organization.
func (s *Service) runAlertJob(ctx context.Context) {
	start := time.Now()
	orgs, err := s.store.ListOrganizations(ctx)
	if err != nil {
		slog.Error("alert job: list organizations failed", "error", err)
		return
	}

	var total, failed int
	for _, org := range orgs {
		if ctx.Err() != nil {
			return
		}
		alerts, err := s.GenerateAlerts(ctx, org.Code)
		if err != nil {
			failed++
			slog.Error("alert job: organization failed", "org", org.Code, "error", err)
			continue
		}
		total += len(alerts)
	}

	slog.Info("alert job completed",
		"organizations", len(orgs),
		"failed", failed,
		"alerts", total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
