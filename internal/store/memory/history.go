package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JonMunkholm/repsync/internal/core"
)

// History keeps sync runs and the current alert set per organization.
// It implements core.RunRecorder and core.AlertSink.
type History struct {
	mu     sync.RWMutex
	runs   map[string][]*core.SyncRun
	alerts map[string][]core.Alert
}

var (
	_ core.RunRecorder = (*History)(nil)
	_ core.AlertSink   = (*History)(nil)
)

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{
		runs:   make(map[string][]*core.SyncRun),
		alerts: make(map[string][]core.Alert),
	}
}

// RecordRun stores a copy of run.
func (h *History) RecordRun(_ context.Context, run *core.SyncRun) error {
	cp := *run
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[run.OrganizationCode] = append(h.runs[run.OrganizationCode], &cp)
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (h *History) ListRuns(_ context.Context, orgCode string, limit int) ([]*core.SyncRun, error) {
	h.mu.RLock()
	stored := h.runs[orgCode]
	runs := make([]*core.SyncRun, len(stored))
	for i, r := range stored {
		runs[len(stored)-1-i] = r // later records first on equal start times
	}
	h.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ReplaceAlerts swaps the organization's alert set.
func (h *History) ReplaceAlerts(_ context.Context, orgCode string, alerts []core.Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts[orgCode] = append([]core.Alert(nil), alerts...)
	return nil
}

// Alerts returns the organization's current alert set.
func (h *History) Alerts(_ context.Context, orgCode string) ([]core.Alert, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]core.Alert(nil), h.alerts[orgCode]...), nil
}
