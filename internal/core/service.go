package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/repsync/internal/reps"
)

// DefaultSyncTimeout bounds one synchronization when the caller sets no
// deadline of its own.
const DefaultSyncTimeout = 10 * time.Minute

var (
	// ErrRunsUnavailable is returned by ListRuns when no recorder is set.
	ErrRunsUnavailable = errors.New("run history is not configured")

	// ErrBackupsUnavailable is returned when backups are requested without
	// a backup store.
	ErrBackupsUnavailable = errors.New("backup store is not configured")
)

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *SyncRun) error
	ListRuns(ctx context.Context, orgCode string, limit int) ([]*SyncRun, error)
}

// RunPublisher announces finished runs to other systems.
type RunPublisher interface {
	PublishRun(ctx context.Context, run *SyncRun) error
}

// Metrics receives run and alert observations.
type Metrics interface {
	ObserveRun(run *SyncRun)
	ObserveAlerts(orgCode string, alerts []Alert)
}

// InputFile is one uploaded export.
type InputFile struct {
	Name   string
	Reader io.Reader
}

// SyncRequest asks for one synchronization of an organization.
type SyncRequest struct {
	OrganizationCode string
	Headquarters     *InputFile
	Services         *InputFile
	Mode             Mode
	CreateBackup     bool
	RowIsolation     bool
	Actor            string
}

// Deps are the optional collaborators of a Service. Nil fields disable the
// matching feature.
type Deps struct {
	Backups   *BackupController
	Catalog   *Catalog
	Alerts    AlertSink
	Runs      RunRecorder
	Publisher RunPublisher
	Metrics   Metrics
}

// Settings tune a Service. Zero values use the package defaults.
type Settings struct {
	Timeout          time.Duration
	AlertLookahead   time.Duration
	NormalizeWorkers int
	SummaryTopN      int
}

// Service is the entry point for synchronization, diagnostics and alerts.
type Service struct {
	store    reps.Store
	engine   *Engine
	deps     Deps
	settings Settings
	now      func() time.Time
}

// NewService wires a Service over store.
func NewService(store reps.Store, deps Deps, settings Settings) *Service {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultSyncTimeout
	}
	if settings.AlertLookahead <= 0 {
		settings.AlertLookahead = DefaultAlertLookahead
	}
	if settings.SummaryTopN <= 0 {
		settings.SummaryTopN = DefaultSummaryTopN
	}
	return &Service{
		store:    store,
		engine:   NewEngine(store, deps.Backups),
		deps:     deps,
		settings: settings,
		now:      time.Now,
	}
}

// SetClock replaces the service clock. Used by tests that pin "today".
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ListShapes returns information about all registered export shapes.
func (s *Service) ListShapes() []TableInfo {
	defs := All()
	infos := make([]TableInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// Synchronize imports the request's files into the organization.
//
// The returned error is non-nil only when no run could be started: no
// input, no actor, or an unknown organization. Every other failure is
// recorded on the returned run.
func (s *Service) Synchronize(ctx context.Context, req SyncRequest) (*SyncRun, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, ErrNoActor
	}
	if req.Headquarters == nil && req.Services == nil {
		return nil, ErrNoInput
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeMerge
	}
	org, err := s.store.Organization(ctx, strings.TrimSpace(req.OrganizationCode))
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", req.OrganizationCode, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
	}

	run := NewSyncRun(org.Code, mode, actor, s.now())
	run.SummaryTopN = s.settings.SummaryTopN
	run.Status = StatusRunning
	slog.Info("sync started",
		"run_id", run.ID,
		"org", org.Code,
		"mode", mode,
		"actor", actor,
		"backup", req.CreateBackup,
	)

	inputs := []struct {
		file  *InputFile
		shape Shape
	}{
		{req.Headquarters, ShapeHeadquarters},
		{req.Services, ShapeServices},
	}
	var (
		batches   []*Batch
		attempted int
		failed    int
	)
	for _, in := range inputs {
		if in.file == nil {
			continue
		}
		attempted++
		batch, err := s.prepare(ctx, run, org, in.file, in.shape)
		if err != nil {
			failed++
			run.AddError(err)
			continue
		}
		batches = append(batches, batch)
	}

	switch {
	case failed == attempted:
		run.Finish(StatusFailed, s.now())
	case failed > 0 && mode == ModeForceRecreate:
		run.AddError(errors.New("force_recreate needs every file to be readable; nothing was changed"))
		run.Finish(StatusFailed, s.now())
	default:
		err := s.engine.Reconcile(ctx, run, org, batches, ReconcileOptions{
			Mode:         mode,
			Actor:        actor,
			RowIsolation: req.RowIsolation,
			CreateBackup: req.CreateBackup,
		})
		switch {
		case err != nil:
			run.AddError(err)
			run.Finish(StatusFailed, s.now())
		case mode == ModeMerge && (failed > 0 || run.Totals().Failed > 0):
			run.Finish(StatusPartial, s.now())
		default:
			run.Finish(StatusSucceeded, s.now())
		}
	}

	s.afterRun(ctx, run)
	return run, nil
}

// prepare extracts and normalizes one file, recording its stats on run.
func (s *Service) prepare(ctx context.Context, run *SyncRun, org reps.Organization, f *InputFile, shape Shape) (*Batch, error) {
	name := f.Name
	if name == "" {
		name = string(shape)
	}
	stats := run.File(name, shape)
	start := time.Now()
	defer func() { stats.Elapsed = time.Since(start) }()

	ext, err := Extract(ctx, f.Reader, name, shape)
	if err != nil {
		stats.Error = err.Error()
		return nil, err
	}
	stats.Seen = len(ext.Rows)
	stats.Format = ext.Format
	stats.Encoding = ext.Encoding

	n := Normalizer{
		Context: NormalizeContext{OrganizationCode: org.Code},
		Workers: s.settings.NormalizeWorkers,
	}
	batch, err := n.NormalizeAll(ctx, ext)
	if err != nil {
		stats.Error = err.Error()
		return nil, err
	}
	batch.FileName = name
	stats.Skipped += len(batch.Skipped)
	run.Warnings = append(run.Warnings, batch.Warnings...)
	return batch, nil
}

// afterRun refreshes alerts and hands the finished run to the recorder,
// publisher and metrics. None of these can change the run's status.
func (s *Service) afterRun(ctx context.Context, run *SyncRun) {
	ctx = context.WithoutCancel(ctx)

	if run.Status != StatusFailed && s.deps.Alerts != nil {
		alerts, err := s.GenerateAlerts(ctx, run.OrganizationCode)
		if err != nil {
			run.AddError(fmt.Errorf("refresh alerts: %w", err))
		} else {
			run.Alerts = len(alerts)
		}
	}
	if s.deps.Runs != nil {
		if err := s.deps.Runs.RecordRun(ctx, run); err != nil {
			slog.Error("record run failed", "run_id", run.ID, "error", err)
		}
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishRun(ctx, run); err != nil {
			slog.Error("publish run failed", "run_id", run.ID, "error", err)
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveRun(run)
	}

	totals := run.Totals()
	slog.Info("sync finished",
		"run_id", run.ID,
		"org", run.OrganizationCode,
		"mode", run.Mode,
		"status", run.Status,
		"created", totals.Created,
		"updated", totals.Updated,
		"unchanged", totals.Unchanged,
		"deleted", totals.Deleted,
		"skipped", totals.Skipped,
		"failed", totals.Failed,
		"errors", len(run.Errors),
		"warnings", len(run.Warnings),
		"duration_ms", run.Duration().Milliseconds(),
	)
}

// Diagnose scans the organization's stored keys. Read-only.
func (s *Service) Diagnose(ctx context.Context, orgCode string) (*DiagnosisReport, error) {
	return Diagnose(ctx, s.store, strings.TrimSpace(orgCode))
}

// GenerateAlerts evaluates the organization against the catalog and, when
// an alert sink is configured, replaces its stored alert set.
func (s *Service) GenerateAlerts(ctx context.Context, orgCode string) ([]Alert, error) {
	orgCode = strings.TrimSpace(orgCode)
	var alerts []Alert
	err := s.store.ReadSnapshot(ctx, func(v reps.View) error {
		org, err := v.Organization(ctx, orgCode)
		if err != nil {
			return err
		}
		svcs, err := v.ListServices(ctx, org.ID)
		if err != nil {
			return err
		}
		alerts = EvaluateAlerts(org, svcs, s.deps.Catalog, s.now(), s.settings.AlertLookahead)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate alerts %s: %w", orgCode, err)
	}
	if s.deps.Alerts != nil {
		if err := s.deps.Alerts.ReplaceAlerts(ctx, orgCode, alerts); err != nil {
			return nil, fmt.Errorf("store alerts %s: %w", orgCode, err)
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveAlerts(orgCode, alerts)
	}
	return alerts, nil
}

// Alerts returns the stored alert set, evaluating it when no sink is
// configured.
func (s *Service) Alerts(ctx context.Context, orgCode string) ([]Alert, error) {
	if s.deps.Alerts == nil {
		return s.GenerateAlerts(ctx, orgCode)
	}
	if _, err := s.store.Organization(ctx, strings.TrimSpace(orgCode)); err != nil {
		return nil, fmt.Errorf("organization %s: %w", orgCode, err)
	}
	return s.deps.Alerts.Alerts(ctx, strings.TrimSpace(orgCode))
}

// ListRuns returns the organization's most recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, orgCode string, limit int) ([]*SyncRun, error) {
	if s.deps.Runs == nil {
		return nil, ErrRunsUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	return s.deps.Runs.ListRuns(ctx, strings.TrimSpace(orgCode), limit)
}

// ListBackups returns the organization's stored backups, newest first.
func (s *Service) ListBackups(ctx context.Context, orgCode string) ([]BackupInfo, error) {
	if s.deps.Backups == nil {
		return nil, ErrBackupsUnavailable
	}
	return s.deps.Backups.List(ctx, strings.TrimSpace(orgCode))
}

// ListOrganizations returns every known organization.
func (s *Service) ListOrganizations(ctx context.Context) ([]reps.Organization, error) {
	return s.store.ListOrganizations(ctx)
}

// PutOrganization creates or updates an organization by code.
func (s *Service) PutOrganization(ctx context.Context, org reps.Organization) (reps.Organization, error) {
	return s.store.PutOrganization(ctx, org)
}
