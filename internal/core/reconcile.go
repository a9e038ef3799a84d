package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/repsync/internal/reps"
)

// ReconcileOptions control one reconciliation.
type ReconcileOptions struct {
	Mode  Mode
	Actor string

	// RowIsolation applies each draft in its own savepoint so a failing
	// row is recorded instead of aborting the run. Merge mode only.
	RowIsolation bool

	// CreateBackup snapshots the organization inside the transaction
	// before any write.
	CreateBackup bool
}

// Engine applies normalized batches to the store.
type Engine struct {
	store   reps.Store
	backups *BackupController
}

// NewEngine returns an engine writing to store. backups may be nil when
// backups are never requested.
func NewEngine(store reps.Store, backups *BackupController) *Engine {
	return &Engine{store: store, backups: backups}
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

func (f *FileStats) count(o outcome) {
	switch o {
	case outcomeCreated:
		f.Created++
	case outcomeUpdated:
		f.Updated++
	case outcomeUnchanged:
		f.Unchanged++
	}
}

// applyState is the working set of one transaction attempt. It is merged
// into the run only after commit.
type applyState struct {
	stats    map[*Batch]*FileStats
	warnings []ValidationWarning
	locByKey map[string]reps.Location
	svcByKey map[string]reps.Service
	rows     int
}

// Reconcile applies batches to org in one transaction and records the
// counters on run. It does not set the run status.
//
// Duplicate natural keys in the input fail before any write. Cancellation
// is honored until the transaction starts; from then on only the caller's
// deadline applies, and hitting it rolls everything back.
func (e *Engine) Reconcile(ctx context.Context, run *SyncRun, org reps.Organization, batches []*Batch, opts ReconcileOptions) error {
	if strings.TrimSpace(opts.Actor) == "" {
		return ErrNoActor
	}
	if opts.Mode == "" {
		opts.Mode = ModeMerge
	}
	if opts.Mode != ModeMerge {
		opts.RowIsolation = false
	}
	start := time.Now()

	if err := checkDuplicates(batches); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Op: "reconcile", Elapsed: time.Since(start), Err: err}
		}
		return fmt.Errorf("reconcile: %w", err)
	}

	applyCtx := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		applyCtx, cancel = context.WithDeadline(applyCtx, deadline)
		defer cancel()
	}

	scope := scopeOf(batches)
	var st *applyState
	err := e.store.RunInTx(applyCtx, func(tx reps.Tx) error {
		st = newApplyState(batches)
		return e.apply(applyCtx, tx, run, org, batches, scope, opts, st)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Op: "apply", Elapsed: time.Since(start), Err: err}
		}
		var recErr *ReconciliationError
		if !errors.As(err, &recErr) {
			err = &ReconciliationError{Kind: kindOf(err), Err: err}
		}
		slog.Warn("reconcile rolled back",
			"run_id", run.ID,
			"org", org.Code,
			"mode", opts.Mode,
			"error", err,
		)
		return err
	}

	for _, b := range batches {
		run.File(b.FileName, b.Shape).add(*st.stats[b])
	}
	run.Warnings = append(run.Warnings, st.warnings...)

	slog.Info("reconcile committed",
		"run_id", run.ID,
		"org", org.Code,
		"mode", opts.Mode,
		"rows", st.rows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func newApplyState(batches []*Batch) *applyState {
	st := &applyState{stats: make(map[*Batch]*FileStats, len(batches))}
	for _, b := range batches {
		st.stats[b] = &FileStats{File: b.FileName, Shape: b.Shape}
	}
	return st
}

func (e *Engine) apply(ctx context.Context, tx reps.Tx, run *SyncRun, org reps.Organization, batches []*Batch, scope reps.Scope, opts ReconcileOptions, st *applyState) error {
	if err := tx.LockOrganization(ctx, org.ID); err != nil {
		return &ReconciliationError{Kind: KindStore, Err: fmt.Errorf("lock organization: %w", err)}
	}

	if opts.CreateBackup {
		if e.backups == nil {
			return &ReconciliationError{Kind: KindBackup, Err: errors.New("no backup store configured")}
		}
		id, err := e.backups.Take(ctx, tx, org, opts.Actor)
		if err != nil {
			return &ReconciliationError{Kind: KindBackup, Err: err}
		}
		run.BackupID = id
	}

	locs, err := tx.ListLocations(ctx, org.ID)
	if err != nil {
		return &ReconciliationError{Kind: KindStore, Err: err}
	}
	svcs, err := tx.ListServices(ctx, org.ID)
	if err != nil {
		return &ReconciliationError{Kind: KindStore, Err: err}
	}

	if opts.Mode == ModeForceRecreate {
		res, err := tx.DeleteScope(ctx, org.ID, scope)
		if err != nil {
			return &ReconciliationError{Kind: KindStore, Err: fmt.Errorf("delete scope: %w", err)}
		}
		attributeDeletes(st, batches, res)
		if scope.Has(reps.ScopeLocations) {
			locs = nil
		}
		svcs = nil
	}

	st.locByKey = make(map[string]reps.Location, len(locs))
	for _, l := range locs {
		st.locByKey[l.NaturalKey] = l
	}
	st.svcByKey = make(map[string]reps.Service, len(svcs))
	for _, s := range svcs {
		st.svcByKey[s.NaturalKey] = s
	}

	// Locations first so services resolve against the applied state.
	for _, b := range batches {
		for _, d := range b.Locations {
			if err := st.tick(ctx); err != nil {
				return err
			}
			err := applyRow(ctx, tx, opts, st, b, d.Line, d.Location.NaturalKey,
				func(tx reps.Tx) (reps.Location, outcome, error) {
					return applyLocation(ctx, tx, org, d, st.locByKey, opts.Actor)
				},
				func(l reps.Location) { st.locByKey[l.NaturalKey] = l },
			)
			if err != nil {
				return err
			}
		}
	}

	for _, b := range batches {
		for _, d := range b.Services {
			if err := st.tick(ctx); err != nil {
				return err
			}
			loc, ok := st.locByKey[d.Service.LocationKey]
			if !ok {
				st.stats[b].Skipped++
				st.warnings = append(st.warnings, ValidationWarning{
					File:   b.FileName,
					Line:   d.Line,
					Reason: ReasonUnknownLocation,
					Detail: fmt.Sprintf("service %s: no location %s", d.Service.NaturalKey, d.Service.LocationKey),
				})
				continue
			}
			err := applyRow(ctx, tx, opts, st, b, d.Line, d.Service.NaturalKey,
				func(tx reps.Tx) (reps.Service, outcome, error) {
					return applyService(ctx, tx, org, loc, d, st.svcByKey, opts.Actor)
				},
				func(s reps.Service) { st.svcByKey[s.NaturalKey] = s },
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *applyState) tick(ctx context.Context) error {
	st.rows++
	if st.rows%ContextCheckInterval == 0 {
		return ctx.Err()
	}
	return nil
}

// applyRow performs one draft write. With row isolation the write runs in a
// savepoint and a failure is counted and recorded; otherwise it aborts the
// transaction.
func applyRow[T any](
	ctx context.Context,
	tx reps.Tx,
	opts ReconcileOptions,
	st *applyState,
	b *Batch,
	line int,
	key string,
	write func(reps.Tx) (T, outcome, error),
	onSuccess func(T),
) error {
	stats := st.stats[b]
	if !opts.RowIsolation {
		v, out, err := write(tx)
		if err != nil {
			return &ReconciliationError{Kind: kindOf(err), Key: key, Lines: []int{line}, Err: err}
		}
		onSuccess(v)
		stats.count(out)
		return nil
	}

	var (
		v   T
		out outcome
	)
	err := tx.Savepoint(ctx, func(sp reps.Tx) error {
		var err error
		v, out, err = write(sp)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		stats.Failed++
		st.warnings = append(st.warnings, ValidationWarning{
			File:   b.FileName,
			Line:   line,
			Reason: ReasonRowFailed,
			Detail: fmt.Sprintf("%s: %v", key, err),
		})
		return nil
	}
	onSuccess(v)
	stats.count(out)
	return nil
}

func applyLocation(ctx context.Context, tx reps.Tx, org reps.Organization, d LocationDraft, existing map[string]reps.Location, actor string) (reps.Location, outcome, error) {
	loc := d.Location
	loc.OrganizationID = org.ID
	loc.SiteType = d.Role

	if cur, ok := existing[loc.NaturalKey]; ok {
		if cur.SameContent(loc) {
			return cur, outcomeUnchanged, nil
		}
		loc.ID = cur.ID
		loc.UpdatedBy = actor
		updated, err := tx.UpdateLocation(ctx, loc)
		return updated, outcomeUpdated, err
	}

	loc.CreatedBy = actor
	loc.UpdatedBy = actor
	created, err := tx.CreateLocation(ctx, loc)
	return created, outcomeCreated, err
}

func applyService(ctx context.Context, tx reps.Tx, org reps.Organization, loc reps.Location, d ServiceDraft, existing map[string]reps.Service, actor string) (reps.Service, outcome, error) {
	svc := d.Service
	svc.OrganizationID = org.ID
	svc.LocationID = loc.ID

	if cur, ok := existing[svc.NaturalKey]; ok {
		if cur.LocationID == svc.LocationID && cur.SameContent(svc) {
			return cur, outcomeUnchanged, nil
		}
		svc.ID = cur.ID
		svc.UpdatedBy = actor
		updated, err := tx.UpdateService(ctx, svc)
		return updated, outcomeUpdated, err
	}

	svc.CreatedBy = actor
	svc.UpdatedBy = actor
	created, err := tx.CreateService(ctx, svc)
	return created, outcomeCreated, err
}

// checkDuplicates rejects input where two drafts share a natural key.
func checkDuplicates(batches []*Batch) error {
	type seen struct {
		order []string
		lines map[string][]int
	}
	locs := seen{lines: make(map[string][]int)}
	svcs := seen{lines: make(map[string][]int)}
	add := func(s *seen, key string, line int) {
		if _, ok := s.lines[key]; !ok {
			s.order = append(s.order, key)
		}
		s.lines[key] = append(s.lines[key], line)
	}
	for _, b := range batches {
		for _, d := range b.Locations {
			add(&locs, d.Location.NaturalKey, d.Line)
		}
		for _, d := range b.Services {
			add(&svcs, d.Service.NaturalKey, d.Line)
		}
	}
	for _, s := range []seen{locs, svcs} {
		for _, key := range s.order {
			if lines := s.lines[key]; len(lines) > 1 {
				return &ReconciliationError{Kind: KindDuplicateKey, Key: key, Lines: lines, Err: reps.ErrDuplicateKey}
			}
		}
	}
	return nil
}

// scopeOf is the union of the delete scopes of the imported shapes.
func scopeOf(batches []*Batch) reps.Scope {
	var scope reps.Scope
	for _, b := range batches {
		if def, ok := Get(b.Shape); ok {
			scope |= def.Scope
		}
	}
	return scope
}

// attributeDeletes charges deleted locations to the headquarters file and
// deleted services to the services file, or to the headquarters file when
// they went with their locations.
func attributeDeletes(st *applyState, batches []*Batch, res reps.DeleteResult) {
	var hq, svc *FileStats
	for _, b := range batches {
		switch b.Shape {
		case ShapeHeadquarters:
			hq = st.stats[b]
		case ShapeServices:
			svc = st.stats[b]
		}
	}
	if hq != nil {
		hq.Deleted += int(res.Locations)
	}
	switch {
	case svc != nil:
		svc.Deleted += int(res.Services)
	case hq != nil:
		hq.Deleted += int(res.Services)
	}
}

func kindOf(err error) ReconcileErrorKind {
	switch {
	case errors.Is(err, reps.ErrDuplicateKey):
		return KindDuplicateKey
	case errors.Is(err, reps.ErrInvalidDates), errors.Is(err, reps.ErrNotFound):
		return KindConstraint
	default:
		return KindStore
	}
}
