package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/repsync/internal/blob"
	"github.com/JonMunkholm/repsync/internal/core"
	_ "github.com/JonMunkholm/repsync/internal/core/tables"
	"github.com/JonMunkholm/repsync/internal/reps"
	"github.com/JonMunkholm/repsync/internal/store/memory"
)

const (
	orgCode = "110012345678"

	hqExport = "codigo_habilitacion;numero_sede;nombre_sede\n" +
		"110012345678;1;Sede Principal\n" +
		"110012345678;2;Sede Norte\n"

	svcExport = "codigo_habilitacion;numero_sede;serv_codigo;serv_nombre\n" +
		"110012345678;1;329;Medicina interna\n" +
		"110012345678;2;328;Medicina general\n"
)

// today pins the service clock for alert tests.
var today = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	store   *memory.Store
	blobs   *blob.Memory
	history *memory.History
	svc     *core.Service
	org     reps.Organization
}

type envOption func(*envConfig)

type envConfig struct {
	catalog    *core.Catalog
	level      string
	storeOpts  []memory.Option
	wrapStore  func(*memory.Store) reps.Store
	noBackups  bool
	noRecorder bool
}

func withCatalog(c *core.Catalog) envOption { return func(cfg *envConfig) { cfg.catalog = c } }

func withLevel(level string) envOption { return func(cfg *envConfig) { cfg.level = level } }

func withStoreOptions(opts ...memory.Option) envOption {
	return func(cfg *envConfig) { cfg.storeOpts = append(cfg.storeOpts, opts...) }
}

func withStoreWrapper(fn func(*memory.Store) reps.Store) envOption {
	return func(cfg *envConfig) { cfg.wrapStore = fn }
}

func withoutBackups() envOption { return func(cfg *envConfig) { cfg.noBackups = true } }

func withoutRecorder() envOption { return func(cfg *envConfig) { cfg.noRecorder = true } }

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{level: "II"}
	for _, o := range opts {
		o(&cfg)
	}

	store := memory.NewStore(cfg.storeOpts...)
	org, err := store.PutOrganization(context.Background(), reps.Organization{
		Code:            orgCode,
		Name:            "Clinica de Prueba",
		ComplexityLevel: cfg.level,
	})
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}

	var rs reps.Store = store
	if cfg.wrapStore != nil {
		rs = cfg.wrapStore(store)
	}

	env := &testEnv{
		store:   store,
		blobs:   blob.NewMemory(),
		history: memory.NewHistory(),
		org:     org,
	}
	deps := core.Deps{Catalog: cfg.catalog, Alerts: env.history}
	if !cfg.noBackups {
		deps.Backups = core.NewBackupController(env.blobs)
	}
	if !cfg.noRecorder {
		deps.Runs = env.history
	}
	env.svc = core.NewService(rs, deps, core.Settings{NormalizeWorkers: 2})
	env.svc.SetClock(func() time.Time { return today })
	return env
}

func file(name, content string) *core.InputFile {
	return &core.InputFile{Name: name, Reader: strings.NewReader(content)}
}

type syncOpts struct {
	hq, svcs  string
	mode      core.Mode
	backup    bool
	isolation bool
}

// sync runs one synchronization. Empty content means the file is not sent.
func (e *testEnv) sync(t *testing.T, o syncOpts) *core.SyncRun {
	t.Helper()
	req := core.SyncRequest{
		OrganizationCode: orgCode,
		Mode:             o.mode,
		CreateBackup:     o.backup,
		RowIsolation:     o.isolation,
		Actor:            "tester",
	}
	if o.hq != "" {
		req.Headquarters = file("sedes.csv", o.hq)
	}
	if o.svcs != "" {
		req.Services = file("servicios.csv", o.svcs)
	}
	run, err := e.svc.Synchronize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	return run
}

func (e *testEnv) counts(t *testing.T) (locations, services int) {
	t.Helper()
	locs, err := e.store.ListLocations(context.Background(), e.org.ID)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	svcs, err := e.store.ListServices(context.Background(), e.org.ID)
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	return len(locs), len(svcs)
}

func countAlerts(alerts []core.Alert, match func(core.Alert) bool) int {
	n := 0
	for _, a := range alerts {
		if match(a) {
			n++
		}
	}
	return n
}

func hasWarning(run *core.SyncRun, reason core.Reason) bool {
	for _, w := range run.Warnings {
		if w.Reason == reason {
			return true
		}
	}
	return false
}

// failingStore fails every location write whose key is failKey.
type failingStore struct {
	*memory.Store
	failKey string
}

func (s failingStore) RunInTx(ctx context.Context, fn func(reps.Tx) error) error {
	return s.Store.RunInTx(ctx, func(tx reps.Tx) error {
		return fn(failingTx{Tx: tx, failKey: s.failKey})
	})
}

type failingTx struct {
	reps.Tx
	failKey string
}

var errInjected = errors.New("injected write failure")

func (tx failingTx) CreateLocation(ctx context.Context, l reps.Location) (reps.Location, error) {
	if l.NaturalKey == tx.failKey {
		return reps.Location{}, errInjected
	}
	return tx.Tx.CreateLocation(ctx, l)
}

func (tx failingTx) Savepoint(ctx context.Context, fn func(reps.Tx) error) error {
	return tx.Tx.Savepoint(ctx, func(sp reps.Tx) error {
		return fn(failingTx{Tx: sp, failKey: tx.failKey})
	})
}

// slowStore delays every location write by delay, so a deadline can expire
// while the transaction is still applying.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s slowStore) RunInTx(ctx context.Context, fn func(reps.Tx) error) error {
	return s.Store.RunInTx(ctx, func(tx reps.Tx) error {
		return fn(slowTx{Tx: tx, delay: s.delay})
	})
}

type slowTx struct {
	reps.Tx
	delay time.Duration
}

func (tx slowTx) CreateLocation(ctx context.Context, l reps.Location) (reps.Location, error) {
	time.Sleep(tx.delay)
	return tx.Tx.CreateLocation(ctx, l)
}
