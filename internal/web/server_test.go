package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
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
	testOrg = "110012345678"
	testKey = "secret-key"

	hqExport  = "codigo_habilitacion;numero_sede;nombre_sede\n110012345678;1;Sede Principal\n110012345678;2;Sede Norte\n"
	svcExport = "codigo_habilitacion;numero_sede;serv_codigo;serv_nombre\n110012345678;1;329;Medicina interna\n110012345678;2;328;Medicina general\n"
	dupExport = "codigo_habilitacion;numero_sede;nombre_sede\n110012345678;1;Sede Principal\n110012345678;1;Sede Copia\n"
)

type testEnv struct {
	server *Server
	store  *memory.Store
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := memory.NewStore()
	if _, err := store.PutOrganization(context.Background(), reps.Organization{Code: testOrg, Name: "Clinica Test"}); err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	history := memory.NewHistory()
	svc := core.NewService(store, core.Deps{
		Backups: core.NewBackupController(blob.NewMemory()),
		Alerts:  history,
		Runs:    history,
	}, core.Settings{})

	if opts.KeyActors == nil {
		opts.RequireAPIKey = true
		opts.KeyActors = map[string]string{testKey: "tester"}
	}
	return &testEnv{server: NewServer(svc, opts), store: store}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req.Header.Get("X-API-Key") == "" {
		req.Header.Set("X-API-Key", testKey)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func syncRequest(t *testing.T, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".csv")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/organizations/"+testOrg+"/sync", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) RunResponse {
	t.Helper()
	var resp struct {
		core.SyncRun
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode run: %v (body %s)", err, rec.Body.String())
	}
	run := resp.SyncRun
	return RunResponse{SyncRun: &run, Summary: resp.Summary}
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp HealthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Limiter.MaxConcurrent != core.DefaultMaxConcurrentSyncs {
			t.Errorf("limiter = %+v", resp.Limiter)
		}
	})

	t.Run("failing check", func(t *testing.T) {
		env := newTestEnv(t, Options{HealthChecks: []HealthCheck{{
			Name:  "database",
			Check: func(context.Context) error { return errors.New("down") },
		}}})
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"database":"down"`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shapes", nil))
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestAPIRequiresKey(t *testing.T) {
	env := newTestEnv(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/organizations", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := env.do(t, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestListShapes(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shapes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var shapes []core.TableInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &shapes); err != nil {
		t.Fatal(err)
	}
	if len(shapes) != 2 {
		t.Errorf("got %d shapes, want 2", len(shapes))
	}
}

func TestPutOrganization(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodPut, "/api/organizations/760011111111", strings.NewReader(`{"name":"Hospital Sur","complexityLevel":"II"}`))
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	org, err := env.store.Organization(context.Background(), "760011111111")
	if err != nil {
		t.Fatalf("stored organization: %v", err)
	}
	if org.Name != "Hospital Sur" || org.ComplexityLevel != "II" {
		t.Errorf("org = %+v", org)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodPut, "/api/organizations/760011111111", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", rec.Code)
	}
}

func TestSync_MergeThenIdempotent(t *testing.T) {
	env := newTestEnv(t, Options{})
	files := map[string]string{"headquarters": hqExport, "services": svcExport}

	rec := env.do(t, syncRequest(t, map[string]string{"mode": "merge"}, files))
	if rec.Code != http.StatusOK {
		t.Fatalf("first sync status = %d, body %s", rec.Code, rec.Body.String())
	}
	first := decodeRun(t, rec)
	if first.Status != core.StatusSucceeded {
		t.Fatalf("status = %s, errors %v", first.Status, first.Errors)
	}
	if first.Actor != "tester" {
		t.Errorf("actor = %q, want tester", first.Actor)
	}
	if got := first.Totals().Created; got != 4 {
		t.Errorf("created = %d, want 4", got)
	}
	if !strings.Contains(first.Summary, "succeeded") {
		t.Errorf("summary = %q", first.Summary)
	}

	rec = env.do(t, syncRequest(t, map[string]string{"mode": "merge"}, files))
	second := decodeRun(t, rec)
	totals := second.Totals()
	if totals.Unchanged != 4 || totals.Created != 0 || totals.Updated != 0 {
		t.Errorf("second run totals = %+v, want 4 unchanged", totals)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/organizations/"+testOrg+"/runs?limit=1", nil))
	var runs []core.SyncRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != second.ID {
		t.Errorf("runs = %d, want newest run only", len(runs))
	}
}

func TestSync_DuplicateKeyFails(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, syncRequest(t, map[string]string{"mode": "force_recreate"}, map[string]string{"headquarters": dupExport}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
	}
	run := decodeRun(t, rec)
	if run.Status != core.StatusFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
	org, _ := env.store.Organization(context.Background(), testOrg)
	locs, _ := env.store.ListLocations(context.Background(), org.ID)
	if len(locs) != 0 {
		t.Errorf("stored locations = %d, want 0", len(locs))
	}
}

func TestSync_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		files    map[string]string
		wantCode int
		wantBody string
	}{
		{"no files", map[string]string{"mode": "merge"}, nil, http.StatusBadRequest, "REQ001"},
		{"bad mode", map[string]string{"mode": "fast"}, map[string]string{"headquarters": hqExport}, http.StatusBadRequest, "VAL001"},
		{"bad flag", map[string]string{"backup": "maybe"}, map[string]string{"headquarters": hqExport}, http.StatusBadRequest, "REQ000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			rec := env.do(t, syncRequest(t, tt.fields, tt.files))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestSync_UnknownOrganization(t *testing.T) {
	env := newTestEnv(t, Options{})
	req := syncRequest(t, nil, map[string]string{"headquarters": hqExport})
	req.URL.Path = "/api/organizations/999999999999/sync"
	rec := env.do(t, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSync_TooLarge(t *testing.T) {
	env := newTestEnv(t, Options{MaxUploadSize: 64})
	rec := env.do(t, syncRequest(t, nil, map[string]string{"headquarters": strings.Repeat(hqExport, 10)}))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestSync_LimiterBusy(t *testing.T) {
	limiter := core.NewSyncLimiter(1, 10*time.Millisecond)
	release, ok := limiter.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire failed")
	}
	defer release()

	env := newTestEnv(t, Options{Limiter: limiter})
	rec := env.do(t, syncRequest(t, nil, map[string]string{"headquarters": hqExport}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestBackupAndRestore(t *testing.T) {
	env := newTestEnv(t, Options{})
	files := map[string]string{"headquarters": hqExport, "services": svcExport}
	if rec := env.do(t, syncRequest(t, nil, files)); rec.Code != http.StatusOK {
		t.Fatalf("seed sync status = %d", rec.Code)
	}

	onlyPrincipal := "codigo_habilitacion;numero_sede;nombre_sede\n110012345678;1;Sede Principal\n"
	rec := env.do(t, syncRequest(t, map[string]string{"mode": "force_recreate", "backup": "true"}, map[string]string{"headquarters": onlyPrincipal}))
	run := decodeRun(t, rec)
	if run.Status != core.StatusSucceeded || run.BackupID == "" {
		t.Fatalf("force run status = %s, backup %q, errors %v", run.Status, run.BackupID, run.Errors)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/organizations/"+testOrg+"/backups", nil))
	var backups []core.BackupInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &backups); err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].ID != run.BackupID {
		t.Fatalf("backups = %+v", backups)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/organizations/"+testOrg+"/restore/"+run.BackupID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body %s", rec.Code, rec.Body.String())
	}
	org, _ := env.store.Organization(context.Background(), testOrg)
	locs, _ := env.store.ListLocations(context.Background(), org.ID)
	if len(locs) != 2 {
		t.Errorf("locations after restore = %d, want 2", len(locs))
	}

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/organizations/"+testOrg+"/restore/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing backup status = %d, want 404", rec.Code)
	}
}

func TestDiagnoseAndAlerts(t *testing.T) {
	env := newTestEnv(t, Options{})
	if rec := env.do(t, syncRequest(t, nil, map[string]string{"headquarters": hqExport, "services": svcExport})); rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d", rec.Code)
	}

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/organizations/"+testOrg+"/diagnose", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("diagnose status = %d", rec.Code)
	}
	var report core.DiagnosisReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Locations != 2 || report.Services != 2 || len(report.Defects) != 0 {
		t.Errorf("report = %+v", report)
	}

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec = env.do(t, httptest.NewRequest(method, "/api/organizations/"+testOrg+"/alerts", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s alerts status = %d", method, rec.Code)
		}
		var alerts []core.Alert
		if err := json.Unmarshal(rec.Body.Bytes(), &alerts); err != nil {
			t.Fatalf("%s alerts: %v", method, err)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t, Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("metric 1\n"))
	})})
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "metric 1") {
		t.Errorf("metrics status = %d body %q", rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNoActor, http.StatusUnauthorized},
		{core.ErrNoInput, http.StatusBadRequest},
		{reps.ErrNotFound, http.StatusNotFound},
		{core.ErrBackupNotFound, http.StatusNotFound},
		{core.ErrTooManySyncs, http.StatusServiceUnavailable},
		{core.ErrRunsUnavailable, http.StatusNotImplemented},
		{&core.TimeoutError{Op: "apply"}, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
