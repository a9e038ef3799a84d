package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/repsync/internal/core"
	"github.com/JonMunkholm/repsync/internal/logging"
	"github.com/JonMunkholm/repsync/internal/reps"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 5 * time.Second

// RunResponse is a finished run plus its rendered summary.
type RunResponse struct {
	*core.SyncRun
	Summary string `json:"summary"`
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string             `json:"status"`
	Checks  map[string]string  `json:"checks"`
	Limiter core.LimiterStatus `json:"limiter"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Checks:  make(map[string]string, len(s.opts.HealthChecks)),
		Limiter: s.opts.Limiter.Status(),
	}
	for _, hc := range s.opts.HealthChecks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.Check(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Checks[hc.Name] = err.Error()
			logging.FromContext(r.Context()).Warn("health check failed", "check", hc.Name, "error", err)
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, status, resp)
}

func (s *Server) handleListShapes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.ListShapes())
}

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.service.ListOrganizations(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, orgs)
}

func (s *Server) handlePutOrganization(w http.ResponseWriter, r *http.Request) {
	var org reps.Organization
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&org); err != nil {
		badRequest(w, r, "invalid organization JSON")
		return
	}
	org.Code = strings.TrimSpace(chi.URLParam(r, "code"))
	if strings.TrimSpace(org.Name) == "" {
		badRequest(w, r, "organization name is required")
		return
	}

	saved, err := s.service.PutOrganization(r.Context(), org)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("organization saved", "org", saved.Code, "actor", core.ActorFromContext(r.Context()))
	writeJSON(w, saved)
}

// handleSync accepts a multipart form with "headquarters" and/or "services"
// files plus optional "mode", "backup" and "row_isolation" fields.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	release, err := s.opts.Limiter.Acquire(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer release()

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			respondErrorStatus(w, r, core.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		badRequest(w, r, "expected a multipart form upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	mode, err := core.ParseMode(r.FormValue("mode"))
	if err != nil {
		respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}
	backup, err := parseBoolForm(r, "backup")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	isolation, err := parseBoolForm(r, "row_isolation")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	hq, hqFile, err := formFile(r, "headquarters")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if hqFile != nil {
		defer hqFile.Close()
	}
	svcs, svcFile, err := formFile(r, "services")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if svcFile != nil {
		defer svcFile.Close()
	}

	run, err := s.service.Synchronize(r.Context(), core.SyncRequest{
		OrganizationCode: chi.URLParam(r, "code"),
		Headquarters:     hq,
		Services:         svcs,
		Mode:             mode,
		CreateBackup:     backup,
		RowIsolation:     isolation,
		Actor:            core.ActorFromContext(r.Context()),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeRun(w, run)
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Diagnose(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.service.Alerts(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []core.Alert{}
	}
	writeJSON(w, alerts)
}

func (s *Server) handleRegenerateAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.service.GenerateAlerts(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []core.Alert{}
	}
	writeJSON(w, alerts)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns(r.Context(), chi.URLParam(r, "code"), parseIntParam(r, "limit", 20))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*core.SyncRun{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.service.ListBackups(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if backups == nil {
		backups = []core.BackupInfo{}
	}
	writeJSON(w, backups)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	release, err := s.opts.Limiter.Acquire(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer release()

	run, err := s.service.Restore(r.Context(),
		chi.URLParam(r, "code"),
		chi.URLParam(r, "backupID"),
		core.ActorFromContext(r.Context()),
	)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeRun(w, run)
}

// writeRun answers 200 for succeeded or partial runs and 422 for failed ones.
func writeRun(w http.ResponseWriter, run *core.SyncRun) {
	status := http.StatusOK
	if run.Status == core.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSONStatus(w, status, RunResponse{SyncRun: run, Summary: run.Summary()})
}

