package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/repsync/internal/reps"
)

// Restore rebuilds an organization's locations and services from a backup.
// It runs as a force_recreate sync of the snapshot, and backs up the
// current state first so a restore can itself be undone.
//
// Like Synchronize, the error is non-nil only when no run could be started.
func (s *Service) Restore(ctx context.Context, orgCode, backupID, actor string) (*SyncRun, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, ErrNoActor
	}
	if s.deps.Backups == nil {
		return nil, ErrBackupsUnavailable
	}
	org, err := s.store.Organization(ctx, strings.TrimSpace(orgCode))
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", orgCode, err)
	}
	snap, err := s.deps.Backups.Load(ctx, org.Code, backupID)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
	}

	run := NewSyncRun(org.Code, ModeForceRecreate, actor, s.now())
	run.SummaryTopN = s.settings.SummaryTopN
	run.Status = StatusRunning
	slog.Info("restore started", "run_id", run.ID, "org", org.Code, "backup_id", snap.ID, "actor", actor)

	batches := batchesFromBackup(snap)
	for _, b := range batches {
		stats := run.File(b.FileName, b.Shape)
		stats.Seen = len(b.Locations) + len(b.Services)
		stats.Format = "backup"
	}

	err = s.engine.Reconcile(ctx, run, org, batches, ReconcileOptions{
		Mode:         ModeForceRecreate,
		Actor:        actor,
		CreateBackup: true,
	})
	if err != nil {
		run.AddError(err)
		run.Finish(StatusFailed, s.now())
	} else {
		run.Finish(StatusSucceeded, s.now())
	}

	s.afterRun(ctx, run)
	return run, nil
}

// batchesFromBackup turns a snapshot back into drafts. Stored site types
// become draft roles; identity and audit fields are left to the store.
func batchesFromBackup(snap *Backup) []*Batch {
	name := "backup:" + snap.ID
	hq := &Batch{FileName: name, Shape: ShapeHeadquarters}
	for i, l := range snap.Locations {
		loc := reps.Location{
			NaturalKey:       l.NaturalKey,
			RegistrationCode: l.RegistrationCode,
			SiteNumber:       l.SiteNumber,
			Name:             l.Name,
			DepartmentCode:   l.DepartmentCode,
			DepartmentName:   l.DepartmentName,
			MunicipalityCode: l.MunicipalityCode,
			MunicipalityName: l.MunicipalityName,
			Address:          l.Address,
			Phone:            l.Phone,
			Email:            l.Email,
		}
		hq.Locations = append(hq.Locations, LocationDraft{Line: i + 1, Location: loc, Role: l.SiteType})
	}
	svcs := &Batch{FileName: name, Shape: ShapeServices}
	for i, sv := range snap.Services {
		svc := reps.Service{
			NaturalKey:  sv.NaturalKey,
			LocationKey: sv.LocationKey,
			Code:        sv.Code,
			Name:        sv.Name,
			Group:       sv.Group,
			EnabledOn:   sv.EnabledOn,
			ExpiresOn:   sv.ExpiresOn,
			Status:      sv.Status,
			Modality:    sv.Modality,
		}
		svcs.Services = append(svcs.Services, ServiceDraft{Line: i + 1, Service: svc})
	}
	return []*Batch{hq, svcs}
}
