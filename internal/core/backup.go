package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/repsync/internal/blob"
	"github.com/JonMunkholm/repsync/internal/reps"
)

// ErrBackupNotFound is returned when a backup id does not exist for the
// organization.
var ErrBackupNotFound = errors.New("backup not found")

// Backup is a point-in-time copy of an organization's locations and
// services.
type Backup struct {
	ID               string            `json:"id"`
	OrganizationCode string            `json:"organizationCode"`
	Organization     reps.Organization `json:"organization"`
	Locations        []reps.Location   `json:"locations"`
	Services         []reps.Service    `json:"services"`
	TakenAt          time.Time         `json:"takenAt"`
	Actor            string            `json:"actor"`
}

// BackupInfo lists a stored backup without loading it.
type BackupInfo struct {
	ID      string    `json:"id"`
	Size    int64     `json:"size"`
	TakenAt time.Time `json:"takenAt"`
}

// BackupController writes and reads backup snapshots in a blob store.
type BackupController struct {
	blobs  blob.Store
	prefix string
	now    func() time.Time
}

// NewBackupController stores backups under "backups/<org>/<id>.json".
func NewBackupController(blobs blob.Store) *BackupController {
	return &BackupController{blobs: blobs, prefix: "backups", now: time.Now}
}

func (b *BackupController) key(orgCode, id string) string {
	return path.Join(b.prefix, orgCode, id+".json")
}

// Take snapshots the organization through view and stores it. The blob is
// write-once; if the surrounding transaction later rolls back the backup is
// kept and remains restorable.
func (b *BackupController) Take(ctx context.Context, view reps.View, org reps.Organization, actor string) (string, error) {
	locs, err := view.ListLocations(ctx, org.ID)
	if err != nil {
		return "", fmt.Errorf("backup: list locations: %w", err)
	}
	svcs, err := view.ListServices(ctx, org.ID)
	if err != nil {
		return "", fmt.Errorf("backup: list services: %w", err)
	}

	taken := b.now().UTC()
	snap := Backup{
		ID:               taken.Format("20060102T150405Z") + "-" + uuid.NewString()[:8],
		OrganizationCode: org.Code,
		Organization:     org,
		Locations:        locs,
		Services:         svcs,
		TakenAt:          taken,
		Actor:            actor,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("backup: encode: %w", err)
	}

	_, err = b.blobs.Put(ctx, b.key(org.Code, snap.ID), bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"organization": org.Code,
			"actor":        actor,
			"locations":    fmt.Sprint(len(locs)),
			"services":     fmt.Sprint(len(svcs)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("backup: store: %w", err)
	}

	slog.Info("backup taken",
		"org", org.Code,
		"backup_id", snap.ID,
		"locations", len(locs),
		"services", len(svcs),
	)
	return snap.ID, nil
}

// Load reads a backup.
func (b *BackupController) Load(ctx context.Context, orgCode, id string) (*Backup, error) {
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return nil, fmt.Errorf("%w: %q", ErrBackupNotFound, id)
	}
	_, rc, err := b.blobs.Get(ctx, b.key(orgCode, id))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}
		return nil, fmt.Errorf("load backup %s: %w", id, err)
	}
	defer rc.Close()

	var snap Backup
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", id, err)
	}
	if snap.OrganizationCode != orgCode {
		return nil, fmt.Errorf("%w: %s belongs to %s", ErrBackupNotFound, id, snap.OrganizationCode)
	}
	return &snap, nil
}

// List returns the organization's backups, newest first.
func (b *BackupController) List(ctx context.Context, orgCode string) ([]BackupInfo, error) {
	infos, err := b.blobs.List(ctx, path.Join(b.prefix, orgCode)+"/")
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := make([]BackupInfo, 0, len(infos))
	for _, info := range infos {
		id := strings.TrimSuffix(path.Base(info.Key), ".json")
		out = append(out, BackupInfo{ID: id, Size: info.Size, TakenAt: info.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
