package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/repsync/internal/config"
	"github.com/JonMunkholm/repsync/internal/core"
	_ "github.com/JonMunkholm/repsync/internal/core/tables"
	"github.com/JonMunkholm/repsync/internal/reps"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: config.StoreMemory},
		Backup:   config.BackupConfig{Driver: "memory"},
		Alerts:   config.AlertsConfig{Sink: config.SinkMemory},
		Sync:     config.SyncConfig{MaxConcurrent: 2, MaxFileSize: 1 << 20},
	}
}

func keepMaxFileSize(t *testing.T) {
	old := core.MaxFileSize
	t.Cleanup(func() { core.MaxFileSize = old })
}

func TestBuild_Memory(t *testing.T) {
	keepMaxFileSize(t)
	ctx := context.Background()

	a, err := Build(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if core.MaxFileSize != 1<<20 {
		t.Errorf("MaxFileSize = %d", core.MaxFileSize)
	}
	if a.Limiter.MaxConcurrent() != 2 {
		t.Errorf("limiter slots = %d, want 2", a.Limiter.MaxConcurrent())
	}

	if _, err := a.Store.PutOrganization(ctx, reps.Organization{Code: "110012345678", Name: "Clinica"}); err != nil {
		t.Fatal(err)
	}
	run, err := a.Service.Synchronize(ctx, core.SyncRequest{
		OrganizationCode: "110012345678",
		Headquarters: &core.InputFile{Name: "sedes.csv", Reader: strings.NewReader(
			"codigo_habilitacion;numero_sede;nombre_sede\n110012345678;1;Principal\n")},
		CreateBackup: true,
		Actor:        "cli",
	})
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if run.Status != core.StatusSucceeded || run.BackupID == "" {
		t.Errorf("run status %s backup %q errors %v", run.Status, run.BackupID, run.Errors)
	}
	runs, err := a.Service.ListRuns(ctx, "110012345678", 5)
	if err != nil || len(runs) != 1 {
		t.Errorf("ListRuns = %d, %v", len(runs), err)
	}
}

func TestBuild_SQLiteAndCatalog(t *testing.T) {
	keepMaxFileSize(t)
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte("levels:\n  \"329\": [II]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := memoryConfig()
	cfg.Database = config.DatabaseConfig{Driver: config.StoreSQLite, SQLitePath: filepath.Join(dir, "repsync.db")}
	cfg.Backup = config.BackupConfig{Driver: "fs", Dir: filepath.Join(dir, "backups")}
	cfg.Alerts.CatalogPath = catalogPath

	a, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if len(a.Checks) != 1 || a.Checks[0].Name != "database" {
		t.Fatalf("checks = %+v", a.Checks)
	}
	if err := a.Checks[0].Check(context.Background()); err != nil {
		t.Errorf("sqlite health check: %v", err)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown store", func(c *config.Config) { c.Database.Driver = "oracle" }, "unknown store driver"},
		{"unknown sink", func(c *config.Config) { c.Alerts.Sink = "kafka" }, "unknown alert sink"},
		{"postgres sink without postgres", func(c *config.Config) { c.Alerts.Sink = config.SinkPostgres }, "needs the postgres store"},
		{"unknown blob driver", func(c *config.Config) { c.Backup.Driver = "tape" }, "unknown blob driver"},
		{"missing catalog", func(c *config.Config) { c.Alerts.CatalogPath = "/does/not/exist.yaml" }, "read catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepMaxFileSize(t)
			cfg := memoryConfig()
			tt.mutate(cfg)
			_, err := Build(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestBuild_NoBackups(t *testing.T) {
	keepMaxFileSize(t)
	cfg := memoryConfig()
	cfg.Backup.Driver = ""
	a, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()
	if _, err := a.Service.ListBackups(context.Background(), "x"); err != core.ErrBackupsUnavailable {
		t.Errorf("ListBackups error = %v, want ErrBackupsUnavailable", err)
	}
}
