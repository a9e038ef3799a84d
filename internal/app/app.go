// Package app assembles a core.Service and its collaborators from
// configuration. The server and the CLI both start from Build.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/repsync/internal/blob"
	"github.com/JonMunkholm/repsync/internal/cache"
	"github.com/JonMunkholm/repsync/internal/config"
	"github.com/JonMunkholm/repsync/internal/core"
	db "github.com/JonMunkholm/repsync/internal/database"
	"github.com/JonMunkholm/repsync/internal/events"
	"github.com/JonMunkholm/repsync/internal/metrics"
	"github.com/JonMunkholm/repsync/internal/reps"
	"github.com/JonMunkholm/repsync/internal/store/memory"
	"github.com/JonMunkholm/repsync/internal/store/postgres"
	"github.com/JonMunkholm/repsync/internal/store/sqlite"
	"github.com/JonMunkholm/repsync/internal/web"
)

// App is a wired service plus the resources it holds open.
type App struct {
	Config  *config.Config
	Store   reps.Store
	Service *core.Service
	Limiter *core.SyncLimiter
	Metrics *metrics.Recorder
	Checks  []web.HealthCheck

	closers []func() error
}

// Build connects every configured backend. On error, whatever was already
// opened is closed.
func Build(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	a := &App{Config: cfg}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	core.MaxFileSize = cfg.Sync.MaxFileSize

	pool, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var backups *core.BackupController
	if cfg.Backup.Driver != "" {
		blobs, err := blob.Open(ctx, blobConfig(cfg.Backup))
		if err != nil {
			return nil, fmt.Errorf("open backup store: %w", err)
		}
		backups = core.NewBackupController(blobs)
		slog.Info("backup store ready", "driver", blobs.Driver())
	}

	var catalog *core.Catalog
	if cfg.Alerts.CatalogPath != "" {
		catalog, err = core.LoadCatalog(cfg.Alerts.CatalogPath)
		if err != nil {
			return nil, err
		}
		slog.Info("catalog loaded", "path", cfg.Alerts.CatalogPath, "codes", len(catalog.Levels))
	}

	// Run history follows the store; only postgres keeps it durably.
	local := memory.NewHistory()
	var runs core.RunRecorder = local
	if pool != nil {
		runs = postgres.NewHistory(pool)
	}

	sink, err := a.openAlertSink(ctx, pool, local)
	if err != nil {
		return nil, err
	}

	var publisher core.RunPublisher
	if cfg.Events.Enabled() {
		p := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		a.closers = append(a.closers, p.Close)
		publisher = p
		slog.Info("run events enabled", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	a.Metrics = metrics.New()
	a.Limiter = core.NewSyncLimiter(cfg.Sync.MaxConcurrent, cfg.Sync.MaxWaitTime)
	a.Service = core.NewService(a.Store, core.Deps{
		Backups:   backups,
		Catalog:   catalog,
		Alerts:    sink,
		Runs:      runs,
		Publisher: publisher,
		Metrics:   a.Metrics,
	}, core.Settings{
		Timeout:          cfg.Sync.Timeout,
		AlertLookahead:   cfg.Alerts.Lookahead,
		NormalizeWorkers: cfg.Sync.NormalizeWorkers,
		SummaryTopN:      cfg.Sync.SummaryTopN,
	})
	return a, nil
}

// openStore sets a.Store. The pool is returned for postgres only.
func (a *App) openStore(ctx context.Context) (*pgxpool.Pool, error) {
	cfg := a.Config.Database
	switch cfg.Driver {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, db.PoolOptions{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
			ConnectTimeout:  cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := db.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		a.Store = postgres.New(pool)
		a.Checks = append(a.Checks, web.HealthCheck{Name: "database", Check: pool.Ping})
		return pool, nil

	case config.StoreSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		a.Store = st
		a.Checks = append(a.Checks, web.HealthCheck{Name: "database", Check: st.Ping})
		slog.Info("sqlite store opened", "path", st.Path())
		return nil, nil

	case config.StoreMemory:
		a.Store = memory.NewStore()
		slog.Warn("using in-memory store; data is lost on exit")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (a *App) openAlertSink(ctx context.Context, pool *pgxpool.Pool, local *memory.History) (core.AlertSink, error) {
	cfg := a.Config
	switch cfg.Alerts.Sink {
	case "", config.SinkMemory:
		return local, nil
	case config.SinkPostgres:
		if pool == nil {
			return nil, errors.New("postgres alert sink needs the postgres store")
		}
		return postgres.NewHistory(pool), nil
	case config.SinkRedis:
		c, err := cache.Open(ctx, cache.Options{
			Addr:           cfg.Redis.Addr,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			KeyPrefix:      cfg.Redis.KeyPrefix,
			TTL:            cfg.Redis.TTL,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		a.Checks = append(a.Checks, web.HealthCheck{Name: "redis", Check: c.Ping})
		return c, nil
	default:
		return nil, fmt.Errorf("unknown alert sink %q", cfg.Alerts.Sink)
	}
}

func blobConfig(cfg config.BackupConfig) blob.Config {
	return blob.Config{
		Driver: blob.Driver(cfg.Driver),
		Dir:    cfg.Dir,
		S3: blob.S3Config{
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			PathStyle:       cfg.PathStyle,
		},
		MinIO: blob.MinIOConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		},
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
