package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/repsync/internal/app"
	"github.com/JonMunkholm/repsync/internal/config"
	"github.com/JonMunkholm/repsync/internal/core"
	_ "github.com/JonMunkholm/repsync/internal/core/tables" // Register export shapes
	"github.com/JonMunkholm/repsync/internal/logging"
	"github.com/JonMunkholm/repsync/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	keyActors, err := cfg.Security.KeyActors()
	if err != nil {
		slog.Error("invalid API keys", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	slog.Info("shapes registered", "count", core.TableCount())

	server := web.NewServer(a.Service, web.Options{
		Limiter:        a.Limiter,
		MaxUploadSize:  2*cfg.Sync.MaxFileSize + 1<<20,
		RequireAPIKey:  cfg.Security.RequireAPIKey,
		KeyActors:      keyActors,
		TrustedProxies: cfg.Security.TrustedProxies,
		Metrics:        a.Metrics.Handler(),
		HealthChecks:   a.Checks,
	})

	// Background jobs stop before the server drains.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go a.Service.StartAlertScheduler(jobCtx, cfg.Alerts.RefreshInterval)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := a.Limiter.Status(); status.Active > 0 {
			slog.Info("waiting for syncs to complete", "active", status.Active)
			if err := a.Limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("syncs did not complete in time", "error", err)
			} else {
				slog.Info("all syncs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	err = server.Start(cfg.Server.Addr(), web.ServerTimeouts{
		Read:  cfg.Server.ReadTimeout,
		Write: cfg.Server.WriteTimeout,
		Idle:  cfg.Server.IdleTimeout,
	})
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		a.Close()
		os.Exit(1)
	}
	<-stopped
	cancelJobs()
	slog.Info("server stopped")
}
