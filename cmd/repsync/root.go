package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/repsync/internal/app"
	"github.com/JonMunkholm/repsync/internal/config"
	"github.com/JonMunkholm/repsync/internal/logging"
)

// builder opens the application for one command invocation.
type builder func(ctx context.Context) (*app.App, error)

type rootOptions struct {
	envFile string
	jsonOut bool
	actor   string
}

// cli is the state shared by every subcommand.
type cli struct {
	opts  rootOptions
	build builder
	app   *app.App
}

// newRootCmd returns the command tree. A nil build loads configuration
// from the environment.
func newRootCmd(build builder) *cobra.Command {
	c := &cli{build: build}

	root := &cobra.Command{
		Use:           "repsync",
		Short:         "Synchronize provider registry exports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
				c.app = nil
			}
		},
	}

	root.PersistentFlags().StringVar(&c.opts.envFile, "env-file", ".env", "Environment file to load if present")
	root.PersistentFlags().BoolVar(&c.opts.jsonOut, "json", false, "Print results as JSON")
	root.PersistentFlags().StringVar(&c.opts.actor, "actor", defaultActor(), "Name recorded as the author of changes")

	root.AddCommand(
		newSyncCmd(c),
		newRestoreCmd(c),
		newDiagnoseCmd(c),
		newAlertsCmd(c),
		newRunsCmd(c),
		newBackupsCmd(c),
		newOrgCmd(c),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	if c.app != nil {
		return nil
	}
	build := c.build
	if build == nil {
		build = c.buildFromEnv
	}
	a, err := build(cmd.Context())
	if err != nil {
		return withCode(exitUsage, err)
	}
	c.app = a
	return nil
}

func (c *cli) buildFromEnv(ctx context.Context) (*app.App, error) {
	if c.opts.envFile != "" {
		_ = godotenv.Load(c.opts.envFile)
	}
	// API keys guard the HTTP surface; a local operator does not need one.
	if os.Getenv("REQUIRE_API_KEY") == "" {
		_ = os.Setenv("REQUIRE_API_KEY", "false")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return app.Build(ctx, cfg)
}

func defaultActor() string {
	for _, env := range []string{"REPSYNC_ACTOR", "USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return ""
}

func requireActor(c *cli) error {
	if strings.TrimSpace(c.opts.actor) == "" {
		return withCode(exitUsage, fmt.Errorf("--actor is required (or set REPSYNC_ACTOR)"))
	}
	return nil
}
