package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/repsync/internal/core"
	"github.com/JonMunkholm/repsync/internal/reps"
)

type syncOptions struct {
	headquarters string
	services     string
	mode         string
	backup       bool
	rowIsolation bool
}

func newSyncCmd(c *cli) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync <organization-code>",
		Short: "Import headquarters and/or services exports into an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireActor(c); err != nil {
				return err
			}
			mode, err := core.ParseMode(opts.mode)
			if err != nil {
				return withCode(exitUsage, err)
			}
			if opts.headquarters == "" && opts.services == "" {
				return withCode(exitUsage, errors.New("pass --headquarters and/or --services"))
			}

			req := core.SyncRequest{
				OrganizationCode: args[0],
				Mode:             mode,
				CreateBackup:     opts.backup,
				RowIsolation:     opts.rowIsolation,
				Actor:            c.opts.actor,
			}
			for _, in := range []struct {
				path string
				dst  **core.InputFile
			}{
				{opts.headquarters, &req.Headquarters},
				{opts.services, &req.Services},
			} {
				if in.path == "" {
					continue
				}
				f, err := os.Open(in.path)
				if err != nil {
					return withCode(exitUsage, err)
				}
				defer f.Close()
				*in.dst = &core.InputFile{Name: in.path, Reader: f}
			}

			run, err := c.app.Service.Synchronize(cmd.Context(), req)
			if err != nil {
				return userError(err)
			}
			return c.printRun(cmd, run)
		},
	}

	cmd.Flags().StringVar(&opts.headquarters, "headquarters", "", "Headquarters (sedes) export file")
	cmd.Flags().StringVar(&opts.services, "services", "", "Services export file")
	cmd.Flags().StringVar(&opts.mode, "mode", string(core.ModeMerge), "Sync mode: merge or force_recreate")
	cmd.Flags().BoolVar(&opts.backup, "backup", false, "Back up the organization before writing")
	cmd.Flags().BoolVar(&opts.rowIsolation, "row-isolation", false, "Record failing rows instead of aborting (merge only)")
	return cmd
}

func newRestoreCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <organization-code> <backup-id>",
		Short: "Rebuild an organization from a backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireActor(c); err != nil {
				return err
			}
			run, err := c.app.Service.Restore(cmd.Context(), args[0], args[1], c.opts.actor)
			if err != nil {
				return userError(err)
			}
			return c.printRun(cmd, run)
		},
	}
}

func newDiagnoseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose <organization-code>",
		Short: "Report stored keys that are duplicated, untrimmed or stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.app.Service.Diagnose(cmd.Context(), args[0])
			if err != nil {
				return userError(err)
			}
			if c.opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printDiagnosis(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newAlertsCmd(c *cli) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "alerts <organization-code>",
		Short: "Show compliance alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				alerts []core.Alert
				err    error
			)
			if refresh {
				alerts, err = c.app.Service.GenerateAlerts(cmd.Context(), args[0])
			} else {
				alerts, err = c.app.Service.Alerts(cmd.Context(), args[0])
			}
			if err != nil {
				return userError(err)
			}
			if c.opts.jsonOut {
				if alerts == nil {
					alerts = []core.Alert{}
				}
				return writeJSON(cmd.OutOrStdout(), alerts)
			}
			printAlerts(cmd.OutOrStdout(), alerts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-evaluate instead of reading the stored set")
	return cmd
}

func newRunsCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs <organization-code>",
		Short: "List recent sync runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := c.app.Service.ListRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return userError(err)
			}
			if c.opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}

func newBackupsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "backups <organization-code>",
		Short: "List stored backups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := c.app.Service.ListBackups(cmd.Context(), args[0])
			if err != nil {
				return userError(err)
			}
			if c.opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), backups)
			}
			printBackups(cmd.OutOrStdout(), backups)
			return nil
		},
	}
}

func newOrgCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
	}

	var org reps.Organization
	put := &cobra.Command{
		Use:   "put <organization-code>",
		Short: "Create or update an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if org.Name == "" {
				return withCode(exitUsage, errors.New("--name is required"))
			}
			org.Code = args[0]
			saved, err := c.app.Service.PutOrganization(cmd.Context(), org)
			if err != nil {
				return userError(err)
			}
			if c.opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), saved)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", saved.Code, saved.Name)
			return nil
		},
	}
	put.Flags().StringVar(&org.Name, "name", "", "Organization name (required)")
	put.Flags().StringVar(&org.TaxID, "tax-id", "", "Tax identifier (NIT)")
	put.Flags().StringVar(&org.ComplexityLevel, "level", "", "Complexity level (I, II, III)")
	put.Flags().StringVar(&org.LegalRepresentative, "representative", "", "Legal representative")
	put.Flags().StringVar(&org.Email, "email", "", "Contact email")
	put.Flags().StringVar(&org.Phone, "phone", "", "Contact phone")
	put.Flags().StringVar(&org.Address, "address", "", "Address")

	list := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgs, err := c.app.Service.ListOrganizations(cmd.Context())
			if err != nil {
				return userError(err)
			}
			if c.opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), orgs)
			}
			for _, o := range orgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", o.Code, o.ComplexityLevel, o.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(put, list)
	return cmd
}

// userError maps err to its support-coded message.
func userError(err error) error {
	return withCode(exitFailed, fmt.Errorf("%s: %w", core.FormatUserError(err), err))
}
