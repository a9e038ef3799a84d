package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/repsync/internal/core"
)

var errRunFailed = errors.New("sync failed")

// printRun writes the run and turns a failed run into exit code 1.
func (c *cli) printRun(cmd *cobra.Command, run *core.SyncRun) error {
	out := cmd.OutOrStdout()
	if c.opts.jsonOut {
		if err := writeJSON(out, run); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, run.Summary())
	}
	if run.Status == core.StatusFailed {
		return withCode(exitFailed, errRunFailed)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDiagnosis(w io.Writer, r *core.DiagnosisReport) {
	fmt.Fprintf(w, "%s: %d locations, %d services, %d defects\n", r.OrganizationCode, r.Locations, r.Services, len(r.Defects))
	if r.Clean() {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tENTITY\tKEY\tDETAIL")
	for _, d := range r.Defects {
		fmt.Fprintf(tw, "%s\t%s\t%q\t%s\n", d.Kind, d.Entity, d.Key, d.Detail)
	}
	_ = tw.Flush()
	if r.RecommendForceRecreate {
		fmt.Fprintln(w, "Stored keys no longer match; run a force_recreate sync to repair them.")
	}
}

func printAlerts(w io.Writer, alerts []core.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "no alerts")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tKIND\tSUBJECT\tTITLE")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Severity, a.Kind, a.SubjectKey, a.Title)
	}
	_ = tw.Flush()
}

func printRuns(w io.Writer, runs []*core.SyncRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMODE\tSTATUS\tACTOR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Mode, r.Status, r.Actor)
	}
	_ = tw.Flush()
}

func printBackups(w io.Writer, backups []core.BackupInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAKEN\tSIZE")
	for _, b := range backups {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", b.ID, b.TakenAt.Format(time.RFC3339), b.Size)
	}
	_ = tw.Flush()
}
