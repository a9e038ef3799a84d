package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSummaryTopN is the number of errors and warnings Summary shows.
const DefaultSummaryTopN = 5

// FileStats counts what happened to the rows of one input file.
type FileStats struct {
	File      string        `json:"file"`
	Shape     Shape         `json:"shape"`
	Format    string        `json:"format,omitempty"`
	Encoding  string        `json:"encoding,omitempty"`
	Seen      int           `json:"seen"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Deleted   int           `json:"deleted"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"` // extraction failure, if any
}

func (f *FileStats) add(o FileStats) {
	f.Created += o.Created
	f.Updated += o.Updated
	f.Unchanged += o.Unchanged
	f.Deleted += o.Deleted
	f.Skipped += o.Skipped
	f.Failed += o.Failed
}

// SyncRun is the record of one synchronization.
type SyncRun struct {
	ID               string              `json:"id"`
	OrganizationCode string              `json:"organizationCode"`
	Mode             Mode                `json:"mode"`
	Status           RunStatus           `json:"status"`
	Actor            string              `json:"actor"`
	StartedAt        time.Time           `json:"startedAt"`
	FinishedAt       time.Time           `json:"finishedAt,omitempty"`
	Files            []*FileStats        `json:"files"`
	Errors           []string            `json:"errors,omitempty"`
	Warnings         []ValidationWarning `json:"warnings,omitempty"`
	BackupID         string              `json:"backupId,omitempty"`
	Alerts           int                 `json:"alerts"`

	// SummaryTopN caps the errors and warnings listed by Summary. Zero
	// means DefaultSummaryTopN.
	SummaryTopN int `json:"-"`
}

// NewSyncRun starts a pending run.
func NewSyncRun(orgCode string, mode Mode, actor string, now time.Time) *SyncRun {
	return &SyncRun{
		ID:               uuid.NewString(),
		OrganizationCode: orgCode,
		Mode:             mode,
		Status:           StatusPending,
		Actor:            actor,
		StartedAt:        now.UTC(),
	}
}

// File returns the stats for name, adding an entry on first use.
func (r *SyncRun) File(name string, shape Shape) *FileStats {
	for _, f := range r.Files {
		if f.File == name && f.Shape == shape {
			return f
		}
	}
	f := &FileStats{File: name, Shape: shape}
	r.Files = append(r.Files, f)
	return f
}

// AddError records a run-level error.
func (r *SyncRun) AddError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Finish sets the terminal status.
func (r *SyncRun) Finish(status RunStatus, now time.Time) {
	r.Status = status
	r.FinishedAt = now.UTC()
}

// Duration is the wall time of a finished run.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Totals sums the per-file counters.
func (r *SyncRun) Totals() FileStats {
	var t FileStats
	for _, f := range r.Files {
		t.Seen += f.Seen
		t.add(*f)
		t.Elapsed += f.Elapsed
	}
	return t
}

// Summary renders a human-readable report. Errors and warnings beyond
// SummaryTopN are collapsed into a count.
func (r *SyncRun) Summary() string {
	topN := r.SummaryTopN
	if topN <= 0 {
		topN = DefaultSummaryTopN
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sync %s for %s (%s): %s\n", r.ID, r.OrganizationCode, r.Mode, r.Status)
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", d.Round(time.Millisecond))
	}
	if r.BackupID != "" {
		fmt.Fprintf(&b, "Backup: %s\n", r.BackupID)
	}
	for _, f := range r.Files {
		fmt.Fprintf(&b, "  %s [%s]: seen %d, created %d, updated %d, unchanged %d, deleted %d, skipped %d, failed %d (%s)\n",
			f.File, f.Shape, f.Seen, f.Created, f.Updated, f.Unchanged, f.Deleted, f.Skipped, f.Failed, f.Elapsed.Round(time.Millisecond))
		if f.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", f.Error)
		}
	}
	if r.Alerts > 0 {
		fmt.Fprintf(&b, "Alerts: %d\n", r.Alerts)
	}

	writeCapped(&b, "Errors", r.Errors, topN)

	warnings := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		warnings[i] = w.String()
	}
	writeCapped(&b, "Warnings", warnings, topN)

	return strings.TrimRight(b.String(), "\n")
}

func writeCapped(b *strings.Builder, title string, items []string, topN int) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(items))
	for i, item := range items {
		if i == topN {
			fmt.Fprintf(b, "  … and %d more\n", len(items)-topN)
			break
		}
		fmt.Fprintf(b, "  - %s\n", item)
	}
}
