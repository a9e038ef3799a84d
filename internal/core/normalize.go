package core

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Row is the view of a RawRow handed to a shape's builder. Every value
// read through Get has already been through CleanCell.
type Row struct {
	Line   int
	values map[string]string
}

// NewRow wraps raw for a builder.
func NewRow(raw RawRow) Row {
	return Row{Line: raw.Line, values: raw.Values}
}

// Get returns the cleaned value of a canonical column ("" when absent).
func (r Row) Get(column string) string {
	return CleanCell(r.values[column])
}

// Has reports whether the export carried the column at all.
func (r Row) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Normalizer turns extracted rows into drafts.
type Normalizer struct {
	Context NormalizeContext

	// Workers bounds parallel normalization. Zero uses GOMAXPROCS.
	Workers int
}

// Normalize builds the draft for one row. A builder panic is converted into
// a row_failed skip so one malformed row cannot take down a run.
func (n Normalizer) Normalize(def TableDefinition, raw RawRow) (draft Draft, skip *SkippedRow) {
	defer func() {
		if r := recover(); r != nil {
			draft = Draft{}
			skip = &SkippedRow{Line: raw.Line, Reason: ReasonRowFailed, Detail: fmt.Sprint(r)}
		}
	}()

	draft, skip = def.Build(n.Context, NewRow(raw))
	if skip != nil {
		if skip.Line == 0 {
			skip.Line = raw.Line
		}
		return Draft{}, skip
	}
	if draft.Location != nil && draft.Location.Line == 0 {
		draft.Location.Line = raw.Line
	}
	if draft.Service != nil && draft.Service.Line == 0 {
		draft.Service.Line = raw.Line
	}
	for i := range draft.Warnings {
		if draft.Warnings[i].Line == 0 {
			draft.Warnings[i].Line = raw.Line
		}
	}
	return draft, nil
}

type normalized struct {
	draft Draft
	skip  *SkippedRow
}

// NormalizeAll normalizes every row of ext with a bounded worker pool.
// The batch keeps the order of the source rows.
func (n Normalizer) NormalizeAll(ctx context.Context, ext *Extraction) (*Batch, error) {
	def, ok := Get(ext.Shape)
	if !ok {
		return nil, fmt.Errorf("normalize %s: unknown shape %q", ext.FileName, ext.Shape)
	}

	workers := n.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]normalized, len(ext.Rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range ext.Rows {
		if i%ContextCheckInterval == 0 {
			if err := gctx.Err(); err != nil {
				break
			}
		}
		g.Go(func() error {
			d, s := n.Normalize(def, ext.Rows[i])
			results[i] = normalized{draft: d, skip: s}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("normalize %s: %w", ext.FileName, err)
	}

	batch := &Batch{FileName: ext.FileName, Shape: ext.Shape, Warnings: append([]ValidationWarning(nil), ext.Warnings...)}
	for _, r := range results {
		if r.skip != nil {
			batch.Skipped = append(batch.Skipped, *r.skip)
			batch.Warnings = append(batch.Warnings, r.skip.Warning(ext.FileName))
			continue
		}
		for _, w := range r.draft.Warnings {
			w.File = ext.FileName
			batch.Warnings = append(batch.Warnings, w)
		}
		if r.draft.Location != nil {
			batch.Locations = append(batch.Locations, *r.draft.Location)
		}
		if r.draft.Service != nil {
			batch.Services = append(batch.Services, *r.draft.Service)
		}
	}
	return batch, nil
}
