package core

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/repsync/internal/reps"
)

// Shape identifies the kind of export file being imported.
type Shape string

const (
	ShapeHeadquarters Shape = "headquarters"
	ShapeServices     Shape = "services"
)

// Mode selects how incoming drafts are reconciled with persisted state.
type Mode string

const (
	// ModeMerge creates and updates by natural key and never deletes.
	ModeMerge Mode = "merge"
	// ModeForceRecreate deletes the imported scope and rebuilds it.
	ModeForceRecreate Mode = "force_recreate"
)

// ParseMode accepts the wire names of a Mode. Empty means ModeMerge.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "merge":
		return ModeMerge, nil
	case "force_recreate", "force-recreate", "forcerecreate", "force":
		return ModeForceRecreate, nil
	default:
		return "", fmt.Errorf("invalid mode %q: want merge or force_recreate", s)
	}
}

// RunStatus is the lifecycle state of a SyncRun.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusPartial   RunStatus = "partial"
)

// FieldType represents the expected data type for an export column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldCode
	FieldDate
	FieldBool
)

// FieldSpec describes one export column.
type FieldSpec struct {
	Name     string    // Canonical column name used by the table's builder
	Aliases  []string  // Other header spellings seen in exports
	Type     FieldType // Expected data type
	Required bool      // Column must exist in the header row
}

// TableInfo contains display information about a registered shape.
type TableInfo struct {
	Key     Shape
	Label   string
	Columns []string // Canonical column names
}

// NormalizeContext carries the per-run values row normalization depends on.
type NormalizeContext struct {
	// OrganizationCode is the registration code being synchronized. Rows
	// carrying a different code are skipped. Empty disables the check.
	OrganizationCode string
}

// BuildFunc turns one cleaned row into a draft or a skip.
type BuildFunc func(nc NormalizeContext, row Row) (Draft, *SkippedRow)

// TableDefinition contains everything needed to import one shape.
type TableDefinition struct {
	Info       TableInfo
	FieldSpecs []FieldSpec
	Build      BuildFunc

	// Scope is what force_recreate deletes before importing this shape.
	Scope reps.Scope
}

// RequiredColumns returns the canonical names of required columns.
func (t TableDefinition) RequiredColumns() []string {
	var out []string
	for _, spec := range t.FieldSpecs {
		if spec.Required {
			out = append(out, spec.Name)
		}
	}
	return out
}

// RawRow is one data row of an export, keyed by canonical column name.
type RawRow struct {
	Line   int // 1-based row number within the tabular region
	Values map[string]string
}

// Extraction is the result of reading one export file.
type Extraction struct {
	FileName string
	Shape    Shape
	Format   string   // "html" or "delimited"
	Encoding string   // "utf-8" or "windows-1252"
	Header   []string // Header cells as found in the file
	Rows     []RawRow
	Warnings []ValidationWarning
}

// LocationDraft pairs a normalized location with the site role derived
// for it. The engine applies Role; it is never stored on the draft entity.
type LocationDraft struct {
	Line     int
	Location reps.Location
	Role     reps.SiteType
}

// ServiceDraft is a normalized service waiting for its location to be
// resolved by key.
type ServiceDraft struct {
	Line    int
	Service reps.Service
}

// Draft is the normalized form of one row. Exactly one of Location and
// Service is set. Warnings are row-level issues that did not skip the row.
type Draft struct {
	Location *LocationDraft
	Service  *ServiceDraft
	Warnings []ValidationWarning
}

// Reason classifies a row-level warning or skip.
type Reason string

const (
	ReasonMissingKey           Reason = "missing_key"
	ReasonInvalidDates         Reason = "invalid_dates"
	ReasonUnparseableDate      Reason = "unparseable_date"
	ReasonOrganizationMismatch Reason = "organization_mismatch"
	ReasonOutOfRange           Reason = "out_of_range"
	ReasonUnrecognizedColumn   Reason = "unrecognized_column"
	ReasonUnknownLocation      Reason = "unknown_location"
	ReasonRowFailed            Reason = "row_failed"
)

// SkippedRow records a row the normalizer did not turn into a draft.
type SkippedRow struct {
	Line   int
	Reason Reason
	Detail string
}

// Warning converts the skip into a ValidationWarning for file.
func (s SkippedRow) Warning(file string) ValidationWarning {
	return ValidationWarning{File: file, Line: s.Line, Reason: s.Reason, Detail: s.Detail}
}

// Batch is the normalized content of one export file.
type Batch struct {
	FileName  string
	Shape     Shape
	Locations []LocationDraft
	Services  []ServiceDraft
	Skipped   []SkippedRow
	Warnings  []ValidationWarning
}
