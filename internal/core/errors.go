package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoInput is returned when a sync request carries no export file.
	ErrNoInput = errors.New("no input file provided")

	// ErrNoActor is returned when an operation that writes is called
	// without an acting user.
	ErrNoActor = errors.New("actor required")
)

// ExtractionError reports an export that could not be read as a table.
type ExtractionError struct {
	File   string
	Reason string // e.g. "empty file", "no header row"
	Err    error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	b.WriteString("extract")
	if e.File != "" {
		b.WriteString(" ")
		b.WriteString(e.File)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationWarning is a row-level problem recorded on the run.
// Warnings never abort a run.
type ValidationWarning struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column string `json:"column,omitempty"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (w ValidationWarning) String() string {
	var b strings.Builder
	if w.File != "" {
		b.WriteString(w.File)
	}
	if w.Line > 0 {
		fmt.Fprintf(&b, ":%d", w.Line)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(string(w.Reason))
	if w.Column != "" {
		fmt.Fprintf(&b, " [%s]", w.Column)
	}
	if w.Detail != "" {
		b.WriteString(": ")
		b.WriteString(w.Detail)
	}
	return b.String()
}

// ReconcileErrorKind classifies a transactional failure.
type ReconcileErrorKind string

const (
	KindDuplicateKey ReconcileErrorKind = "duplicate_key"
	KindConstraint   ReconcileErrorKind = "constraint"
	KindBackup       ReconcileErrorKind = "backup"
	KindStore        ReconcileErrorKind = "store"
)

// ReconciliationError aborts a run and rolls back every write.
type ReconciliationError struct {
	Kind  ReconcileErrorKind
	Key   string // natural key involved, if any
	Lines []int  // source lines involved, if any
	Err   error
}

func (e *ReconciliationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "reconcile: %s", e.Kind)
	if e.Key != "" {
		fmt.Fprintf(&b, " %q", e.Key)
	}
	if len(e.Lines) > 0 {
		parts := make([]string, len(e.Lines))
		for i, l := range e.Lines {
			parts[i] = fmt.Sprint(l)
		}
		fmt.Fprintf(&b, " (lines %s)", strings.Join(parts, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// TimeoutError reports that the caller's deadline expired. Any transaction
// in progress was rolled back.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s after %s: %v", e.Op, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
