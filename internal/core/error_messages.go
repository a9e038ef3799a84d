package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// Codes are grouped by family:
//
//	EXT001-EXT099  export could not be read as a table
//	VAL001-VAL099  row or input validation
//	REC001-REC099  reconciliation aborted and rolled back
//	TMO001         deadline reached, nothing was changed
//	REQ001-REQ099  malformed or unserviceable request
//	DB001-DB099    store failures not classified above
//	ERR000         anything else; check the logs for the technical error
//
// Typed errors (ExtractionError, ReconciliationError, TimeoutError and the
// package sentinels) are matched first with errors.As / errors.Is. Only
// untyped errors fall through to substring patterns, where the first match
// wins.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/repsync/internal/reps"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

var extractionMessages = map[string]UserMessage{
	"empty file": {
		Message: "The export file is empty",
		Action:  "Download the export again from the registry portal",
		Code:    "EXT001",
	},
	"no tabular data": {
		Message: "No table was found in the export",
		Action:  "Upload the file exactly as downloaded from the registry portal",
		Code:    "EXT002",
	},
	"no header row": {
		Message: "The export has no recognizable header row",
		Action:  "Check that the file is the right export (headquarters or services)",
		Code:    "EXT003",
	},
	"file too large": {
		Message: "The export exceeds the maximum file size",
		Action:  "Export fewer rows at a time",
		Code:    "EXT004",
	},
	"encoding error": {
		Message: "The export contains characters that could not be decoded",
		Action:  "Save the file as UTF-8 or download it again",
		Code:    "EXT005",
	},
}

var unreadableExport = UserMessage{
	Message: "The export could not be read",
	Action:  "Download the export again and retry",
	Code:    "EXT099",
}

var reconcileMessages = map[ReconcileErrorKind]UserMessage{
	KindDuplicateKey: {
		Message: "The export lists the same site or service more than once",
		Action:  "Remove the duplicated rows; nothing was changed",
		Code:    "REC001",
	},
	KindConstraint: {
		Message: "A row conflicts with existing data",
		Action:  "Run a diagnosis, then retry; nothing was changed",
		Code:    "REC002",
	},
	KindBackup: {
		Message: "The backup could not be taken",
		Action:  "Check the backup storage, or retry without a backup; nothing was changed",
		Code:    "REC003",
	},
	KindStore: {
		Message: "The data could not be saved",
		Action:  "Please try again; nothing was changed",
		Code:    "REC004",
	},
}

// errorPattern maps an untyped error substring (lower case) to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this key already exists", "Run a diagnosis to find inconsistent keys", "DB001"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Run a diagnosis to find inconsistent keys", "DB001"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Import headquarters before services", "DB002"}},
	{"violates check constraint", UserMessage{"A value is outside its allowed range", "Check service dates in the export", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"The database was busy with conflicting operations", "Please try again", "DB006"}},
	{"invalid mode", UserMessage{"Unknown sync mode", "Use merge or force_recreate", "VAL001"}},
	{"invalid date", UserMessage{"Invalid date format", "Use YYYY-MM-DD or DD/MM/YYYY", "VAL002"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ005"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try again with a smaller export", "TMO001"}},
}

var timeoutMessage = UserMessage{
	Message: "The sync took too long and was rolled back",
	Action:  "Try again, or split the export; nothing was changed",
	Code:    "TMO001",
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		if msg, ok := extractionMessages[extErr.Reason]; ok {
			return msg
		}
		return unreadableExport
	}

	var recErr *ReconciliationError
	if errors.As(err, &recErr) {
		if msg, ok := reconcileMessages[recErr.Kind]; ok {
			return msg
		}
		return reconcileMessages[KindStore]
	}

	var tmoErr *TimeoutError
	if errors.As(err, &tmoErr) {
		return timeoutMessage
	}

	switch {
	case errors.Is(err, ErrNoInput):
		return UserMessage{"No export file was provided", "Attach a headquarters or services export", "REQ001"}
	case errors.Is(err, ErrNoActor):
		return UserMessage{"The request has no acting user", "Authenticate before syncing", "REQ002"}
	case errors.Is(err, ErrBackupNotFound):
		return UserMessage{"Backup not found", "List the organization's backups and pick an existing one", "REQ006"}
	case errors.Is(err, reps.ErrNotFound):
		return UserMessage{"Organization not found", "Register the organization before syncing", "REQ003"}
	case errors.Is(err, ErrTooManySyncs):
		return UserMessage{"Too many syncs are running", "Please wait a moment and try again", "REQ004"}
	case errors.Is(err, ErrFileTooLarge):
		return extractionMessages["file too large"]
	case errors.Is(err, ErrRunsUnavailable), errors.Is(err, ErrBackupsUnavailable):
		return UserMessage{"This feature is not configured", "Ask an administrator to enable it", "REQ007"}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }

func (e *UserError) Unwrap() error { return e.Technical }

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
