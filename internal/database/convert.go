package database

// convert.go maps between domain values and pgtype columns.
//
// All To* functions return pgtype values with Valid=false for empty input,
// so optional columns are stored as NULL rather than empty strings.

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ToText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToText(s string) pgtype.Text {
	if strings.TrimSpace(s) == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// FromText returns the string value of t, or "" when NULL.
func FromText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// ToDate converts an optional day to pgtype.Date.
func ToDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

// FromDate returns the day stored in d as midnight UTC, or nil when NULL.
func FromDate(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	y, m, day := d.Time.Date()
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

// ToTimestamptz converts t to pgtype.Timestamptz. The zero time is NULL.
func ToTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// FromTimestamptz returns the UTC time in t, or the zero time when NULL.
func FromTimestamptz(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// ToUUID converts a string to pgtype.UUID.
// Returns invalid if the string is empty or not a valid UUID.
func ToUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// UUIDToString converts a pgtype.UUID to its string representation.
// Returns empty string if the UUID is invalid.
func UUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
