package core

// convert.go provides the cell-level conversions applied to export data.
//
// These functions handle the messy reality of regulator spreadsheet exports:
//   - Several date layouts (ISO, day-first with and without padding, compact)
//   - Spreadsheet serial dates (days since 1899-12-30)
//   - Missing-value placeholders written by the exporting tool
//   - Excel formula prefixes (="value")
//   - Yes/no flags in Spanish and English

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dateLayouts are tried in order. Day-first layouts come before any
// month-first reading, matching the regulator's locale.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"20060102",
	"2006/01/02",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
}

// placeholders are cell values meaning "no value".
var placeholders = map[string]bool{
	"null": true,
	"n/a":  true,
	"nan":  true,
	"#n/d": true,
	"#n/a": true,
	"-":    true,
	"--":   true,
	"none": true,
}

// IsPlaceholder reports whether s (already trimmed) is a missing-value marker.
func IsPlaceholder(s string) bool {
	return placeholders[strings.ToLower(s)]
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace (including non-breaking spaces)
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
// - Collapses missing-value placeholders to ""
func CleanCell(s string) string {
	s = strings.TrimFunc(s, isSpace)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	s = strings.TrimFunc(s, isSpace)

	if IsPlaceholder(s) {
		return ""
	}
	return s
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}

// ParseDate parses a cell in any of the export's date layouts and returns
// midnight UTC of that day. ok is false for empty or unparseable input.
func ParseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := parsed.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return parseSerialDate(s)
}

// Serial dates count days from serialEpoch. Serials below minSerial fall in
// the spreadsheet's phantom 1900-02-29 range and are rejected.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const (
	minSerial = 61
	maxSerial = 2958465 // 9999-12-31
)

// parseSerialDate reads a cell the export tool wrote as a serial number,
// e.g. "45366" or "45366.5". Any time-of-day fraction is dropped.
func parseSerialDate(s string) (time.Time, bool) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || !allDigits(whole) || !allDigits(frac) {
		return time.Time{}, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < minSerial || v > maxSerial {
		return time.Time{}, false
	}
	return serialEpoch.AddDate(0, 0, int(math.Floor(v))), true
}

func allDigits(s string) bool {
	return strings.TrimLeft(s, "0123456789") == ""
}

// ParseFlag reads a yes/no cell. ok is false when the value is empty or
// not recognized.
func ParseFlag(s string) (value, ok bool) {
	switch strings.ToLower(FoldAccents(strings.TrimSpace(s))) {
	case "si", "s", "yes", "y", "true", "t", "1", "x", "principal":
		return true, true
	case "no", "n", "false", "f", "0", "satelite":
		return false, true
	default:
		return false, false
	}
}

// FoldAccents removes combining marks, so "Bogotá" becomes "Bogota".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// HeaderToken normalizes a header cell for matching: accents folded,
// lower-cased, with every run of non-alphanumerics collapsed to "_".
func HeaderToken(s string) string {
	s = strings.ToLower(FoldAccents(CleanCell(s)))
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// UpperName upper-cases a division name and collapses inner whitespace.
func UpperName(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
