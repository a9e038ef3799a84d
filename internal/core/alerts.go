package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/repsync/internal/reps"
)

// DefaultAlertLookahead is how far ahead expirations are reported.
const DefaultAlertLookahead = 90 * 24 * time.Hour

// Severity orders alerts by urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank is 0 for the most severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// AlertKind names the rule that raised an alert.
type AlertKind string

const (
	AlertExpired       AlertKind = "expired"
	AlertExpiring      AlertKind = "expiring"
	AlertLevelMismatch AlertKind = "level_mismatch"
	AlertUnknownCode   AlertKind = "unknown_code"
	AlertMissingField  AlertKind = "missing_field"
)

// Alert is one compliance finding.
type Alert struct {
	Severity   Severity   `json:"severity"`
	Kind       AlertKind  `json:"kind"`
	SubjectKey string     `json:"subjectKey"`
	Title      string     `json:"title"`
	Detail     string     `json:"detail"`
	DueOn      *time.Time `json:"dueOn,omitempty"`
}

// AlertSink stores the current alert set of each organization.
type AlertSink interface {
	// ReplaceAlerts atomically swaps the organization's alert set.
	ReplaceAlerts(ctx context.Context, orgCode string, alerts []Alert) error
	Alerts(ctx context.Context, orgCode string) ([]Alert, error)
}

// EvaluateAlerts applies the compliance rules to one organization. It is
// pure: the same inputs always give the same sorted alerts.
func EvaluateAlerts(org reps.Organization, services []reps.Service, catalog *Catalog, today time.Time, lookahead time.Duration) []Alert {
	if lookahead <= 0 {
		lookahead = DefaultAlertLookahead
	}
	today = reps.Date(today)
	horizon := today.Add(lookahead)

	var alerts []Alert
	for _, s := range services {
		if s.ExpiresOn != nil {
			exp := reps.Date(*s.ExpiresOn)
			switch {
			case exp.Before(today):
				alerts = append(alerts, Alert{
					Severity:   SeverityCritical,
					Kind:       AlertExpired,
					SubjectKey: s.NaturalKey,
					Title:      fmt.Sprintf("Service %s expired", s.Code),
					Detail:     fmt.Sprintf("%s expired on %s", serviceLabel(s), exp.Format(time.DateOnly)),
					DueOn:      &exp,
				})
			case !exp.After(horizon):
				days := int(exp.Sub(today).Hours() / 24)
				alerts = append(alerts, Alert{
					Severity:   SeverityHigh,
					Kind:       AlertExpiring,
					SubjectKey: s.NaturalKey,
					Title:      fmt.Sprintf("Service %s expires in %d days", s.Code, days),
					Detail:     fmt.Sprintf("%s expires on %s", serviceLabel(s), exp.Format(time.DateOnly)),
					DueOn:      &exp,
				})
			}
		}

		if catalog == nil || len(catalog.Levels) == 0 {
			continue
		}
		if !catalog.Known(s.Code) {
			alerts = append(alerts, Alert{
				Severity:   SeverityLow,
				Kind:       AlertUnknownCode,
				SubjectKey: s.NaturalKey,
				Title:      fmt.Sprintf("Service code %s not in catalog", s.Code),
				Detail:     fmt.Sprintf("%s uses a code the reference catalog does not list", serviceLabel(s)),
			})
			continue
		}
		if !catalog.Allows(s.Code, org.ComplexityLevel) {
			alerts = append(alerts, Alert{
				Severity:   SeverityHigh,
				Kind:       AlertLevelMismatch,
				SubjectKey: s.NaturalKey,
				Title:      fmt.Sprintf("Service %s not allowed at level %s", s.Code, org.ComplexityLevel),
				Detail: fmt.Sprintf("%s requires level %s",
					serviceLabel(s), strings.Join(catalog.Levels[strings.TrimSpace(s.Code)], " or ")),
			})
		}
	}

	if catalog != nil {
		for _, field := range catalog.MandatoryFields {
			value, known := org.FieldValue(field)
			if known && strings.TrimSpace(value) != "" {
				continue
			}
			alerts = append(alerts, Alert{
				Severity:   SeverityMedium,
				Kind:       AlertMissingField,
				SubjectKey: org.Code,
				Title:      fmt.Sprintf("Organization field %s is missing", field),
				Detail:     fmt.Sprintf("%s has no %s", org.Code, field),
			})
		}
	}

	SortAlerts(alerts)
	return alerts
}

// SortAlerts orders by severity, then subject key, then kind.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.SubjectKey != b.SubjectKey {
			return a.SubjectKey < b.SubjectKey
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Title < b.Title
	})
}

func serviceLabel(s reps.Service) string {
	if s.Name != "" {
		return fmt.Sprintf("%s (%s) at %s", s.Name, s.Code, s.LocationKey)
	}
	return fmt.Sprintf("service %s at %s", s.Code, s.LocationKey)
}
