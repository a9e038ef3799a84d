package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/repsync/internal/reps"
)

// DefectKind classifies a stored-data inconsistency.
type DefectKind string

const (
	DefectKeyMismatch        DefectKind = "key_mismatch"
	DefectUntrimmedField     DefectKind = "untrimmed_field"
	DefectDuplicateCanonical DefectKind = "duplicate_after_normalization"
)

// Defect is one inconsistency found by Diagnose.
type Defect struct {
	Kind   DefectKind `json:"kind"`
	Entity string     `json:"entity"` // "location" or "service"
	IDs    []string   `json:"ids"`
	Key    string     `json:"key"`
	Field  string     `json:"field,omitempty"`
	Detail string     `json:"detail"`
}

// DiagnosisReport is the read-only health check of one organization.
type DiagnosisReport struct {
	OrganizationCode string    `json:"organizationCode"`
	Locations        int       `json:"locations"`
	Services         int       `json:"services"`
	Defects          []Defect  `json:"defects"`
	ScannedAt        time.Time `json:"scannedAt"`

	// RecommendForceRecreate is set when merge imports cannot repair the
	// defects because stored keys no longer match incoming ones.
	RecommendForceRecreate bool `json:"recommendForceRecreate"`
}

// Clean reports whether no defect was found.
func (r *DiagnosisReport) Clean() bool { return len(r.Defects) == 0 }

// Count returns the number of defects of kind.
func (r *DiagnosisReport) Count(kind DefectKind) int {
	n := 0
	for _, d := range r.Defects {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Diagnose scans an organization's stored locations and services for keys
// that disagree with their components. It never writes.
func Diagnose(ctx context.Context, store reps.Store, orgCode string) (*DiagnosisReport, error) {
	report := &DiagnosisReport{OrganizationCode: orgCode, ScannedAt: time.Now().UTC()}
	err := store.ReadSnapshot(ctx, func(v reps.View) error {
		org, err := v.Organization(ctx, orgCode)
		if err != nil {
			return err
		}
		locs, err := v.ListLocations(ctx, org.ID)
		if err != nil {
			return err
		}
		svcs, err := v.ListServices(ctx, org.ID)
		if err != nil {
			return err
		}
		report.Locations = len(locs)
		report.Services = len(svcs)
		report.Defects = scanDefects(locs, svcs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("diagnose %s: %w", orgCode, err)
	}
	report.RecommendForceRecreate = report.Count(DefectKeyMismatch) > 0 || report.Count(DefectDuplicateCanonical) > 0
	return report, nil
}

func untrimmed(s string) bool { return s != strings.TrimSpace(s) }

func scanDefects(locs []reps.Location, svcs []reps.Service) []Defect {
	var defects []Defect

	canonicalLoc := make(map[string]string, len(locs)) // location id -> canonical key
	locGroups := make(map[string][]string)
	for _, l := range locs {
		canonical := l.CanonicalKey()
		canonicalLoc[l.ID] = canonical

		for field, value := range map[string]string{
			"registration_code": l.RegistrationCode,
			"site_number":       l.SiteNumber,
			"natural_key":       l.NaturalKey,
		} {
			if untrimmed(value) {
				defects = append(defects, Defect{
					Kind: DefectUntrimmedField, Entity: "location", IDs: []string{l.ID},
					Key: l.NaturalKey, Field: field, Detail: fmt.Sprintf("%s %q has surrounding whitespace", field, value),
				})
			}
		}
		if l.NaturalKey != canonical {
			defects = append(defects, Defect{
				Kind: DefectKeyMismatch, Entity: "location", IDs: []string{l.ID},
				Key: l.NaturalKey, Detail: fmt.Sprintf("stored key %q, expected %q", l.NaturalKey, canonical),
			})
		}
		if canonical != "" {
			locGroups[canonical] = append(locGroups[canonical], l.ID)
		}
	}
	defects = append(defects, duplicateDefects("location", locGroups)...)

	svcGroups := make(map[string][]string)
	for _, s := range svcs {
		locKey := canonicalLoc[s.LocationID]
		canonical := s.CanonicalKey(locKey)

		for field, value := range map[string]string{
			"code":         s.Code,
			"location_key": s.LocationKey,
			"natural_key":  s.NaturalKey,
		} {
			if untrimmed(value) {
				defects = append(defects, Defect{
					Kind: DefectUntrimmedField, Entity: "service", IDs: []string{s.ID},
					Key: s.NaturalKey, Field: field, Detail: fmt.Sprintf("%s %q has surrounding whitespace", field, value),
				})
			}
		}
		if s.NaturalKey != canonical || s.LocationKey != locKey {
			defects = append(defects, Defect{
				Kind: DefectKeyMismatch, Entity: "service", IDs: []string{s.ID},
				Key: s.NaturalKey, Detail: fmt.Sprintf("stored key %q (location %q), expected %q (location %q)", s.NaturalKey, s.LocationKey, canonical, locKey),
			})
		}
		if canonical != "" {
			svcGroups[canonical] = append(svcGroups[canonical], s.ID)
		}
	}
	defects = append(defects, duplicateDefects("service", svcGroups)...)

	sort.SliceStable(defects, func(i, j int) bool {
		if defects[i].Entity != defects[j].Entity {
			return defects[i].Entity < defects[j].Entity
		}
		if defects[i].Key != defects[j].Key {
			return defects[i].Key < defects[j].Key
		}
		if defects[i].Kind != defects[j].Kind {
			return defects[i].Kind < defects[j].Kind
		}
		return defects[i].Field < defects[j].Field
	})
	return defects
}

func duplicateDefects(entity string, groups map[string][]string) []Defect {
	var out []Defect
	for key, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		out = append(out, Defect{
			Kind: DefectDuplicateCanonical, Entity: entity, IDs: ids, Key: key,
			Detail: fmt.Sprintf("%d %ss collapse to key %q", len(ids), entity, key),
		})
	}
	return out
}
