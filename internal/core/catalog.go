package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the reference data compliance alerts are evaluated against.
//
//	levels:
//	  "329": [II, III]
//	mandatory_fields: [name, tax_id, complexity_level]
type Catalog struct {
	// Levels maps a service code to the organization complexity levels
	// allowed to offer it. A code with no levels is allowed at any level.
	Levels map[string][]string `yaml:"levels"`

	// MandatoryFields are organization fields (see reps.Organization.FieldValue)
	// that must not be empty.
	MandatoryFields []string `yaml:"mandatory_fields"`
}

// ParseCatalog decodes a YAML catalog. Codes are trimmed and levels are
// upper-cased.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw Catalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{Levels: make(map[string][]string, len(raw.Levels))}
	for code, levels := range raw.Levels {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		norm := make([]string, 0, len(levels))
		for _, l := range levels {
			if l = normalizeLevel(l); l != "" {
				norm = append(norm, l)
			}
		}
		c.Levels[code] = norm
	}
	for _, f := range raw.MandatoryFields {
		if f = strings.TrimSpace(f); f != "" {
			c.MandatoryFields = append(c.MandatoryFields, f)
		}
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Known reports whether code is listed.
func (c *Catalog) Known(code string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Levels[strings.TrimSpace(code)]
	return ok
}

// Allows reports whether an organization of level may offer code. Unknown
// codes, codes without levels and an empty level are all allowed.
func (c *Catalog) Allows(code, level string) bool {
	if c == nil {
		return true
	}
	level = normalizeLevel(level)
	levels := c.Levels[strings.TrimSpace(code)]
	if level == "" || len(levels) == 0 {
		return true
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

func normalizeLevel(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
