// Package tables registers the registry export shapes with the core
// registry. Import this package to ensure all shapes are registered.
package tables

import (
	"strings"

	"github.com/JonMunkholm/repsync/internal/core"
)

// Canonical column names shared by both export shapes.
const (
	colRegistrationCode = "registration_code"
	colSiteNumber       = "site_number"
	colDepartmentCode   = "department_code"
	colDepartment       = "department"
	colMunicipalityCode = "municipality_code"
	colMunicipality     = "municipality"
)

// keyColumns are the columns every shape needs to build a location key.
func keyColumns() []core.FieldSpec {
	return []core.FieldSpec{
		{Name: colRegistrationCode, Aliases: []string{"codigo_habilitacion", "cod_habilitacion", "codigo habilitación", "habilitacion"}, Type: core.FieldCode, Required: true},
		{Name: colSiteNumber, Aliases: []string{"numero_sede", "número sede", "sede", "nro_sede"}, Type: core.FieldCode, Required: true},
	}
}

// organizationMismatch skips rows that belong to another provider.
func organizationMismatch(nc core.NormalizeContext, line int, code string) *core.SkippedRow {
	want := strings.TrimSpace(nc.OrganizationCode)
	if want == "" || code == want {
		return nil
	}
	return &core.SkippedRow{
		Line:   line,
		Reason: core.ReasonOrganizationMismatch,
		Detail: "registration code " + code + " does not belong to " + want,
	}
}

func missingKey(line int, columns ...string) *core.SkippedRow {
	return &core.SkippedRow{
		Line:   line,
		Reason: core.ReasonMissingKey,
		Detail: "required: " + strings.Join(columns, ", "),
	}
}
