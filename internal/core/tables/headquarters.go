package tables

import (
	"strings"

	"github.com/JonMunkholm/repsync/internal/core"
	"github.com/JonMunkholm/repsync/internal/reps"
)

const (
	colSiteName  = "name"
	colPrincipal = "principal"
	colAddress   = "address"
	colPhone     = "phone"
	colEmail     = "email"
)

func init() {
	registerHeadquarters()
}

func registerHeadquarters() {
	specs := append(keyColumns(),
		core.FieldSpec{Name: colSiteName, Aliases: []string{"nombre_sede", "sede_nombre", "nombre"}, Type: core.FieldText},
		core.FieldSpec{Name: colPrincipal, Aliases: []string{"sede_principal", "es_principal"}, Type: core.FieldBool},
		core.FieldSpec{Name: colDepartmentCode, Aliases: []string{"cod_departamento", "codigo_departamento", "depa_codigo"}, Type: core.FieldCode},
		core.FieldSpec{Name: colDepartment, Aliases: []string{"departamento", "depa_nombre"}, Type: core.FieldText},
		core.FieldSpec{Name: colMunicipalityCode, Aliases: []string{"cod_municipio", "codigo_municipio", "muni_codigo"}, Type: core.FieldCode},
		core.FieldSpec{Name: colMunicipality, Aliases: []string{"municipio", "muni_nombre"}, Type: core.FieldText},
		core.FieldSpec{Name: colAddress, Aliases: []string{"direccion"}, Type: core.FieldText},
		core.FieldSpec{Name: colPhone, Aliases: []string{"telefono"}, Type: core.FieldText},
		core.FieldSpec{Name: colEmail, Aliases: []string{"correo", "email_sede"}, Type: core.FieldText},
	)

	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.ShapeHeadquarters,
			Label: "Headquarters (sedes)",
		},
		FieldSpecs: specs,
		Build:      buildHeadquarters,
		Scope:      reps.ScopeLocations,
	})
}

func buildHeadquarters(nc core.NormalizeContext, row core.Row) (core.Draft, *core.SkippedRow) {
	code := row.Get(colRegistrationCode)
	site := row.Get(colSiteNumber)
	key := reps.LocationKey(code, site)
	if key == "" {
		return core.Draft{}, missingKey(row.Line, colRegistrationCode, colSiteNumber)
	}
	if skip := organizationMismatch(nc, row.Line, code); skip != nil {
		return core.Draft{}, skip
	}

	divs, warnings := readDivisions(row)
	loc := reps.Location{
		NaturalKey:       key,
		RegistrationCode: code,
		SiteNumber:       site,
		Name:             row.Get(colSiteName),
		DepartmentCode:   divs.DepartmentCode,
		DepartmentName:   divs.DepartmentName,
		MunicipalityCode: divs.MunicipalityCode,
		MunicipalityName: divs.MunicipalityName,
		Address:          row.Get(colAddress),
		Phone:            row.Get(colPhone),
		Email:            strings.ToLower(row.Get(colEmail)),
	}

	return core.Draft{
		Location: &core.LocationDraft{Location: loc, Role: siteRole(row, site)},
		Warnings: warnings,
	}, nil
}

// siteRole uses the export's principal flag when the column exists. Without
// it, site number 1 is the principal site.
func siteRole(row core.Row, site string) reps.SiteType {
	if row.Has(colPrincipal) {
		if v, ok := core.ParseFlag(row.Get(colPrincipal)); ok && v {
			return reps.SitePrincipal
		}
		return reps.SiteSatellite
	}
	if reps.CanonicalSite(site) == "1" {
		return reps.SitePrincipal
	}
	return reps.SiteSatellite
}
