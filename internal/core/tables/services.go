package tables

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/repsync/internal/core"
	"github.com/JonMunkholm/repsync/internal/reps"
)

const (
	colServiceCode = "service_code"
	colServiceName = "service_name"
	colGroup       = "group"
	colEnabledOn   = "enabled_on"
	colExpiresOn   = "expires_on"
	colStatus      = "status"
	colModality    = "modality"
)

func init() {
	registerServices()
}

func registerServices() {
	specs := append(keyColumns(),
		core.FieldSpec{Name: colServiceCode, Aliases: []string{"serv_codigo", "codigo_servicio", "cod_servicio"}, Type: core.FieldCode, Required: true},
		core.FieldSpec{Name: colServiceName, Aliases: []string{"serv_nombre", "nombre_servicio"}, Type: core.FieldText},
		core.FieldSpec{Name: colGroup, Aliases: []string{"grse_nombre", "grupo_servicio", "grupo"}, Type: core.FieldText},
		core.FieldSpec{Name: colEnabledOn, Aliases: []string{"fecha_apertura", "fecha_habilitacion"}, Type: core.FieldDate},
		core.FieldSpec{Name: colExpiresOn, Aliases: []string{"fecha_cierre", "fecha_vencimiento"}, Type: core.FieldDate},
		core.FieldSpec{Name: colStatus, Aliases: []string{"estado", "habilitado"}, Type: core.FieldText},
		core.FieldSpec{Name: colModality, Aliases: []string{"modalidad"}, Type: core.FieldText},
	)

	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   core.ShapeServices,
			Label: "Enabled services",
		},
		FieldSpecs: specs,
		Build:      buildService,
		Scope:      reps.ScopeServices,
	})
}

func buildService(nc core.NormalizeContext, row core.Row) (core.Draft, *core.SkippedRow) {
	code := row.Get(colRegistrationCode)
	locKey := reps.LocationKey(code, row.Get(colSiteNumber))
	svcCode := row.Get(colServiceCode)
	key := reps.ServiceKey(locKey, svcCode)
	if key == "" {
		return core.Draft{}, missingKey(row.Line, colRegistrationCode, colSiteNumber, colServiceCode)
	}
	if skip := organizationMismatch(nc, row.Line, code); skip != nil {
		return core.Draft{}, skip
	}

	var warnings []core.ValidationWarning
	enabled, w := dateCell(row, colEnabledOn)
	warnings = append(warnings, w...)
	expires, w := dateCell(row, colExpiresOn)
	warnings = append(warnings, w...)

	svc := reps.Service{
		NaturalKey:  key,
		LocationKey: locKey,
		Code:        svcCode,
		Name:        row.Get(colServiceName),
		Group:       row.Get(colGroup),
		EnabledOn:   enabled,
		ExpiresOn:   expires,
		Status:      row.Get(colStatus),
		Modality:    row.Get(colModality),
	}
	if !svc.ValidDates() {
		return core.Draft{}, &core.SkippedRow{
			Line:   row.Line,
			Reason: core.ReasonInvalidDates,
			Detail: fmt.Sprintf("expires %s before enabled %s", expires.Format(time.DateOnly), enabled.Format(time.DateOnly)),
		}
	}

	return core.Draft{
		Service:  &core.ServiceDraft{Service: svc},
		Warnings: warnings,
	}, nil
}

// dateCell parses an optional date column. An unparseable value is dropped
// with a warning; the row is kept.
func dateCell(row core.Row, column string) (*time.Time, []core.ValidationWarning) {
	raw := row.Get(column)
	if raw == "" {
		return nil, nil
	}
	t, ok := core.ParseDate(raw)
	if !ok {
		return nil, []core.ValidationWarning{{
			Line:   row.Line,
			Column: column,
			Reason: core.ReasonUnparseableDate,
			Detail: fmt.Sprintf("%q is not a date", raw),
		}}
	}
	return &t, nil
}
