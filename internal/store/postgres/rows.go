package postgres

import (
	db "github.com/JonMunkholm/repsync/internal/database"
	"github.com/JonMunkholm/repsync/internal/reps"
)

func organizationFromRow(r db.Organization) reps.Organization {
	return reps.Organization{
		ID:                  db.UUIDToString(r.ID),
		Code:                r.Code,
		Name:                r.Name,
		TaxID:               db.FromText(r.TaxID),
		ComplexityLevel:     db.FromText(r.ComplexityLevel),
		LegalRepresentative: db.FromText(r.LegalRepresentative),
		Email:               db.FromText(r.Email),
		Phone:               db.FromText(r.Phone),
		Address:             db.FromText(r.Address),
		CreatedAt:           db.FromTimestamptz(r.CreatedAt),
		UpdatedAt:           db.FromTimestamptz(r.UpdatedAt),
	}
}

func locationFromRow(r db.Location) reps.Location {
	return reps.Location{
		ID:               db.UUIDToString(r.ID),
		OrganizationID:   db.UUIDToString(r.OrganizationID),
		NaturalKey:       r.NaturalKey,
		RegistrationCode: r.RegistrationCode,
		SiteNumber:       r.SiteNumber,
		Name:             r.Name,
		SiteType:         reps.SiteType(r.SiteType),
		DepartmentCode:   db.FromText(r.DepartmentCode),
		DepartmentName:   db.FromText(r.DepartmentName),
		MunicipalityCode: db.FromText(r.MunicipalityCode),
		MunicipalityName: db.FromText(r.MunicipalityName),
		Address:          db.FromText(r.Address),
		Phone:            db.FromText(r.Phone),
		Email:            db.FromText(r.Email),
		CreatedBy:        r.CreatedBy,
		UpdatedBy:        r.UpdatedBy,
		CreatedAt:        db.FromTimestamptz(r.CreatedAt),
		UpdatedAt:        db.FromTimestamptz(r.UpdatedAt),
	}
}

func serviceFromRow(r db.Service) reps.Service {
	return reps.Service{
		ID:             db.UUIDToString(r.ID),
		OrganizationID: db.UUIDToString(r.OrganizationID),
		LocationID:     db.UUIDToString(r.LocationID),
		LocationKey:    r.LocationKey,
		NaturalKey:     r.NaturalKey,
		Code:           r.Code,
		Name:           r.Name,
		Group:          db.FromText(r.ServiceGroup),
		EnabledOn:      db.FromDate(r.EnabledOn),
		ExpiresOn:      db.FromDate(r.ExpiresOn),
		Status:         db.FromText(r.Status),
		Modality:       db.FromText(r.Modality),
		CreatedBy:      r.CreatedBy,
		UpdatedBy:      r.UpdatedBy,
		CreatedAt:      db.FromTimestamptz(r.CreatedAt),
		UpdatedAt:      db.FromTimestamptz(r.UpdatedAt),
	}
}
