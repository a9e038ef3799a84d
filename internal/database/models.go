package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Organization struct {
	ID                  pgtype.UUID
	Code                string
	Name                string
	TaxID               pgtype.Text
	ComplexityLevel     pgtype.Text
	LegalRepresentative pgtype.Text
	Email               pgtype.Text
	Phone               pgtype.Text
	Address             pgtype.Text
	CreatedAt           pgtype.Timestamptz
	UpdatedAt           pgtype.Timestamptz
}

type Location struct {
	ID               pgtype.UUID
	OrganizationID   pgtype.UUID
	NaturalKey       string
	RegistrationCode string
	SiteNumber       string
	Name             string
	SiteType         string
	DepartmentCode   pgtype.Text
	DepartmentName   pgtype.Text
	MunicipalityCode pgtype.Text
	MunicipalityName pgtype.Text
	Address          pgtype.Text
	Phone            pgtype.Text
	Email            pgtype.Text
	CreatedBy        string
	UpdatedBy        string
	CreatedAt        pgtype.Timestamptz
	UpdatedAt        pgtype.Timestamptz
}

type Service struct {
	ID             pgtype.UUID
	OrganizationID pgtype.UUID
	LocationID     pgtype.UUID
	LocationKey    string
	NaturalKey     string
	Code           string
	Name           string
	ServiceGroup   pgtype.Text
	EnabledOn      pgtype.Date
	ExpiresOn      pgtype.Date
	Status         pgtype.Text
	Modality       pgtype.Text
	CreatedBy      string
	UpdatedBy      string
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

type SyncRun struct {
	ID               pgtype.UUID
	OrganizationCode string
	Mode             string
	Status           string
	Actor            string
	BackupID         pgtype.Text
	StartedAt        pgtype.Timestamptz
	FinishedAt       pgtype.Timestamptz
	Payload          []byte
}

type Alert struct {
	OrganizationCode string
	Position         int32
	Severity         string
	Kind             string
	SubjectKey       string
	Payload          []byte
	GeneratedAt      pgtype.Timestamptz
}
