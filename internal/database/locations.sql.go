package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const locationColumns = `id, organization_id, natural_key, registration_code, site_number, name, site_type,
    department_code, department_name, municipality_code, municipality_name, address, phone, email,
    created_by, updated_by, created_at, updated_at`

func scanLocation(row interface{ Scan(...any) error }) (Location, error) {
	var i Location
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.NaturalKey,
		&i.RegistrationCode,
		&i.SiteNumber,
		&i.Name,
		&i.SiteType,
		&i.DepartmentCode,
		&i.DepartmentName,
		&i.MunicipalityCode,
		&i.MunicipalityName,
		&i.Address,
		&i.Phone,
		&i.Email,
		&i.CreatedBy,
		&i.UpdatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listLocations = `-- name: ListLocations :many
SELECT ` + locationColumns + ` FROM locations WHERE organization_id = $1 ORDER BY natural_key, id
`

func (q *Queries) ListLocations(ctx context.Context, organizationID pgtype.UUID) ([]Location, error) {
	rows, err := q.db.Query(ctx, listLocations, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Location
	for rows.Next() {
		i, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertLocation = `-- name: InsertLocation :one
INSERT INTO locations (
    id, organization_id, natural_key, registration_code, site_number, name, site_type,
    department_code, department_name, municipality_code, municipality_name, address, phone, email,
    created_by, updated_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING ` + locationColumns + `
`

type InsertLocationParams struct {
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
}

func (q *Queries) InsertLocation(ctx context.Context, arg InsertLocationParams) (Location, error) {
	row := q.db.QueryRow(ctx, insertLocation,
		arg.ID,
		arg.OrganizationID,
		arg.NaturalKey,
		arg.RegistrationCode,
		arg.SiteNumber,
		arg.Name,
		arg.SiteType,
		arg.DepartmentCode,
		arg.DepartmentName,
		arg.MunicipalityCode,
		arg.MunicipalityName,
		arg.Address,
		arg.Phone,
		arg.Email,
		arg.CreatedBy,
		arg.UpdatedBy,
	)
	return scanLocation(row)
}

const updateLocation = `-- name: UpdateLocation :one
UPDATE locations SET
    natural_key = $2,
    registration_code = $3,
    site_number = $4,
    name = $5,
    site_type = $6,
    department_code = $7,
    department_name = $8,
    municipality_code = $9,
    municipality_name = $10,
    address = $11,
    phone = $12,
    email = $13,
    updated_by = $14,
    updated_at = now()
WHERE id = $1
RETURNING ` + locationColumns + `
`

type UpdateLocationParams struct {
	ID               pgtype.UUID
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
	UpdatedBy        string
}

func (q *Queries) UpdateLocation(ctx context.Context, arg UpdateLocationParams) (Location, error) {
	row := q.db.QueryRow(ctx, updateLocation,
		arg.ID,
		arg.NaturalKey,
		arg.RegistrationCode,
		arg.SiteNumber,
		arg.Name,
		arg.SiteType,
		arg.DepartmentCode,
		arg.DepartmentName,
		arg.MunicipalityCode,
		arg.MunicipalityName,
		arg.Address,
		arg.Phone,
		arg.Email,
		arg.UpdatedBy,
	)
	return scanLocation(row)
}

const deleteLocationsByOrganization = `-- name: DeleteLocationsByOrganization :execrows
DELETE FROM locations WHERE organization_id = $1
`

func (q *Queries) DeleteLocationsByOrganization(ctx context.Context, organizationID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteLocationsByOrganization, organizationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
