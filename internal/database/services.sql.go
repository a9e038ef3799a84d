package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const serviceColumns = `id, organization_id, location_id, location_key, natural_key, code, name, service_group,
    enabled_on, expires_on, status, modality, created_by, updated_by, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }) (Service, error) {
	var i Service
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.LocationID,
		&i.LocationKey,
		&i.NaturalKey,
		&i.Code,
		&i.Name,
		&i.ServiceGroup,
		&i.EnabledOn,
		&i.ExpiresOn,
		&i.Status,
		&i.Modality,
		&i.CreatedBy,
		&i.UpdatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listServices = `-- name: ListServices :many
SELECT ` + serviceColumns + ` FROM services WHERE organization_id = $1 ORDER BY natural_key, id
`

func (q *Queries) ListServices(ctx context.Context, organizationID pgtype.UUID) ([]Service, error) {
	rows, err := q.db.Query(ctx, listServices, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Service
	for rows.Next() {
		i, err := scanService(rows)
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

const insertService = `-- name: InsertService :one
INSERT INTO services (
    id, organization_id, location_id, location_key, natural_key, code, name, service_group,
    enabled_on, expires_on, status, modality, created_by, updated_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + serviceColumns + `
`

type InsertServiceParams struct {
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
}

func (q *Queries) InsertService(ctx context.Context, arg InsertServiceParams) (Service, error) {
	row := q.db.QueryRow(ctx, insertService,
		arg.ID,
		arg.OrganizationID,
		arg.LocationID,
		arg.LocationKey,
		arg.NaturalKey,
		arg.Code,
		arg.Name,
		arg.ServiceGroup,
		arg.EnabledOn,
		arg.ExpiresOn,
		arg.Status,
		arg.Modality,
		arg.CreatedBy,
		arg.UpdatedBy,
	)
	return scanService(row)
}

const updateService = `-- name: UpdateService :one
UPDATE services SET
    location_id = $2,
    location_key = $3,
    natural_key = $4,
    code = $5,
    name = $6,
    service_group = $7,
    enabled_on = $8,
    expires_on = $9,
    status = $10,
    modality = $11,
    updated_by = $12,
    updated_at = now()
WHERE id = $1
RETURNING ` + serviceColumns + `
`

type UpdateServiceParams struct {
	ID           pgtype.UUID
	LocationID   pgtype.UUID
	LocationKey  string
	NaturalKey   string
	Code         string
	Name         string
	ServiceGroup pgtype.Text
	EnabledOn    pgtype.Date
	ExpiresOn    pgtype.Date
	Status       pgtype.Text
	Modality     pgtype.Text
	UpdatedBy    string
}

func (q *Queries) UpdateService(ctx context.Context, arg UpdateServiceParams) (Service, error) {
	row := q.db.QueryRow(ctx, updateService,
		arg.ID,
		arg.LocationID,
		arg.LocationKey,
		arg.NaturalKey,
		arg.Code,
		arg.Name,
		arg.ServiceGroup,
		arg.EnabledOn,
		arg.ExpiresOn,
		arg.Status,
		arg.Modality,
		arg.UpdatedBy,
	)
	return scanService(row)
}

const deleteServicesByOrganization = `-- name: DeleteServicesByOrganization :execrows
DELETE FROM services WHERE organization_id = $1
`

func (q *Queries) DeleteServicesByOrganization(ctx context.Context, organizationID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteServicesByOrganization, organizationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
