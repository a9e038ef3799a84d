package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const organizationColumns = `id, code, name, tax_id, complexity_level, legal_representative, email, phone, address, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }) (Organization, error) {
	var i Organization
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.Name,
		&i.TaxID,
		&i.ComplexityLevel,
		&i.LegalRepresentative,
		&i.Email,
		&i.Phone,
		&i.Address,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrganizationByCode = `-- name: GetOrganizationByCode :one
SELECT ` + organizationColumns + ` FROM organizations WHERE code = $1
`

func (q *Queries) GetOrganizationByCode(ctx context.Context, code string) (Organization, error) {
	return scanOrganization(q.db.QueryRow(ctx, getOrganizationByCode, code))
}

const listOrganizations = `-- name: ListOrganizations :many
SELECT ` + organizationColumns + ` FROM organizations ORDER BY code
`

func (q *Queries) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := q.db.Query(ctx, listOrganizations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Organization
	for rows.Next() {
		i, err := scanOrganization(rows)
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

const upsertOrganization = `-- name: UpsertOrganization :one
INSERT INTO organizations (id, code, name, tax_id, complexity_level, legal_representative, email, phone, address)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (code) DO UPDATE SET
    name = EXCLUDED.name,
    tax_id = EXCLUDED.tax_id,
    complexity_level = EXCLUDED.complexity_level,
    legal_representative = EXCLUDED.legal_representative,
    email = EXCLUDED.email,
    phone = EXCLUDED.phone,
    address = EXCLUDED.address,
    updated_at = now()
RETURNING ` + organizationColumns + `
`

type UpsertOrganizationParams struct {
	ID                  pgtype.UUID
	Code                string
	Name                string
	TaxID               pgtype.Text
	ComplexityLevel     pgtype.Text
	LegalRepresentative pgtype.Text
	Email               pgtype.Text
	Phone               pgtype.Text
	Address             pgtype.Text
}

func (q *Queries) UpsertOrganization(ctx context.Context, arg UpsertOrganizationParams) (Organization, error) {
	row := q.db.QueryRow(ctx, upsertOrganization,
		arg.ID,
		arg.Code,
		arg.Name,
		arg.TaxID,
		arg.ComplexityLevel,
		arg.LegalRepresentative,
		arg.Email,
		arg.Phone,
		arg.Address,
	)
	return scanOrganization(row)
}

const lockOrganization = `-- name: LockOrganization :one
SELECT id FROM organizations WHERE id = $1 FOR UPDATE
`

func (q *Queries) LockOrganization(ctx context.Context, id pgtype.UUID) (pgtype.UUID, error) {
	row := q.db.QueryRow(ctx, lockOrganization, id)
	var locked pgtype.UUID
	err := row.Scan(&locked)
	return locked, err
}
