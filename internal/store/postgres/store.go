// Package postgres implements reps.Store on PostgreSQL through pgx.
//
// Uniqueness of natural keys is enforced by unique constraints; the
// organization lock is a row lock (SELECT ... FOR UPDATE) and savepoints map
// to pgx nested transactions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	db "github.com/JonMunkholm/repsync/internal/database"
	"github.com/JonMunkholm/repsync/internal/reps"
)

// Store is a reps.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ reps.Store = (*Store)(nil)

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for components sharing the connection.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Organization(ctx context.Context, code string) (reps.Organization, error) {
	return queryView{q: db.New(s.pool)}.Organization(ctx, code)
}

func (s *Store) ListLocations(ctx context.Context, organizationID string) ([]reps.Location, error) {
	return queryView{q: db.New(s.pool)}.ListLocations(ctx, organizationID)
}

func (s *Store) ListServices(ctx context.Context, organizationID string) ([]reps.Service, error) {
	return queryView{q: db.New(s.pool)}.ListServices(ctx, organizationID)
}

func (s *Store) ListOrganizations(ctx context.Context) ([]reps.Organization, error) {
	rows, err := db.New(s.pool).ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	out := make([]reps.Organization, len(rows))
	for i, r := range rows {
		out[i] = organizationFromRow(r)
	}
	return out, nil
}

func (s *Store) PutOrganization(ctx context.Context, o reps.Organization) (reps.Organization, error) {
	code := strings.TrimSpace(o.Code)
	if code == "" {
		return reps.Organization{}, fmt.Errorf("organization code required")
	}
	id := o.ID
	if id == "" {
		id = uuid.NewString()
	}
	row, err := db.New(s.pool).UpsertOrganization(ctx, db.UpsertOrganizationParams{
		ID:                  db.ToUUID(id),
		Code:                code,
		Name:                o.Name,
		TaxID:               db.ToText(o.TaxID),
		ComplexityLevel:     db.ToText(o.ComplexityLevel),
		LegalRepresentative: db.ToText(o.LegalRepresentative),
		Email:               db.ToText(o.Email),
		Phone:               db.ToText(o.Phone),
		Address:             db.ToText(o.Address),
	})
	if err != nil {
		return reps.Organization{}, mapError("put organization", err)
	}
	return organizationFromRow(row), nil
}

// ReadSnapshot runs fn inside a read-only repeatable-read transaction.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(reps.View) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(queryView{q: db.New(tx)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RunInTx runs fn in a transaction committed only when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(reps.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&txn{queryView: queryView{q: db.New(tx)}, tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError("commit", err)
	}
	return nil
}

type queryView struct {
	q *db.Queries
}

func (v queryView) Organization(ctx context.Context, code string) (reps.Organization, error) {
	row, err := v.q.GetOrganizationByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return reps.Organization{}, mapError(fmt.Sprintf("organization %q", code), err)
	}
	return organizationFromRow(row), nil
}

func (v queryView) ListLocations(ctx context.Context, organizationID string) ([]reps.Location, error) {
	rows, err := v.q.ListLocations(ctx, db.ToUUID(organizationID))
	if err != nil {
		return nil, mapError("list locations", err)
	}
	out := make([]reps.Location, len(rows))
	for i, r := range rows {
		out[i] = locationFromRow(r)
	}
	return out, nil
}

func (v queryView) ListServices(ctx context.Context, organizationID string) ([]reps.Service, error) {
	rows, err := v.q.ListServices(ctx, db.ToUUID(organizationID))
	if err != nil {
		return nil, mapError("list services", err)
	}
	out := make([]reps.Service, len(rows))
	for i, r := range rows {
		out[i] = serviceFromRow(r)
	}
	return out, nil
}

// mapError translates driver errors into the reps sentinels.
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, reps.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w: %s", op, reps.ErrDuplicateKey, pgErr.Detail)
		case "23514":
			return fmt.Errorf("%s: %w", op, reps.ErrInvalidDates)
		case "23503":
			return fmt.Errorf("%s: %w: %s", op, reps.ErrNotFound, pgErr.Detail)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
