package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	db "github.com/JonMunkholm/repsync/internal/database"
	"github.com/JonMunkholm/repsync/internal/reps"
)

type txn struct {
	queryView
	tx pgx.Tx
}

func (t *txn) LockOrganization(ctx context.Context, organizationID string) error {
	if _, err := t.q.LockOrganization(ctx, db.ToUUID(organizationID)); err != nil {
		return mapError("lock organization", err)
	}
	return nil
}

func (t *txn) CreateLocation(ctx context.Context, l reps.Location) (reps.Location, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.UpdatedBy == "" {
		l.UpdatedBy = l.CreatedBy
	}
	row, err := t.q.InsertLocation(ctx, db.InsertLocationParams{
		ID:               db.ToUUID(l.ID),
		OrganizationID:   db.ToUUID(l.OrganizationID),
		NaturalKey:       l.NaturalKey,
		RegistrationCode: l.RegistrationCode,
		SiteNumber:       l.SiteNumber,
		Name:             l.Name,
		SiteType:         string(l.SiteType),
		DepartmentCode:   db.ToText(l.DepartmentCode),
		DepartmentName:   db.ToText(l.DepartmentName),
		MunicipalityCode: db.ToText(l.MunicipalityCode),
		MunicipalityName: db.ToText(l.MunicipalityName),
		Address:          db.ToText(l.Address),
		Phone:            db.ToText(l.Phone),
		Email:            db.ToText(l.Email),
		CreatedBy:        l.CreatedBy,
		UpdatedBy:        l.UpdatedBy,
	})
	if err != nil {
		return reps.Location{}, mapError(fmt.Sprintf("create location %s", l.NaturalKey), err)
	}
	return locationFromRow(row), nil
}

func (t *txn) UpdateLocation(ctx context.Context, l reps.Location) (reps.Location, error) {
	row, err := t.q.UpdateLocation(ctx, db.UpdateLocationParams{
		ID:               db.ToUUID(l.ID),
		NaturalKey:       l.NaturalKey,
		RegistrationCode: l.RegistrationCode,
		SiteNumber:       l.SiteNumber,
		Name:             l.Name,
		SiteType:         string(l.SiteType),
		DepartmentCode:   db.ToText(l.DepartmentCode),
		DepartmentName:   db.ToText(l.DepartmentName),
		MunicipalityCode: db.ToText(l.MunicipalityCode),
		MunicipalityName: db.ToText(l.MunicipalityName),
		Address:          db.ToText(l.Address),
		Phone:            db.ToText(l.Phone),
		Email:            db.ToText(l.Email),
		UpdatedBy:        l.UpdatedBy,
	})
	if err != nil {
		return reps.Location{}, mapError(fmt.Sprintf("update location %s", l.NaturalKey), err)
	}
	return locationFromRow(row), nil
}

func (t *txn) CreateService(ctx context.Context, s reps.Service) (reps.Service, error) {
	if !s.ValidDates() {
		return reps.Service{}, fmt.Errorf("create service %s: %w", s.NaturalKey, reps.ErrInvalidDates)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.UpdatedBy == "" {
		s.UpdatedBy = s.CreatedBy
	}
	row, err := t.q.InsertService(ctx, db.InsertServiceParams{
		ID:             db.ToUUID(s.ID),
		OrganizationID: db.ToUUID(s.OrganizationID),
		LocationID:     db.ToUUID(s.LocationID),
		LocationKey:    s.LocationKey,
		NaturalKey:     s.NaturalKey,
		Code:           s.Code,
		Name:           s.Name,
		ServiceGroup:   db.ToText(s.Group),
		EnabledOn:      db.ToDate(s.EnabledOn),
		ExpiresOn:      db.ToDate(s.ExpiresOn),
		Status:         db.ToText(s.Status),
		Modality:       db.ToText(s.Modality),
		CreatedBy:      s.CreatedBy,
		UpdatedBy:      s.UpdatedBy,
	})
	if err != nil {
		return reps.Service{}, mapError(fmt.Sprintf("create service %s", s.NaturalKey), err)
	}
	return serviceFromRow(row), nil
}

func (t *txn) UpdateService(ctx context.Context, s reps.Service) (reps.Service, error) {
	if !s.ValidDates() {
		return reps.Service{}, fmt.Errorf("update service %s: %w", s.NaturalKey, reps.ErrInvalidDates)
	}
	row, err := t.q.UpdateService(ctx, db.UpdateServiceParams{
		ID:           db.ToUUID(s.ID),
		LocationID:   db.ToUUID(s.LocationID),
		LocationKey:  s.LocationKey,
		NaturalKey:   s.NaturalKey,
		Code:         s.Code,
		Name:         s.Name,
		ServiceGroup: db.ToText(s.Group),
		EnabledOn:    db.ToDate(s.EnabledOn),
		ExpiresOn:    db.ToDate(s.ExpiresOn),
		Status:       db.ToText(s.Status),
		Modality:     db.ToText(s.Modality),
		UpdatedBy:    s.UpdatedBy,
	})
	if err != nil {
		return reps.Service{}, mapError(fmt.Sprintf("update service %s", s.NaturalKey), err)
	}
	return serviceFromRow(row), nil
}

// DeleteScope deletes services explicitly before locations so both counts
// are reported even though the foreign key would cascade.
func (t *txn) DeleteScope(ctx context.Context, organizationID string, scope reps.Scope) (reps.DeleteResult, error) {
	var res reps.DeleteResult
	orgID := db.ToUUID(organizationID)
	if scope.Has(reps.ScopeServices) || scope.Has(reps.ScopeLocations) {
		n, err := t.q.DeleteServicesByOrganization(ctx, orgID)
		if err != nil {
			return res, mapError("delete services", err)
		}
		res.Services = n
	}
	if scope.Has(reps.ScopeLocations) {
		n, err := t.q.DeleteLocationsByOrganization(ctx, orgID)
		if err != nil {
			return res, mapError("delete locations", err)
		}
		res.Locations = n
	}
	return res, nil
}

// Savepoint runs fn inside a pgx nested transaction (SAVEPOINT).
func (t *txn) Savepoint(ctx context.Context, fn func(reps.Tx) error) error {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return mapError("savepoint", err)
	}
	if err := fn(&txn{queryView: queryView{q: db.New(nested)}, tx: nested}); err != nil {
		_ = nested.Rollback(ctx)
		return err
	}
	if err := nested.Commit(ctx); err != nil {
		return mapError("release savepoint", err)
	}
	return nil
}
