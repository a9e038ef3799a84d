package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/repsync/internal/reps"
)

type transaction struct {
	view
	now time.Time

	// undo is set inside a savepoint. Writes journal the entries they
	// replace so a failed savepoint can put them back.
	undo *undoLog
}

type undoLog struct{ ops []func() }

func (u *undoLog) rollback() {
	for i := len(u.ops) - 1; i >= 0; i-- {
		u.ops[i]()
	}
	u.ops = nil
}

// journal records how to restore m[k] to its current value.
func journal[V any](tx *transaction, m map[string]V, k string) {
	if tx.undo == nil {
		return
	}
	old, had := m[k]
	tx.undo.ops = append(tx.undo.ops, func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (tx *transaction) LockOrganization(_ context.Context, organizationID string) error {
	if _, ok := tx.st.orgs[organizationID]; !ok {
		return fmt.Errorf("lock organization %s: %w", organizationID, reps.ErrNotFound)
	}
	return nil
}

func (tx *transaction) CreateLocation(_ context.Context, l reps.Location) (reps.Location, error) {
	if _, ok := tx.st.orgs[l.OrganizationID]; !ok {
		return reps.Location{}, fmt.Errorf("create location: organization %s: %w", l.OrganizationID, reps.ErrNotFound)
	}
	if l.NaturalKey == "" {
		return reps.Location{}, fmt.Errorf("create location: empty natural key")
	}
	idx := indexKey(l.OrganizationID, l.NaturalKey)
	if _, exists := tx.st.locKeys[idx]; exists {
		return reps.Location{}, fmt.Errorf("create location %s: %w", l.NaturalKey, reps.ErrDuplicateKey)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	if l.UpdatedBy == "" {
		l.UpdatedBy = l.CreatedBy
	}
	journal(tx, tx.st.locations, l.ID)
	journal(tx, tx.st.locKeys, idx)
	tx.st.locations[l.ID] = l
	tx.st.locKeys[idx] = l.ID
	return l, nil
}

func (tx *transaction) UpdateLocation(_ context.Context, l reps.Location) (reps.Location, error) {
	current, ok := tx.st.locations[l.ID]
	if !ok {
		return reps.Location{}, fmt.Errorf("update location %s: %w", l.ID, reps.ErrNotFound)
	}
	if l.NaturalKey != current.NaturalKey {
		idx := indexKey(current.OrganizationID, l.NaturalKey)
		if other, exists := tx.st.locKeys[idx]; exists && other != l.ID {
			return reps.Location{}, fmt.Errorf("update location %s: %w", l.NaturalKey, reps.ErrDuplicateKey)
		}
		oldIdx := indexKey(current.OrganizationID, current.NaturalKey)
		journal(tx, tx.st.locKeys, oldIdx)
		journal(tx, tx.st.locKeys, idx)
		delete(tx.st.locKeys, oldIdx)
		tx.st.locKeys[idx] = l.ID
	}
	l.OrganizationID = current.OrganizationID
	l.CreatedAt = current.CreatedAt
	l.CreatedBy = current.CreatedBy
	l.UpdatedAt = tx.now
	journal(tx, tx.st.locations, l.ID)
	tx.st.locations[l.ID] = l
	return l, nil
}

func (tx *transaction) CreateService(_ context.Context, s reps.Service) (reps.Service, error) {
	loc, ok := tx.st.locations[s.LocationID]
	if !ok || loc.OrganizationID != s.OrganizationID {
		return reps.Service{}, fmt.Errorf("create service %s: location %s: %w", s.NaturalKey, s.LocationID, reps.ErrNotFound)
	}
	if !s.ValidDates() {
		return reps.Service{}, fmt.Errorf("create service %s: %w", s.NaturalKey, reps.ErrInvalidDates)
	}
	if s.NaturalKey == "" {
		return reps.Service{}, fmt.Errorf("create service: empty natural key")
	}
	idx := indexKey(s.OrganizationID, s.NaturalKey)
	if _, exists := tx.st.svcKeys[idx]; exists {
		return reps.Service{}, fmt.Errorf("create service %s: %w", s.NaturalKey, reps.ErrDuplicateKey)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	if s.UpdatedBy == "" {
		s.UpdatedBy = s.CreatedBy
	}
	s = cloneService(s)
	journal(tx, tx.st.services, s.ID)
	journal(tx, tx.st.svcKeys, idx)
	tx.st.services[s.ID] = s
	tx.st.svcKeys[idx] = s.ID
	return cloneService(s), nil
}

func (tx *transaction) UpdateService(_ context.Context, s reps.Service) (reps.Service, error) {
	current, ok := tx.st.services[s.ID]
	if !ok {
		return reps.Service{}, fmt.Errorf("update service %s: %w", s.ID, reps.ErrNotFound)
	}
	if !s.ValidDates() {
		return reps.Service{}, fmt.Errorf("update service %s: %w", s.NaturalKey, reps.ErrInvalidDates)
	}
	if loc, ok := tx.st.locations[s.LocationID]; !ok || loc.OrganizationID != current.OrganizationID {
		return reps.Service{}, fmt.Errorf("update service %s: location %s: %w", s.NaturalKey, s.LocationID, reps.ErrNotFound)
	}
	if s.NaturalKey != current.NaturalKey {
		idx := indexKey(current.OrganizationID, s.NaturalKey)
		if other, exists := tx.st.svcKeys[idx]; exists && other != s.ID {
			return reps.Service{}, fmt.Errorf("update service %s: %w", s.NaturalKey, reps.ErrDuplicateKey)
		}
		oldIdx := indexKey(current.OrganizationID, current.NaturalKey)
		journal(tx, tx.st.svcKeys, oldIdx)
		journal(tx, tx.st.svcKeys, idx)
		delete(tx.st.svcKeys, oldIdx)
		tx.st.svcKeys[idx] = s.ID
	}
	s.OrganizationID = current.OrganizationID
	s.CreatedAt = current.CreatedAt
	s.CreatedBy = current.CreatedBy
	s.UpdatedAt = tx.now
	s = cloneService(s)
	journal(tx, tx.st.services, s.ID)
	tx.st.services[s.ID] = s
	return cloneService(s), nil
}

// DeleteScope removes services and, for ScopeLocations, the locations that
// own them.
func (tx *transaction) DeleteScope(_ context.Context, organizationID string, scope reps.Scope) (reps.DeleteResult, error) {
	var res reps.DeleteResult
	if scope.Has(reps.ScopeServices) || scope.Has(reps.ScopeLocations) {
		for id, s := range tx.st.services {
			if s.OrganizationID != organizationID {
				continue
			}
			idx := indexKey(organizationID, s.NaturalKey)
			journal(tx, tx.st.services, id)
			journal(tx, tx.st.svcKeys, idx)
			delete(tx.st.services, id)
			delete(tx.st.svcKeys, idx)
			res.Services++
		}
	}
	if scope.Has(reps.ScopeLocations) {
		for id, l := range tx.st.locations {
			if l.OrganizationID != organizationID {
				continue
			}
			idx := indexKey(organizationID, l.NaturalKey)
			journal(tx, tx.st.locations, id)
			journal(tx, tx.st.locKeys, idx)
			delete(tx.st.locations, id)
			delete(tx.st.locKeys, idx)
			res.Locations++
		}
	}
	return res, nil
}

// Savepoint runs fn on the transaction state with its writes journaled.
// If fn fails, only the entries it touched are restored. A successful
// savepoint hands its journal to the enclosing one, if any.
func (tx *transaction) Savepoint(_ context.Context, fn func(reps.Tx) error) error {
	nested := &transaction{view: tx.view, now: tx.now, undo: &undoLog{}}
	if err := fn(nested); err != nil {
		nested.undo.rollback()
		return err
	}
	if tx.undo != nil {
		tx.undo.ops = append(tx.undo.ops, nested.undo.ops...)
	}
	return nil
}
