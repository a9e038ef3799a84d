package reps

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an organization or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a write would break the
	// (organization, natural key) uniqueness invariant.
	ErrDuplicateKey = errors.New("duplicate natural key")

	// ErrInvalidDates is returned when a service expires before it is enabled.
	ErrInvalidDates = errors.New("expiration date precedes enablement date")
)

// Scope selects the entity kinds removed by a bulk scoped delete.
type Scope uint8

const (
	ScopeServices Scope = 1 << iota
	// ScopeLocations also removes every service owned by the deleted locations.
	ScopeLocations
)

// Has reports whether s includes other.
func (s Scope) Has(other Scope) bool { return s&other != 0 }

// DeleteResult counts the rows removed by a scoped delete.
type DeleteResult struct {
	Locations int64
	Services  int64
}

// View is read access to persisted provider state.
type View interface {
	Organization(ctx context.Context, code string) (Organization, error)
	ListLocations(ctx context.Context, organizationID string) ([]Location, error)
	ListServices(ctx context.Context, organizationID string) ([]Service, error)
}

// Tx is a unit of work. Writes are visible to later reads in the same Tx and
// are discarded unless the function passed to Store.RunInTx returns nil.
type Tx interface {
	View

	// LockOrganization serializes this transaction against every other
	// writer of the organization's locations and services.
	LockOrganization(ctx context.Context, organizationID string) error

	CreateLocation(ctx context.Context, l Location) (Location, error)
	UpdateLocation(ctx context.Context, l Location) (Location, error)
	CreateService(ctx context.Context, s Service) (Service, error)
	UpdateService(ctx context.Context, s Service) (Service, error)

	// DeleteScope removes the organization's entities selected by scope in
	// one bulk operation.
	DeleteScope(ctx context.Context, organizationID string, scope Scope) (DeleteResult, error)

	// Savepoint runs fn in a nested unit of work. If fn fails, only its
	// writes are rolled back and the enclosing Tx stays usable.
	Savepoint(ctx context.Context, fn func(Tx) error) error
}

// Store is the persisted provider record.
type Store interface {
	View

	ListOrganizations(ctx context.Context) ([]Organization, error)
	PutOrganization(ctx context.Context, o Organization) (Organization, error)

	// ReadSnapshot runs fn against a consistent read-only view.
	ReadSnapshot(ctx context.Context, fn func(View) error) error

	// RunInTx runs fn atomically. Any error from fn, or a context deadline
	// reached before commit, rolls back every write made through the Tx.
	RunInTx(ctx context.Context, fn func(Tx) error) error
}
