// Package memory provides an in-memory transactional implementation of
// reps.Store. Each transaction works on a private copy of the state which
// replaces the committed state only when the transaction succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/repsync/internal/reps"
)

// Snapshot is the exported form of the store state, used by persistent
// wrappers that serialize the whole state after each commit.
type Snapshot struct {
	Organizations []reps.Organization `json:"organizations"`
	Locations     []reps.Location     `json:"locations"`
	Services      []reps.Service      `json:"services"`
}

// CommitHook is called with the state a transaction is about to commit.
// A non-nil error aborts the commit.
type CommitHook func(Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the clock used for audit timestamps.
func WithNow(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// WithCommitHook registers a hook run before every commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// Store is an in-memory reps.Store. Writers are serialized by a single lock,
// so LockOrganization only verifies the organization exists.
type Store struct {
	mu    sync.RWMutex
	state *state
	nowFn func() time.Time
	hook  CommitHook
}

var _ reps.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// ImportState replaces the committed state.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snap)
}

func (s *Store) Organization(ctx context.Context, code string) (reps.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.state}.Organization(ctx, code)
}

func (s *Store) ListLocations(ctx context.Context, organizationID string) ([]reps.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.state}.ListLocations(ctx, organizationID)
}

func (s *Store) ListServices(ctx context.Context, organizationID string) ([]reps.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.state}.ListServices(ctx, organizationID)
}

func (s *Store) ListOrganizations(_ context.Context) ([]reps.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reps.Organization, 0, len(s.state.orgs))
	for _, o := range s.state.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// PutOrganization creates the organization or updates it by code.
func (s *Store) PutOrganization(ctx context.Context, o reps.Organization) (reps.Organization, error) {
	o.Code = strings.TrimSpace(o.Code)
	if o.Code == "" {
		return reps.Organization{}, fmt.Errorf("organization code required")
	}
	var saved reps.Organization
	err := s.RunInTx(ctx, func(tx reps.Tx) error {
		t := tx.(*transaction)
		now := t.now
		if id, ok := t.st.orgByCode[o.Code]; ok {
			existing := t.st.orgs[id]
			o.ID = existing.ID
			o.CreatedAt = existing.CreatedAt
		} else {
			o.ID = uuid.NewString()
			o.CreatedAt = now
		}
		o.UpdatedAt = now
		t.st.orgs[o.ID] = o
		t.st.orgByCode[o.Code] = o.ID
		saved = o
		return nil
	})
	return saved, err
}

// ReadSnapshot runs fn against a copy of the committed state.
func (s *Store) ReadSnapshot(_ context.Context, fn func(reps.View) error) error {
	s.mu.RLock()
	snap := s.state.clone()
	s.mu.RUnlock()
	return fn(view{st: snap})
}

// RunInTx executes fn within a transactional copy of the store state.
func (s *Store) RunInTx(ctx context.Context, fn func(reps.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		view: view{st: s.state.clone()},
		now:  s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if s.hook != nil {
		if err := s.hook(tx.st.snapshot()); err != nil {
			return fmt.Errorf("commit hook: %w", err)
		}
	}
	s.state = tx.st
	return nil
}

type state struct {
	orgs      map[string]reps.Organization
	orgByCode map[string]string
	locations map[string]reps.Location
	services  map[string]reps.Service
	locKeys   map[string]string // org id + key -> location id
	svcKeys   map[string]string // org id + key -> service id
}

func newState() *state {
	return &state{
		orgs:      make(map[string]reps.Organization),
		orgByCode: make(map[string]string),
		locations: make(map[string]reps.Location),
		services:  make(map[string]reps.Service),
		locKeys:   make(map[string]string),
		svcKeys:   make(map[string]string),
	}
}

func (st *state) clone() *state {
	cp := newState()
	for k, v := range st.orgs {
		cp.orgs[k] = v
	}
	for k, v := range st.orgByCode {
		cp.orgByCode[k] = v
	}
	for k, v := range st.locations {
		cp.locations[k] = v
	}
	for k, v := range st.services {
		cp.services[k] = cloneService(v)
	}
	for k, v := range st.locKeys {
		cp.locKeys[k] = v
	}
	for k, v := range st.svcKeys {
		cp.svcKeys[k] = v
	}
	return cp
}

func (st *state) snapshot() Snapshot {
	snap := Snapshot{
		Organizations: make([]reps.Organization, 0, len(st.orgs)),
		Locations:     make([]reps.Location, 0, len(st.locations)),
		Services:      make([]reps.Service, 0, len(st.services)),
	}
	for _, o := range st.orgs {
		snap.Organizations = append(snap.Organizations, o)
	}
	for _, l := range st.locations {
		snap.Locations = append(snap.Locations, l)
	}
	for _, sv := range st.services {
		snap.Services = append(snap.Services, cloneService(sv))
	}
	sort.Slice(snap.Organizations, func(i, j int) bool { return snap.Organizations[i].Code < snap.Organizations[j].Code })
	sort.Slice(snap.Locations, func(i, j int) bool { return snap.Locations[i].ID < snap.Locations[j].ID })
	sort.Slice(snap.Services, func(i, j int) bool { return snap.Services[i].ID < snap.Services[j].ID })
	return snap
}

func stateFromSnapshot(snap Snapshot) *state {
	st := newState()
	for _, o := range snap.Organizations {
		st.orgs[o.ID] = o
		st.orgByCode[o.Code] = o.ID
	}
	for _, l := range snap.Locations {
		st.locations[l.ID] = l
		st.locKeys[indexKey(l.OrganizationID, l.NaturalKey)] = l.ID
	}
	for _, sv := range snap.Services {
		st.services[sv.ID] = cloneService(sv)
		st.svcKeys[indexKey(sv.OrganizationID, sv.NaturalKey)] = sv.ID
	}
	return st
}

func indexKey(orgID, naturalKey string) string {
	return orgID + "\x00" + naturalKey
}

func cloneService(s reps.Service) reps.Service {
	cp := s
	if s.EnabledOn != nil {
		t := *s.EnabledOn
		cp.EnabledOn = &t
	}
	if s.ExpiresOn != nil {
		t := *s.ExpiresOn
		cp.ExpiresOn = &t
	}
	return cp
}

type view struct {
	st *state
}

func (v view) Organization(_ context.Context, code string) (reps.Organization, error) {
	id, ok := v.st.orgByCode[strings.TrimSpace(code)]
	if !ok {
		return reps.Organization{}, fmt.Errorf("organization %q: %w", code, reps.ErrNotFound)
	}
	return v.st.orgs[id], nil
}

func (v view) ListLocations(_ context.Context, organizationID string) ([]reps.Location, error) {
	var out []reps.Location
	for _, l := range v.st.locations {
		if l.OrganizationID == organizationID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NaturalKey != out[j].NaturalKey {
			return out[i].NaturalKey < out[j].NaturalKey
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v view) ListServices(_ context.Context, organizationID string) ([]reps.Service, error) {
	var out []reps.Service
	for _, s := range v.st.services {
		if s.OrganizationID == organizationID {
			out = append(out, cloneService(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NaturalKey != out[j].NaturalKey {
			return out[i].NaturalKey < out[j].NaturalKey
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
