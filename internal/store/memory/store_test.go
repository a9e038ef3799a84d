package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/repsync/internal/reps"
)

func seedOrg(t *testing.T, s *Store) reps.Organization {
	t.Helper()
	org, err := s.PutOrganization(context.Background(), reps.Organization{Code: "110012345678", Name: "Clinica Norte"})
	if err != nil {
		t.Fatalf("PutOrganization: %v", err)
	}
	return org
}

func TestPutOrganization_UpsertsByCode(t *testing.T) {
	s := NewStore()
	first := seedOrg(t, s)

	second, err := s.PutOrganization(context.Background(), reps.Organization{Code: " 110012345678 ", Name: "Renamed"})
	if err != nil {
		t.Fatalf("PutOrganization: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ID changed on update: %s -> %s", first.ID, second.ID)
	}

	orgs, _ := s.ListOrganizations(context.Background())
	if len(orgs) != 1 || orgs[0].Name != "Renamed" {
		t.Errorf("orgs = %+v", orgs)
	}

	if _, err := s.PutOrganization(context.Background(), reps.Organization{Code: "  "}); err == nil {
		t.Error("expected error for empty code")
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	org := seedOrg(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx reps.Tx) error {
		if _, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"}); err != nil {
			return err
		}
		locs, _ := tx.ListLocations(ctx, org.ID)
		if len(locs) != 1 {
			t.Errorf("write not visible inside tx: %d", len(locs))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	locs, _ := s.ListLocations(ctx, org.ID)
	if len(locs) != 0 {
		t.Errorf("rolled back tx left %d locations", len(locs))
	}
}

func TestRunInTx_ExpiredContextDoesNotCommit(t *testing.T) {
	s := NewStore()
	org := seedOrg(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.RunInTx(ctx, func(tx reps.Tx) error {
		_, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"})
		cancel()
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	locs, _ := s.ListLocations(context.Background(), org.ID)
	if len(locs) != 0 {
		t.Errorf("cancelled tx committed %d locations", len(locs))
	}
}

func TestCreateLocation_DuplicateKey(t *testing.T) {
	s := NewStore()
	org := seedOrg(t, s)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx reps.Tx) error {
		if _, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"}); err != nil {
			return err
		}
		_, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"})
		return err
	})
	if !errors.Is(err, reps.ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestCreateService_Constraints(t *testing.T) {
	s := NewStore()
	org := seedOrg(t, s)
	ctx := context.Background()

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	var locID string
	if err := s.RunInTx(ctx, func(tx reps.Tx) error {
		loc, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"})
		locID = loc.ID
		return err
	}); err != nil {
		t.Fatalf("seed location: %v", err)
	}

	tests := []struct {
		name    string
		svc     reps.Service
		wantErr error
	}{
		{
			name:    "unknown location",
			svc:     reps.Service{OrganizationID: org.ID, LocationID: "missing", NaturalKey: "x_329"},
			wantErr: reps.ErrNotFound,
		},
		{
			name:    "expires before enabled",
			svc:     reps.Service{OrganizationID: org.ID, LocationID: locID, NaturalKey: "110012345678_1_329", EnabledOn: &feb, ExpiresOn: &jan},
			wantErr: reps.ErrInvalidDates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RunInTx(ctx, func(tx reps.Tx) error {
				_, err := tx.CreateService(ctx, tt.svc)
				return err
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSavepoint_IsolatesFailure(t *testing.T) {
	s := NewStore()
	org := seedOrg(t, s)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx reps.Tx) error {
		if err := tx.Savepoint(ctx, func(sp reps.Tx) error {
			_, err := sp.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"})
			return err
		}); err != nil {
			return err
		}
		failed := tx.Savepoint(ctx, func(sp reps.Tx) error {
			if _, err := sp.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_2"}); err != nil {
				return err
			}
			return errors.New("row failed")
		})
		if failed == nil {
			t.Error("expected savepoint error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	locs, _ := s.ListLocations(ctx, org.ID)
	if len(locs) != 1 || locs[0].NaturalKey != "110012345678_1" {
		t.Errorf("locations = %+v, want only _1", locs)
	}
}

func TestSavepoint_RestoresTouchedEntries(t *testing.T) {
	s := NewStore()
	org := seedOrg(t, s)
	ctx := context.Background()
	errRow := errors.New("row failed")

	err := s.RunInTx(ctx, func(tx reps.Tx) error {
		loc, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1", Name: "Principal"})
		if err != nil {
			return err
		}
		if _, err := tx.CreateService(ctx, reps.Service{OrganizationID: org.ID, LocationID: loc.ID, NaturalKey: "110012345678_1_329"}); err != nil {
			return err
		}

		failed := tx.Savepoint(ctx, func(sp reps.Tx) error {
			renamed := loc
			renamed.NaturalKey = "110012345678_9"
			renamed.Name = "Renombrada"
			if _, err := sp.UpdateLocation(ctx, renamed); err != nil {
				return err
			}
			// A nested savepoint that succeeds is still undone by its parent.
			if err := sp.Savepoint(ctx, func(inner reps.Tx) error {
				_, err := inner.CreateService(ctx, reps.Service{OrganizationID: org.ID, LocationID: loc.ID, NaturalKey: "110012345678_9_328"})
				return err
			}); err != nil {
				return err
			}
			if _, err := sp.DeleteScope(ctx, org.ID, reps.ScopeLocations); err != nil {
				return err
			}
			return errRow
		})
		if !errors.Is(failed, errRow) {
			t.Errorf("savepoint error = %v, want %v", failed, errRow)
		}

		locs, _ := tx.ListLocations(ctx, org.ID)
		if len(locs) != 1 || locs[0].NaturalKey != "110012345678_1" || locs[0].Name != "Principal" {
			t.Errorf("locations after rollback = %+v", locs)
		}
		svcs, _ := tx.ListServices(ctx, org.ID)
		if len(svcs) != 1 || svcs[0].NaturalKey != "110012345678_1_329" {
			t.Errorf("services after rollback = %+v", svcs)
		}
		if _, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"}); !errors.Is(err, reps.ErrDuplicateKey) {
			t.Errorf("restored key index: create _1 error = %v, want ErrDuplicateKey", err)
		}
		if _, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_9"}); err != nil {
			t.Errorf("renamed key left in index: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	locs, _ := s.ListLocations(ctx, org.ID)
	if len(locs) != 2 {
		t.Errorf("committed locations = %d, want 2", len(locs))
	}
}

func TestDeleteScope(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*Store, reps.Organization) {
		s := NewStore()
		org := seedOrg(t, s)
		other, _ := s.PutOrganization(ctx, reps.Organization{Code: "050010000001"})
		err := s.RunInTx(ctx, func(tx reps.Tx) error {
			for _, o := range []reps.Organization{org, other} {
				loc, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: o.ID, NaturalKey: o.Code + "_1"})
				if err != nil {
					return err
				}
				if _, err := tx.CreateService(ctx, reps.Service{OrganizationID: o.ID, LocationID: loc.ID, NaturalKey: o.Code + "_1_329"}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		return s, org
	}

	tests := []struct {
		name     string
		scope    reps.Scope
		want     reps.DeleteResult
		wantLocs int
		wantSvcs int
	}{
		{name: "services only", scope: reps.ScopeServices, want: reps.DeleteResult{Services: 1}, wantLocs: 1, wantSvcs: 0},
		{name: "locations cascade", scope: reps.ScopeLocations, want: reps.DeleteResult{Locations: 1, Services: 1}, wantLocs: 0, wantSvcs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, org := seed(t)
			var got reps.DeleteResult
			err := s.RunInTx(ctx, func(tx reps.Tx) error {
				var err error
				got, err = tx.DeleteScope(ctx, org.ID, tt.scope)
				return err
			})
			if err != nil {
				t.Fatalf("DeleteScope: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %+v, want %+v", got, tt.want)
			}
			locs, _ := s.ListLocations(ctx, org.ID)
			svcs, _ := s.ListServices(ctx, org.ID)
			if len(locs) != tt.wantLocs || len(svcs) != tt.wantSvcs {
				t.Errorf("remaining locations=%d services=%d", len(locs), len(svcs))
			}

			other, _ := s.Organization(ctx, "050010000001")
			otherLocs, _ := s.ListLocations(ctx, other.ID)
			otherSvcs, _ := s.ListServices(ctx, other.ID)
			if len(otherLocs) != 1 || len(otherSvcs) != 1 {
				t.Error("delete leaked into another organization")
			}
		})
	}
}

func TestCommitHook_FailureAbortsCommit(t *testing.T) {
	calls := 0
	s := NewStore(WithCommitHook(func(Snapshot) error {
		calls++
		if calls > 1 {
			return errors.New("disk full")
		}
		return nil
	}))
	org := seedOrg(t, s)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx reps.Tx) error {
		_, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"})
		return err
	})
	if err == nil {
		t.Fatal("expected hook error")
	}
	locs, _ := s.ListLocations(ctx, org.ID)
	if len(locs) != 0 {
		t.Errorf("hook failure still committed %d locations", len(locs))
	}
}

func TestExportImportState(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithNow(func() time.Time { return fixed }))
	org := seedOrg(t, s)
	ctx := context.Background()
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.RunInTx(ctx, func(tx reps.Tx) error {
		loc, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"})
		if err != nil {
			return err
		}
		_, err = tx.CreateService(ctx, reps.Service{OrganizationID: org.ID, LocationID: loc.ID, NaturalKey: "110012345678_1_329", ExpiresOn: &exp})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	restored := NewStore()
	restored.ImportState(s.ExportState())

	svcs, _ := restored.ListServices(ctx, org.ID)
	if len(svcs) != 1 || svcs[0].ExpiresOn == nil || !svcs[0].ExpiresOn.Equal(exp) {
		t.Fatalf("services after import = %+v", svcs)
	}
	if !svcs[0].CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", svcs[0].CreatedAt, fixed)
	}

	// Key index must be rebuilt on import.
	err := restored.RunInTx(ctx, func(tx reps.Tx) error {
		_, err := tx.CreateService(ctx, reps.Service{OrganizationID: org.ID, LocationID: svcs[0].LocationID, NaturalKey: "110012345678_1_329"})
		return err
	})
	if !errors.Is(err, reps.ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", err)
	}
}
