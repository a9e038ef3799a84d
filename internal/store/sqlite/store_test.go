package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/repsync/internal/reps"
)

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "repsync.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	org, err := s.PutOrganization(ctx, reps.Organization{Code: "110012345678", Name: "Clinica Norte"})
	if err != nil {
		t.Fatalf("PutOrganization: %v", err)
	}
	if err := s.RunInTx(ctx, func(tx reps.Tx) error {
		loc, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1", Name: "Sede 1"})
		if err != nil {
			return err
		}
		_, err = tx.CreateService(ctx, reps.Service{OrganizationID: org.ID, LocationID: loc.ID, NaturalKey: "110012345678_1_329", Code: "329"})
		return err
	}); err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Organization(ctx, "110012345678")
	if err != nil {
		t.Fatalf("Organization: %v", err)
	}
	if got.ID != org.ID {
		t.Errorf("org ID = %s, want %s", got.ID, org.ID)
	}
	locs, _ := reopened.ListLocations(ctx, org.ID)
	svcs, _ := reopened.ListServices(ctx, org.ID)
	if len(locs) != 1 || len(svcs) != 1 {
		t.Fatalf("locations=%d services=%d, want 1 and 1", len(locs), len(svcs))
	}
	if svcs[0].LocationID != locs[0].ID {
		t.Error("service lost its location reference")
	}
}

func TestStore_FailedTxNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repsync.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	org, _ := s.PutOrganization(ctx, reps.Organization{Code: "110012345678"})
	_ = s.RunInTx(ctx, func(tx reps.Tx) error {
		if _, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"}); err != nil {
			return err
		}
		_, err := tx.CreateLocation(ctx, reps.Location{OrganizationID: org.ID, NaturalKey: "110012345678_1"})
		return err
	})
	_ = s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	locs, _ := reopened.ListLocations(ctx, org.ID)
	if len(locs) != 0 {
		t.Errorf("failed transaction persisted %d locations", len(locs))
	}
}
