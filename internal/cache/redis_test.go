package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/repsync/internal/core"
)

func TestAlertsKey(t *testing.T) {
	if got := AlertsKey("repsync", "110012345678"); got != "repsync:alerts:110012345678" {
		t.Errorf("AlertsKey = %q", got)
	}
}

func TestNew_DefaultPrefix(t *testing.T) {
	c := New(nil, "", 0)
	if c.prefix != DefaultKeyPrefix {
		t.Errorf("prefix = %q, want %q", c.prefix, DefaultKeyPrefix)
	}
}

func TestOpen_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Open(ctx, Options{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("Open on a closed port succeeded")
	}
}

func TestAlertCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := Open(ctx, Options{Addr: addr, KeyPrefix: "repsync-test", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	org := "T" + time.Now().Format("150405.000000")
	empty, err := c.Alerts(ctx, org)
	if err != nil || len(empty) != 0 {
		t.Fatalf("Alerts on missing key = %v, %v", empty, err)
	}

	want := []core.Alert{{Severity: core.SeverityHigh, Kind: core.AlertExpiring, SubjectKey: "k"}}
	if err := c.ReplaceAlerts(ctx, org, want); err != nil {
		t.Fatalf("ReplaceAlerts: %v", err)
	}
	got, err := c.Alerts(ctx, org)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(got) != 1 || got[0].SubjectKey != "k" || got[0].Severity != core.SeverityHigh {
		t.Errorf("Alerts = %+v", got)
	}
}
