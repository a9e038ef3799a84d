package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
	}
}

func TestStore_PutGetListDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			info, err := store.Put(ctx, "backups/org/one.json", strings.NewReader(`{"a":1}`), PutOptions{
				ContentType: "application/json",
				Metadata:    map[string]string{"actor": "alice"},
			})
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if info.Size != 7 {
				t.Errorf("Size = %d, want 7", info.Size)
			}

			if _, err := store.Put(ctx, "backups/org/one.json", strings.NewReader("x"), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Errorf("second Put error = %v, want ErrExists", err)
			}

			got, rc, err := store.Get(ctx, "backups/org/one.json")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(body) != `{"a":1}` {
				t.Errorf("body = %q", body)
			}
			if got.Metadata["actor"] != "alice" || got.ContentType != "application/json" {
				t.Errorf("info = %+v", got)
			}

			if _, err := store.Put(ctx, "backups/other/two.json", strings.NewReader("{}"), PutOptions{}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			list, err := store.List(ctx, "backups/org/")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 1 || list[0].Key != "backups/org/one.json" {
				t.Errorf("List = %+v", list)
			}

			ok, err := store.Delete(ctx, "backups/org/one.json")
			if err != nil || !ok {
				t.Fatalf("Delete = %v, %v", ok, err)
			}
			ok, err = store.Delete(ctx, "backups/org/one.json")
			if err != nil || ok {
				t.Errorf("second Delete = %v, %v, want false, nil", ok, err)
			}
			if _, _, err := store.Get(ctx, "backups/org/one.json"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete error = %v, want ErrNotFound", err)
			}
			if _, err := store.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Head missing error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"backups/a.json", false},
		{"", true},
		{"   ", true},
		{"../escape", true},
		{"/abs/path", true},
		{"a/b.meta", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := sanitizeKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("sanitizeKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     Config
		want    Driver
		wantErr bool
	}{
		{"default fs", Config{Dir: t.TempDir()}, DriverFilesystem, false},
		{"memory", Config{Driver: DriverMemory}, DriverMemory, false},
		{"s3 without bucket", Config{Driver: DriverS3}, "", true},
		{"minio without bucket", Config{Driver: DriverMinIO}, "", true},
		{"unknown", Config{Driver: "tape"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && store.Driver() != tt.want {
				t.Errorf("Driver = %s, want %s", store.Driver(), tt.want)
			}
		})
	}
}
