package libsqlstore

import (
	"bytes"
	"context"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/teesmad/findmyspot/internal/spot"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), Config{
		URL:          "file:" + filepath.Join(t.TempDir(), "remote.db"),
		PollInterval: 10 * time.Millisecond,
		Logger:       log.New(&bytes.Buffer{}, "", 0),
	})
	if err != nil {
		t.Fatalf("failed to open libsql store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func lotFields(name string) spot.Fields {
	return spot.Fields{
		spot.KeyName:         name,
		spot.KeyLatitude:     54.5,
		spot.KeyLongitude:    -1.2,
		spot.KeyAvailability: "Available",
		spot.KeyPricePerHour: 2.5,
	}
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		token   string
		want    string
		wantErr bool
	}{
		{"empty", "", "", "", true},
		{"file ignores token", "file:/tmp/x.db", "tok", "file:/tmp/x.db", false},
		{"remote without token", "libsql://db.turso.io", "", "libsql://db.turso.io", false},
		{"remote with token", "libsql://db.turso.io", "tok", "libsql://db.turso.io?authToken=tok", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.url, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildDSN error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	for i := 0; i < 2; i++ {
		if err := s.Upsert(ctx, "a", lotFields("Lot A")); err != nil {
			t.Fatalf("Upsert #%d failed: %v", i+1, err)
		}
	}
	if err := s.Upsert(ctx, "b", lotFields("Lot B")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	all, err := s.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("unexpected collection: %+v", all)
	}

	got, ok, err := s.FetchByID(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("FetchByID: ok=%v err=%v", ok, err)
	}
	if _, err := spot.Validate(got); err != nil {
		t.Errorf("stored document should validate: %v", err)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, ok, _ := s.FetchByID(ctx, "a"); ok {
		t.Error("a should be gone")
	}
}

func TestStore_SubscribePolls(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	deliveries := make(chan []spot.RawDocument, 10)
	sub, err := s.Subscribe(ctx, func(d []spot.RawDocument) { deliveries <- d })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	select {
	case d := <-deliveries:
		if len(d) != 0 {
			t.Fatalf("expected empty initial delivery, got %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial delivery")
	}

	if err := s.Upsert(ctx, "a", lotFields("A")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	select {
	case d := <-deliveries:
		if len(d) != 1 || d[0].ID != "a" {
			t.Fatalf("unexpected delivery: %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change delivery")
	}
}
