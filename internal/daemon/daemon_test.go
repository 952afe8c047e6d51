package daemon

import (
	"bytes"
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teesmad/findmyspot/internal/cache"
	"github.com/teesmad/findmyspot/internal/dashboard"
	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/spot"
	"github.com/teesmad/findmyspot/internal/spotsync"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lot(id, name string) spot.RawDocument {
	return spot.ParkingSpot{
		ID:           id,
		Name:         name,
		Latitude:     51.5,
		Longitude:    -0.1,
		Availability: "Available",
		PricePerHour: 4,
	}.Document()
}

// setupEngine creates a sync engine over a temp cache and an in-memory
// remote store.
func setupEngine(t *testing.T, docs ...spot.RawDocument) (spotsync.Syncer, *remote.Memory) {
	t.Helper()

	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := remote.NewMemory(docs...)
	t.Cleanup(func() { _ = store.Close() })

	syncer := spotsync.New(spotsync.Config{
		Cache:  db,
		Remote: store,
		Logger: log.New(io.Discard, "", 0),
	})
	return syncer, store
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew(t *testing.T) {
	syncer, _ := setupEngine(t)

	if _, err := New(nil); err == nil {
		t.Error("expected error for nil syncer")
	}

	d, err := New(syncer)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if d.Dashboard() != nil {
		t.Error("dashboard should be disabled by default")
	}
	if d.config.ResyncInterval != 5*time.Minute {
		t.Errorf("unexpected default resync interval %v", d.config.ResyncInterval)
	}
}

func TestDaemon_StartAndCancel(t *testing.T) {
	syncer, _ := setupEngine(t, lot("a", "A"), lot("b", "B"))
	logs := &syncBuffer{}

	d, err := NewWithConfig(syncer, &Config{Logger: log.New(logs, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	waitUntil(t, func() bool {
		return syncer.State() == spotsync.StateReady && syncer.Registry().Len() == 2
	})

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	if !strings.Contains(logs.String(), "Shutdown signal received") {
		t.Errorf("expected shutdown log, got:\n%s", logs)
	}
	if err := syncer.Resync(context.Background()); err == nil {
		t.Error("engine should be stopped after the daemon stops")
	}

	// Second Stop is a no-op.
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop returned error: %v", err)
	}
}

func TestDaemon_PeriodicResync(t *testing.T) {
	syncer, store := setupEngine(t)
	logs := &syncBuffer{}

	d, err := NewWithConfig(syncer, &Config{
		ResyncInterval: 20 * time.Millisecond,
		Logger:         log.New(logs, "", 0),
	})
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}

	go func() { _ = d.Start(context.Background()) }()
	<-d.Started()
	defer func() { _ = d.Stop() }()

	waitUntil(t, func() bool { return strings.Contains(logs.String(), "Full sync complete") })

	store.SetUnavailable(true)
	waitUntil(t, func() bool { return strings.Contains(logs.String(), "WARNING: periodic resync failed") })
}

func TestDaemon_PerformFullSync(t *testing.T) {
	syncer, store := setupEngine(t)

	d, err := NewWithConfig(syncer, &Config{Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}

	if err := d.PerformFullSync(context.Background()); err == nil {
		t.Error("expected error before the engine is started")
	}

	go func() { _ = d.Start(context.Background()) }()
	<-d.Started()
	defer func() { _ = d.Stop() }()

	store.Put(lot("late", "Late"))
	if err := d.PerformFullSync(context.Background()); err != nil {
		t.Fatalf("PerformFullSync failed: %v", err)
	}
	if _, ok := syncer.Registry().Lookup("late"); !ok {
		t.Error("full sync should publish the new spot")
	}
}

func TestDaemon_WithDashboard(t *testing.T) {
	syncer, _ := setupEngine(t, lot("a", "A"))

	d, err := NewWithConfig(syncer, &Config{
		Logger: log.New(io.Discard, "", 0),
		Dashboard: &dashboard.Config{
			Port:    0,
			Metrics: prometheus.NewRegistry(),
			Logger:  log.New(io.Discard, "", 0),
		},
	})
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}

	go func() { _ = d.Start(context.Background()) }()

	select {
	case <-d.Started():
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not start")
	}

	dash := d.Dashboard()
	if dash == nil {
		t.Fatal("expected dashboard")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+dash.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	if err := d.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
