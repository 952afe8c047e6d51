package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/teesmad/findmyspot/internal/spot"
)

func testSpot(id string, lat, lon float64) spot.ParkingSpot {
	return spot.ParkingSpot{
		ID:           id,
		Name:         "Lot " + id,
		Latitude:     lat,
		Longitude:    lon,
		Availability: "Available",
		PricePerHour: 2,
	}
}

func TestRegistry_EmptyBeforePublish(t *testing.T) {
	r := New()
	defer r.Close()

	if got := r.Current(); len(got) != 0 {
		t.Errorf("expected empty snapshot, got %+v", got)
	}
	if r.Version() != 0 {
		t.Errorf("expected version 0, got %d", r.Version())
	}
	if _, ok := r.Lookup("a"); ok {
		t.Error("lookup on empty registry should miss")
	}
}

func TestRegistry_PublishAndLookup(t *testing.T) {
	r := New()
	defer r.Close()

	in := []spot.ParkingSpot{testSpot("a", 54.5, -1.2), testSpot("b", 54.6, -1.3)}
	if v := r.Publish(in); v != 1 {
		t.Errorf("expected version 1, got %d", v)
	}

	// Publish owns a copy.
	in[0].Name = "mutated"

	got, ok := r.Lookup("a")
	if !ok {
		t.Fatal("expected a to be found")
	}
	if got.Name != "Lot a" {
		t.Errorf("registry shares caller's slice: %+v", got)
	}

	// Current returns a copy.
	cur := r.Current()
	cur[1].Name = "mutated"
	if again, _ := r.Lookup("b"); again.Name != "Lot b" {
		t.Error("Current leaked internal state")
	}

	r.Publish([]spot.ParkingSpot{testSpot("b", 54.6, -1.3)})
	if _, ok := r.Lookup("a"); ok {
		t.Error("a should be gone after the next publish")
	}
	if r.Len() != 1 || r.Version() != 2 {
		t.Errorf("unexpected len=%d version=%d", r.Len(), r.Version())
	}

	snap := r.Snapshot()
	if snap.Version != 2 || len(snap.Spots) != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestRegistry_SubscribeOrderedExactlyOnce(t *testing.T) {
	r := New()
	defer r.Close()

	var mu sync.Mutex
	var versions []uint64
	done := make(chan struct{})

	const publishes = 50
	unsubscribe := r.Subscribe(func(s Snapshot) {
		// A slow listener must still see every snapshot.
		time.Sleep(time.Millisecond)
		mu.Lock()
		versions = append(versions, s.Version)
		n := len(versions)
		mu.Unlock()
		if n == publishes {
			close(done)
		}
	})
	defer unsubscribe()

	for i := 0; i < publishes; i++ {
		r.Publish([]spot.ParkingSpot{testSpot("a", 0, 0)})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range versions {
		if v != uint64(i+1) {
			t.Fatalf("delivery %d had version %d; deliveries out of order or duplicated: %v", i, v, versions)
		}
	}
}

func TestRegistry_SlowListenerDoesNotBlockPublish(t *testing.T) {
	r := New()
	defer r.Close()

	block := make(chan struct{})
	unsubscribe := r.Subscribe(func(Snapshot) { <-block })
	defer func() {
		close(block)
		unsubscribe()
	}()

	start := time.Now()
	for i := 0; i < 100; i++ {
		r.Publish(nil)
	}
	if time.Since(start) > time.Second {
		t.Error("Publish blocked on a slow listener")
	}
	if r.Version() != 100 {
		t.Errorf("expected version 100, got %d", r.Version())
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := New()
	defer r.Close()

	calls := make(chan Snapshot, 10)
	unsubscribe := r.Subscribe(func(s Snapshot) { calls <- s })

	r.Publish([]spot.ParkingSpot{testSpot("a", 0, 0)})
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	unsubscribe()
	unsubscribe()
	if r.Listeners() != 0 {
		t.Errorf("expected no listeners, got %d", r.Listeners())
	}

	r.Publish(nil)
	select {
	case s := <-calls:
		t.Errorf("delivery after unsubscribe: %+v", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestRegistry_Close(t *testing.T) {
	r := New()
	calls := make(chan Snapshot, 10)
	r.Subscribe(func(s Snapshot) { calls <- s })

	r.Close()
	r.Close()

	r.Publish([]spot.ParkingSpot{testSpot("a", 0, 0)})
	if _, ok := r.Lookup("a"); !ok {
		t.Error("Publish after Close should still update the snapshot")
	}
	select {
	case s := <-calls:
		t.Errorf("delivery after Close: %+v", s)
	case <-time.After(30 * time.Millisecond):
	}

	// Subscribing after Close is harmless.
	r.Subscribe(func(Snapshot) { t.Error("listener called after Close") })()
}

func TestRegistry_Nearby(t *testing.T) {
	r := New()
	defer r.Close()

	// Middlesbrough, Stockton, London
	r.Publish([]spot.ParkingSpot{
		testSpot("london", 51.5074, -0.1278),
		testSpot("stockton", 54.5700, -1.3180),
		testSpot("mbro", 54.5742, -1.2350),
	})

	got := r.Nearby(54.5742, -1.2350, 20)
	if len(got) != 2 {
		t.Fatalf("expected 2 spots within 20km, got %+v", got)
	}
	if got[0].ID != "mbro" || got[1].ID != "stockton" {
		t.Errorf("expected closest first, got %s, %s", got[0].ID, got[1].ID)
	}

	all := r.Nearby(54.5742, -1.2350, 0)
	if len(all) != 3 || all[2].ID != "london" {
		t.Errorf("non-positive radius should return all, farthest last: %+v", all)
	}
}
