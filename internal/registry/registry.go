// Package registry holds the published spot snapshot and fans it out to
// listeners.
//
// Reads never block: the current snapshot sits behind an atomic pointer and
// is replaced wholesale on every Publish. Each listener runs on its own
// goroutine with its own queue, so a slow listener delays only itself and
// still sees every snapshot, in publish order, exactly once.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/teesmad/findmyspot/internal/spot"
)

// Snapshot is one published view of the spot collection.
type Snapshot struct {
	// Version increases by one on every Publish. Zero means nothing has been
	// published yet.
	Version uint64
	Spots   []spot.ParkingSpot
}

// Listener receives published snapshots. Spots is the listener's own copy.
type Listener func(Snapshot)

type state struct {
	version uint64
	spots   []spot.ParkingSpot
	byID    map[string]int
}

// Registry is the observable spot view. The zero value is not usable; call New.
type Registry struct {
	current atomic.Pointer[state]

	mu        sync.Mutex
	listeners map[int]*listener
	nextID    int
	closed    bool
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{listeners: make(map[int]*listener)}
	r.current.Store(&state{byID: map[string]int{}})
	return r
}

// Publish replaces the current snapshot and queues it for every listener.
// It returns the new version. The caller must not modify spots afterwards.
func (r *Registry) Publish(spots []spot.ParkingSpot) uint64 {
	owned := make([]spot.ParkingSpot, len(spots))
	copy(owned, spots)

	byID := make(map[string]int, len(owned))
	for i, s := range owned {
		byID[s.ID] = i
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := &state{
		version: r.current.Load().version + 1,
		spots:   owned,
		byID:    byID,
	}
	r.current.Store(next)

	if r.closed {
		return next.version
	}
	for _, l := range r.listeners {
		l.enqueue(Snapshot{Version: next.version, Spots: owned})
	}

	return next.version
}

// Current returns a copy of the latest snapshot's spots, possibly empty.
func (r *Registry) Current() []spot.ParkingSpot {
	st := r.current.Load()
	out := make([]spot.ParkingSpot, len(st.spots))
	copy(out, st.spots)
	return out
}

// Snapshot returns the latest snapshot with its version.
func (r *Registry) Snapshot() Snapshot {
	st := r.current.Load()
	out := make([]spot.ParkingSpot, len(st.spots))
	copy(out, st.spots)
	return Snapshot{Version: st.version, Spots: out}
}

// Lookup returns the spot with id from the latest snapshot.
func (r *Registry) Lookup(id string) (spot.ParkingSpot, bool) {
	st := r.current.Load()
	i, ok := st.byID[id]
	if !ok {
		return spot.ParkingSpot{}, false
	}
	return st.spots[i], true
}

// Version returns the number of snapshots published so far.
func (r *Registry) Version() uint64 {
	return r.current.Load().version
}

// Len returns the number of spots in the latest snapshot.
func (r *Registry) Len() int {
	return len(r.current.Load().spots)
}

// Nearby returns spots within radiusKm of (lat, lon), closest first.
// A non-positive radius returns every spot, closest first.
func (r *Registry) Nearby(lat, lon, radiusKm float64) []spot.ParkingSpot {
	st := r.current.Load()

	type hit struct {
		s    spot.ParkingSpot
		dist float64
	}
	hits := make([]hit, 0, len(st.spots))
	for _, s := range st.spots {
		d := s.DistanceTo(lat, lon)
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		hits = append(hits, hit{s: s, dist: d})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].s.ID < hits[j].s.ID
	})

	out := make([]spot.ParkingSpot, len(hits))
	for i, h := range hits {
		out[i] = h.s
	}
	return out
}

// Subscribe registers fn for every snapshot published from now on.
// The returned function unregisters it; snapshots already queued for fn are
// dropped. Calling it more than once is a no-op.
func (r *Registry) Subscribe(fn Listener) (unsubscribe func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}
	}

	l := newListener(fn)
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
			l.stop()
		})
	}
}

// Listeners returns the number of registered listeners.
func (r *Registry) Listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Close stops every listener goroutine. Publish keeps updating the current
// snapshot after Close but no longer notifies anyone.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	listeners := r.listeners
	r.listeners = make(map[int]*listener)
	r.mu.Unlock()

	for _, l := range listeners {
		l.stop()
	}
}
