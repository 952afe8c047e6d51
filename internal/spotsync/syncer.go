package spotsync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/teesmad/findmyspot/internal/cache"
	"github.com/teesmad/findmyspot/internal/registry"
	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/spot"
)

// Defaults for Config fields left at zero.
const (
	DefaultRemoteTimeout    = 10 * time.Second
	DefaultTombstoneTTL     = 2 * time.Minute
	DefaultResyncMaxElapsed = 15 * time.Second
)

// Config configures a Syncer.
type Config struct {
	// Cache is the local replica. Required.
	Cache *cache.DB

	// Remote is the authoritative store. Required.
	Remote remote.Store

	// Registry receives published snapshots. Created if nil.
	Registry *registry.Registry

	// Logger (optional). Defaults to stderr with a "[sync] " prefix.
	Logger *log.Logger

	// Metrics (optional). Defaults to unregistered collectors.
	Metrics *Metrics

	// RemoteTimeout bounds every remote call. Default: DefaultRemoteTimeout.
	RemoteTimeout time.Duration

	// TombstoneTTL is how long a deleted id stays hidden from deliveries,
	// and how long an acknowledged upsert overrides deliveries that do not
	// contain it yet. Default: DefaultTombstoneTTL.
	TombstoneTTL time.Duration

	// ResyncMaxElapsed bounds the retries of the resync that follows a
	// successful write. Default: DefaultResyncMaxElapsed.
	ResyncMaxElapsed time.Duration

	// PollInterval is used when the store cannot subscribe.
	// Default: remote.DefaultPollInterval.
	PollInterval time.Duration

	// Now returns the current time (tests).
	Now func() time.Time
}

// syncer implements the Syncer interface.
type syncer struct {
	cfg      Config
	cache    *cache.DB
	remote   remote.Store
	registry *registry.Registry
	logger   *log.Logger
	metrics  *Metrics

	state atomic.Int32

	// mu is the single mutation path: it is held for every delivery, write
	// and resync, and guards everything below it.
	mu         sync.Mutex
	started    bool
	stopped    bool
	sub        remote.Subscription
	cancel     context.CancelFunc
	tombstones map[string]time.Time
	pending    map[string]pendingWrite

	// statsMu guards the status fields so Stats never waits on a write.
	statsMu    sync.Mutex
	lastSync   time.Time
	lastErr    error
	invalid    int
	tombstoneN int
	pendingN   int
}

// pendingWrite is an acknowledged upsert that deliveries have not yet
// been seen to contain.
type pendingWrite struct {
	spot spot.ParkingSpot
	at   time.Time
}

// New creates a Syncer. Call Start before writing.
//
// Example:
//
//	db, err := cache.Open(".findmyspot/cache.db")
//	if err != nil {
//	    return err
//	}
//	syncer := spotsync.New(spotsync.Config{Cache: db, Remote: remote.NewMemory()})
func New(cfg Config) Syncer {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	if cfg.TombstoneTTL <= 0 {
		cfg.TombstoneTTL = DefaultTombstoneTTL
	}
	if cfg.ResyncMaxElapsed <= 0 {
		cfg.ResyncMaxElapsed = DefaultResyncMaxElapsed
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &syncer{
		cfg:        cfg,
		cache:      cfg.Cache,
		remote:     cfg.Remote,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		tombstones: make(map[string]time.Time),
		pending:    make(map[string]pendingWrite),
	}
}

// Start implements Syncer.Start.
func (s *syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true

	cached, err := s.cache.GetAllContext(ctx)
	if err != nil {
		s.logger.Printf("WARNING: failed to load cache, starting empty: %v", err)
		cached = nil
	}
	s.state.Store(int32(StateSyncing))
	s.registry.Publish(cached)
	s.metrics.SnapshotSpots.Set(float64(len(cached)))
	s.logger.Printf("Loaded %d cached spots from %s", len(cached), s.cache.Path())

	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	deliver := func(docs []spot.RawDocument) {
		s.apply(docs, SourceSubscription)
	}

	sub, err := s.remote.Subscribe(subCtx, deliver)
	if err != nil {
		s.logger.Printf("WARNING: subscribe failed, polling instead: %v", err)
		sub = remote.StartPolling(subCtx, s.cfg.PollInterval, s.fetchAll, deliver, s.logger)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	return nil
}

// Stop implements Syncer.Stop.
func (s *syncer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	sub := s.sub
	cancel := s.cancel
	s.mu.Unlock()

	// Closing waits for an in-flight delivery, which needs mu.
	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			return fmt.Errorf("failed to close subscription: %w", err)
		}
	}
	return nil
}

// apply runs one delivery through the mutation path.
func (s *syncer) apply(docs []spot.RawDocument, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if err := s.applyLocked(context.Background(), docs, source); err != nil {
		s.logger.Printf("WARNING: %s sync pass not applied: %v", source, err)
	}
}

// applyLocked validates docs, replaces the cache and publishes the result.
// If the cache write fails nothing is published, so the cache and the
// snapshot never disagree. Callers must hold mu.
func (s *syncer) applyLocked(ctx context.Context, docs []spot.RawDocument, source string) error {
	start := s.cfg.Now()
	prev := s.State()
	s.state.Store(int32(StateSyncing))

	now := s.cfg.Now()
	for id, at := range s.tombstones {
		if now.Sub(at) >= s.cfg.TombstoneTTL {
			delete(s.tombstones, id)
		}
	}
	for id, w := range s.pending {
		if now.Sub(w.at) >= s.cfg.TombstoneTTL {
			delete(s.pending, id)
		}
	}

	spots := make([]spot.ParkingSpot, 0, len(docs))
	index := make(map[string]int, len(docs))
	invalid, hidden := 0, 0
	for _, doc := range docs {
		sp, err := spot.Validate(doc)
		if err != nil {
			invalid++
			s.metrics.InvalidDocuments.Inc()
			s.logger.Printf("WARNING: dropping invalid document: %v", err)
			continue
		}
		if _, dead := s.tombstones[sp.ID]; dead {
			hidden++
			continue
		}
		if i, dup := index[sp.ID]; dup {
			spots[i] = sp
			continue
		}
		index[sp.ID] = len(spots)
		spots = append(spots, sp)
	}

	// Subscription deliveries arrive in fetch order, so once one contains
	// a written document no later one can predate the write.
	overlaid := 0
	for id, w := range s.pending {
		i, ok := index[id]
		if ok && spots[i] == w.spot {
			if source == SourceSubscription {
				delete(s.pending, id)
			}
			continue
		}
		overlaid++
		if ok {
			spots[i] = w.spot
			continue
		}
		index[id] = len(spots)
		spots = append(spots, w.spot)
	}

	if err := s.cache.PutAllContext(ctx, spots); err != nil {
		if prev == StateReady {
			s.state.Store(int32(StateReady))
		}
		s.recordError(err)
		return fmt.Errorf("failed to replace cache: %w", err)
	}

	s.registry.Publish(spots)
	s.state.Store(int32(StateReady))

	s.statsMu.Lock()
	s.invalid = invalid
	s.lastSync = now
	s.lastErr = nil
	s.tombstoneN = len(s.tombstones)
	s.pendingN = len(s.pending)
	s.statsMu.Unlock()

	s.metrics.SyncPasses.WithLabelValues(source).Inc()
	s.metrics.SnapshotSpots.Set(float64(len(spots)))
	s.metrics.SyncDuration.Observe(s.cfg.Now().Sub(start).Seconds())

	s.logger.Printf("Synced %d spots from %s (%d invalid, %d hidden, %d pending)", len(spots), source, invalid, hidden, overlaid)
	return nil
}

// fetchAll reads the collection within RemoteTimeout.
func (s *syncer) fetchAll(ctx context.Context) ([]spot.RawDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	docs, err := s.remote.FetchAll(ctx)
	if err != nil {
		return nil, remote.Unavailable("fetch all", err)
	}
	return docs, nil
}

// Resync implements Syncer.Resync.
func (s *syncer) Resync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	docs, err := s.fetchAll(ctx)
	if err != nil {
		s.recordError(err)
		return err
	}
	return s.applyLocked(ctx, docs, SourceResync)
}

// resyncAfterWriteLocked refreshes after an acknowledged write, retrying
// with exponential backoff up to ResyncMaxElapsed. Failure is logged and
// not returned: the write itself was committed. If the refresh gives up,
// a written spot is still cached and published on its own.
func (s *syncer) resyncAfterWriteLocked(ctx context.Context, op string, written *spot.ParkingSpot) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	docs, err := backoff.Retry(ctx, func() ([]spot.RawDocument, error) {
		return s.fetchAll(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(s.cfg.ResyncMaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Printf("Resync after %s failed, retrying in %v: %v", op, next, err)
		}),
	)
	if err != nil {
		s.recordError(err)
		s.logger.Printf("WARNING: resync after %s gave up, snapshot may be stale until the next delivery: %v", op, err)
		if written != nil {
			s.publishWrittenLocked(ctx, *written)
		}
		return
	}

	if err := s.applyLocked(ctx, docs, SourceWrite); err != nil {
		s.logger.Printf("WARNING: resync after %s not applied: %v", op, err)
	}
}

// publishWrittenLocked caches one acknowledged spot and publishes the
// current snapshot with it in place. Callers must hold mu.
func (s *syncer) publishWrittenLocked(ctx context.Context, sp spot.ParkingSpot) {
	if err := s.cache.PutContext(ctx, sp); err != nil {
		s.recordError(err)
		s.logger.Printf("WARNING: spot %s written remotely but not cached: %v", sp.ID, err)
		return
	}

	current := s.registry.Current()
	replaced := false
	for i := range current {
		if current[i].ID == sp.ID {
			current[i] = sp
			replaced = true
		}
	}
	if !replaced {
		current = append(current, sp)
	}
	s.registry.Publish(current)
	s.metrics.SnapshotSpots.Set(float64(len(current)))
}

// Add implements Syncer.Add.
func (s *syncer) Add(ctx context.Context, sp spot.ParkingSpot) error {
	if err := sp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	if err := s.upsertLocked(ctx, sp); err != nil {
		return fmt.Errorf("failed to add spot %s: %w", sp.ID, err)
	}

	s.logger.Printf("Added spot: %s (%s)", sp.ID, sp.Name)
	s.resyncAfterWriteLocked(ctx, "add", &sp)
	return nil
}

// Update implements Syncer.Update.
func (s *syncer) Update(ctx context.Context, sp spot.ParkingSpot) error {
	if err := sp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	if _, ok := s.registry.Lookup(sp.ID); !ok {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
		_, found, err := s.remote.FetchByID(rctx, sp.ID)
		cancel()
		if err != nil {
			s.metrics.WriteFailures.WithLabelValues(remote.OpUpsert).Inc()
			return fmt.Errorf("failed to update spot %s: %w", sp.ID, remote.WriteFailed(remote.OpUpsert, sp.ID, err))
		}
		if !found {
			return fmt.Errorf("failed to update spot %s: %w", sp.ID, ErrNotFound)
		}
	}

	if err := s.upsertLocked(ctx, sp); err != nil {
		return fmt.Errorf("failed to update spot %s: %w", sp.ID, err)
	}

	s.logger.Printf("Updated spot: %s (%s)", sp.ID, sp.Name)
	s.resyncAfterWriteLocked(ctx, "update", &sp)
	return nil
}

func (s *syncer) upsertLocked(ctx context.Context, sp spot.ParkingSpot) error {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	if err := s.remote.Upsert(rctx, sp.ID, sp.Fields()); err != nil {
		s.metrics.WriteFailures.WithLabelValues(remote.OpUpsert).Inc()
		return remote.WriteFailed(remote.OpUpsert, sp.ID, err)
	}

	// Writing the id again revives it.
	delete(s.tombstones, sp.ID)
	s.pending[sp.ID] = pendingWrite{spot: sp, at: s.cfg.Now()}
	s.recordTombstones()
	return nil
}

// Delete implements Syncer.Delete.
func (s *syncer) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("spot id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	err := s.remote.Delete(rctx, id)
	cancel()
	if err != nil {
		s.metrics.WriteFailures.WithLabelValues(remote.OpDelete).Inc()
		return fmt.Errorf("failed to delete spot %s: %w", id, remote.WriteFailed(remote.OpDelete, id, err))
	}

	s.tombstones[id] = s.cfg.Now()
	delete(s.pending, id)
	s.recordTombstones()

	// The snapshot only drops the id once the cache has; otherwise the
	// resync below brings both in line.
	if err := s.cache.DeleteContext(ctx, id); err != nil {
		s.recordError(err)
		s.logger.Printf("WARNING: spot %s deleted remotely but not from cache: %v", id, err)
	} else {
		current := s.registry.Current()
		kept := current[:0]
		for _, sp := range current {
			if sp.ID != id {
				kept = append(kept, sp)
			}
		}
		s.registry.Publish(kept)
		s.state.Store(int32(StateReady))
		s.metrics.SnapshotSpots.Set(float64(len(kept)))
	}

	s.logger.Printf("Deleted spot: %s", id)
	s.resyncAfterWriteLocked(ctx, "delete", nil)
	return nil
}

// State implements Syncer.State.
func (s *syncer) State() State {
	return State(s.state.Load())
}

// Registry implements Syncer.Registry.
func (s *syncer) Registry() *registry.Registry {
	return s.registry
}

// Stats implements Syncer.Stats.
func (s *syncer) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	st := Stats{
		State:      s.State(),
		Spots:      s.registry.Len(),
		Version:    s.registry.Version(),
		Tombstones: s.tombstoneN,
		Pending:    s.pendingN,
		Invalid:    s.invalid,
		LastSync:   s.lastSync,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *syncer) recordError(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.lastErr = err
}

// recordTombstones publishes the tombstone and pending write counts.
// Callers must hold mu.
func (s *syncer) recordTombstones() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.tombstoneN = len(s.tombstones)
	s.pendingN = len(s.pending)
}
