package remote

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/teesmad/findmyspot/internal/spot"
)

// ErrSimulatedFailure is the cause attached to writes failed by
// Memory.FailNextWrites.
var ErrSimulatedFailure = errors.New("simulated network drop")

// Memory is an in-process Store. It backs `--remote memory` and the tests,
// and can inject failures and latency.
type Memory struct {
	mu          sync.Mutex
	docs        map[string]spot.Fields
	failWrites  int
	unavailable bool
	latency     time.Duration
	subs        map[int]*memorySub
	nextSub     int
	closed      bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory store seeded with docs.
func NewMemory(docs ...spot.RawDocument) *Memory {
	m := &Memory{
		docs: make(map[string]spot.Fields),
		subs: make(map[int]*memorySub),
	}
	for _, d := range docs {
		m.docs[d.ID] = copyFields(d.Fields)
	}
	return m
}

// FailNextWrites makes the next n upserts or deletes fail with a WriteError
// wrapping ErrSimulatedFailure. Nothing is written for a failed call.
func (m *Memory) FailNextWrites(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = n
}

// SetUnavailable makes every call fail as if the store were unreachable.
// Subscriptions stop delivering until it is cleared.
func (m *Memory) SetUnavailable(down bool) {
	m.mu.Lock()
	m.unavailable = down
	m.mu.Unlock()

	if !down {
		m.notify()
	}
}

// SetLatency delays every call by d, honouring ctx cancellation.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// Put writes a document without fault injection and notifies subscribers.
// It simulates a change made by another client.
func (m *Memory) Put(doc spot.RawDocument) {
	m.mu.Lock()
	m.docs[doc.ID] = copyFields(doc.Fields)
	m.mu.Unlock()
	m.notify()
}

// Remove deletes a document without fault injection and notifies subscribers.
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()
	m.notify()
}

func (m *Memory) wait(ctx context.Context) error {
	m.mu.Lock()
	d := m.latency
	m.mu.Unlock()

	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchAll returns every document ordered by id.
func (m *Memory) FetchAll(ctx context.Context) ([]spot.RawDocument, error) {
	if err := m.wait(ctx); err != nil {
		return nil, Unavailable("fetch all", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return nil, Unavailable("fetch all", errors.New("memory store is offline"))
	}
	return m.snapshotLocked(), nil
}

// FetchByID returns one document.
func (m *Memory) FetchByID(ctx context.Context, id string) (spot.RawDocument, bool, error) {
	if err := m.wait(ctx); err != nil {
		return spot.RawDocument{}, false, Unavailable("fetch "+id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return spot.RawDocument{}, false, Unavailable("fetch "+id, errors.New("memory store is offline"))
	}
	f, ok := m.docs[id]
	if !ok {
		return spot.RawDocument{}, false, nil
	}
	return spot.RawDocument{ID: id, Fields: copyFields(f)}, true, nil
}

// Upsert writes the full document for id.
func (m *Memory) Upsert(ctx context.Context, id string, fields spot.Fields) error {
	if err := m.write(ctx, OpUpsert, id, func() {
		m.docs[id] = copyFields(fields)
	}); err != nil {
		return err
	}
	m.notify()
	return nil
}

// Delete removes id.
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := m.write(ctx, OpDelete, id, func() {
		delete(m.docs, id)
	}); err != nil {
		return err
	}
	m.notify()
	return nil
}

func (m *Memory) write(ctx context.Context, op, id string, apply func()) error {
	if id == "" {
		return WriteFailed(op, id, errors.New("empty document id"))
	}
	if err := m.wait(ctx); err != nil {
		return WriteFailed(op, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return WriteFailed(op, id, ErrRemoteUnavailable)
	}
	if m.failWrites > 0 {
		m.failWrites--
		return WriteFailed(op, id, ErrSimulatedFailure)
	}
	apply()
	return nil
}

func (m *Memory) snapshotLocked() []spot.RawDocument {
	docs := make([]spot.RawDocument, 0, len(m.docs))
	for id, f := range m.docs {
		docs = append(docs, spot.RawDocument{ID: id, Fields: copyFields(f)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Subscribe delivers the collection on a background goroutine: once
// immediately, then after every change. Changes that arrive while a delivery
// is running are coalesced into one follow-up delivery.
func (m *Memory) Subscribe(ctx context.Context, onChange ChangeFunc) (Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, Unavailable("subscribe", errors.New("memory store is closed"))
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &memorySub{
		store:    m,
		id:       m.nextSub,
		cancel:   cancel,
		pending:  make(chan struct{}, 1),
		onChange: onChange,
	}
	m.subs[sub.id] = sub
	m.nextSub++
	m.mu.Unlock()

	sub.pending <- struct{}{}
	sub.wg.Add(1)
	go sub.run(ctx)

	return sub, nil
}

func (m *Memory) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		select {
		case s.pending <- struct{}{}:
		default:
		}
	}
}

// Close cancels all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	subs := make([]*memorySub, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

type memorySub struct {
	store    *Memory
	id       int
	cancel   context.CancelFunc
	pending  chan struct{}
	onChange ChangeFunc
	wg       sync.WaitGroup
	once     sync.Once
}

func (s *memorySub) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pending:
		}

		s.store.mu.Lock()
		if s.store.unavailable {
			s.store.mu.Unlock()
			continue
		}
		docs := s.store.snapshotLocked()
		s.store.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		s.onChange(docs)
	}
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subs, s.id)
		s.store.mu.Unlock()

		s.cancel()
		s.wg.Wait()
	})
	return nil
}
