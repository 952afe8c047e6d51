package remote

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/teesmad/findmyspot/internal/spot"
)

func doc(id, name string) spot.RawDocument {
	return spot.RawDocument{ID: id, Fields: spot.Fields{
		spot.KeyName:         name,
		spot.KeyLatitude:     54.5,
		spot.KeyLongitude:    -1.2,
		spot.KeyAvailability: "Available",
		spot.KeyPricePerHour: 2.5,
	}}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a, b := doc("a", "A"), doc("b", "B")

	fp1, err := Fingerprint([]spot.RawDocument{a, b})
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	fp2, _ := Fingerprint([]spot.RawDocument{b, a})
	if fp1 != fp2 {
		t.Error("fingerprint should not depend on document order")
	}

	fp3, _ := Fingerprint([]spot.RawDocument{a, doc("b", "B2")})
	if fp1 == fp3 {
		t.Error("fingerprint should change when a field changes")
	}

	empty, _ := Fingerprint(nil)
	if empty == fp1 {
		t.Error("empty collection should have a different fingerprint")
	}
}

type fakeSource struct {
	mu    sync.Mutex
	docs  []spot.RawDocument
	err   error
	calls int
}

func (f *fakeSource) fetch(ctx context.Context) ([]spot.RawDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]spot.RawDocument, len(f.docs))
	copy(out, f.docs)
	return out, nil
}

func (f *fakeSource) set(docs []spot.RawDocument, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = docs
	f.err = err
}

func TestPoll_DeliversOnlyChanges(t *testing.T) {
	src := &fakeSource{docs: []spot.RawDocument{doc("a", "A")}}
	deliveries := make(chan []spot.RawDocument, 10)

	var buf bytes.Buffer
	var logMu sync.Mutex
	logger := log.New(&lockedWriter{w: &buf, mu: &logMu}, "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Poll(ctx, 10*time.Millisecond, src.fetch, func(d []spot.RawDocument) {
			deliveries <- d
		}, logger)
	}()

	first := waitDelivery(t, deliveries)
	if len(first) != 1 || first[0].ID != "a" {
		t.Fatalf("unexpected initial delivery: %+v", first)
	}

	// Unchanged collection: several ticks, no delivery.
	time.Sleep(50 * time.Millisecond)
	select {
	case d := <-deliveries:
		t.Fatalf("unexpected delivery of unchanged collection: %+v", d)
	default:
	}

	// A failing tick delivers nothing and is logged.
	src.set(nil, errors.New("boom"))
	time.Sleep(30 * time.Millisecond)
	select {
	case d := <-deliveries:
		t.Fatalf("failed fetch must not deliver, got %+v", d)
	default:
	}

	src.set([]spot.RawDocument{doc("a", "A"), doc("b", "B")}, nil)
	second := waitDelivery(t, deliveries)
	if len(second) != 2 {
		t.Fatalf("expected 2 documents after change, got %d", len(second))
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	logMu.Lock()
	defer logMu.Unlock()
	if !bytes.Contains(buf.Bytes(), []byte("poll fetch failed")) {
		t.Errorf("expected fetch failure to be logged, got %q", buf.String())
	}
}

func TestStartPolling_Close(t *testing.T) {
	src := &fakeSource{}
	deliveries := make(chan []spot.RawDocument, 10)

	sub := StartPolling(context.Background(), 5*time.Millisecond, src.fetch, func(d []spot.RawDocument) {
		deliveries <- d
	}, log.New(&bytes.Buffer{}, "", 0))

	if got := waitDelivery(t, deliveries); len(got) != 0 {
		t.Fatalf("expected empty initial delivery, got %+v", got)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.calls != calls {
		t.Errorf("polling continued after Close: %d -> %d calls", calls, src.calls)
	}
}

func waitDelivery(t *testing.T, ch <-chan []spot.RawDocument) []spot.RawDocument {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
