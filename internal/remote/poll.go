package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/teesmad/findmyspot/internal/spot"
)

// DefaultPollInterval is used when Poll is given a non-positive interval.
const DefaultPollInterval = 2 * time.Second

// FetchFunc loads the full collection.
type FetchFunc func(ctx context.Context) ([]spot.RawDocument, error)

// Poll fetches the collection every interval and calls deliver whenever it
// differs from the last delivered copy. The first successful fetch is always
// delivered.
//
// Poll blocks until ctx is cancelled and returns ctx.Err(). Fetch errors are
// logged and retried on the next tick; nothing is delivered for a failed tick.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	go remote.Poll(ctx, 2*time.Second, store.FetchAll, func(docs []spot.RawDocument) {
//	    log.Printf("collection now has %d documents", len(docs))
//	}, nil)
func Poll(ctx context.Context, interval time.Duration, fetch FetchFunc, deliver ChangeFunc, logger *log.Logger) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[poll] ", log.LstdFlags)
	}

	var last string
	delivered := false

	tick := func() {
		docs, err := fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Printf("WARNING: poll fetch failed: %v", err)
			}
			return
		}

		fp, err := Fingerprint(docs)
		if err != nil {
			logger.Printf("WARNING: failed to fingerprint collection: %v", err)
			fp = ""
		}
		if delivered && fp != "" && fp == last {
			return
		}

		last = fp
		delivered = true
		deliver(docs)
	}

	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}

// Fingerprint returns a stable digest of a collection, independent of the
// order documents were returned in.
func Fingerprint(docs []spot.RawDocument) (string, error) {
	sorted := make([]spot.RawDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, d := range sorted {
		// Map keys are encoded in sorted order.
		data, err := json.Marshal(d.Fields)
		if err != nil {
			return "", err
		}
		h.Write([]byte(d.ID))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PollSubscription runs Poll in the background until closed.
type PollSubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// StartPolling starts Poll on its own goroutine and returns a handle that
// stops it.
func StartPolling(ctx context.Context, interval time.Duration, fetch FetchFunc, deliver ChangeFunc, logger *log.Logger) *PollSubscription {
	ctx, cancel := context.WithCancel(ctx)
	ps := &PollSubscription{cancel: cancel}

	ps.wg.Add(1)
	go func() {
		defer ps.wg.Done()
		_ = Poll(ctx, interval, fetch, deliver, logger)
	}()

	return ps
}

// Close stops polling and waits for the loop to exit.
func (ps *PollSubscription) Close() error {
	ps.once.Do(func() {
		ps.cancel()
		ps.wg.Wait()
	})
	return nil
}
