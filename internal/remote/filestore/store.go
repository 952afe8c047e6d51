// Package filestore implements remote.Store on a directory of JSON
// documents, one <id>.json per spot.
//
// The directory can be shared (a synced folder, a network mount, a jj or git
// working copy); every process that writes through the store uses atomic
// temp+rename writes, and Subscribe picks up changes made by anyone through
// an fsnotify watcher.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/spot"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before re-reading the directory.
const DefaultDebounce = 50 * time.Millisecond

// Config configures a Store.
type Config struct {
	// Dir holds the spot documents. Created if missing.
	Dir string

	// Debounce collapses bursts of file events. Default: DefaultDebounce.
	Debounce time.Duration

	// Logger for skipped files and watcher errors (optional).
	Logger *log.Logger
}

// Store is a remote.Store backed by a directory.
type Store struct {
	dir      string
	debounce time.Duration
	logger   *log.Logger

	// serializes writers within this process
	mu sync.Mutex

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
}

var _ remote.Store = (*Store)(nil)

// New creates a Store rooted at cfg.Dir.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("spots directory cannot be empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spots directory: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[filestore] ", log.LstdFlags)
	}

	return &Store{
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		subs:     make(map[*subscription]struct{}),
	}, nil
}

// Dir returns the documents directory.
func (s *Store) Dir() string {
	return s.dir
}

// FetchAll reads every document in the directory. Unparseable files are
// logged and skipped.
func (s *Store) FetchAll(ctx context.Context) ([]spot.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Unavailable("fetch all", err)
	}

	docs, err := spot.ReadAllSpotFiles(s.dir, func(name string, err error) {
		s.logger.Printf("WARNING: skipping %s: %v", name, err)
	})
	if err != nil {
		return nil, remote.Unavailable("fetch all", err)
	}
	return docs, nil
}

// FetchByID reads one document.
func (s *Store) FetchByID(ctx context.Context, id string) (spot.RawDocument, bool, error) {
	if err := ctx.Err(); err != nil {
		return spot.RawDocument{}, false, remote.Unavailable("fetch "+id, err)
	}

	doc, err := spot.ReadSpotFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return spot.RawDocument{}, false, nil
		}
		return spot.RawDocument{}, false, remote.Unavailable("fetch "+id, err)
	}
	return doc, true, nil
}

// Upsert writes dir/{id}.json atomically.
func (s *Store) Upsert(ctx context.Context, id string, fields spot.Fields) error {
	if err := ctx.Err(); err != nil {
		return remote.WriteFailed(remote.OpUpsert, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := spot.WriteSpotFile(s.dir, spot.RawDocument{ID: id, Fields: fields}); err != nil {
		return remote.WriteFailed(remote.OpUpsert, id, err)
	}
	return nil
}

// Delete removes dir/{id}.json.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return remote.WriteFailed(remote.OpDelete, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := spot.DeleteSpotFile(s.dir, id); err != nil {
		return remote.WriteFailed(remote.OpDelete, id, err)
	}
	return nil
}

// Close stops every open subscription.
func (s *Store) Close() error {
	s.subsMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, spot.Filename(id))
}
