// Package libsqlstore implements remote.Store on a Turso/libSQL database.
//
// Each spot is one row of parking_spots_remote holding the JSON document.
// libSQL has no change feed usable from database/sql, so Subscribe polls
// FetchAll and delivers when the collection changes.
package libsqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/spot"
)

// Config configures a Store.
type Config struct {
	// URL is a libsql://, https:// or file: address.
	URL string

	// AuthToken is appended to remote URLs as the authToken parameter.
	AuthToken string

	// PollInterval for Subscribe. Default: remote.DefaultPollInterval.
	PollInterval time.Duration

	// Logger for skipped documents and poll failures (optional).
	Logger *log.Logger
}

// Store is a remote.Store backed by libSQL.
type Store struct {
	db       *sql.DB
	interval time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	subs []*remote.PollSubscription
}

var _ remote.Store = (*Store)(nil)

const createTable = `
	CREATE TABLE IF NOT EXISTS parking_spots_remote (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	)`

// Open connects to the database and creates the documents table if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn, err := buildDSN(cfg.URL, cfg.AuthToken)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[libsql] ", log.LstdFlags)
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, remote.Unavailable("open libsql", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, remote.Unavailable("ping libsql", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create parking_spots_remote table: %w", err)
	}

	return &Store{
		db:       db,
		interval: cfg.PollInterval,
		logger:   cfg.Logger,
	}, nil
}

func buildDSN(raw, token string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("libsql URL cannot be empty")
	}
	if strings.HasPrefix(raw, "file:") || token == "" {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid libsql URL: %w", err)
	}
	q := u.Query()
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchAll returns every document ordered by id. Rows whose document cannot
// be decoded are logged and skipped.
func (s *Store) FetchAll(ctx context.Context) ([]spot.RawDocument, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, doc FROM parking_spots_remote ORDER BY id")
	if err != nil {
		return nil, remote.Unavailable("fetch all", err)
	}
	defer rows.Close()

	docs := []spot.RawDocument{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, remote.Unavailable("fetch all", err)
		}
		doc, err := remote.DecodeDocument(id, []byte(body))
		if err != nil {
			s.logger.Printf("WARNING: skipping document: %v", err)
			continue
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, remote.Unavailable("fetch all", err)
	}

	return docs, nil
}

// FetchByID returns one document.
func (s *Store) FetchByID(ctx context.Context, id string) (spot.RawDocument, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM parking_spots_remote WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return spot.RawDocument{}, false, nil
	}
	if err != nil {
		return spot.RawDocument{}, false, remote.Unavailable("fetch "+id, err)
	}

	doc, err := remote.DecodeDocument(id, []byte(body))
	if err != nil {
		return spot.RawDocument{}, false, remote.Unavailable("fetch "+id, err)
	}
	return doc, true, nil
}

// Upsert writes the full document for id.
func (s *Store) Upsert(ctx context.Context, id string, fields spot.Fields) error {
	if id == "" {
		return remote.WriteFailed(remote.OpUpsert, id, fmt.Errorf("empty document id"))
	}
	body, err := remote.EncodeFields(fields)
	if err != nil {
		return remote.WriteFailed(remote.OpUpsert, id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parking_spots_remote (id, doc) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc
	`, id, string(body))
	return remote.WriteFailed(remote.OpUpsert, id, err)
}

// Delete removes id.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM parking_spots_remote WHERE id = ?", id)
	return remote.WriteFailed(remote.OpDelete, id, err)
}

// Subscribe polls the table. See remote.Poll.
func (s *Store) Subscribe(ctx context.Context, onChange remote.ChangeFunc) (remote.Subscription, error) {
	sub := remote.StartPolling(ctx, s.interval, s.FetchAll, onChange, s.logger)

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return sub, nil
}

// Close stops open subscriptions and closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close libsql: %w", err)
	}
	return nil
}
