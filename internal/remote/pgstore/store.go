// Package pgstore implements remote.Store on PostgreSQL through sqlx and the
// pgx stdlib driver. Documents are kept as JSONB; Subscribe polls.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/spot"
)

// Config configures a Store.
type Config struct {
	// URL is a postgres:// connection string.
	URL string

	// PollInterval for Subscribe. Default: remote.DefaultPollInterval.
	PollInterval time.Duration

	// Logger for skipped documents and poll failures (optional).
	Logger *log.Logger
}

// Store is a remote.Store backed by PostgreSQL.
type Store struct {
	db       *sqlx.DB
	interval time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	subs []*remote.PollSubscription
}

var _ remote.Store = (*Store)(nil)

type row struct {
	ID  string `db:"id"`
	Doc []byte `db:"doc"`
}

// Open connects to PostgreSQL and creates the documents table if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres URL cannot be empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[pgstore] ", log.LstdFlags)
	}

	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.URL)
	if err != nil {
		return nil, remote.Unavailable("connect postgres", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, createTableQuery); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create parking_spots_remote table: %w", err)
	}

	return NewFromDB(db, cfg.PollInterval, cfg.Logger), nil
}

// NewFromDB wraps an existing connection. The table must already exist.
func NewFromDB(db *sqlx.DB, interval time.Duration, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[pgstore] ", log.LstdFlags)
	}
	return &Store{db: db, interval: interval, logger: logger}
}

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS parking_spots_remote (
		id TEXT PRIMARY KEY,
		doc JSONB NOT NULL
	)`

// FetchAll returns every document ordered by id.
func (s *Store) FetchAll(ctx context.Context) ([]spot.RawDocument, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, fetchAllQuery); err != nil {
		return nil, remote.Unavailable("fetch all", err)
	}

	docs := make([]spot.RawDocument, 0, len(rows))
	for _, r := range rows {
		doc, err := remote.DecodeDocument(r.ID, r.Doc)
		if err != nil {
			s.logger.Printf("WARNING: skipping document: %v", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

const fetchAllQuery = `SELECT id, doc FROM parking_spots_remote ORDER BY id`

// FetchByID returns one document.
func (s *Store) FetchByID(ctx context.Context, id string) (spot.RawDocument, bool, error) {
	var r row
	err := s.db.GetContext(ctx, &r, fetchByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return spot.RawDocument{}, false, nil
	}
	if err != nil {
		return spot.RawDocument{}, false, remote.Unavailable("fetch "+id, err)
	}

	doc, err := remote.DecodeDocument(r.ID, r.Doc)
	if err != nil {
		return spot.RawDocument{}, false, remote.Unavailable("fetch "+id, err)
	}
	return doc, true, nil
}

const fetchByIDQuery = `SELECT id, doc FROM parking_spots_remote WHERE id = $1`

// Upsert writes the full document for id.
func (s *Store) Upsert(ctx context.Context, id string, fields spot.Fields) error {
	if id == "" {
		return remote.WriteFailed(remote.OpUpsert, id, fmt.Errorf("empty document id"))
	}
	body, err := remote.EncodeFields(fields)
	if err != nil {
		return remote.WriteFailed(remote.OpUpsert, id, err)
	}

	_, err = s.db.ExecContext(ctx, upsertQuery, id, string(body))
	return remote.WriteFailed(remote.OpUpsert, id, err)
}

const upsertQuery = `INSERT INTO parking_spots_remote (id, doc) VALUES ($1, $2::jsonb)
	ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`

// Delete removes id.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, deleteQuery, id)
	return remote.WriteFailed(remote.OpDelete, id, err)
}

const deleteQuery = `DELETE FROM parking_spots_remote WHERE id = $1`

// Subscribe polls the table. See remote.Poll.
func (s *Store) Subscribe(ctx context.Context, onChange remote.ChangeFunc) (remote.Subscription, error) {
	sub := remote.StartPolling(ctx, s.interval, s.FetchAll, onChange, s.logger)

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return sub, nil
}

// Close stops open subscriptions and closes the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close postgres: %w", err)
	}
	return nil
}
