// Package cache provides the local, durable replica of the remote spot
// collection.
//
// The cache is an embedded SQLite database (ncruces/go-sqlite3, WAL mode) with
// one table keyed by spot id. It is a derived store: everything in it can be
// rebuilt from the remote store, so PutAll replaces the whole table in one
// transaction rather than merging.
//
// Workflow:
//  1. The sync engine loads GetAll on start and publishes it immediately
//  2. Every validated remote delivery is written with PutAll
//  3. A confirmed remote delete is mirrored with Delete
//  4. Readers (CLI status, offline list) query GetAll/GetByID directly
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/teesmad/findmyspot/internal/spot"
)

// DB wraps the SQLite connection holding the cached spots.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the cache database at path and brings its
// schema up to date.
//
// The caller MUST call Close() when done to ensure the WAL is checkpointed.
//
// Example:
//
//	c, err := cache.Open(".findmyspot/cache.db")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}

	db.conn = nil
	return nil
}

// PutAll replaces the entire cache content with spots.
//
// This is a full resynchronization, not an additive insert: rows whose id is
// not in spots are removed. The replacement happens in one transaction, so
// concurrent readers see either the old or the new content, never a mix.
func (db *DB) PutAll(spots []spot.ParkingSpot) error {
	return db.PutAllContext(context.Background(), spots)
}

// PutAllContext replaces the cache content with context support.
func (db *DB) PutAllContext(ctx context.Context, spots []spot.ParkingSpot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM parking_spots"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range spots {
		if _, err := stmt.ExecContext(ctx, upsertArgs(s)...); err != nil {
			return fmt.Errorf("failed to cache spot %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache: %w", err)
	}

	return nil
}

// Put inserts or replaces a single spot.
func (db *DB) Put(s spot.ParkingSpot) error {
	return db.PutContext(context.Background(), s)
}

// PutContext inserts or replaces a single spot with context support.
func (db *DB) PutContext(ctx context.Context, s spot.ParkingSpot) error {
	if _, err := db.conn.ExecContext(ctx, upsertQuery, upsertArgs(s)...); err != nil {
		return fmt.Errorf("failed to cache spot %s: %w", s.ID, err)
	}
	return nil
}

const upsertQuery = `
	INSERT INTO parking_spots (
		id, name, latitude, longitude, availability, price_per_hour, image_base64
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		availability = excluded.availability,
		price_per_hour = excluded.price_per_hour,
		image_base64 = excluded.image_base64
	`

func upsertArgs(s spot.ParkingSpot) []any {
	return []any{
		s.ID,
		s.Name,
		s.Latitude,
		s.Longitude,
		s.Availability,
		s.PricePerHour,
		sql.NullString{String: s.ImageBase64, Valid: s.ImageBase64 != ""},
	}
}

const selectColumns = `id, name, latitude, longitude, availability, price_per_hour, image_base64`

// GetAll returns every cached spot.
// Results are ordered by id; callers must not rely on any particular order.
func (db *DB) GetAll() ([]spot.ParkingSpot, error) {
	return db.GetAllContext(context.Background())
}

// GetAllContext returns every cached spot with context support.
func (db *DB) GetAllContext(ctx context.Context) ([]spot.ParkingSpot, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+selectColumns+" FROM parking_spots ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query cached spots: %w", err)
	}
	defer rows.Close()

	spots := []spot.ParkingSpot{}
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		spots = append(spots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached spots: %w", err)
	}

	return spots, nil
}

// GetByID retrieves a single cached spot.
// The boolean is false when the id is not cached; that is not an error.
func (db *DB) GetByID(id string) (spot.ParkingSpot, bool, error) {
	return db.GetByIDContext(context.Background(), id)
}

// GetByIDContext retrieves a single cached spot with context support.
func (db *DB) GetByIDContext(ctx context.Context, id string) (spot.ParkingSpot, bool, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM parking_spots WHERE id = ?", id)

	s, err := scanSpot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return spot.ParkingSpot{}, false, nil
	}
	if err != nil {
		return spot.ParkingSpot{}, false, err
	}
	return s, true, nil
}

// Delete removes a spot from the cache.
// Returns nil if the spot doesn't exist (idempotent).
func (db *DB) Delete(id string) error {
	return db.DeleteContext(context.Background(), id)
}

// DeleteContext removes a spot with context support.
func (db *DB) DeleteContext(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM parking_spots WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete cached spot %s: %w", id, err)
	}
	return nil
}

// Count returns the number of cached spots.
func (db *DB) Count() (int, error) {
	return db.CountContext(context.Background())
}

// CountContext returns the number of cached spots with context support.
func (db *DB) CountContext(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM parking_spots").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cached spots: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSpot(row scanner) (spot.ParkingSpot, error) {
	var s spot.ParkingSpot
	var image sql.NullString

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Latitude,
		&s.Longitude,
		&s.Availability,
		&s.PricePerHour,
		&image,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spot.ParkingSpot{}, err
		}
		return spot.ParkingSpot{}, fmt.Errorf("failed to scan cached spot: %w", err)
	}

	s.ImageBase64 = image.String
	return s, nil
}
