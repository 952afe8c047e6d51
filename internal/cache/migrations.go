package cache

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	name    string
	up      string
}

// migrations is the ordered list of cache schema changes.
// Each migration must be idempotent.
var migrations = []migration{
	{
		version: 1,
		name:    "create_parking_spots_table",
		up: `
			CREATE TABLE IF NOT EXISTS parking_spots (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				latitude REAL NOT NULL,
				longitude REAL NOT NULL,
				availability TEXT NOT NULL,
				price_per_hour REAL NOT NULL,
				image_base64 TEXT
			);
		`,
	},
	{
		version: 2,
		name:    "index_parking_spots_location",
		up: `
			CREATE INDEX IF NOT EXISTS idx_parking_spots_location
			ON parking_spots(latitude, longitude);
		`,
	},
}

// InitSchema applies pending migrations. Safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext applies pending migrations with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	current, err := db.SchemaVersionContext(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, m.up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d (%s): %w", m.version, m.name, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			m.version, m.name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion() (int, error) {
	return db.SchemaVersionContext(context.Background())
}

// SchemaVersionContext returns the applied schema version with context support.
func (db *DB) SchemaVersionContext(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
