package spotsync

import (
	"context"
	"time"

	"github.com/teesmad/findmyspot/internal/registry"
	"github.com/teesmad/findmyspot/internal/spot"
)

// Syncer keeps the local cache and the published snapshot in step with the
// remote store, and is the only path through which spots are written.
type Syncer interface {
	// Start publishes the cached spots, then subscribes to the remote store.
	// If the store cannot subscribe, Start falls back to polling FetchAll.
	// The subscription lives until Stop or until ctx ends.
	//
	// Start fails only if the engine was already started.
	Start(ctx context.Context) error

	// Stop ends the subscription. It does not close the cache or the store.
	Stop() error

	// Add writes a new spot to the remote store and, once acknowledged,
	// resyncs so the spot is visible through the registry on return.
	//
	// Until a subscription delivery contains the written document, or
	// TombstoneTTL elapses, deliveries that lack it or carry an older
	// version are overlaid with it. A concurrent change to the same id by
	// another writer is therefore masked for up to that window.
	//
	// Returns an error matching spot.ErrInvalid or remote.ErrRemoteWriteFailed;
	// in both cases nothing local changed.
	Add(ctx context.Context, s spot.ParkingSpot) error

	// Update overwrites an existing spot (full document replacement).
	// The written document overrides stale deliveries the same way as Add.
	//
	// Returns ErrNotFound if the id is in neither the snapshot nor the store.
	Update(ctx context.Context, s spot.ParkingSpot) error

	// Delete removes a spot remotely, then drops it from the cache and the
	// snapshot without waiting for the next delivery.
	//
	// The id is then hidden from deliveries until TombstoneTTL elapses or
	// the engine writes it again. A spot re-created under the same id by
	// another writer within that window stays hidden, so for that time the
	// cache does not match the remote store.
	//
	// Deleting an unknown id succeeds.
	Delete(ctx context.Context, id string) error

	// Resync fetches the whole collection and applies it.
	//
	// Returns an error matching remote.ErrRemoteUnavailable if the fetch
	// fails; the published snapshot is left untouched.
	Resync(ctx context.Context) error

	// State returns the current engine state.
	State() State

	// Registry returns the published view.
	Registry() *registry.Registry

	// Stats returns a point-in-time summary for status reporting.
	Stats() Stats
}

// Stats summarizes the engine for status output.
type Stats struct {
	State      State     `json:"state"`
	Spots      int       `json:"spots"`
	Version    uint64    `json:"version"`
	Tombstones int       `json:"tombstones"`
	Pending    int       `json:"pending_writes"`
	Invalid    int       `json:"invalid_last_pass"`
	LastSync   time.Time `json:"last_sync"`
	LastError  string    `json:"last_error,omitempty"`
}
