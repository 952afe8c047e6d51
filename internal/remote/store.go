// Package remote defines the contract the sync engine uses to talk to the
// authoritative spot collection, plus the pieces shared by every backend:
// the error taxonomy, a polling subscription loop and an in-memory store.
//
// Backends live in sub-packages:
//   - filestore: a directory of <id>.json documents watched with fsnotify
//   - libsqlstore: a Turso/libSQL table, polled
//   - pgstore: a PostgreSQL table, polled
package remote

import (
	"context"

	"github.com/teesmad/findmyspot/internal/spot"
)

// Operation names carried by WriteError.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// ChangeFunc receives a complete, authoritative copy of the remote collection.
// Deliveries for one subscription never overlap.
type ChangeFunc func(docs []spot.RawDocument)

// Subscription is a live feed registered with Store.Subscribe.
type Subscription interface {
	// Close stops deliveries and waits for an in-flight delivery to return.
	// Closing twice is a no-op.
	Close() error
}

// Store is a remote document collection keyed by spot id.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// FetchAll returns every document. Fails with ErrRemoteUnavailable when
	// the store cannot be reached.
	FetchAll(ctx context.Context) ([]spot.RawDocument, error)

	// FetchByID returns one document. An absent id is (RawDocument{}, false, nil).
	FetchByID(ctx context.Context, id string) (spot.RawDocument, bool, error)

	// Upsert writes the full document for id. Writing the same id and fields
	// twice leaves one document. Failures match ErrRemoteWriteFailed.
	Upsert(ctx context.Context, id string, fields spot.Fields) error

	// Delete removes id. Deleting a missing id is not an error. Failures
	// match ErrRemoteWriteFailed.
	Delete(ctx context.Context, id string) error

	// Subscribe calls onChange once with the current collection and again
	// whenever it changes, until the subscription is closed or ctx ends.
	Subscribe(ctx context.Context, onChange ChangeFunc) (Subscription, error)

	// Close releases the store's resources.
	Close() error
}

func copyFields(f spot.Fields) spot.Fields {
	out := make(spot.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
