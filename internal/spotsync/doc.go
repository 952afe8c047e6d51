// Package spotsync keeps the local spot cache and the published registry
// snapshot consistent with the authoritative remote store.
//
// # Overview
//
// The engine sits between three collaborators:
//
//	remote.Store (authoritative)
//	     │  deliveries (full collection)      ▲ Upsert / Delete
//	     ▼                                    │
//	  Syncer ──── PutAll / Delete ────► cache.DB (durable replica)
//	     │
//	     └──── Publish ────► registry.Registry (what consumers read)
//
// Every delivery is validated document by document; invalid documents are
// logged, counted and dropped. The validated set replaces the cache in one
// transaction and is then published.
//
// # Writes
//
// Add, Update and Delete commit to the remote store first. Only after the
// store acknowledges the write does anything local change: Add and Update
// resync from the store, Delete removes the spot from the cache and the
// snapshot immediately and then resyncs. A failed remote write leaves the
// cache and the snapshot exactly as they were.
//
// Deliveries and writes share one mutex, so the cache is never rebuilt by
// two passes at once. Reads (registry Current, Lookup) never take it.
//
// Deleted ids are tombstoned for TombstoneTTL so that a delivery fetched
// before the delete but applied after it cannot bring the spot back.
//
// Usage
//
//	db, err := cache.Open(".findmyspot/cache.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	store, err := filestore.New(filestore.Config{Dir: "spots"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	syncer := spotsync.New(spotsync.Config{Cache: db, Remote: store})
//	if err := syncer.Start(ctx); err != nil {
//	    return err
//	}
//	defer syncer.Stop()
//
//	s := spot.New("Lot A", 54.57, -1.23, "", 2.5, "")
//	if err := syncer.Add(ctx, s); err != nil {
//	    return err // errors.Is(err, remote.ErrRemoteWriteFailed)
//	}
//
// Error Handling
//
//   - spot.ErrInvalid: returned to Add/Update callers; absorbed for deliveries
//   - remote.ErrRemoteUnavailable: returned by Resync; the snapshot keeps
//     serving cached data
//   - remote.ErrRemoteWriteFailed: returned by Add/Update/Delete; nothing
//     local changed
//   - ErrNotFound: Update of an id that exists nowhere
//   - ErrNotStarted: writes before Start
package spotsync
