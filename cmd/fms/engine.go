package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teesmad/findmyspot/internal/cache"
	"github.com/teesmad/findmyspot/internal/config"
	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/remote/filestore"
	"github.com/teesmad/findmyspot/internal/remote/libsqlstore"
	"github.com/teesmad/findmyspot/internal/remote/pgstore"
	"github.com/teesmad/findmyspot/internal/spotsync"
)

// engine bundles the cache, the remote store and the sync engine over them.
type engine struct {
	cache  *cache.DB
	store  remote.Store
	syncer spotsync.Syncer
}

// openStore connects to the configured remote store.
func (a *app) openStore(ctx context.Context) (remote.Store, error) {
	rc := a.cfg.Remote
	switch rc.Kind {
	case config.RemoteFile:
		return filestore.New(filestore.Config{
			Dir:    rc.Dir,
			Logger: a.logs.Logger("filestore"),
		})
	case config.RemoteLibSQL:
		return libsqlstore.Open(ctx, libsqlstore.Config{
			URL:          rc.URL,
			AuthToken:    rc.AuthToken,
			PollInterval: rc.PollInterval,
			Logger:       a.logs.Logger("libsql"),
		})
	case config.RemotePostgres:
		return pgstore.Open(ctx, pgstore.Config{
			URL:          rc.URL,
			PollInterval: rc.PollInterval,
			Logger:       a.logs.Logger("pgstore"),
		})
	case config.RemoteMemory:
		return remote.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown remote kind %q", rc.Kind)
	}
}

// openEngine opens the cache and the remote store and builds a sync engine.
// Engine metrics are registered on reg when it is non-nil.
func (a *app) openEngine(ctx context.Context, reg prometheus.Registerer) (*engine, error) {
	db, err := cache.Open(a.cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open %s remote: %w", a.cfg.Remote.Kind, err)
	}

	syncer := spotsync.New(spotsync.Config{
		Cache:            db,
		Remote:           store,
		Logger:           a.logs.Logger("sync"),
		Metrics:          spotsync.NewMetrics(reg),
		RemoteTimeout:    a.cfg.Remote.Timeout,
		TombstoneTTL:     a.cfg.Sync.TombstoneTTL,
		ResyncMaxElapsed: a.cfg.Sync.ResyncMaxElapsed,
		PollInterval:     a.cfg.Remote.PollInterval,
	})

	return &engine{cache: db, store: store, syncer: syncer}, nil
}

// start starts the engine and brings it up to date with one resync. If the
// remote store is unreachable the cached snapshot is kept and warn is
// called; any other failure is returned.
func (e *engine) start(ctx context.Context, warn func(error)) error {
	if err := e.syncer.Start(ctx); err != nil {
		return err
	}
	if err := e.syncer.Resync(ctx); err != nil {
		if !errors.Is(err, remote.ErrRemoteUnavailable) {
			return err
		}
		warn(err)
	}
	return nil
}

// Close stops the engine and releases the store and the cache.
func (e *engine) Close() error {
	return errors.Join(e.syncer.Stop(), e.store.Close(), e.cache.Close())
}
