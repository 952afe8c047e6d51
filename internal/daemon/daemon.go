// Package daemon hosts the sync engine as a long-running process.
//
// The daemon:
//  1. Starts the sync engine (cached snapshot first, then the remote subscription)
//  2. Periodically forces a full resync as a backstop for missed deliveries
//  3. Optionally serves the dashboard
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/teesmad/findmyspot/internal/dashboard"
	"github.com/teesmad/findmyspot/internal/spotsync"
)

// Config holds configuration for the daemon.
type Config struct {
	// ResyncInterval is how often to force a full resync. Zero disables it.
	ResyncInterval time.Duration

	// Dashboard configures the HTTP dashboard. Nil disables it.
	// The Syncer field is filled in by the daemon.
	Dashboard *dashboard.Config

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ResyncInterval: 5 * time.Minute,
		Logger:         log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon runs a sync engine and its optional dashboard.
type Daemon struct {
	syncer spotsync.Syncer
	config *Config
	dash   *dashboard.Server

	ctx      context.Context
	cancel   context.CancelFunc
	started  chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// New creates a daemon with default configuration.
func New(syncer spotsync.Syncer) (*Daemon, error) {
	return NewWithConfig(syncer, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer spotsync.Syncer, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		syncer:  syncer,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		started: make(chan struct{}),
	}

	if config.Dashboard != nil {
		dc := *config.Dashboard
		dc.Syncer = syncer
		d.dash = dashboard.NewServer(&dc)
	}

	return d, nil
}

// Start begins the daemon's operation.
//
// The engine is started with the daemon's own context so that Stop ends it.
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.syncer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start sync engine: %w", err)
	}

	if d.dash != nil {
		if err := d.dash.Start(); err != nil {
			_ = d.syncer.Stop()
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
	}

	if d.config.ResyncInterval > 0 {
		d.wg.Add(1)
		go d.resyncLoop()
	}
	close(d.started)

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")

		d.cancel()
		d.wg.Wait()

		var errs []error
		if d.dash != nil {
			errs = append(errs, d.dash.Stop())
		}
		errs = append(errs, d.syncer.Stop())
		d.stopErr = errors.Join(errs...)

		d.config.Logger.Println("Daemon stopped")
	})
	return d.stopErr
}

// PerformFullSync fetches the whole remote collection and applies it.
func (d *Daemon) PerformFullSync(ctx context.Context) error {
	d.config.Logger.Println("Performing full sync")

	if err := d.syncer.Resync(ctx); err != nil {
		return fmt.Errorf("full sync failed: %w", err)
	}

	d.config.Logger.Printf("Full sync complete (%d spots)", d.syncer.Registry().Len())
	return nil
}

// Started is closed once the engine and dashboard are running.
func (d *Daemon) Started() <-chan struct{} {
	return d.started
}

// Dashboard returns the dashboard server, or nil if disabled.
func (d *Daemon) Dashboard() *dashboard.Server {
	return d.dash
}

// resyncLoop periodically forces a full resync.
func (d *Daemon) resyncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.PerformFullSync(d.ctx); err != nil && d.ctx.Err() == nil {
				d.config.Logger.Printf("WARNING: periodic resync failed: %v", err)
			}
		}
	}
}
