package filestore

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/teesmad/findmyspot/internal/spot"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpWrite indicates a document was created or rewritten.
	OpWrite EventOp = iota
	// OpRemove indicates a document was deleted or renamed away.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is a change to one spot document in the watched directory.
type Event struct {
	ID   string
	Path string
	Op   EventOp
}

// Watcher watches a spots directory for document changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
}

// NewWatcher creates a Watcher. It emits nothing until Start is called.
func NewWatcher() (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher: w,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir for *.json changes.
func (w *Watcher) Start(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if w.stopped {
		return fmt.Errorf("watcher already stopped")
	}

	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch spots directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels.
// It blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	wasRunning := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()

	if wasRunning {
		close(w.events)
		close(w.errors)
	}

	return nil
}

// Events returns the channel of document changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if ev, ok := convertEvent(event); ok {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to an Event. Temp files, dotfiles and
// non-JSON files are ignored, as are chmod-only events.
func convertEvent(event fsnotify.Event) (Event, bool) {
	id, ok := spot.IDFromFilename(event.Name)
	if !ok {
		return Event{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemove
	default:
		return Event{}, false
	}

	return Event{ID: id, Path: event.Name, Op: op}, true
}
