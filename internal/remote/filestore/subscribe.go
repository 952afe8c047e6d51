package filestore

import (
	"context"
	"sync"
	"time"

	"github.com/teesmad/findmyspot/internal/remote"
)

// Subscribe delivers the directory contents immediately and again after
// every settled burst of document changes. A burst that leaves the
// collection unchanged (for example a rewrite with identical fields) is not
// delivered.
func (s *Store) Subscribe(ctx context.Context, onChange remote.ChangeFunc) (remote.Subscription, error) {
	w, err := NewWatcher()
	if err != nil {
		return nil, remote.Unavailable("subscribe", err)
	}
	if err := w.Start(s.dir); err != nil {
		_ = w.Stop()
		return nil, remote.Unavailable("subscribe", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		store:    s,
		watcher:  w,
		onChange: onChange,
		cancel:   cancel,
	}

	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()

	sub.wg.Add(1)
	go sub.run(ctx)

	return sub, nil
}

type subscription struct {
	store    *Store
	watcher  *Watcher
	onChange remote.ChangeFunc
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once

	last      string
	delivered bool
}

func (sub *subscription) run(ctx context.Context) {
	defer sub.wg.Done()
	defer sub.watcher.Stop()

	sub.deliver(ctx)

	settle := time.NewTimer(sub.store.debounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-sub.watcher.Events():
			if !ok {
				return
			}
			settle.Reset(sub.store.debounce)

		case err, ok := <-sub.watcher.Errors():
			if !ok {
				return
			}
			sub.store.logger.Printf("WARNING: watcher error: %v", err)

		case <-settle.C:
			sub.deliver(ctx)
		}
	}
}

func (sub *subscription) deliver(ctx context.Context) {
	docs, err := sub.store.FetchAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			sub.store.logger.Printf("WARNING: failed to read spots directory: %v", err)
		}
		return
	}

	fp, err := remote.Fingerprint(docs)
	if err == nil && sub.delivered && fp == sub.last {
		return
	}

	sub.last = fp
	sub.delivered = true
	sub.onChange(docs)
}

// Close stops the watcher and waits for an in-flight delivery to return.
func (sub *subscription) Close() error {
	sub.once.Do(func() {
		sub.cancel()
		_ = sub.watcher.Stop()
		sub.wg.Wait()

		sub.store.subsMu.Lock()
		delete(sub.store.subs, sub)
		sub.store.subsMu.Unlock()
	})
	return nil
}
