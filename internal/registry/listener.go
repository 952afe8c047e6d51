package registry

import (
	"sync"

	"github.com/teesmad/findmyspot/internal/spot"
)

// listener owns an unbounded FIFO of snapshots and a goroutine draining it.
type listener struct {
	fn Listener

	mu      sync.Mutex
	queue   []Snapshot
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newListener(fn Listener) *listener {
	l := &listener{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *listener) enqueue(s Snapshot) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, s)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listener) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.stopped || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			next := l.queue[0]
			l.queue[0] = Snapshot{}
			l.queue = l.queue[1:]
			l.mu.Unlock()

			spots := make([]spot.ParkingSpot, len(next.Spots))
			copy(spots, next.Spots)
			l.fn(Snapshot{Version: next.Version, Spots: spots})
		}
	}
}

// stop discards queued snapshots and ends the goroutine. It does not wait
// for a call to fn already in progress, so it is safe to call from fn.
func (l *listener) stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	close(l.done)
}
