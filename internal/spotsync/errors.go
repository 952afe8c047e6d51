package spotsync

import "errors"

var (
	// ErrNotFound is returned by Update when the id is neither in the
	// snapshot nor in the remote store.
	ErrNotFound = errors.New("parking spot not found")

	// ErrNotStarted is returned by writes and Resync before Start.
	ErrNotStarted = errors.New("sync engine not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("sync engine already started")
)
