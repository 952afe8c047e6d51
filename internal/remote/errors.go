package remote

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by Store implementations.
//
// Callers should test for them with errors.Is:
//
//	if errors.Is(err, remote.ErrRemoteWriteFailed) {
//	    // nothing was written, local state is untouched
//	}
var (
	// ErrRemoteUnavailable is returned when the store cannot be reached
	// for a read or subscription (network, auth, timeout).
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrRemoteWriteFailed is returned when an upsert or delete was not
	// committed by the store.
	ErrRemoteWriteFailed = errors.New("remote write failed")
)

// WriteError describes a write the remote store did not commit.
// It matches ErrRemoteWriteFailed with errors.Is and unwraps to the cause.
type WriteError struct {
	Op  string
	ID  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("remote %s of %q failed: %v", e.Op, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRemoteWriteFailed.
func (e *WriteError) Is(target error) bool {
	return target == ErrRemoteWriteFailed
}

// WriteFailed wraps err as a *WriteError. A nil err returns nil.
func WriteFailed(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Op: op, ID: id, Err: err}
}

// Unavailable wraps a read-path failure so it matches ErrRemoteUnavailable.
// A nil err returns nil.
func Unavailable(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemoteUnavailable) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRemoteUnavailable, what, err)
}

// IsTimeout reports whether err was caused by a deadline or cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
