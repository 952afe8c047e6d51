package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestWriteError(t *testing.T) {
	cause := errors.New("connection reset")
	err := WriteFailed(OpUpsert, "a", cause)

	if !errors.Is(err, ErrRemoteWriteFailed) {
		t.Error("WriteError should match ErrRemoteWriteFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("WriteError should unwrap to its cause")
	}
	if errors.Is(err, ErrRemoteUnavailable) {
		t.Error("WriteError should not match ErrRemoteUnavailable")
	}

	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatal("expected errors.As to find *WriteError")
	}
	if we.Op != OpUpsert || we.ID != "a" {
		t.Errorf("unexpected WriteError fields: %+v", we)
	}

	// Wrapping twice keeps the innermost WriteError.
	wrapped := fmt.Errorf("add: %w", err)
	if again := WriteFailed(OpDelete, "b", wrapped); again != wrapped {
		t.Errorf("expected existing WriteError to be returned unchanged, got %v", again)
	}

	if WriteFailed(OpDelete, "a", nil) != nil {
		t.Error("WriteFailed(nil) should be nil")
	}
}

func TestUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"plain", errors.New("dial tcp: refused")},
		{"deadline", context.DeadlineExceeded},
		{"already wrapped", fmt.Errorf("inner: %w", ErrRemoteUnavailable)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Unavailable("fetch all", tt.err)
			if !errors.Is(err, ErrRemoteUnavailable) {
				t.Errorf("expected ErrRemoteUnavailable, got %v", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("expected cause to be preserved, got %v", err)
			}
		})
	}

	if Unavailable("x", nil) != nil {
		t.Error("Unavailable(nil) should be nil")
	}
	if !IsTimeout(Unavailable("x", context.DeadlineExceeded)) {
		t.Error("IsTimeout should see through Unavailable")
	}
}
