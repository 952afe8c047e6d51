package spotsync

// State is the engine's position in its sync cycle.
type State int32

const (
	// StateUninitialized is the state before Start.
	StateUninitialized State = iota
	// StateSyncing means a sync pass is running or the engine is serving
	// cached data it has not yet confirmed against the remote store.
	StateSyncing
	// StateReady means the snapshot reflects the last delivery.
	StateReady
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSyncing:
		return "syncing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
