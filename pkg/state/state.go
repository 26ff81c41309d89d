package state

import "encoding/json"

// Snapshot is the authoritative game state together with its version and
// the server time estimate associated with that version.
type Snapshot struct {
	State              json.RawMessage
	Version            string
	ServerTimeEstimate float64
}

// StateManager provides shared access to the game state.
// Implementations must be thread-safe.
type StateManager interface {
	// Current returns the current snapshot.
	Current() Snapshot
	// Replace swaps the current snapshot for a new one.
	Replace(snapshot Snapshot)
}
