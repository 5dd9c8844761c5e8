// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mirror

const unknownStr = "unknown"

// State is the reconciliation state of a mirror.
type State uint8

const (
	// StateEmpty holds no authoritative graph yet.
	StateEmpty State = iota

	// StateSynced applies deltas in order on top of a known version.
	StateSynced

	// StateResyncing discards deltas until a snapshot arrives. Entered on a
	// version mismatch, a reconnect or a watchdog timeout.
	StateResyncing

	// StateReplaying sends queued offline edits one at a time.
	StateReplaying

	// StateClosed has no transport. The last graph is kept and local edits
	// are queued.
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSynced:
		return "synced"
	case StateResyncing:
		return "resyncing"
	case StateReplaying:
		return "replaying"
	case StateClosed:
		return "closed"
	default:
		return unknownStr
	}
}

// Transition describes one state change. Version is the authoritative
// version the mirror held when the change happened.
type Transition struct {
	From    State
	To      State
	Version uint64
	Reason  string
}
