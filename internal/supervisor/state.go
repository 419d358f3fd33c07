package supervisor

// State is the lifecycle state of the tracked player process.
type State int

const (
	// StateIdle means no player is tracked.
	StateIdle State = iota

	// StateStarting indicates the player process is being spawned.
	StateStarting

	// StateRunning indicates the tracked player is alive.
	StateRunning

	// StateStopping indicates the tracked player is being terminated.
	StateStopping

	// StateExited means the tracked player exited on its own.
	StateExited

	// StateFailed means the last start attempt did not produce a process.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive returns true while a player process exists or is being handled.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// NeedsRestart returns true if nothing is showing because the player died
// or could not be started.
func (s State) NeedsRestart() bool {
	return s == StateExited || s == StateFailed
}
