// Package state defines the display states of the viewer.
package state

// State is the source the display should be showing.
type State int

const (
	// Unset is the initial state before the first transition.
	// It is never a valid transition target.
	Unset State = iota

	// OffAir shows the looping placeholder used when the broadcast
	// infrastructure is reachable but no stream is live.
	OffAir

	// Livestream shows the live feed.
	Livestream

	// Offline shows the looping placeholder used when there is no
	// network path at all.
	Offline
)

// Targets lists every state a transition may request, in display order.
var Targets = []State{OffAir, Livestream, Offline}

// String returns the state name. The names of OffAir and Offline double as
// the base names of their placeholder video files.
func (s State) String() string {
	switch s {
	case Unset:
		return "Unset"
	case OffAir:
		return "OffAir"
	case Livestream:
		return "Livestream"
	case Offline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// IsTarget returns true if the state may be requested as a transition target.
func (s State) IsTarget() bool {
	return s == OffAir || s == Livestream || s == Offline
}

// Loops returns true if the state plays a static video that should repeat.
func (s State) Loops() bool {
	return s == OffAir || s == Offline
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
