package syncchannel

// State is the connection state of a sync channel. It is owned
// exclusively by the channel; callers observe it through Snapshot.
type State int

// Channel connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is the read-only projection of channel state exposed to the UI.
type Snapshot struct {
	State State
	// Attempt is the current reconnection attempt, zero outside a
	// reconnection episode.
	Attempt int
}
