package collector

// State is a phase of a collector run. A run only moves forward:
// Idle, Connecting, TopologyReady, Consuming, Draining, Closed. Any phase
// before Draining may jump straight to Draining on a fatal error.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateTopologyReady
	StateConsuming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateTopologyReady:
		return "topology_ready"
	case StateConsuming:
		return "consuming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
