package session

// State is the lifecycle position of one engine invocation. Transitions are
// strictly forward; probing forks into exactly one of resuming/initializing.
type State string

const (
	// StateProbing spawns the assistant in resume mode and inspects its first output.
	StateProbing State = "probing"
	// StateResuming selects and continues the most recent prior session.
	StateResuming State = "resuming"
	// StateInitializing bootstraps a fresh session when none can be resumed.
	StateInitializing State = "initializing"
	// StateDelivering injects the resolved instruction content.
	StateDelivering State = "delivering"
	// StateInteractive is the terminal state: the human has the session.
	StateInteractive State = "interactive"
	// StateFailed is the terminal state for local engine failures.
	StateFailed State = "failed"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateProbing: {
		StateResuming:     {},
		StateInitializing: {},
		StateFailed:       {},
	},
	StateResuming: {
		StateDelivering: {},
		StateFailed:     {},
	},
	StateInitializing: {
		StateDelivering: {},
		StateFailed:     {},
	},
	StateDelivering: {
		StateInteractive: {},
		StateFailed:      {},
	},
}

func canTransition(from State, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
