package orchestrator

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateErrored   State = "errored"
)

func (s State) String() string {
	return string(s)
}

var stateTransitions = map[State][]State{
	StateIdle:      {StateRunning},
	StateRunning:   {StateStopping, StateCompleted, StateStopped, StateErrored},
	StateStopping:  {StateStopped, StateCompleted, StateErrored},
	StateCompleted: {StateIdle},
	StateStopped:   {StateIdle},
	StateErrored:   {StateIdle},
}

func (s State) CanTransitionTo(next State) bool {
	for _, candidate := range stateTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether a run has finished in this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateErrored
}
