package orchestrator

import "fmt"

// State is the position of a run in the fallback ladder.
type State int

const (
	StateNotStarted State = iota
	StateAttempting
	StateSucceeded
	StateAllFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateAllFailed:
		return "all-failed"
	default:
		return "unknown"
	}
}

// LadderState is a State plus the rung it refers to.
type LadderState struct {
	State State
	Index int
}

func (s LadderState) String() string {
	switch s.State {
	case StateAttempting, StateSucceeded:
		return fmt.Sprintf("%s(%d)", s.State, s.Index)
	default:
		return s.State.String()
	}
}

// Terminal reports whether no further transition can follow.
func (s LadderState) Terminal() bool {
	return s.State == StateSucceeded || s.State == StateAllFailed
}
