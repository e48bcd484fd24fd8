// Package fsm holds the analysis lifecycle transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateAnalyzing State = "analyzing"
	StateReported  State = "reported"
	StateFailed    State = "failed"
)

const (
	EventSelect  Event = "select"
	EventAnalyze Event = "analyze"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// Transition returns the state reached by applying event to current.
// Payload-dependent guards (analyze with nothing selected) live in the session controller.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventSelect, EventReset:
			return StateIdle, nil
		case EventAnalyze:
			return StateAnalyzing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAnalyzing:
		switch event {
		case EventSucceed:
			return StateReported, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReported, StateFailed:
		switch event {
		case EventSelect, EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Busy reports whether the state rejects user-initiated events.
func (s State) Busy() bool {
	return s == StateAnalyzing
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
