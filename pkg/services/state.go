package services

import "fmt"

// batchState is the lifecycle position of one batch inside the pipeline.
type batchState int

const (
	stateIdle batchState = iota
	stateValidating
	stateApplying
	stateAsserting
	stateCommitted
	stateRolledBack
)

func (s batchState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateValidating:
		return "validating"
	case stateApplying:
		return "applying"
	case stateAsserting:
		return "asserting"
	case stateCommitted:
		return "committed"
	case stateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// batchLifecycle enforces the legal state transitions for one batch.
// Committed and RolledBack are terminal.
type batchLifecycle struct {
	state batchState
}

var legalTransitions = map[batchState][]batchState{
	stateIdle:       {stateValidating},
	stateValidating: {stateApplying, stateRolledBack},
	stateApplying:   {stateAsserting, stateRolledBack},
	stateAsserting:  {stateCommitted, stateRolledBack},
}

// to advances the lifecycle, returning an error on an illegal transition.
func (l *batchLifecycle) to(next batchState) error {
	for _, allowed := range legalTransitions[l.state] {
		if next == allowed {
			l.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal batch state transition %s -> %s", l.state, next)
}
