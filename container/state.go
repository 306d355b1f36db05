package container

import (
	"fmt"
)

// State of a container run
type State int

// States, a run moves forward only
const (
	StateCreated State = iota + 1
	StateLaunched
	StateConfined
	StateRunning
	StateCleaning
	StateDone
	StateFailed
)

var stateToString = []string{
	"unknown",
	"created",
	"launched",
	"confined",
	"running",
	"cleaning",
	"done",
	"failed",
}

func (s State) String() string {
	if s >= StateCreated && s <= StateFailed {
		return stateToString[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// canTransit lists the allowed moves. Cleaning is reachable from every
// non-terminal state so resources are released whatever failed.
func canTransit(from, to State) bool {
	switch to {
	case StateLaunched:
		return from == StateCreated
	case StateConfined:
		return from == StateLaunched
	case StateRunning:
		return from == StateConfined
	case StateCleaning:
		return !from.Terminal() && from != StateCleaning
	case StateDone, StateFailed:
		return from == StateCleaning
	}
	return false
}

// stateMachine records the current state and, once failed, the stage that failed
type stateMachine struct {
	current  State
	failedAt State
}

func newStateMachine() stateMachine {
	return stateMachine{current: StateCreated}
}

func (m *stateMachine) transit(to State) error {
	if !canTransit(m.current, to) {
		return fmt.Errorf("container: invalid transition %v -> %v", m.current, to)
	}
	m.current = to
	return nil
}

// fail remembers the stage that failed, the first failure wins
func (m *stateMachine) fail() {
	if m.failedAt == 0 {
		m.failedAt = m.current
	}
}

func (m *stateMachine) String() string {
	if m.current == StateFailed {
		return fmt.Sprintf("%v(%v)", m.current, m.failedAt)
	}
	return m.current.String()
}
