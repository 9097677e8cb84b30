package tenant

import "fmt"

// State is a step in the tenant context lifecycle.
// Unresolved -> Resolving -> Resolved | Rejected. Resolved and Rejected are terminal.
type State int

const (
	StateUnresolved State = iota
	StateResolving
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateRejected
}

// lifecycle tracks a single resolution attempt.
type lifecycle struct {
	state State
}

func (l *lifecycle) advance(to State) error {
	allowed := false
	switch l.state {
	case StateUnresolved:
		allowed = to == StateResolving
	case StateResolving:
		allowed = to == StateResolved || to == StateRejected
	}
	if !allowed {
		return fmt.Errorf("tenant lifecycle: invalid transition %s -> %s", l.state, to)
	}
	l.state = to
	return nil
}
