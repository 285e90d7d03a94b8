package model

import "errors"

// ErrInvalidTransition is returned by a transition method invoked from a
// state the event is not legal in. Coordinators re-check guards under the
// row lock and treat this as a silent no-op when racing a concurrent
// writer; it only surfaces to callers as a precondition failure.
var ErrInvalidTransition = errors.New("invalid state transition")

// Transition is one row of an entity's transition table: the event is
// legal from every listed source state and lands in To.
type Transition struct {
	From []string
	To   string
}

// TransitionTable maps event name to its transition row. Guards and side
// effects live on the entity methods; the table only answers "is this
// event legal here, and where does it go".
type TransitionTable map[string]Transition

func (t TransitionTable) Can(event, from string) bool {
	_, ok := t.Next(event, from)
	return ok
}

func (t TransitionTable) Next(event, from string) (string, bool) {
	tr, ok := t[event]
	if !ok {
		return "", false
	}
	for _, f := range tr.From {
		if f == from {
			return tr.To, true
		}
	}
	return "", false
}
