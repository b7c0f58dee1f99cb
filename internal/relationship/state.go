package relationship

import (
	"errors"
	"fmt"
	"strings"

	"github.com/f1v3nt5/poketroid/internal/outcome"
)

// State is the relationship between the viewer and another user, seen from
// the viewer's side.
type State string

const (
	StateNone            State = "none"
	StatePendingIncoming State = "pending_incoming"
	StatePendingOutgoing State = "pending_outgoing"
	StateAccepted        State = "accepted"
)

// Action is a user-initiated relationship change.
type Action string

const (
	ActionSend   Action = "send"
	ActionCancel Action = "cancel"
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionRemove Action = "remove"
)

// ErrInvalidTransition is returned when an action does not apply to the
// current state. Nothing changes and no request is sent.
var ErrInvalidTransition = errors.New("invalid relationship transition")

var transitions = map[State]map[Action]State{
	StateNone:            {ActionSend: StatePendingOutgoing},
	StatePendingOutgoing: {ActionCancel: StateNone},
	StatePendingIncoming: {ActionAccept: StateAccepted, ActionReject: StateNone},
	StateAccepted:        {ActionRemove: StateNone},
}

// Next returns the state reached by applying action in from.
func Next(from State, action Action) (State, bool) {
	to, ok := transitions[from][action]
	return to, ok
}

// Actions lists the actions available in the given state.
func Actions(from State) []Action {
	var out []Action
	for _, a := range []Action{ActionSend, ActionCancel, ActionAccept, ActionReject, ActionRemove} {
		if _, ok := transitions[from][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// ParseState decodes the status strings the service uses on its different
// endpoints. A bare "pending" carries no direction and is taken as a request
// the viewer sent.
func ParseState(value string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none", "not_friends":
		return StateNone, nil
	case "pending_incoming", "pending incoming", "request_received":
		return StatePendingIncoming, nil
	case "pending_outgoing", "pending outgoing", "pending outcoming", "request_sent", "pending":
		return StatePendingOutgoing, nil
	case "accepted", "friends":
		return StateAccepted, nil
	}
	return StateNone, fmt.Errorf("%w: unknown relationship status %q", outcome.ErrValidation, value)
}

// ParseAction validates an action name.
func ParseAction(value string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(value))); a {
	case ActionSend, ActionCancel, ActionAccept, ActionReject, ActionRemove:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown relationship action %q", outcome.ErrValidation, value)
}
