package graph

import (
	"context"

	statemachine "github.com/goliatone/go-statemachine"
)

// StateContext is handed to every guard and action.
type StateContext struct {
	MachineID string
	// Event is nil for completion steps and for the initial entry.
	Event      *statemachine.Event
	Source     StateID
	Target     StateID
	Transition *Transition
	Extended   *statemachine.ExtendedState
}

// EventType returns the triggering event type or "".
func (c *StateContext) EventType() statemachine.EventType {
	if c == nil || c.Event == nil {
		return ""
	}
	return c.Event.Type
}

// Header reads a header of the triggering event.
func (c *StateContext) Header(key string) (any, bool) {
	if c == nil || c.Event == nil {
		return nil, false
	}
	return c.Event.Header(key)
}

// Action mutates extended state or performs side effects.
type Action func(ctx context.Context, sc *StateContext) error

// Guard decides whether a transition is enabled. An error counts as false.
type Guard func(ctx context.Context, sc *StateContext) (bool, error)
