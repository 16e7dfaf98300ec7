package events

import (
	"context"

	"github.com/goliatone/go-statemachine/graph"
	"github.com/goliatone/go-statemachine/machine"
)

// Topic returns the routing key of evt.
//
//	state/entered/<state>
//	state/exited/<state>
//	transition/started/<source>/<target>
//	transition/ended/<source>/<target>
//	event/not_accepted/<event type>
//	machine/started, machine/stopped, machine/error
func Topic(evt machine.ContextEvent) string {
	switch evt.Kind {
	case machine.ContextStateEntered:
		return "state/entered/" + string(evt.State)
	case machine.ContextStateExited:
		return "state/exited/" + string(evt.State)
	case machine.ContextTransitionStarted:
		return "transition/started/" + string(evt.Source) + "/" + string(evt.Target)
	case machine.ContextTransitionEnded:
		return "transition/ended/" + string(evt.Source) + "/" + string(evt.Target)
	case machine.ContextEventNotAccepted:
		if evt.Event != nil {
			return "event/not_accepted/" + string(evt.Event.Type)
		}
		return "event/not_accepted"
	case machine.ContextMachineStarted:
		return "machine/started"
	case machine.ContextMachineStopped:
		return "machine/stopped"
	case machine.ContextMachineError:
		return "machine/error"
	default:
		return string(evt.Kind)
	}
}

// OnTransition runs fn when a transition from source to target ends. An
// empty source or target matches any state.
func OnTransition(b *Bus, source, target graph.StateID, fn Handler) Subscription {
	return b.Subscribe("transition/ended/"+segment(source)+"/"+segment(target), fn)
}

func OnStateEntered(b *Bus, state graph.StateID, fn Handler) Subscription {
	return b.Subscribe("state/entered/"+segment(state), fn)
}

func OnStateExited(b *Bus, state graph.StateID, fn Handler) Subscription {
	return b.Subscribe("state/exited/"+segment(state), fn)
}

// OnMachineError runs fn for every guard or action fault.
func OnMachineError(b *Bus, fn func(ctx context.Context, machineID string, err error)) Subscription {
	return b.Subscribe("machine/error", func(ctx context.Context, evt machine.ContextEvent) error {
		fn(ctx, evt.MachineID, evt.Err)
		return nil
	})
}

func segment(id graph.StateID) string {
	if id == "" {
		return "*"
	}
	return string(id)
}
