package machine

import (
	"maps"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/runner"
)

// StoppedPolicy decides what Send does with events for a machine that is
// not running.
type StoppedPolicy int

const (
	// StoppedPolicyDrop discards the event. SendEvent reports false.
	StoppedPolicyDrop StoppedPolicy = iota
	// StoppedPolicyFail makes Send return ErrMachineStopped.
	StoppedPolicyFail
)

type Option func(*Machine)

// WithID sets the machine instance ID.
func WithID(id string) Option {
	return func(m *Machine) {
		if id != "" {
			m.id = id
		}
	}
}

func WithLogger(logger statemachine.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithListener registers listeners before the machine starts.
func WithListener(listeners ...Listener) Option {
	return func(m *Machine) {
		for _, l := range listeners {
			m.listeners.add(l)
		}
	}
}

// WithContextEvents publishes every lifecycle notification to pub.
func WithContextEvents(pub Publisher) Option {
	return func(m *Machine) {
		if pub != nil {
			m.listeners.add(&publishingListener{machine: m, pub: pub})
		}
	}
}

// WithActionTimeout bounds each action invocation. A timed out action
// aborts the rest of the step it belongs to.
func WithActionTimeout(d time.Duration) Option {
	return func(m *Machine) {
		m.actionTimeout = d
	}
}

func WithStoppedPolicy(p StoppedPolicy) Option {
	return func(m *Machine) {
		m.stoppedPolicy = p
	}
}

// WithInitialEvent is exposed to entry actions run by Start.
func WithInitialEvent(evt statemachine.Event) Option {
	return func(m *Machine) {
		cp := evt.Clone()
		m.initialEvent = &cp
	}
}

// WithExtendedState seeds the extended state. Stop restores the seed.
func WithExtendedState(vars map[string]any) Option {
	return func(m *Machine) {
		m.seed = maps.Clone(vars)
	}
}

// WithHistoryReset clears recorded history on every Stop.
func WithHistoryReset(reset bool) Option {
	return func(m *Machine) {
		m.resetHistory = reset
	}
}

func (m *Machine) actionHandler() *runner.Handler {
	if m.actionTimeout <= 0 {
		return nil
	}
	return runner.NewHandler(
		runner.WithName("action"),
		runner.WithTimeout(m.actionTimeout),
		runner.WithLogger(m.logger),
	)
}
