package machine

import (
	"context"
	"slices"
	"sync"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
)

// Listener observes a machine. Callbacks run on the executing goroutine in
// the middle of a cycle; they must not block. A panicking listener is
// logged and skipped.
type Listener interface {
	StateEntered(ctx context.Context, state graph.StateID)
	StateExited(ctx context.Context, state graph.StateID)
	TransitionStarted(ctx context.Context, t *graph.Transition)
	TransitionEnded(ctx context.Context, t *graph.Transition)
	EventNotAccepted(ctx context.Context, evt statemachine.Event)
	MachineStarted(ctx context.Context)
	MachineStopped(ctx context.Context)
	MachineError(ctx context.Context, err error)
}

// ListenerAdapter implements Listener with no-ops. Embed it to override
// only the callbacks of interest.
type ListenerAdapter struct{}

func (ListenerAdapter) StateEntered(context.Context, graph.StateID)          {}
func (ListenerAdapter) StateExited(context.Context, graph.StateID)           {}
func (ListenerAdapter) TransitionStarted(context.Context, *graph.Transition) {}
func (ListenerAdapter) TransitionEnded(context.Context, *graph.Transition)   {}
func (ListenerAdapter) EventNotAccepted(context.Context, statemachine.Event) {}
func (ListenerAdapter) MachineStarted(context.Context)                       {}
func (ListenerAdapter) MachineStopped(context.Context)                       {}
func (ListenerAdapter) MachineError(context.Context, error)                  {}

// ContextEventKind names a published lifecycle notification.
type ContextEventKind string

const (
	ContextStateEntered      ContextEventKind = "state_entered"
	ContextStateExited       ContextEventKind = "state_exited"
	ContextTransitionStarted ContextEventKind = "transition_started"
	ContextTransitionEnded   ContextEventKind = "transition_ended"
	ContextEventNotAccepted  ContextEventKind = "event_not_accepted"
	ContextMachineStarted    ContextEventKind = "machine_started"
	ContextMachineStopped    ContextEventKind = "machine_stopped"
	ContextMachineError      ContextEventKind = "machine_error"
)

// ContextEvent is the application-facing form of a listener callback.
type ContextEvent struct {
	Kind       ContextEventKind
	MachineID  string
	State      graph.StateID
	Transition string
	Source     graph.StateID
	Target     graph.StateID
	Event      *statemachine.Event
	Err        error
	OccurredAt time.Time
}

// Publisher receives context events when they are enabled.
type Publisher interface {
	Publish(ctx context.Context, evt ContextEvent)
}

type listenerSet struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (s *listenerSet) add(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *listenerSet) remove(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.listeners, l)
	if idx < 0 {
		return false
	}
	s.listeners = slices.Delete(slices.Clone(s.listeners), idx, idx+1)
	return true
}

func (s *listenerSet) snapshot() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listeners
}

// notify fans out to every listener, fail-open.
func (m *Machine) notify(ctx context.Context, name string, fn func(Listener)) {
	for idx, l := range m.listeners.snapshot() {
		err := statemachine.Safely("listener."+name, func() error {
			fn(l)
			return nil
		})
		if err != nil {
			m.log(ctx).Warn("listener %s failed at index=%d: %v", name, idx, err)
		}
	}
}

type publishingListener struct {
	machine *Machine
	pub     Publisher
}

func (p *publishingListener) publish(ctx context.Context, evt ContextEvent) {
	evt.MachineID = p.machine.ID()
	evt.OccurredAt = time.Now().UTC()
	p.pub.Publish(ctx, evt)
}

func (p *publishingListener) StateEntered(ctx context.Context, state graph.StateID) {
	p.publish(ctx, ContextEvent{Kind: ContextStateEntered, State: state})
}

func (p *publishingListener) StateExited(ctx context.Context, state graph.StateID) {
	p.publish(ctx, ContextEvent{Kind: ContextStateExited, State: state})
}

func (p *publishingListener) TransitionStarted(ctx context.Context, t *graph.Transition) {
	p.publish(ctx, ContextEvent{Kind: ContextTransitionStarted, Transition: t.ID, Source: t.Source, Target: t.Target})
}

func (p *publishingListener) TransitionEnded(ctx context.Context, t *graph.Transition) {
	p.publish(ctx, ContextEvent{Kind: ContextTransitionEnded, Transition: t.ID, Source: t.Source, Target: t.Target})
}

func (p *publishingListener) EventNotAccepted(ctx context.Context, evt statemachine.Event) {
	cp := evt.Clone()
	p.publish(ctx, ContextEvent{Kind: ContextEventNotAccepted, Event: &cp})
}

func (p *publishingListener) MachineStarted(ctx context.Context) {
	p.publish(ctx, ContextEvent{Kind: ContextMachineStarted})
}

func (p *publishingListener) MachineStopped(ctx context.Context) {
	p.publish(ctx, ContextEvent{Kind: ContextMachineStopped})
}

func (p *publishingListener) MachineError(ctx context.Context, err error) {
	p.publish(ctx, ContextEvent{Kind: ContextMachineError, Err: err})
}
