package machine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"github.com/goliatone/go-statemachine/runner"
	"github.com/google/uuid"
)

// Machine executes one instance of a compiled graph. Events are processed
// one run-to-completion cycle at a time by whichever caller wins the
// processing lock; other callers enqueue and return.
type Machine struct {
	id     string
	graph  *graph.Graph
	logger statemachine.Logger

	listeners listenerSet
	extended  *statemachine.ExtendedState
	seed      map[string]any
	history   *HistoryTracker
	joins     *JoinTracker
	queue     eventQueue

	processing sync.Mutex

	stateMu  sync.RWMutex
	cursors  map[graph.RegionID]*regionCursor
	deferred []statemachine.Event
	complete bool

	status atomic.Int32

	stopRequested atomic.Bool
	waitersMu     sync.Mutex
	stopWaiters   []chan struct{}

	actionTimeout time.Duration
	actions       *runner.Handler
	stoppedPolicy StoppedPolicy
	initialEvent  *statemachine.Event
	resetHistory  bool
}

// New builds a machine bound to g. The machine is uninitialized until Start.
func New(g *graph.Graph, opts ...Option) *Machine {
	m := &Machine{
		id:      uuid.NewString(),
		graph:   g,
		cursors: make(map[graph.RegionID]*regionCursor),
		history: NewHistoryTracker(),
		joins:   NewJoinTracker(g),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = statemachine.WithLoggerFields(
		statemachine.NormalizeLogger(m.logger),
		map[string]any{"machine_id": m.id, "graph": g.ID()},
	)
	m.extended = statemachine.NewExtendedState(m.seed)
	m.actions = m.actionHandler()
	return m
}

func (m *Machine) ID() string { return m.id }

func (m *Machine) Graph() *graph.Graph { return m.graph }

func (m *Machine) Status() Status { return Status(m.status.Load()) }

func (m *Machine) ExtendedState() *statemachine.ExtendedState { return m.extended }

// History exposes the history tracker. Reset clears it.
func (m *Machine) History() *HistoryTracker { return m.history }

// IsComplete reports whether the top-level region reached an End state.
func (m *Machine) IsComplete() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.complete
}

// State returns the active configuration.
func (m *Machine) State() Configuration {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.configurationLocked()
}

// Deferred returns the events currently held back.
func (m *Machine) Deferred() []statemachine.Event {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return slices.Clone(m.deferred)
}

func (m *Machine) AddListener(l Listener) { m.listeners.add(l) }

func (m *Machine) RemoveListener(l Listener) bool { return m.listeners.remove(l) }

// Start enters the top-level region and processes the internal events the
// initial entry produces. Starting a running machine is an error; a stopped
// machine can be started again.
func (m *Machine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.inCycle(ctx) {
		return statemachine.CloneError(statemachine.ErrIllegalState, "start called from inside a cycle", nil, m.meta())
	}

	if !m.processing.TryLock() {
		return errCycleInFlight(m, "start")
	}
	if m.Status() == StatusReady {
		m.processing.Unlock()
		return statemachine.CloneError(statemachine.ErrIllegalState,
			fmt.Sprintf("machine %s already started", m.id), nil, m.meta())
	}

	cctx := withCycle(ctx, m)
	m.stopRequested.Store(false)
	m.stateMu.Lock()
	m.complete = false
	m.stateMu.Unlock()
	m.status.Store(int32(StatusReady))

	m.log(cctx).Info("starting state machine")
	m.notify(cctx, "MachineStarted", func(l Listener) { l.MachineStarted(cctx) })

	st := &step{event: m.initialEvent}
	var targets []graph.StateID
	if h := m.graph.History(); h != "" {
		targets = []graph.StateID{h}
	}
	m.enterRegion(cctx, st, m.graph.Root(), targets, false)
	m.finishStep(st)

	m.drain(cctx)
	m.unlock()

	m.run(ctx)
	return nil
}

// Stop exits every active region bottom-up and marks the machine stopped.
// Stopping a machine that is not running is a no-op. When no cycle is in
// flight the stop completes before Stop returns. Otherwise, from an action,
// a listener or another goroutine, the request is recorded and honoured
// once the current cycle completes; Stopped reports when.
func (m *Machine) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.stopRequested.Store(true)
	if m.inCycle(ctx) {
		return nil
	}
	m.run(ctx)
	return nil
}

// Stopped returns a channel closed once the machine is not running. While
// the machine is ready it closes on the next stop.
func (m *Machine) Stopped() <-chan struct{} {
	ch := make(chan struct{})
	m.waitersMu.Lock()
	defer m.waitersMu.Unlock()
	if m.Status() != StatusReady {
		close(ch)
		return ch
	}
	m.stopWaiters = append(m.stopWaiters, ch)
	return ch
}

// SendEvent submits evt and reports whether it was accepted. When another
// goroutine is already processing, the event is queued and SendEvent
// reports true without waiting for it.
func (m *Machine) SendEvent(ctx context.Context, evt statemachine.Event) bool {
	accepted, _ := m.send(ctx, evt)
	return accepted
}

// Send is SendEvent returning an error instead of a flag. It fails with
// ErrMachineStopped under StoppedPolicyFail and with a validation error for
// events without a type. A not accepted event is not an error.
func (m *Machine) Send(ctx context.Context, evt statemachine.Event) error {
	_, err := m.send(ctx, evt)
	return err
}

func (m *Machine) send(ctx context.Context, evt statemachine.Event) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := evt.Validate(); err != nil {
		return false, err
	}
	if m.Status() != StatusReady {
		return false, m.rejectStopped(ctx, evt)
	}

	it := &queueItem{kind: itemExternal, event: evt.Clone()}
	m.queue.pushBack(it)
	if m.inCycle(ctx) {
		return true, nil
	}

	if !m.run(ctx) || !it.processed {
		return true, nil
	}
	return it.accepted, nil
}

func (m *Machine) rejectStopped(ctx context.Context, evt statemachine.Event) error {
	m.log(ctx).Debug("event %s dropped, machine is %s", evt.Type, m.Status())
	if m.stoppedPolicy != StoppedPolicyFail {
		return nil
	}
	return statemachine.CloneError(
		statemachine.ErrMachineStopped,
		fmt.Sprintf("machine %s is %s, event %s rejected", m.id, m.Status(), evt.Type),
		nil,
		m.meta(map[string]any{"event": string(evt.Type)}),
	)
}

// stopLocked performs the stop. Callers hold the processing lock.
func (m *Machine) stopLocked(ctx context.Context) {
	m.stopRequested.Store(false)

	if m.Status() != StatusReady {
		return
	}

	m.log(ctx).Info("stopping state machine")
	st := &step{}
	m.exitRegion(ctx, st, m.graph.Root())

	m.queue.clear()
	m.joins.Reset()
	m.stateMu.Lock()
	m.deferred = nil
	m.stateMu.Unlock()
	m.extended.Load(m.seed)
	if m.resetHistory {
		m.history.Reset()
	}

	m.status.Store(int32(StatusStopped))
	m.notify(ctx, "MachineStopped", func(l Listener) { l.MachineStopped(ctx) })
}

func errCycleInFlight(m *Machine, op string) error {
	return statemachine.CloneError(statemachine.ErrIllegalState,
		fmt.Sprintf("%s called while machine %s is processing a cycle", op, m.id), nil, m.meta())
}

// unlock releases the processing lock, then wakes Stopped waiters when the
// machine is no longer running.
func (m *Machine) unlock() {
	m.processing.Unlock()
	if m.Status() != StatusReady {
		m.releaseStopWaiters()
	}
}

func (m *Machine) releaseStopWaiters() {
	m.waitersMu.Lock()
	waiters := m.stopWaiters
	m.stopWaiters = nil
	m.waitersMu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func (m *Machine) log(ctx context.Context) statemachine.Logger {
	return m.logger.WithContext(ctx)
}

func (m *Machine) meta(extra ...map[string]any) map[string]any {
	out := map[string]any{"machine_id": m.id}
	for _, e := range extra {
		maps.Copy(out, e)
	}
	return out
}

type cycleKey struct{}

// withCycle marks ctx as belonging to the executing cycle of m so that
// re-entrant calls from actions and listeners never block on it.
func withCycle(ctx context.Context, m *Machine) context.Context {
	return context.WithValue(ctx, cycleKey{}, m)
}

func (m *Machine) inCycle(ctx context.Context) bool {
	owner, _ := ctx.Value(cycleKey{}).(*Machine)
	return owner == m
}
