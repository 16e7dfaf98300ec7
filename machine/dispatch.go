package machine

import (
	"context"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
)

// run drains the queue whenever this goroutine can take the processing
// lock. The queue is checked again after unlocking so that an event pushed
// by a goroutine that lost the race is never stranded. It reports whether
// this goroutine executed at least one drain.
func (m *Machine) run(ctx context.Context) bool {
	ran := false
	for {
		if !m.processing.TryLock() {
			return ran
		}
		ran = true
		m.drain(withCycle(ctx, m))
		m.unlock()

		if m.queue.len() == 0 && !m.stopRequested.Load() {
			return ran
		}
	}
}

// drain processes queued items until the queue is empty. A pending stop is
// honoured between cycles, never in the middle of one.
func (m *Machine) drain(ctx context.Context) {
	for {
		if m.stopRequested.Load() && m.queue.atBoundary() {
			m.stopLocked(ctx)
		}

		it, ok := m.queue.pop()
		if !ok {
			return
		}
		it.processed = true
		if m.Status() != StatusReady {
			continue
		}

		switch it.kind {
		case itemCompletion:
			m.processCompletion(ctx, it.state)
		default:
			it.accepted = m.processEvent(ctx, it.event)
		}
	}
}

// processEvent runs one event against the active configuration.
func (m *Machine) processEvent(ctx context.Context, evt statemachine.Event) bool {
	st := &step{event: &evt}

	candidates := m.selectTransitions(ctx, st)
	if len(candidates) == 0 {
		if m.defers(evt.Type) {
			m.stateMu.Lock()
			m.deferred = append(m.deferred, evt)
			m.stateMu.Unlock()
			m.log(ctx).Debug("event %s deferred", evt.Type)
			return true
		}
		m.log(ctx).Debug("event %s not accepted", evt.Type)
		m.notify(ctx, "EventNotAccepted", func(l Listener) { l.EventNotAccepted(ctx, evt) })
		return false
	}

	for _, t := range candidates {
		if st.aborted {
			break
		}
		// an earlier transition of this step may have left the source
		if !m.isActive(t.Source) {
			continue
		}
		m.fire(ctx, st, t)
	}
	m.finishStep(st)
	return true
}

// processCompletion fires the first enabled completion transition of state.
func (m *Machine) processCompletion(ctx context.Context, id graph.StateID) {
	if !m.isActive(id) {
		return
	}
	s, ok := m.graph.State(id)
	if !ok || (s.IsComposite() && !m.compositeComplete(id)) {
		return
	}

	st := &step{}
	for _, t := range m.graph.Outgoing(id) {
		if !t.IsCompletion() {
			continue
		}
		if m.evalGuard(ctx, t, m.stateContext(st, t)) {
			m.fire(ctx, st, t)
			break
		}
	}
	m.finishStep(st)
}

// selectTransitions walks outward from every active leaf and keeps the
// first enabled transition per leaf. Orthogonal leaves may each contribute
// one; a transition shared through a common ancestor is kept once.
func (m *Machine) selectTransitions(ctx context.Context, st *step) []*graph.Transition {
	evtType := st.event.Type
	guards := make(map[*graph.Transition]bool)
	selected := make(map[*graph.Transition]struct{})
	var out []*graph.Transition

	for _, leaf := range m.State().Leaves() {
	walk:
		for cur := leaf; cur != ""; cur = m.graph.Parent(cur) {
			for _, t := range m.graph.Outgoing(cur) {
				if t.Event != evtType {
					continue
				}
				enabled, seen := guards[t]
				if !seen {
					enabled = m.evalGuard(ctx, t, m.stateContext(st, t))
					guards[t] = enabled
				}
				if !enabled {
					continue
				}
				if _, dup := selected[t]; !dup {
					selected[t] = struct{}{}
					out = append(out, t)
				}
				break walk
			}
		}
	}
	return out
}

// defers reports whether any active state postpones events of type t.
func (m *Machine) defers(t statemachine.EventType) bool {
	for _, id := range m.State().States() {
		if s, ok := m.graph.State(id); ok && s.Defers(t) {
			return true
		}
	}
	return false
}

// finishStep queues what a step produced: completion events first, then
// the deferred buffer when the configuration changed. An aborted step
// drops its completion events but still releases the deferred buffer.
func (m *Machine) finishStep(st *step) {
	items := make([]*queueItem, 0, len(st.completions))
	if !st.aborted {
		for _, id := range st.completions {
			items = append(items, &queueItem{kind: itemCompletion, state: id})
		}
	}
	if st.changed {
		m.stateMu.Lock()
		deferred := m.deferred
		m.deferred = nil
		m.stateMu.Unlock()
		for _, evt := range deferred {
			items = append(items, &queueItem{kind: itemDeferred, event: evt})
		}
	}
	m.queue.pushFront(items...)
}

func (m *Machine) isActive(id graph.StateID) bool {
	s, ok := m.graph.State(id)
	if !ok {
		return false
	}
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	cur := m.cursors[s.Region]
	return cur != nil && cur.active == id
}

// compositeComplete reports whether every region of id rests in an End state.
func (m *Machine) compositeComplete(id graph.StateID) bool {
	s, ok := m.graph.State(id)
	if !ok || !s.IsComposite() {
		return false
	}
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	for _, rid := range s.Regions {
		cur := m.cursors[rid]
		if cur == nil || !cur.terminal {
			return false
		}
	}
	return true
}
