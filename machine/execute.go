package machine

import (
	"context"
	"fmt"
	"sync/atomic"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
)

// step carries the bookkeeping of one processed event or completion.
type step struct {
	event       *statemachine.Event
	transition  *graph.Transition
	completions []graph.StateID
	changed     bool
	// aborted is set by an action timeout: remaining actions are skipped
	// and the internal events of the step are dropped.
	aborted bool
}

// plan is a compound transition after choice, join and fork resolution.
type plan struct {
	source   graph.StateID
	kind     graph.TransitionKind
	segments []*graph.Transition
	targets  []graph.StateID
}

func (m *Machine) fire(ctx context.Context, st *step, t *graph.Transition) {
	prev := st.transition
	st.transition = t
	defer func() { st.transition = prev }()

	log := statemachine.WithLoggerFields(m.log(ctx), map[string]any{
		"transition": t.ID,
		"source":     string(t.Source),
		"target":     string(t.Target),
		"event":      string(st.eventType()),
	})

	m.notify(ctx, "TransitionStarted", func(l Listener) { l.TransitionStarted(ctx, t) })

	if t.Kind == graph.Internal {
		m.runActions(ctx, st, t.Actions, m.stateContext(st, t), "transition "+t.ID)
		log.Debug("internal transition fired")
		m.notify(ctx, "TransitionEnded", func(l Listener) { l.TransitionEnded(ctx, t) })
		return
	}

	p, ready := m.resolve(ctx, st, t)
	if ready {
		m.execute(ctx, st, p)
		log.Debug("transition fired")
	} else if p != nil {
		// join still waiting for other regions
		for _, seg := range p.segments {
			m.runActions(ctx, st, seg.Actions, m.stateContext(st, seg), "transition "+seg.ID)
		}
		log.Debug("join arrival recorded")
	}
	m.notify(ctx, "TransitionEnded", func(l Listener) { l.TransitionEnded(ctx, t) })
}

// resolve follows t through choice, join and fork pseudostates. It returns
// ready=false with a non-nil plan when a join is still waiting.
func (m *Machine) resolve(ctx context.Context, st *step, t *graph.Transition) (*plan, bool) {
	p := &plan{source: t.Source, kind: t.Kind, segments: []*graph.Transition{t}}
	limit := len(m.graph.States()) + 1

	for target, hops := t.Target, 0; ; hops++ {
		if hops > limit {
			m.fault(ctx, statemachine.CloneError(
				statemachine.ErrConfiguration,
				fmt.Sprintf("transition %s does not reach a state", t.ID),
				nil,
				m.meta(map[string]any{"transition": t.ID}),
			))
			return nil, false
		}

		s, ok := m.graph.State(target)
		if !ok {
			return nil, false
		}

		switch s.Kind {
		case graph.KindChoice:
			next := m.choose(ctx, st, s.ID)
			if next == nil {
				m.fault(ctx, statemachine.CloneError(
					statemachine.ErrNoTransition,
					fmt.Sprintf("choice %s has no enabled branch", s.ID),
					nil,
					m.meta(map[string]any{"choice": string(s.ID)}),
				))
				return nil, false
			}
			p.segments = append(p.segments, next)
			target = next.Target

		case graph.KindJoin:
			incoming := p.segments[len(p.segments)-1]
			if !m.joins.Arrive(s.ID, incoming.Source) {
				return p, false
			}
			out := m.graph.Outgoing(s.ID)[0]
			p.segments = append(p.segments, out)
			target = out.Target

		case graph.KindFork:
			for _, out := range m.graph.Outgoing(s.ID) {
				p.segments = append(p.segments, out)
				p.targets = append(p.targets, out.Target)
			}
			return p, true

		default:
			p.targets = []graph.StateID{target}
			return p, true
		}
	}
}

// choose returns the first guarded branch that passes, else the default.
func (m *Machine) choose(ctx context.Context, st *step, choice graph.StateID) *graph.Transition {
	var fallback *graph.Transition
	for _, t := range m.graph.Outgoing(choice) {
		if t.Guard == nil {
			if fallback == nil {
				fallback = t
			}
			continue
		}
		if m.evalGuard(ctx, t, m.stateContext(st, t)) {
			return t
		}
	}
	return fallback
}

// execute exits the scope of p bottom-up, runs the transition actions and
// enters the targets top-down.
func (m *Machine) execute(ctx context.Context, st *step, p *plan) {
	scope := m.transitionScope(p)
	for _, rid := range scope {
		if r, ok := m.graph.Region(rid); ok {
			m.exitRegion(ctx, st, r)
		}
	}
	for _, seg := range p.segments {
		m.runActions(ctx, st, seg.Actions, m.stateContext(st, seg), "transition "+seg.ID)
	}
	for _, rid := range scope {
		if r, ok := m.graph.Region(rid); ok {
			m.enterRegion(ctx, st, r, p.targets, false)
		}
	}
	st.changed = true
}

// transitionScope returns the regions whose active subtree p replaces: the
// innermost region enclosing both source and targets, or for local
// transitions the regions inside the containing composite.
func (m *Machine) transitionScope(p *plan) []graph.RegionID {
	g := m.graph

	if p.kind == graph.Local {
		src, _ := g.State(p.source)
		if src.IsComposite() && m.allInside(p.targets, p.source) {
			var out []graph.RegionID
			for _, rid := range src.Regions {
				for _, t := range p.targets {
					if g.InRegion(t, rid) {
						out = append(out, rid)
						break
					}
				}
			}
			return out
		}
		if len(p.targets) == 1 {
			tgt, _ := g.State(p.targets[0])
			if tgt.IsComposite() && g.IsDescendant(p.source, tgt.ID) {
				for _, rid := range tgt.Regions {
					if g.InRegion(p.source, rid) {
						return []graph.RegionID{rid}
					}
				}
			}
		}
	}

	for _, rid := range g.RegionPath(p.source) {
		all := true
		for _, t := range p.targets {
			if !g.InRegion(t, rid) {
				all = false
				break
			}
		}
		if all {
			return []graph.RegionID{rid}
		}
	}
	return []graph.RegionID{g.Root().ID}
}

func (m *Machine) allInside(targets []graph.StateID, ancestor graph.StateID) bool {
	for _, t := range targets {
		if !m.graph.IsDescendant(t, ancestor) {
			return false
		}
	}
	return len(targets) > 0
}

// enterRegion activates r. Targets inside r steer the entry; otherwise the
// region is restored from history when deep is set, else entered through
// its initial transition.
func (m *Machine) enterRegion(ctx context.Context, st *step, r *graph.Region, targets []graph.StateID, deep bool) {
	var inside []graph.StateID
	for _, t := range targets {
		if m.graph.InRegion(t, r.ID) {
			inside = append(inside, t)
		}
	}

	if len(inside) > 0 {
		child, _ := m.graph.State(m.graph.ChildOf(r.ID, inside[0]))
		if child.Kind.IsHistory() {
			m.enterHistory(ctx, st, r, child)
			return
		}
		nested := make([]graph.StateID, 0, len(inside))
		for _, t := range inside {
			if t != child.ID {
				nested = append(nested, t)
			}
		}
		m.enterState(ctx, st, child, nested, false)
		return
	}

	if deep {
		if rec, ok := m.history.Get(r.ID); ok {
			if s, ok := m.graph.State(rec); ok {
				m.enterState(ctx, st, s, nil, true)
				return
			}
		}
	}
	m.enterInitial(ctx, st, r)
}

func (m *Machine) enterHistory(ctx context.Context, st *step, r *graph.Region, h *graph.State) {
	deep := h.Kind == graph.KindDeepHistory
	if rec, ok := m.history.Get(r.ID); ok {
		if s, ok := m.graph.State(rec); ok && s.Region == r.ID {
			m.enterState(ctx, st, s, nil, deep)
			return
		}
	}
	if outs := m.graph.Outgoing(h.ID); len(outs) > 0 {
		def := outs[0]
		m.runActions(ctx, st, def.Actions, m.stateContext(st, def), "history "+string(h.ID))
		if m.graph.InRegion(def.Target, r.ID) && def.Target != h.ID {
			m.enterRegion(ctx, st, r, []graph.StateID{def.Target}, false)
			return
		}
	}
	m.enterInitial(ctx, st, r)
}

func (m *Machine) enterInitial(ctx context.Context, st *step, r *graph.Region) {
	init := r.Initial
	m.runActions(ctx, st, init.Actions, m.stateContext(st, init), "initial "+string(r.ID))
	if s, ok := m.graph.State(init.Target); ok {
		m.enterState(ctx, st, s, nil, false)
	}
}

func (m *Machine) enterState(ctx context.Context, st *step, s *graph.State, nested []graph.StateID, deep bool) {
	m.stateMu.Lock()
	cur := m.cursors[s.Region]
	if cur == nil {
		cur = &regionCursor{}
		m.cursors[s.Region] = cur
	}
	cur.active = s.ID
	cur.terminal = s.Kind == graph.KindEnd
	m.stateMu.Unlock()
	st.changed = true

	m.runActions(ctx, st, s.Entry, m.stateContext(st, nil), "entry "+string(s.ID))
	m.log(ctx).Trace("entered %s", s.ID)
	m.notify(ctx, "StateEntered", func(l Listener) { l.StateEntered(ctx, s.ID) })

	switch {
	case s.IsComposite():
		for _, rid := range s.Regions {
			if r, ok := m.graph.Region(rid); ok {
				m.enterRegion(ctx, st, r, nested, deep)
			}
		}
	case s.Kind == graph.KindEnd:
		m.regionEnded(ctx, st, s.Region)
	default:
		st.completions = append(st.completions, s.ID)
	}
}

// regionEnded runs when a region rests in an End state.
func (m *Machine) regionEnded(ctx context.Context, st *step, rid graph.RegionID) {
	r, ok := m.graph.Region(rid)
	if !ok {
		return
	}
	if r.IsRoot() {
		m.stateMu.Lock()
		m.complete = true
		m.stateMu.Unlock()
		m.log(ctx).Info("state machine reached its final state")
		return
	}
	if m.compositeComplete(r.Parent) {
		st.completions = append(st.completions, r.Parent)
	}
}

// exitRegion exits the active subtree of r and records its history.
func (m *Machine) exitRegion(ctx context.Context, st *step, r *graph.Region) {
	m.stateMu.RLock()
	var active graph.StateID
	if cur := m.cursors[r.ID]; cur != nil {
		active = cur.active
	}
	m.stateMu.RUnlock()
	if active == "" {
		return
	}

	s, ok := m.graph.State(active)
	if !ok {
		return
	}
	if s.Kind != graph.KindEnd {
		m.history.Record(r.ID, active)
	}
	m.exitState(ctx, st, s)
}

func (m *Machine) exitState(ctx context.Context, st *step, s *graph.State) {
	if s.IsComposite() {
		for _, rid := range s.Regions {
			if r, ok := m.graph.Region(rid); ok {
				m.exitRegion(ctx, st, r)
			}
		}
	}

	m.runActions(ctx, st, s.Exit, m.stateContext(st, nil), "exit "+string(s.ID))

	m.stateMu.Lock()
	if cur := m.cursors[s.Region]; cur != nil && cur.active == s.ID {
		cur.active = ""
		cur.terminal = false
	}
	m.stateMu.Unlock()
	st.changed = true

	m.joins.Withdraw(s.ID)
	m.log(ctx).Trace("exited %s", s.ID)
	m.notify(ctx, "StateExited", func(l Listener) { l.StateExited(ctx, s.ID) })
}

// runActions runs one batch. A failing action skips the rest of the batch;
// a timed out action aborts the step.
func (m *Machine) runActions(ctx context.Context, st *step, actions []graph.Action, sc *graph.StateContext, label string) {
	for idx, action := range actions {
		if st.aborted {
			return
		}
		if action == nil {
			continue
		}
		err := m.invoke(ctx, action, sc)
		if err == nil {
			continue
		}

		meta := m.meta(map[string]any{"action": label, "index": idx})
		if statemachine.IsCode(err, statemachine.ErrCodeActionTimeout) {
			st.aborted = true
			m.log(ctx).Error("%s action %d timed out, aborting cycle", label, idx)
			m.fault(ctx, statemachine.CloneError(statemachine.ErrActionTimeout,
				fmt.Sprintf("%s action %d timed out", label, idx), err, meta))
			return
		}
		m.fault(ctx, statemachine.CloneError(statemachine.ErrActionExecution,
			fmt.Sprintf("%s action %d failed", label, idx), err, meta))
		return
	}
}

// invoke runs one action. A bounded action works on a copy of the extended
// state that is merged back only when the action returned within its bound,
// so an abandoned action cannot write into later cycles.
func (m *Machine) invoke(ctx context.Context, action graph.Action, sc *graph.StateContext) error {
	if m.actions == nil {
		return statemachine.Safely("action", func() error {
			return action(ctx, sc)
		})
	}

	view := *sc
	view.Extended = statemachine.NewExtendedState(sc.Extended.Variables())
	var returned atomic.Bool
	err := m.actions.Run(ctx, func(ctx context.Context) error {
		defer returned.Store(true)
		return action(ctx, &view)
	})
	if !returned.Load() || statemachine.IsCode(err, statemachine.ErrCodeActionTimeout) {
		return err
	}
	sc.Extended.Load(view.Extended.Variables())
	return err
}

// evalGuard treats a failing or panicking guard as false.
func (m *Machine) evalGuard(ctx context.Context, t *graph.Transition, sc *graph.StateContext) bool {
	if t.Guard == nil {
		return true
	}
	var enabled bool
	err := statemachine.Safely("guard", func() error {
		var gerr error
		enabled, gerr = t.Guard(ctx, sc)
		return gerr
	})
	if err != nil {
		m.fault(ctx, statemachine.CloneError(statemachine.ErrGuardEvaluation,
			fmt.Sprintf("guard of transition %s failed", t.ID), err,
			m.meta(map[string]any{"transition": t.ID})))
		return false
	}
	return enabled
}

func (m *Machine) fault(ctx context.Context, err error) {
	m.log(ctx).Warn("%v", err)
	m.notify(ctx, "MachineError", func(l Listener) { l.MachineError(ctx, err) })
}

// stateContext builds the context for a guard or action. t defaults to the
// transition currently firing.
func (m *Machine) stateContext(st *step, t *graph.Transition) *graph.StateContext {
	sc := &graph.StateContext{
		MachineID: m.id,
		Event:     st.event,
		Extended:  m.extended,
	}
	if t == nil {
		t = st.transition
	}
	if t != nil {
		sc.Transition = t
		sc.Source = t.Source
		sc.Target = t.Target
	}
	return sc
}

func (st *step) eventType() statemachine.EventType {
	if st.event == nil {
		return ""
	}
	return st.event.Type
}
