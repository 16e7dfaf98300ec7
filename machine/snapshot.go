package machine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
)

// Snapshot is the serializable form of a machine instance.
type Snapshot struct {
	MachineID     string                            `json:"machine_id" yaml:"machine_id"`
	Graph         string                            `json:"graph,omitempty" yaml:"graph,omitempty"`
	Active        []ActiveState                     `json:"active" yaml:"active"`
	ExtendedState map[string]any                    `json:"extended_state,omitempty" yaml:"extended_state,omitempty"`
	History       map[graph.RegionID]graph.StateID  `json:"history,omitempty" yaml:"history,omitempty"`
	Joins         map[graph.StateID][]graph.StateID `json:"joins,omitempty" yaml:"joins,omitempty"`
	Deferred      []statemachine.Event              `json:"deferred,omitempty" yaml:"deferred,omitempty"`
	Complete      bool                              `json:"complete,omitempty" yaml:"complete,omitempty"`
}

// Snapshot captures the machine. Taken from another goroutine while a
// cycle runs it reflects the configuration at that instant.
func (m *Machine) Snapshot() Snapshot {
	m.stateMu.RLock()
	cfg := m.configurationLocked()
	deferred := make([]statemachine.Event, 0, len(m.deferred))
	for _, evt := range m.deferred {
		deferred = append(deferred, evt.Clone())
	}
	complete := m.complete
	m.stateMu.RUnlock()

	snap := Snapshot{
		MachineID:     m.id,
		Graph:         m.graph.ID(),
		Active:        cfg.Active(),
		ExtendedState: m.extended.Variables(),
		History:       m.history.Entries(),
		Joins:         m.joins.Pending(),
		Complete:      complete,
	}
	if len(deferred) > 0 {
		snap.Deferred = deferred
	}
	return snap
}

// Restore installs snap on a machine that is not running. Entry actions are
// not run. A snapshot with an active configuration leaves the machine
// ready; one without only restores extended state and history.
func (m *Machine) Restore(ctx context.Context, snap Snapshot) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.inCycle(ctx) {
		return statemachine.CloneError(statemachine.ErrIllegalState, "restore called from inside a cycle", nil, m.meta())
	}

	if !m.processing.TryLock() {
		return errCycleInFlight(m, "restore")
	}
	defer m.processing.Unlock()

	if m.Status() == StatusReady {
		return statemachine.CloneError(statemachine.ErrIllegalState,
			fmt.Sprintf("machine %s must be stopped before restoring", m.id), nil, m.meta())
	}
	if err := m.validateSnapshot(snap); err != nil {
		return err
	}

	cursors := make(map[graph.RegionID]*regionCursor, len(snap.Active))
	for _, a := range snap.Active {
		s, _ := m.graph.State(a.State)
		cursors[a.Region] = &regionCursor{active: a.State, terminal: s.Kind == graph.KindEnd}
	}

	m.stateMu.Lock()
	m.cursors = cursors
	m.deferred = nil
	for _, evt := range snap.Deferred {
		m.deferred = append(m.deferred, evt.Clone())
	}
	m.complete = snap.Complete
	m.stateMu.Unlock()

	m.extended.Load(snap.ExtendedState)
	m.history.Load(snap.History)
	m.joins.Load(snap.Joins)
	m.queue.clear()

	if len(snap.Active) == 0 {
		return nil
	}

	cctx := withCycle(ctx, m)
	m.status.Store(int32(StatusReady))
	m.log(cctx).Info("state machine restored")
	m.notify(cctx, "MachineStarted", func(l Listener) { l.MachineStarted(cctx) })
	return nil
}

// validateSnapshot checks that snap describes a legal configuration of
// this graph: the top-level region is active, every active composite has
// all its regions active and no region is active without its parent.
func (m *Machine) validateSnapshot(snap Snapshot) error {
	var issues []string
	fail := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	active := make(map[graph.RegionID]graph.StateID, len(snap.Active))
	for _, a := range snap.Active {
		s, ok := m.graph.State(a.State)
		switch {
		case !ok:
			fail("unknown state %s", a.State)
			continue
		case s.Region != a.Region:
			fail("state %s does not belong to region %s", a.State, a.Region)
			continue
		case s.Kind.IsPseudo() && s.Kind != graph.KindEnd:
			fail("state %s is a %s pseudostate", a.State, s.Kind)
			continue
		}
		if _, dup := active[a.Region]; dup {
			fail("region %s has more than one active state", a.Region)
			continue
		}
		active[a.Region] = a.State
	}

	if len(snap.Active) > 0 {
		if _, ok := active[m.graph.Root().ID]; !ok {
			fail("top-level region is not active")
		}
	}
	for rid, sid := range active {
		r, ok := m.graph.Region(rid)
		if !ok {
			fail("unknown region %s", rid)
			continue
		}
		if !r.IsRoot() {
			if parent, ok := active[m.regionOf(r.Parent)]; !ok || parent != r.Parent {
				fail("region %s is active but its parent %s is not", rid, r.Parent)
			}
		}
		if s, _ := m.graph.State(sid); s.IsComposite() {
			for _, child := range s.Regions {
				if _, ok := active[child]; !ok {
					fail("composite %s is active but region %s is not", sid, child)
				}
			}
		}
	}

	for rid, sid := range snap.History {
		s, ok := m.graph.State(sid)
		if !ok || s.Region != rid {
			fail("history entry %s=%s does not match the graph", rid, sid)
		}
	}
	for join, sources := range snap.Joins {
		valid := m.graph.JoinSources(join)
		if len(valid) == 0 {
			fail("unknown join %s", join)
			continue
		}
		for _, src := range sources {
			if !slices.Contains(valid, src) {
				fail("join %s has no source %s", join, src)
			}
		}
	}

	if len(issues) == 0 {
		return nil
	}
	slices.Sort(issues)
	return statemachine.CloneError(
		statemachine.ErrSnapshotMismatch,
		fmt.Sprintf("snapshot of %s does not match graph %s: %v", snap.MachineID, m.graph.ID(), issues),
		nil,
		m.meta(map[string]any{"issues": issues}),
	)
}

func (m *Machine) regionOf(id graph.StateID) graph.RegionID {
	if s, ok := m.graph.State(id); ok {
		return s.Region
	}
	return ""
}

// Equal reports whether two snapshots describe the same machine state,
// ignoring the machine ID.
func (s Snapshot) Equal(other Snapshot) bool {
	return slices.Equal(s.Active, other.Active) &&
		maps.EqualFunc(s.ExtendedState, other.ExtendedState, sameValue) &&
		maps.Equal(s.History, other.History) &&
		maps.EqualFunc(s.Joins, other.Joins, slices.Equal[[]graph.StateID]) &&
		s.Complete == other.Complete &&
		slices.EqualFunc(s.Deferred, other.Deferred, sameEvent)
}

// sameValue compares through fmt so that numbers decoded from JSON match
// the ints they were encoded from.
func sameValue(a, b any) bool { return fmt.Sprint(a) == fmt.Sprint(b) }

func sameEvent(a, b statemachine.Event) bool {
	return a.Type == b.Type && maps.EqualFunc(a.Headers, b.Headers, sameValue)
}
