package machine

import (
	"slices"

	"github.com/goliatone/go-statemachine/graph"
)

// ActiveState pairs a region with its active state.
type ActiveState struct {
	Region graph.RegionID `json:"region" yaml:"region"`
	State  graph.StateID  `json:"state" yaml:"state"`
}

// Configuration is a read-only view of the active states at one instant.
type Configuration struct {
	active []ActiveState
	leaves []graph.StateID
}

// Active lists every active region with its state, outermost first.
func (c Configuration) Active() []ActiveState {
	return slices.Clone(c.active)
}

// Leaves lists the innermost active states in region order.
func (c Configuration) Leaves() []graph.StateID {
	return slices.Clone(c.leaves)
}

// States lists every active state, outermost first.
func (c Configuration) States() []graph.StateID {
	out := make([]graph.StateID, 0, len(c.active))
	for _, a := range c.active {
		out = append(out, a.State)
	}
	return out
}

func (c Configuration) IsActive(id graph.StateID) bool {
	for _, a := range c.active {
		if a.State == id {
			return true
		}
	}
	return false
}

// InRegion returns the active state of region r.
func (c Configuration) InRegion(r graph.RegionID) (graph.StateID, bool) {
	for _, a := range c.active {
		if a.Region == r {
			return a.State, true
		}
	}
	return "", false
}

func (c Configuration) IsEmpty() bool { return len(c.active) == 0 }

type regionCursor struct {
	active   graph.StateID
	terminal bool
}

// configurationLocked walks the cursors from the top-level region. Callers
// hold stateMu.
func (m *Machine) configurationLocked() Configuration {
	var cfg Configuration
	var walk func(r *graph.Region)
	walk = func(r *graph.Region) {
		cur := m.cursors[r.ID]
		if cur == nil || cur.active == "" {
			return
		}
		cfg.active = append(cfg.active, ActiveState{Region: r.ID, State: cur.active})
		s, ok := m.graph.State(cur.active)
		if !ok || !s.IsComposite() {
			cfg.leaves = append(cfg.leaves, cur.active)
			return
		}
		for _, rid := range s.Regions {
			if child, ok := m.graph.Region(rid); ok {
				walk(child)
			}
		}
	}
	walk(m.graph.Root())
	return cfg
}
