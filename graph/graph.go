package graph

import (
	statemachine "github.com/goliatone/go-statemachine"
)

// StateID identifies a vertex of the graph.
type StateID string

// RegionID identifies a region.
type RegionID string

// RootRegion is the ID assigned to the top-level region unless a
// definition names it.
const RootRegion RegionID = "root"

// State is a vertex. Ownership is expressed through IDs only: Region is the
// owning region, Regions the child regions of a composite.
type State struct {
	ID       StateID
	Kind     Kind
	Region   RegionID
	Regions  []RegionID
	Entry    []Action
	Exit     []Action
	Deferred map[statemachine.EventType]struct{}
}

// IsComposite reports whether the state owns regions.
func (s *State) IsComposite() bool {
	return s != nil && s.Kind == KindComposite
}

// Defers reports whether the state postpones events of type t.
func (s *State) Defers(t statemachine.EventType) bool {
	if s == nil || len(s.Deferred) == 0 {
		return false
	}
	_, ok := s.Deferred[t]
	return ok
}

// Region groups mutually exclusive sibling states.
type Region struct {
	ID     RegionID
	Parent StateID
	States []StateID
	// Initial leaves the synthesized initial pseudostate of the region.
	Initial *Transition
}

// IsRoot reports whether the region is the top-level region.
func (r *Region) IsRoot() bool {
	return r != nil && r.Parent == ""
}

// Transition is an edge. An empty Event marks a completion transition.
type Transition struct {
	ID      string
	Source  StateID
	Target  StateID
	Event   statemachine.EventType
	Guard   Guard
	Actions []Action
	Kind    TransitionKind
	order   int
}

// IsCompletion reports whether the transition fires without an event.
func (t *Transition) IsCompletion() bool {
	return t != nil && t.Event == ""
}

// Order is the declaration index of the transition.
func (t *Transition) Order() int {
	if t == nil {
		return -1
	}
	return t.order
}

// Graph is the compiled, immutable arena shared by every machine built
// from the same definition.
type Graph struct {
	id          string
	root        RegionID
	history     StateID
	states      map[StateID]*State
	stateOrder  []StateID
	regions     map[RegionID]*Region
	regionOrder []RegionID
	transitions []*Transition
	outgoing    map[StateID][]*Transition
	incoming    map[StateID][]*Transition
	joinSources map[StateID][]StateID
	sourceJoins map[StateID][]StateID
}

func (g *Graph) ID() string { return g.id }

// Root returns the top-level region.
func (g *Graph) Root() *Region { return g.regions[g.root] }

// History returns the top-level history pseudostate used on start, if any.
func (g *Graph) History() StateID { return g.history }

func (g *Graph) State(id StateID) (*State, bool) {
	s, ok := g.states[id]
	return s, ok
}

func (g *Graph) Region(id RegionID) (*Region, bool) {
	r, ok := g.regions[id]
	return r, ok
}

// States lists states in declaration order.
func (g *Graph) States() []*State {
	out := make([]*State, 0, len(g.stateOrder))
	for _, id := range g.stateOrder {
		out = append(out, g.states[id])
	}
	return out
}

// Regions lists regions in declaration order.
func (g *Graph) Regions() []*Region {
	out := make([]*Region, 0, len(g.regionOrder))
	for _, id := range g.regionOrder {
		out = append(out, g.regions[id])
	}
	return out
}

func (g *Graph) Transitions() []*Transition {
	return append([]*Transition(nil), g.transitions...)
}

// Outgoing returns the transitions leaving id in declaration order.
func (g *Graph) Outgoing(id StateID) []*Transition { return g.outgoing[id] }

func (g *Graph) Incoming(id StateID) []*Transition { return g.incoming[id] }

// JoinSources returns the states whose transitions feed the join.
func (g *Graph) JoinSources(join StateID) []StateID { return g.joinSources[join] }

// JoinsOf returns the joins fed by source.
func (g *Graph) JoinsOf(source StateID) []StateID { return g.sourceJoins[source] }

// Joins returns every join pseudostate ID.
func (g *Graph) Joins() []StateID {
	out := make([]StateID, 0, len(g.joinSources))
	for _, id := range g.stateOrder {
		if _, ok := g.joinSources[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Parent returns the composite owning the region of id, "" at top level.
func (g *Graph) Parent(id StateID) StateID {
	s, ok := g.states[id]
	if !ok {
		return ""
	}
	r, ok := g.regions[s.Region]
	if !ok {
		return ""
	}
	return r.Parent
}

// Ancestors returns the composites enclosing id, innermost first.
func (g *Graph) Ancestors(id StateID) []StateID {
	var out []StateID
	for p := g.Parent(id); p != ""; p = g.Parent(p) {
		out = append(out, p)
	}
	return out
}

// RegionPath returns the regions enclosing id, innermost first.
func (g *Graph) RegionPath(id StateID) []RegionID {
	var out []RegionID
	for s, ok := g.states[id]; ok; s, ok = g.states[g.Parent(s.ID)] {
		out = append(out, s.Region)
	}
	return out
}

// IsDescendant reports whether id is strictly nested inside ancestor.
func (g *Graph) IsDescendant(id, ancestor StateID) bool {
	for p := g.Parent(id); p != ""; p = g.Parent(p) {
		if p == ancestor {
			return true
		}
	}
	return false
}

// InRegion reports whether id is a member of region r or nested below it.
func (g *Graph) InRegion(id StateID, r RegionID) bool {
	return g.ChildOf(r, id) != ""
}

// ChildOf returns the direct member of r that is id or contains id.
func (g *Graph) ChildOf(r RegionID, id StateID) StateID {
	for s, ok := g.states[id]; ok; s, ok = g.states[g.Parent(s.ID)] {
		if s.Region == r {
			return s.ID
		}
	}
	return ""
}

// Depth is the number of composites enclosing id.
func (g *Graph) Depth(id StateID) int {
	return len(g.Ancestors(id))
}
