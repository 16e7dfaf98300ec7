package graph

import statemachine "github.com/goliatone/go-statemachine"

// Definition is the plain description Compile turns into a Graph.
//
// The top-level region is either declared in Regions (empty Parent) or
// implied by Initial/InitialActions. States with an empty Region belong to
// the top-level region.
type Definition struct {
	ID             string
	Initial        StateID
	InitialActions []Action
	// History names a top-level history pseudostate. When set, Start enters
	// the top-level region through it.
	History     StateID
	Regions     []RegionDef
	States      []StateDef
	Transitions []TransitionDef
}

// StateDef declares a state or pseudostate.
type StateDef struct {
	ID     StateID
	Kind   Kind
	Region RegionID
	// Initial is a shortcut for a composite with one region whose ID is the
	// state ID.
	Initial        StateID
	InitialActions []Action
	Entry          []Action
	Exit           []Action
	Deferred       []statemachine.EventType
}

// RegionDef declares a region owned by Parent, or the top-level region
// when Parent is empty.
type RegionDef struct {
	ID             RegionID
	Parent         StateID
	Initial        StateID
	InitialActions []Action
}

type TransitionDef struct {
	ID      string
	Source  StateID
	Target  StateID
	Event   statemachine.EventType
	Guard   Guard
	Actions []Action
	Kind    TransitionKind
}
