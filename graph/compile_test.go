package graph

import (
	"context"
	"testing"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysTrue(context.Context, *StateContext) (bool, error) { return true, nil }

func orthogonalDefinition() Definition {
	return Definition{
		ID:      "orthogonal",
		Initial: "SI",
		Regions: []RegionDef{
			{ID: "S2.a", Parent: "S2", Initial: "S20"},
			{ID: "S2.b", Parent: "S2", Initial: "S30"},
		},
		States: []StateDef{
			{ID: "SI"},
			{ID: "S2"},
			{ID: "S20", Region: "S2.a"},
			{ID: "S21", Region: "S2.a"},
			{ID: "S30", Region: "S2.b"},
			{ID: "S31", Region: "S2.b"},
			{ID: "F", Kind: KindFork},
			{ID: "J", Kind: KindJoin},
			{ID: "S3"},
		},
		Transitions: []TransitionDef{
			{Source: "SI", Target: "F", Event: "E1"},
			{Source: "F", Target: "S20"},
			{Source: "F", Target: "S30"},
			{Source: "S20", Target: "S21", Event: "E2"},
			{Source: "S30", Target: "S31", Event: "E3"},
			{Source: "S21", Target: "J"},
			{Source: "S31", Target: "J"},
			{Source: "J", Target: "S3"},
		},
	}
}

func TestCompileBuildsArena(t *testing.T) {
	g, err := Compile(orthogonalDefinition())
	require.NoError(t, err)

	assert.Equal(t, RootRegion, g.Root().ID)
	assert.Equal(t, []StateID{"SI", "S2", "F", "J", "S3"}, g.Root().States)

	s2, ok := g.State("S2")
	require.True(t, ok)
	assert.Equal(t, KindComposite, s2.Kind)
	assert.Equal(t, []RegionID{"S2.a", "S2.b"}, s2.Regions)

	assert.Equal(t, StateID("S2"), g.Parent("S21"))
	assert.Equal(t, []StateID{"S2"}, g.Ancestors("S31"))
	assert.True(t, g.IsDescendant("S21", "S2"))
	assert.False(t, g.IsDescendant("S2", "S2"))
	assert.Equal(t, StateID("S2"), g.ChildOf(RootRegion, "S30"))
	assert.Equal(t, []RegionID{"S2.b", RootRegion}, g.RegionPath("S31"))

	assert.ElementsMatch(t, []StateID{"S21", "S31"}, g.JoinSources("J"))
	assert.Equal(t, []StateID{"J"}, g.JoinsOf("S21"))

	region, ok := g.Region("S2.a")
	require.True(t, ok)
	require.NotNil(t, region.Initial)
	assert.Equal(t, StateID("S20"), region.Initial.Target)
	assert.Equal(t, KindInitial, mustState(t, g, region.Initial.Source).Kind)
}

func TestCompileInitialShortcut(t *testing.T) {
	g, err := Compile(Definition{
		Initial: "P",
		States: []StateDef{
			{ID: "P", Initial: "A"},
			{ID: "A", Region: "P"},
			{ID: "H", Kind: KindDeepHistory, Region: "P"},
		},
	})
	require.NoError(t, err)

	p := mustState(t, g, "P")
	assert.True(t, p.IsComposite())
	assert.Equal(t, []RegionID{"P"}, p.Regions)
}

func TestCompileRejectsInvalidGraphs(t *testing.T) {
	cases := []struct {
		name  string
		def   Definition
		issue string
	}{
		{
			name:  "missing initial",
			def:   Definition{States: []StateDef{{ID: "A"}}},
			issue: "region root has no initial state",
		},
		{
			name: "dangling target",
			def: Definition{
				Initial:     "A",
				States:      []StateDef{{ID: "A"}},
				Transitions: []TransitionDef{{Source: "A", Target: "B", Event: "E"}},
			},
			issue: `unknown target "B"`,
		},
		{
			name: "initial outside region",
			def: Definition{
				Initial: "A",
				Regions: []RegionDef{{ID: "P.r", Parent: "P", Initial: "A"}},
				States:  []StateDef{{ID: "A"}, {ID: "P"}, {ID: "B", Region: "P.r"}},
			},
			issue: "initial state A belongs to region root",
		},
		{
			name: "choice without default",
			def: Definition{
				Initial: "A",
				States:  []StateDef{{ID: "A"}, {ID: "B"}, {ID: "C", Kind: KindChoice}},
				Transitions: []TransitionDef{
					{Source: "A", Target: "C", Event: "E"},
					{Source: "C", Target: "B", Guard: alwaysTrue},
				},
			},
			issue: "choice C needs exactly one unguarded default transition",
		},
		{
			name: "end with outgoing",
			def: Definition{
				Initial:     "A",
				States:      []StateDef{{ID: "A"}, {ID: "X", Kind: KindEnd}},
				Transitions: []TransitionDef{{Source: "X", Target: "A", Event: "E"}},
			},
			issue: "end state X cannot have outgoing transitions",
		},
		{
			name: "internal with other target",
			def: Definition{
				Initial:     "A",
				States:      []StateDef{{ID: "A"}, {ID: "B"}},
				Transitions: []TransitionDef{{Source: "A", Target: "B", Event: "E", Kind: Internal}},
			},
			issue: "internal transition must target its source",
		},
		{
			name: "event on pseudostate",
			def: Definition{
				Initial: "A",
				States:  []StateDef{{ID: "A"}, {ID: "C", Kind: KindChoice}},
				Transitions: []TransitionDef{
					{Source: "A", Target: "C", Event: "E"},
					{Source: "C", Target: "A", Event: "X"},
				},
			},
			issue: "choice pseudostate C cannot be left on an event",
		},
		{
			name: "duplicate state",
			def: Definition{
				Initial: "A",
				States:  []StateDef{{ID: "A"}, {ID: "A"}},
			},
			issue: "duplicate state A",
		},
		{
			name: "unknown history",
			def: Definition{
				Initial: "A",
				History: "H",
				States:  []StateDef{{ID: "A"}},
			},
			issue: "unknown history state H",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.def)
			require.Error(t, err)
			assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeConfiguration))
			assert.Contains(t, err.Error(), tc.issue)
		})
	}
}

func TestCompileForkTargetsMustBeOrthogonal(t *testing.T) {
	def := orthogonalDefinition()
	def.Transitions[2] = TransitionDef{Source: "F", Target: "S21"}

	_, err := Compile(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fork F: S20 and S21 are in the same region S2.a of S2")

	def = orthogonalDefinition()
	def.Transitions[2] = TransitionDef{Source: "F", Target: "S3"}

	_, err = Compile(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not share an enclosing composite state")
}

func TestCompileJoinNeedsSingleOutgoing(t *testing.T) {
	def := orthogonalDefinition()
	def.Transitions = append(def.Transitions, TransitionDef{Source: "J", Target: "SI"})

	_, err := Compile(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join J needs exactly one outgoing transition, found 2")
}

func TestKindHelpers(t *testing.T) {
	assert.False(t, KindSimple.IsPseudo())
	assert.False(t, KindComposite.IsPseudo())
	assert.True(t, KindEnd.IsPseudo())
	assert.True(t, KindDeepHistory.IsHistory())
	assert.Equal(t, "shallow_history", KindShallowHistory.String())

	k, err := ParseKind("final")
	require.NoError(t, err)
	assert.Equal(t, KindEnd, k)

	_, err = ParseKind("bogus")
	assert.Error(t, err)

	tk, err := ParseTransitionKind("LOCAL")
	require.NoError(t, err)
	assert.Equal(t, Local, tk)
}

func mustState(t *testing.T, g *Graph, id StateID) *State {
	t.Helper()
	s, ok := g.State(id)
	if !ok {
		t.Fatalf("state %s not found", id)
	}
	return s
}
