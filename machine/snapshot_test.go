package machine

import (
	"context"
	"encoding/json"
	"testing"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestoreResumesJoin(t *testing.T) {
	g := compile(t, orthogonalJoin())
	m, _ := startMachine(t, orthogonalJoin(), WithExtendedState(map[string]any{"attempts": 3}))
	send(t, m, "E1")
	send(t, m, "E2")

	snap := m.Snapshot()
	assert.Equal(t, m.ID(), snap.MachineID)
	assert.Equal(t, "join", snap.Graph)
	assert.Equal(t, map[graph.StateID][]graph.StateID{"J": ids("S21")}, snap.Joins)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, snap.Equal(decoded))

	rec := &recorder{}
	restored := New(g, WithListener(rec), WithLogger(statemachine.NopLogger{}))
	require.NoError(t, restored.Restore(context.Background(), decoded))

	assert.Equal(t, StatusReady, restored.Status())
	assert.Equal(t, ids("S21", "S30"), leaves(restored))
	assert.Empty(t, rec.take(), "restore does not run entry actions")
	n, _ := restored.ExtendedState().Int("attempts")
	assert.Equal(t, 3, n)

	send(t, restored, "E3")
	assert.Equal(t, ids("S4"), leaves(restored))
}

func TestSnapshotKeepsDeferredAndHistory(t *testing.T) {
	def := historyDefinition(graph.KindShallowHistory)
	def.States[6].Deferred = []statemachine.EventType{"LATER"}
	m, _ := startMachine(t, def)
	send(t, m, "NEXT")
	send(t, m, "OUT")
	send(t, m, "LATER")

	snap := m.Snapshot()
	require.Len(t, snap.Deferred, 1)
	assert.Equal(t, graph.StateID("B"), snap.History["P"])

	other := New(m.Graph(), WithLogger(statemachine.NopLogger{}))
	require.NoError(t, other.Restore(context.Background(), snap))
	assert.Len(t, other.Deferred(), 1)

	send(t, other, "BACK")
	assert.Equal(t, ids("B1"), leaves(other))
}

func TestRestoreRequiresStoppedMachine(t *testing.T) {
	m, _ := startMachine(t, orthogonalJoin())

	err := m.Restore(context.Background(), m.Snapshot())
	require.Error(t, err)
	assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeIllegalState))

	require.NoError(t, m.Stop(context.Background()))
	assert.NoError(t, m.Restore(context.Background(), m.Snapshot()))
	assert.Equal(t, StatusStopped, m.Status(), "empty configuration leaves the machine stopped")
}

func TestRestoreRejectsMismatchedSnapshot(t *testing.T) {
	g := compile(t, orthogonalJoin())

	cases := map[string]Snapshot{
		"unknown state": {Active: []ActiveState{{Region: graph.RootRegion, State: "NOPE"}}},
		"wrong region":  {Active: []ActiveState{{Region: graph.RootRegion, State: "S20"}}},
		"missing parent": {Active: []ActiveState{
			{Region: graph.RootRegion, State: "SI"},
			{Region: "S2.a", State: "S20"},
		}},
		"missing region": {Active: []ActiveState{
			{Region: graph.RootRegion, State: "S2"},
			{Region: "S2.a", State: "S20"},
		}},
		"pseudostate": {Active: []ActiveState{{Region: graph.RootRegion, State: "J"}}},
		"unknown join source": {
			Active: []ActiveState{{Region: graph.RootRegion, State: "SI"}},
			Joins:  map[graph.StateID][]graph.StateID{"J": ids("S20")},
		},
		"bad history": {
			Active:  []ActiveState{{Region: graph.RootRegion, State: "SI"}},
			History: map[graph.RegionID]graph.StateID{"S2.a": "S30"},
		},
	}

	for name, snap := range cases {
		t.Run(name, func(t *testing.T) {
			m := New(g, WithLogger(statemachine.NopLogger{}))
			err := m.Restore(context.Background(), snap)
			require.Error(t, err)
			assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeSnapshotMismatch))
			assert.Equal(t, StatusUninitialized, m.Status())
		})
	}
}

func TestSnapshotEqualIgnoresMachineID(t *testing.T) {
	a := Snapshot{MachineID: "a", Active: []ActiveState{{Region: graph.RootRegion, State: "S1"}}}
	b := a
	b.MachineID = "b"
	assert.True(t, a.Equal(b))

	b.Complete = true
	assert.False(t, a.Equal(b))
}

func TestJoinTracker(t *testing.T) {
	g := compile(t, orthogonalJoin())
	j := NewJoinTracker(g)

	assert.False(t, j.Arrive("J", "S21"))
	assert.False(t, j.Arrive("J", "S21"), "repeated arrival from one source")
	assert.Equal(t, map[graph.StateID][]graph.StateID{"J": ids("S21")}, j.Pending())

	j.Withdraw("S21")
	assert.Empty(t, j.Pending())

	assert.False(t, j.Arrive("J", "S31"))
	assert.True(t, j.Arrive("J", "S21"))
	assert.Empty(t, j.Pending(), "a firing join starts over")

	j.Load(map[graph.StateID][]graph.StateID{"J": ids("S31"), "X": nil})
	assert.Equal(t, map[graph.StateID][]graph.StateID{"J": ids("S31")}, j.Pending())
	j.Reset()
	assert.Empty(t, j.Pending())
}

func TestHistoryTracker(t *testing.T) {
	h := NewHistoryTracker()

	_, ok := h.Get("P")
	assert.False(t, ok)

	h.Record("P", "A")
	h.Record("P", "B")
	got, ok := h.Get("P")
	require.True(t, ok)
	assert.Equal(t, graph.StateID("B"), got)

	entries := h.Entries()
	entries["P"] = "Z"
	got, _ = h.Get("P")
	assert.Equal(t, graph.StateID("B"), got, "entries is a copy")

	h.Load(map[graph.RegionID]graph.StateID{"Q": "C"})
	_, ok = h.Get("P")
	assert.False(t, ok)

	h.Reset()
	assert.Empty(t, h.Entries())
}

func TestSnapshotEqualComparesDeferredHeaders(t *testing.T) {
	base := Snapshot{
		Active:   []ActiveState{{Region: graph.RootRegion, State: "S1"}},
		Deferred: []statemachine.Event{statemachine.NewEvent("PAY", map[string]any{"amount": 10})},
	}

	same := base
	same.Deferred = []statemachine.Event{statemachine.NewEvent("PAY", map[string]any{"amount": float64(10)})}
	assert.True(t, base.Equal(same), "decoded numbers match their source")

	changed := base
	changed.Deferred = []statemachine.Event{statemachine.NewEvent("PAY", map[string]any{"amount": 25})}
	assert.False(t, base.Equal(changed))

	bare := base
	bare.Deferred = []statemachine.Event{statemachine.NewEvent("PAY")}
	assert.False(t, base.Equal(bare))
}
