package config

import (
	"context"
	"testing"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"github.com/goliatone/go-statemachine/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderYAML = `
id: order
initial: cart
action_timeout: 250ms
variables:
  items: 0
states:
  - id: cart
    defer: [PAY]
  - id: checkout
    initial: payment
    entry: ["set:status=checking_out"]
  - id: payment
    region: checkout
  - id: paid
    region: checkout
    entry: [log]
  - id: shipped
    kind: final
transitions:
  - from: cart
    event: ADD
    kind: internal
    actions: ["incr:items"]
  - id: to-checkout
    from: cart
    to: checkout
    event: CHECKOUT
    guard: "gt:items=0"
  - from: payment
    to: paid
    event: PAY
    actions: ["set:paid=true"]
  - from: paid
    to: shipped
    guard: "not:exists:hold"
`

func TestParseAndBuildRunsMachine(t *testing.T) {
	cfg, err := Parse([]byte(orderYAML))
	require.NoError(t, err)
	assert.Equal(t, "order", cfg.ID)
	assert.Len(t, cfg.States, 5)

	g, err := Build(cfg, NewRegistries(statemachine.NopLogger{}))
	require.NoError(t, err)
	assert.Equal(t, "order", g.ID())

	opts, err := Options(cfg)
	require.NoError(t, err)
	opts = append(opts, machine.WithLogger(statemachine.NopLogger{}))
	m := machine.New(g, opts...)
	require.NoError(t, m.Start(context.Background()))

	send := func(evt statemachine.EventType) bool {
		return m.SendEvent(context.Background(), statemachine.NewEvent(evt))
	}

	assert.False(t, send("CHECKOUT"), "guard needs at least one item")
	assert.True(t, send("PAY"), "deferred while in cart")
	assert.True(t, send("ADD"))
	assert.True(t, send("CHECKOUT"))

	assert.Equal(t, []graph.StateID{"shipped"}, m.State().Leaves())
	assert.True(t, m.IsComplete())

	status, _ := m.ExtendedState().Get("status")
	assert.Equal(t, "checking_out", status)
	paid, _ := m.ExtendedState().Get("paid")
	assert.Equal(t, true, paid)
	items, _ := m.ExtendedState().Int("items")
	assert.Equal(t, 1, items)
}

func TestParseAcceptsJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"id":"switch","initial":"off","states":[{"id":"off"},{"id":"on"}],
		"transitions":[{"from":"off","to":"on","event":"FLIP"},{"from":"on","to":"off","event":"FLIP"}]}`))
	require.NoError(t, err)

	g, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, g.Transitions(), 2)
}

func TestValidateCollectsIssues(t *testing.T) {
	cfg := MachineConfig{
		ID:            "broken",
		ActionTimeout: "soon",
		States:        []StateConfig{{ID: ""}, {ID: "x", Kind: "bogus"}},
		Regions:       []RegionConfig{{ID: "r"}},
		Transitions:   []TransitionConfig{{To: "x", Kind: "sideways"}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeConfiguration))
	for _, want := range []string{
		"initial state is required",
		"states[0]: id is required",
		`unknown state kind "bogus"`,
		"regions[0]: id and parent are required",
		"transitions[0]: from is required",
		`unknown transition kind "sideways"`,
		`action_timeout "soon"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestBuildReportsUnresolvedReferences(t *testing.T) {
	cfg := MachineConfig{
		ID:      "refs",
		Initial: "a",
		States:  []StateConfig{{ID: "a", Entry: []string{"missing"}}, {ID: "b"}},
		Transitions: []TransitionConfig{
			{From: "a", To: "b", Event: "GO", Guard: "nope", Actions: []string{"set:novalue"}},
		},
	}

	_, err := Build(cfg, NewRegistries(statemachine.NopLogger{}))
	require.Error(t, err)
	assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "action missing not found")
	assert.Contains(t, err.Error(), "guard nope not found")
	assert.Contains(t, err.Error(), `expected key=value, got "novalue"`)
}

func TestBuildSurfacesCompileErrors(t *testing.T) {
	cfg := MachineConfig{
		ID:          "dangling",
		Initial:     "a",
		States:      []StateConfig{{ID: "a"}},
		Transitions: []TransitionConfig{{From: "a", To: "ghost", Event: "GO"}},
	}

	_, err := Build(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target "ghost"`)
}

func TestOptionsRejectsBadTimeout(t *testing.T) {
	_, err := Options(MachineConfig{ActionTimeout: "-"})
	assert.Error(t, err)

	opts, err := Options(MachineConfig{})
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(orderYAML))
	require.NoError(t, err)

	out, err := Marshal(cfg)
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Transitions, again.Transitions)
}
