package config

import (
	"context"
	"testing"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateContext(vars map[string]any) *graph.StateContext {
	return &graph.StateContext{Extended: statemachine.NewExtendedState(vars)}
}

func TestNamespacedRegistration(t *testing.T) {
	reg := NewActionRegistry()
	noop := func(context.Context, *graph.StateContext) error { return nil }

	require.NoError(t, reg.RegisterNamespaced("billing", "charge", noop))
	assert.Error(t, reg.RegisterNamespaced("billing", "charge", noop))
	assert.Error(t, reg.Register("", noop))

	_, err := reg.Lookup("billing::charge")
	assert.NoError(t, err)
	_, err = reg.Lookup("charge")
	assert.Error(t, err)

	reg.SetNamespacer(func(ns, id string) string { return ns + "." + id })
	require.NoError(t, reg.RegisterNamespaced("billing", "refund", noop))
	_, err = reg.Lookup("billing.refund")
	assert.NoError(t, err)

	assert.Equal(t, []string{"billing.refund", "billing::charge"}, reg.IDs())
}

func TestSplitRef(t *testing.T) {
	cases := []struct {
		ref, name, arg string
		ok             bool
	}{
		{"log", "log", "", false},
		{"set:k=v", "set", "k=v", true},
		{"ns::name", "ns::name", "", false},
		{"ns::factory:arg", "ns::factory", "arg", true},
		{"not:exists:hold", "not", "exists:hold", true},
	}
	for _, tc := range cases {
		name, arg, ok := splitRef(tc.ref)
		assert.Equal(t, tc.name, name, tc.ref)
		assert.Equal(t, tc.arg, arg, tc.ref)
		assert.Equal(t, tc.ok, ok, tc.ref)
	}
}

func TestBuiltinActions(t *testing.T) {
	reg := NewRegistries(statemachine.NopLogger{})
	sc := stateContext(map[string]any{"count": 2, "tmp": "x"})
	ctx := context.Background()

	run := func(ref string) {
		t.Helper()
		a, err := reg.Actions.Lookup(ref)
		require.NoError(t, err, ref)
		require.NoError(t, a(ctx, sc), ref)
	}

	run("set:name=widget")
	run("set:limit=10")
	run("set:enabled=true")
	run("incr:count")
	run("incr:count=5")
	run("delete:tmp")
	run("log")
	run("log:checkpoint")

	vars := sc.Extended.Variables()
	assert.Equal(t, "widget", vars["name"])
	assert.Equal(t, 10, vars["limit"])
	assert.Equal(t, true, vars["enabled"])
	assert.Equal(t, 8, vars["count"])
	assert.NotContains(t, vars, "tmp")

	for _, bad := range []string{"incr:count=many", "delete:", "set:=1", "unknown:arg"} {
		_, err := reg.Actions.Lookup(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuiltinGuards(t *testing.T) {
	reg := NewRegistries(statemachine.NopLogger{})
	sc := stateContext(map[string]any{"level": 3, "mode": "auto", "flag": true})

	cases := map[string]bool{
		"eq:mode=auto":       true,
		"eq:mode=manual":     false,
		"eq:level=3":         true,
		"eq:flag=true":       true,
		"eq:missing=1":       false,
		"gt:level=2":         true,
		"gt:level=3":         false,
		"lt:level=4":         true,
		"lt:mode=4":          false,
		"exists:mode":        true,
		"exists:missing":     false,
		"not:exists:mode":    false,
		"not:not:eq:level=3": true,
	}
	for ref, want := range cases {
		g, err := reg.Guards.Lookup(ref)
		require.NoError(t, err, ref)
		got, err := g(context.Background(), sc)
		require.NoError(t, err, ref)
		assert.Equal(t, want, got, ref)
	}

	for _, bad := range []string{"gt:level=high", "not:ghost", "exists:", "eq:novalue"} {
		_, err := reg.Guards.Lookup(bad)
		assert.Error(t, err, bad)
	}
}

func TestGuardRegistryUserGuard(t *testing.T) {
	reg := NewGuardRegistry()
	always := func(context.Context, *graph.StateContext) (bool, error) { return true, nil }

	require.NoError(t, reg.Register("always", always))
	require.NoError(t, reg.RegisterFactory("custom", func(arg string) (graph.Guard, error) { return always, nil }))
	assert.Error(t, reg.RegisterFactory("custom", nil))

	_, err := reg.Lookup("always")
	assert.NoError(t, err)
	_, err = reg.Lookup("custom:x")
	assert.NoError(t, err)
	assert.Equal(t, []string{"always", "custom:"}, reg.IDs())

	var nilReg *GuardRegistry
	_, err = nilReg.Lookup("always")
	assert.Error(t, err)
}
