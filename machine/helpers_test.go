package machine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"github.com/stretchr/testify/require"
)

// recorder keeps enter/exit notifications and errors in order.
type recorder struct {
	ListenerAdapter
	mu          sync.Mutex
	trail       []string
	errs        []error
	notAccepted []statemachine.EventType
	started     int
	stopped     int
}

func (r *recorder) add(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trail = append(r.trail, entry)
}

func (r *recorder) StateEntered(_ context.Context, s graph.StateID) { r.add("enter:" + string(s)) }
func (r *recorder) StateExited(_ context.Context, s graph.StateID)  { r.add("exit:" + string(s)) }

func (r *recorder) EventNotAccepted(_ context.Context, evt statemachine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notAccepted = append(r.notAccepted, evt.Type)
}

func (r *recorder) MachineStarted(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recorder) MachineStopped(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *recorder) MachineError(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// take returns the trail and resets it.
func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.trail
	r.trail = nil
	return out
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) counts() (started, stopped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.stopped
}

func compile(t *testing.T, def graph.Definition) *graph.Graph {
	t.Helper()
	g, err := graph.Compile(def)
	require.NoError(t, err)
	return g
}

// startMachine builds, starts and clears the recorder of a machine.
func startMachine(t *testing.T, def graph.Definition, opts ...Option) (*Machine, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithListener(rec), WithLogger(statemachine.NopLogger{})}, opts...)
	m := New(compile(t, def), opts...)
	require.NoError(t, m.Start(context.Background()))
	rec.take()
	return m, rec
}

func send(t *testing.T, m *Machine, evt statemachine.EventType) bool {
	t.Helper()
	return m.SendEvent(context.Background(), statemachine.NewEvent(evt))
}

func leaves(m *Machine) []graph.StateID {
	return m.State().Leaves()
}

func ids(values ...string) []graph.StateID {
	out := make([]graph.StateID, 0, len(values))
	for _, v := range values {
		out = append(out, graph.StateID(v))
	}
	return out
}

// counterAction increments an integer variable.
func counterAction(key string) graph.Action {
	return func(_ context.Context, sc *graph.StateContext) error {
		n, _ := sc.Extended.Int(key)
		sc.Extended.Set(key, n+1)
		return nil
	}
}

func failingAction(msg string) graph.Action {
	return func(context.Context, *graph.StateContext) error {
		return fmt.Errorf("%s", msg)
	}
}

func hasCode(errs []error, code string) bool {
	for _, err := range errs {
		if statemachine.IsCode(err, code) {
			return true
		}
	}
	return false
}

func orthogonalJoin() graph.Definition {
	return graph.Definition{
		ID:      "join",
		Initial: "SI",
		Regions: []graph.RegionDef{
			{ID: "S2.a", Parent: "S2", Initial: "S20"},
			{ID: "S2.b", Parent: "S2", Initial: "S30"},
		},
		States: []graph.StateDef{
			{ID: "SI"},
			{ID: "S2"},
			{ID: "S20", Region: "S2.a"},
			{ID: "S21", Region: "S2.a"},
			{ID: "S30", Region: "S2.b"},
			{ID: "S31", Region: "S2.b"},
			{ID: "J", Kind: graph.KindJoin},
			{ID: "S3"},
			{ID: "S4"},
		},
		Transitions: []graph.TransitionDef{
			{Source: "SI", Target: "S2", Event: "E1"},
			{Source: "S20", Target: "S21", Event: "E2"},
			{Source: "S30", Target: "S31", Event: "E3"},
			{Source: "S21", Target: "S20", Event: "BACK"},
			{Source: "S21", Target: "J"},
			{Source: "S31", Target: "J"},
			{Source: "J", Target: "S3"},
			{Source: "S3", Target: "S4"},
		},
	}
}
