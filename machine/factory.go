package machine

import (
	"github.com/goliatone/go-statemachine/graph"
)

// Factory builds independent machines over one immutable graph. Machines
// built by the same factory share the graph and nothing else.
type Factory struct {
	graph *graph.Graph
	opts  []Option
}

// NewFactory keeps opts as defaults for every machine it builds.
func NewFactory(g *graph.Graph, opts ...Option) *Factory {
	return &Factory{graph: g, opts: opts}
}

func (f *Factory) Graph() *graph.Graph { return f.graph }

// Create builds a machine with the given ID, or a random one when id is
// empty. Per-call options apply after the factory defaults.
func (f *Factory) Create(id string, opts ...Option) *Machine {
	all := make([]Option, 0, len(f.opts)+len(opts)+1)
	all = append(all, f.opts...)
	all = append(all, opts...)
	all = append(all, WithID(id))
	return New(f.graph, all...)
}
