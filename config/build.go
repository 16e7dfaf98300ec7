package config

import (
	"fmt"
	"strings"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"github.com/goliatone/go-statemachine/machine"
)

// Build resolves every guard and action reference of cfg against reg and
// compiles the result. Unresolved references are reported together.
func Build(cfg MachineConfig, reg *Registries) (*graph.Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = NewRegistries(nil)
	}

	b := &builder{reg: reg}
	def := graph.Definition{
		ID:             cfg.ID,
		Initial:        graph.StateID(cfg.Initial),
		InitialActions: b.actions("initial", cfg.InitialActions),
		History:        graph.StateID(cfg.History),
	}

	for _, r := range cfg.Regions {
		def.Regions = append(def.Regions, graph.RegionDef{
			ID:             graph.RegionID(r.ID),
			Parent:         graph.StateID(r.Parent),
			Initial:        graph.StateID(r.Initial),
			InitialActions: b.actions("region "+r.ID, r.InitialActions),
		})
	}

	for _, s := range cfg.States {
		kind, _ := graph.ParseKind(s.Kind)
		sd := graph.StateDef{
			ID:             graph.StateID(s.ID),
			Kind:           kind,
			Region:         graph.RegionID(s.Region),
			Initial:        graph.StateID(s.Initial),
			InitialActions: b.actions("state "+s.ID, s.InitialActions),
			Entry:          b.actions("state "+s.ID+" entry", s.Entry),
			Exit:           b.actions("state "+s.ID+" exit", s.Exit),
		}
		for _, evt := range s.Defer {
			sd.Deferred = append(sd.Deferred, statemachine.EventType(evt))
		}
		def.States = append(def.States, sd)
	}

	for idx, t := range cfg.Transitions {
		label := t.ID
		if label == "" {
			label = fmt.Sprintf("transitions[%d]", idx)
		}
		kind, _ := graph.ParseTransitionKind(t.Kind)
		td := graph.TransitionDef{
			ID:      t.ID,
			Source:  graph.StateID(t.From),
			Target:  graph.StateID(t.To),
			Event:   statemachine.EventType(t.Event),
			Actions: b.actions(label, t.Actions),
			Kind:    kind,
		}
		if t.Guard != "" {
			g, err := reg.Guards.Lookup(t.Guard)
			if err != nil {
				b.fail("%s: %v", label, err)
			}
			td.Guard = g
		}
		def.Transitions = append(def.Transitions, td)
	}

	if len(b.issues) > 0 {
		return nil, statemachine.CloneError(
			statemachine.ErrConfiguration,
			fmt.Sprintf("machine config %q has unresolved references: %s", cfg.ID, strings.Join(b.issues, "; ")),
			nil,
			map[string]any{"issues": b.issues},
		)
	}
	return graph.Compile(def)
}

// Options turns the runtime settings of cfg into machine options.
func Options(cfg MachineConfig) ([]machine.Option, error) {
	var opts []machine.Option
	if len(cfg.Variables) > 0 {
		opts = append(opts, machine.WithExtendedState(cfg.Variables))
	}
	if cfg.ActionTimeout != "" {
		d, err := time.ParseDuration(cfg.ActionTimeout)
		if err != nil {
			return nil, statemachine.CloneError(statemachine.ErrConfiguration,
				fmt.Sprintf("action_timeout %q is not a valid duration", cfg.ActionTimeout), err, nil)
		}
		opts = append(opts, machine.WithActionTimeout(d))
	}
	return opts, nil
}

type builder struct {
	reg    *Registries
	issues []string
}

func (b *builder) fail(format string, args ...any) {
	b.issues = append(b.issues, fmt.Sprintf(format, args...))
}

func (b *builder) actions(owner string, refs []string) []graph.Action {
	if len(refs) == 0 {
		return nil
	}
	out := make([]graph.Action, 0, len(refs))
	for _, ref := range refs {
		a, err := b.reg.Actions.Lookup(ref)
		if err != nil {
			b.fail("%s: %v", owner, err)
			continue
		}
		out = append(out, a)
	}
	return out
}
