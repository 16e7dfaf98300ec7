package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"gopkg.in/yaml.v3"
)

// MachineConfig is the declarative form of a state graph. Guards and
// actions are referenced by registry name.
type MachineConfig struct {
	ID             string             `json:"id" yaml:"id"`
	Initial        string             `json:"initial" yaml:"initial"`
	InitialActions []string           `json:"initial_actions,omitempty" yaml:"initial_actions,omitempty"`
	History        string             `json:"history,omitempty" yaml:"history,omitempty"`
	Variables      map[string]any     `json:"variables,omitempty" yaml:"variables,omitempty"`
	ActionTimeout  string             `json:"action_timeout,omitempty" yaml:"action_timeout,omitempty"`
	ContextEvents  bool               `json:"context_events,omitempty" yaml:"context_events,omitempty"`
	Regions        []RegionConfig     `json:"regions,omitempty" yaml:"regions,omitempty"`
	States         []StateConfig      `json:"states" yaml:"states"`
	Transitions    []TransitionConfig `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

type RegionConfig struct {
	ID             string   `json:"id" yaml:"id"`
	Parent         string   `json:"parent" yaml:"parent"`
	Initial        string   `json:"initial" yaml:"initial"`
	InitialActions []string `json:"initial_actions,omitempty" yaml:"initial_actions,omitempty"`
}

// StateConfig describes a state or pseudostate. Kind defaults to simple;
// a state with Initial set gets an implicit region named after it.
type StateConfig struct {
	ID             string   `json:"id" yaml:"id"`
	Kind           string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Region         string   `json:"region,omitempty" yaml:"region,omitempty"`
	Initial        string   `json:"initial,omitempty" yaml:"initial,omitempty"`
	InitialActions []string `json:"initial_actions,omitempty" yaml:"initial_actions,omitempty"`
	Entry          []string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit           []string `json:"exit,omitempty" yaml:"exit,omitempty"`
	Defer          []string `json:"defer,omitempty" yaml:"defer,omitempty"`
}

// TransitionConfig describes one transition. An empty Event makes it a
// completion transition; Kind is external, internal or local.
type TransitionConfig struct {
	ID      string   `json:"id,omitempty" yaml:"id,omitempty"`
	From    string   `json:"from" yaml:"from"`
	To      string   `json:"to,omitempty" yaml:"to,omitempty"`
	Event   string   `json:"event,omitempty" yaml:"event,omitempty"`
	Guard   string   `json:"guard,omitempty" yaml:"guard,omitempty"`
	Actions []string `json:"actions,omitempty" yaml:"actions,omitempty"`
	Kind    string   `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Parse reads a YAML or JSON machine definition and validates it.
func Parse(data []byte) (MachineConfig, error) {
	var cfg MachineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		// yaml is a superset of JSON, one attempt covers both
		return cfg, statemachine.CloneError(statemachine.ErrConfiguration, "parse machine config", err, nil)
	}
	return cfg, cfg.Validate()
}

// LoadFile parses the definition stored at path.
func LoadFile(path string) (MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MachineConfig{}, statemachine.CloneError(statemachine.ErrConfiguration,
			fmt.Sprintf("read machine config %s", path), err, map[string]any{"path": path})
	}
	return Parse(data)
}

// Validate checks the fields the graph compiler cannot: names, kinds and
// durations. Structural rules are enforced by graph.Compile.
func (c MachineConfig) Validate() error {
	var issues []string
	fail := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Initial) == "" {
		fail("initial state is required")
	}
	if len(c.States) == 0 {
		fail("at least one state is required")
	}
	for idx, st := range c.States {
		if strings.TrimSpace(st.ID) == "" {
			fail("states[%d]: id is required", idx)
		}
		if st.Kind != "" {
			if _, err := graph.ParseKind(st.Kind); err != nil {
				fail("state %s: %v", st.ID, err)
			}
		}
	}
	for idx, r := range c.Regions {
		if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Parent) == "" {
			fail("regions[%d]: id and parent are required", idx)
		}
	}
	for idx, t := range c.Transitions {
		if strings.TrimSpace(t.From) == "" {
			fail("transitions[%d]: from is required", idx)
		}
		if t.Kind != "" {
			if _, err := graph.ParseTransitionKind(t.Kind); err != nil {
				fail("transitions[%d]: %v", idx, err)
			}
		}
	}
	if c.ActionTimeout != "" {
		if d, err := time.ParseDuration(c.ActionTimeout); err != nil || d < 0 {
			fail("action_timeout %q is not a valid duration", c.ActionTimeout)
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return statemachine.CloneError(
		statemachine.ErrConfiguration,
		fmt.Sprintf("invalid machine config %q: %s", c.ID, strings.Join(issues, "; ")),
		nil,
		map[string]any{"issues": issues},
	)
}

// Marshal renders cfg as YAML.
func Marshal(cfg MachineConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}
