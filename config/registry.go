package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-statemachine/graph"
)

// GuardFactory builds a guard from the argument of a "name:arg" reference.
type GuardFactory func(arg string) (graph.Guard, error)

// ActionFactory builds an action from the argument of a "name:arg" reference.
type ActionFactory func(arg string) (graph.Action, error)

// GuardRegistry stores named guards and guard factories.
type GuardRegistry struct {
	mu         sync.RWMutex
	guards     map[string]graph.Guard
	factories  map[string]GuardFactory
	namespacer func(string, string) string
}

func NewGuardRegistry() *GuardRegistry {
	return &GuardRegistry{
		guards:     make(map[string]graph.Guard),
		factories:  make(map[string]GuardFactory),
		namespacer: defaultNamespace,
	}
}

// SetNamespacer customizes how guard IDs are namespaced.
func (r *GuardRegistry) SetNamespacer(fn func(string, string) string) {
	if fn != nil {
		r.namespacer = fn
	}
}

func (r *GuardRegistry) Register(name string, guard graph.Guard) error {
	return r.RegisterNamespaced("", name, guard)
}

// RegisterNamespaced stores a guard under namespace::name.
func (r *GuardRegistry) RegisterNamespaced(namespace, name string, guard graph.Guard) error {
	if strings.TrimSpace(name) == "" || guard == nil {
		return fmt.Errorf("guard name and function are required")
	}
	key := r.namespacer(namespace, name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.guards[key]; exists {
		return fmt.Errorf("guard %s already registered", key)
	}
	r.guards[key] = guard
	return nil
}

// RegisterFactory serves references of the form "name:arg".
func (r *GuardRegistry) RegisterFactory(name string, factory GuardFactory) error {
	if strings.TrimSpace(name) == "" || factory == nil {
		return fmt.Errorf("guard factory name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("guard factory %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Lookup resolves ref to a guard. Plain names are looked up first; a
// reference with a colon falls back to the factory named by its prefix.
func (r *GuardRegistry) Lookup(ref string) (graph.Guard, error) {
	if r == nil {
		return nil, fmt.Errorf("guard registry not configured for %s", ref)
	}
	ref = strings.TrimSpace(ref)
	r.mu.RLock()
	guard, ok := r.guards[ref]
	var factory GuardFactory
	name, arg, parameterized := splitRef(ref)
	if !ok && parameterized {
		factory = r.factories[name]
	}
	r.mu.RUnlock()

	switch {
	case ok:
		return guard, nil
	case factory != nil:
		g, err := factory(arg)
		if err != nil {
			return nil, fmt.Errorf("guard %s: %w", ref, err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("guard %s not found", ref)
	}
}

// IDs returns the sorted names of registered guards and factories.
func (r *GuardRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.guards, r.factories)
}

// ActionRegistry stores named actions and action factories.
type ActionRegistry struct {
	mu         sync.RWMutex
	actions    map[string]graph.Action
	factories  map[string]ActionFactory
	namespacer func(string, string) string
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{
		actions:    make(map[string]graph.Action),
		factories:  make(map[string]ActionFactory),
		namespacer: defaultNamespace,
	}
}

// SetNamespacer customizes how action IDs are namespaced.
func (r *ActionRegistry) SetNamespacer(fn func(string, string) string) {
	if fn != nil {
		r.namespacer = fn
	}
}

func (r *ActionRegistry) Register(name string, action graph.Action) error {
	return r.RegisterNamespaced("", name, action)
}

// RegisterNamespaced stores an action under namespace::name.
func (r *ActionRegistry) RegisterNamespaced(namespace, name string, action graph.Action) error {
	if strings.TrimSpace(name) == "" || action == nil {
		return fmt.Errorf("action name and function are required")
	}
	key := r.namespacer(namespace, name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[key]; exists {
		return fmt.Errorf("action %s already registered", key)
	}
	r.actions[key] = action
	return nil
}

// RegisterFactory serves references of the form "name:arg".
func (r *ActionRegistry) RegisterFactory(name string, factory ActionFactory) error {
	if strings.TrimSpace(name) == "" || factory == nil {
		return fmt.Errorf("action factory name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("action factory %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Lookup resolves ref the same way GuardRegistry.Lookup does.
func (r *ActionRegistry) Lookup(ref string) (graph.Action, error) {
	if r == nil {
		return nil, fmt.Errorf("action registry not configured for %s", ref)
	}
	ref = strings.TrimSpace(ref)
	r.mu.RLock()
	action, ok := r.actions[ref]
	var factory ActionFactory
	name, arg, parameterized := splitRef(ref)
	if !ok && parameterized {
		factory = r.factories[name]
	}
	r.mu.RUnlock()

	switch {
	case ok:
		return action, nil
	case factory != nil:
		a, err := factory(arg)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", ref, err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("action %s not found", ref)
	}
}

// IDs returns the sorted names of registered actions and factories.
func (r *ActionRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.actions, r.factories)
}

// defaultNamespace joins namespace and id with "::".
func defaultNamespace(namespace, id string) string {
	ns := strings.TrimSpace(namespace)
	ident := strings.TrimSpace(id)
	if ns == "" {
		return ident
	}
	return ns + "::" + ident
}

// splitRef splits "name:arg" on the first single colon. Namespace
// separators ("::") are not argument separators.
func splitRef(ref string) (name, arg string, ok bool) {
	for i := 0; i < len(ref); i++ {
		if ref[i] != ':' {
			continue
		}
		if i+1 < len(ref) && ref[i+1] == ':' {
			i++
			continue
		}
		return ref[:i], ref[i+1:], true
	}
	return ref, "", false
}

func sortedKeys[A, B any](a map[string]A, b map[string]B) []string {
	ids := make([]string, 0, len(a)+len(b))
	for id := range a {
		ids = append(ids, id)
	}
	for id := range b {
		ids = append(ids, id+":")
	}
	sort.Strings(ids)
	return ids
}
