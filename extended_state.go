package statemachine

import (
	"maps"
	"sync"
)

// ExtendedState holds the variables guards and actions read and write.
// Writes happen inside a run-to-completion cycle; reads may come from any
// goroutine.
type ExtendedState struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewExtendedState copies seed into a fresh store.
func NewExtendedState(seed map[string]any) *ExtendedState {
	es := &ExtendedState{vars: make(map[string]any, len(seed))}
	maps.Copy(es.vars, seed)
	return es
}

func (e *ExtendedState) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[key]
	return v, ok
}

func (e *ExtendedState) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vars == nil {
		e.vars = make(map[string]any)
	}
	e.vars[key] = value
}

func (e *ExtendedState) Delete(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.vars, key)
}

// Variables returns a copy of all variables.
func (e *ExtendedState) Variables() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.vars))
	maps.Copy(out, e.vars)
	return out
}

// Load replaces the content with a copy of vars.
func (e *ExtendedState) Load(vars map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars = make(map[string]any, len(vars))
	maps.Copy(e.vars, vars)
}

func (e *ExtendedState) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.vars)
}

// Int reads a numeric variable as int. Values decoded from JSON or YAML
// arrive as float64 or int and are both accepted.
func (e *ExtendedState) Int(key string) (int, bool) {
	v, ok := e.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
