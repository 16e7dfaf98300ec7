package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"gopkg.in/yaml.v3"
)

// Registries bundles the guard and action registries a config is built
// against.
type Registries struct {
	Guards  *GuardRegistry
	Actions *ActionRegistry
}

// NewRegistries returns registries preloaded with the builtins:
//
//	actions: set:key=value, incr:key[=step], delete:key, log[:message]
//	guards:  eq:key=value, gt:key=n, lt:key=n, exists:key, not:<guard>
func NewRegistries(logger statemachine.Logger) *Registries {
	r := &Registries{Guards: NewGuardRegistry(), Actions: NewActionRegistry()}
	registerBuiltins(r, statemachine.NormalizeLogger(logger))
	return r
}

func registerBuiltins(r *Registries, logger statemachine.Logger) {
	_ = r.Actions.RegisterFactory("set", func(arg string) (graph.Action, error) {
		key, raw, err := keyValue(arg)
		if err != nil {
			return nil, err
		}
		value := scalar(raw)
		return func(_ context.Context, sc *graph.StateContext) error {
			sc.Extended.Set(key, value)
			return nil
		}, nil
	})

	_ = r.Actions.RegisterFactory("incr", func(arg string) (graph.Action, error) {
		key, step := arg, 1
		if k, raw, err := keyValue(arg); err == nil {
			n, perr := strconv.Atoi(raw)
			if perr != nil {
				return nil, fmt.Errorf("step %q is not an integer", raw)
			}
			key, step = k, n
		}
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("key is required")
		}
		return func(_ context.Context, sc *graph.StateContext) error {
			n, _ := sc.Extended.Int(key)
			sc.Extended.Set(key, n+step)
			return nil
		}, nil
	})

	_ = r.Actions.RegisterFactory("delete", func(arg string) (graph.Action, error) {
		if strings.TrimSpace(arg) == "" {
			return nil, fmt.Errorf("key is required")
		}
		return func(_ context.Context, sc *graph.StateContext) error {
			sc.Extended.Delete(arg)
			return nil
		}, nil
	})

	logAction := func(msg string) graph.Action {
		return func(ctx context.Context, sc *graph.StateContext) error {
			logger.WithContext(ctx).Info("%s machine=%s event=%s source=%s target=%s",
				msg, sc.MachineID, sc.EventType(), sc.Source, sc.Target)
			return nil
		}
	}
	_ = r.Actions.Register("log", logAction("action"))
	_ = r.Actions.RegisterFactory("log", func(arg string) (graph.Action, error) {
		return logAction(arg), nil
	})

	_ = r.Guards.RegisterFactory("eq", func(arg string) (graph.Guard, error) {
		key, raw, err := keyValue(arg)
		if err != nil {
			return nil, err
		}
		want := fmt.Sprint(scalar(raw))
		return func(_ context.Context, sc *graph.StateContext) (bool, error) {
			v, ok := sc.Extended.Get(key)
			return ok && fmt.Sprint(v) == want, nil
		}, nil
	})

	compare := func(name string, cmp func(a, b int) bool) {
		_ = r.Guards.RegisterFactory(name, func(arg string) (graph.Guard, error) {
			key, raw, err := keyValue(arg)
			if err != nil {
				return nil, err
			}
			limit, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", raw)
			}
			return func(_ context.Context, sc *graph.StateContext) (bool, error) {
				n, ok := sc.Extended.Int(key)
				return ok && cmp(n, limit), nil
			}, nil
		})
	}
	compare("gt", func(a, b int) bool { return a > b })
	compare("lt", func(a, b int) bool { return a < b })

	_ = r.Guards.RegisterFactory("exists", func(arg string) (graph.Guard, error) {
		if strings.TrimSpace(arg) == "" {
			return nil, fmt.Errorf("key is required")
		}
		return func(_ context.Context, sc *graph.StateContext) (bool, error) {
			_, ok := sc.Extended.Get(arg)
			return ok, nil
		}, nil
	})

	_ = r.Guards.RegisterFactory("not", func(arg string) (graph.Guard, error) {
		inner, err := r.Guards.Lookup(arg)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, sc *graph.StateContext) (bool, error) {
			ok, err := inner(ctx, sc)
			return !ok, err
		}, nil
	})
}

func keyValue(arg string) (string, string, error) {
	key, value, ok := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", arg)
	}
	return key, strings.TrimSpace(value), nil
}

// scalar decodes raw as a YAML scalar so that "3" becomes an int and
// "true" a bool. Anything that does not decode stays a string.
func scalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any:
		return raw
	}
	return v
}
