package main

import (
	"context"
	"encoding/json"
	"fmt"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/config"
	"github.com/goliatone/go-statemachine/events"
	"github.com/goliatone/go-statemachine/graph"
	"github.com/goliatone/go-statemachine/machine"
	"github.com/goliatone/go-statemachine/persist"
	"gopkg.in/yaml.v3"
)

type validateCmd struct {
	File string `arg:"" type:"existingfile" help:"Definition file."`
}

func (c *validateCmd) Run(a *app) error {
	cfg, g, err := load(c.File, a)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "machine %s: %d states, %d regions, %d transitions\n",
		cfg.ID, len(g.States()), len(g.Regions()), len(g.Transitions()))
	return nil
}

type describeCmd struct {
	File string `arg:"" type:"existingfile" help:"Definition file."`
}

func (c *describeCmd) Run(a *app) error {
	cfg, _, err := load(c.File, a)
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = a.out.Write(data)
	return err
}

type runCmd struct {
	File   string   `arg:"" type:"existingfile" help:"Definition file."`
	Events []string `arg:"" optional:"" help:"Event types to send, in order."`

	ID          string `help:"Machine instance ID. Defaults to the definition ID."`
	Format      string `enum:"yaml,json" default:"yaml" help:"Snapshot output format."`
	Trace       bool   `help:"Print every context event topic."`
	RedisAddr   string `help:"Redis address used to resume and persist the snapshot."`
	RedisPrefix string `default:"statemachine:snapshot:" help:"Key prefix for stored snapshots."`
	Fresh       bool   `help:"Ignore any stored snapshot and start from the initial state."`
}

func (c *runCmd) Run(a *app) error {
	ctx := context.Background()
	cfg, g, err := load(c.File, a)
	if err != nil {
		return err
	}
	opts, err := config.Options(cfg)
	if err != nil {
		return err
	}

	id := c.ID
	if id == "" {
		id = cfg.ID
	}
	opts = append(opts, machine.WithID(id), machine.WithLogger(a.logger))

	if cfg.ContextEvents || c.Trace {
		bus := events.NewBus(events.WithLogger(a.logger))
		bus.Subscribe("#", func(_ context.Context, evt machine.ContextEvent) error {
			fmt.Fprintf(a.out, "# %s\n", events.Topic(evt))
			return nil
		})
		opts = append(opts, machine.WithContextEvents(bus))
	}

	m := machine.New(g, opts...)

	var persister *persist.Persister
	if c.RedisAddr != "" {
		store := persist.NewRedisStore(c.RedisAddr, "", 0, persist.WithPrefix(c.RedisPrefix))
		defer store.Close()
		persister = persist.NewPersister(store, persist.WithLogger(a.logger))
	}

	if err := c.start(ctx, m, persister); err != nil {
		return err
	}

	for _, name := range c.Events {
		evt := statemachine.NewEvent(statemachine.EventType(name))
		verdict := "accepted"
		if !m.SendEvent(ctx, evt) {
			verdict = "not accepted"
		}
		fmt.Fprintf(a.out, "%s: %s -> %v\n", name, verdict, m.State().Leaves())
	}

	if persister != nil {
		if err := persister.Persist(ctx, m, id); err != nil {
			return err
		}
	}
	return c.print(a, m.Snapshot())
}

// start resumes from the stored snapshot when there is one.
func (c *runCmd) start(ctx context.Context, m *machine.Machine, p *persist.Persister) error {
	if p == nil || c.Fresh {
		return m.Start(ctx)
	}
	err := p.Restore(ctx, m, m.ID())
	if statemachine.IsCode(err, statemachine.ErrCodeNotFound) {
		return m.Start(ctx)
	}
	if err != nil {
		return err
	}
	if m.Status() != machine.StatusReady {
		return m.Start(ctx)
	}
	return nil
}

func (c *runCmd) print(a *app, snap machine.Snapshot) error {
	var (
		data []byte
		err  error
	)
	switch c.Format {
	case "json":
		if data, err = json.MarshalIndent(snap, "", "  "); err == nil {
			data = append(data, '\n')
		}
	default:
		data, err = yaml.Marshal(snap)
	}
	if err != nil {
		return fmt.Errorf("render snapshot: %w", err)
	}
	_, err = a.out.Write(data)
	return err
}

func load(path string, a *app) (config.MachineConfig, *graph.Graph, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.MachineConfig{}, nil, err
	}
	g, err := config.Build(cfg, config.NewRegistries(a.logger))
	if err != nil {
		return cfg, nil, err
	}
	return cfg, g, nil
}
