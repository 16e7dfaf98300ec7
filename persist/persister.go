package persist

import (
	"context"
	"fmt"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/machine"
)

// Persister moves machine snapshots in and out of a Store.
type Persister struct {
	store  Store
	logger statemachine.Logger
}

type PersisterOption func(*Persister)

func WithLogger(l statemachine.Logger) PersisterOption {
	return func(p *Persister) {
		p.logger = statemachine.NormalizeLogger(l)
	}
}

func NewPersister(store Store, opts ...PersisterOption) *Persister {
	p := &Persister{store: store, logger: statemachine.NormalizeLogger(nil)}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Persist writes the current snapshot of m under id, or under the machine
// ID when id is empty.
func (p *Persister) Persist(ctx context.Context, m *machine.Machine, id string) error {
	if err := p.ready(m); err != nil {
		return err
	}
	if id == "" {
		id = m.ID()
	}
	snap := m.Snapshot()
	if err := p.store.Write(ctx, id, snap); err != nil {
		return err
	}
	p.logger.Debug("persisted machine %s as %s (%d active)", m.ID(), id, len(snap.Active))
	return nil
}

// Restore reads the snapshot stored under id and installs it on m. A running
// machine is stopped first.
func (p *Persister) Restore(ctx context.Context, m *machine.Machine, id string) error {
	if err := p.ready(m); err != nil {
		return err
	}
	if id == "" {
		id = m.ID()
	}
	snap, err := p.store.Read(ctx, id)
	if err != nil {
		return err
	}
	if m.Status() == machine.StatusReady {
		if err := m.Stop(ctx); err != nil {
			return fmt.Errorf("stop machine %s before restore: %w", m.ID(), err)
		}
		select {
		case <-m.Stopped():
		case <-ctx.Done():
			return fmt.Errorf("stop machine %s before restore: %w", m.ID(), ctx.Err())
		}
	}
	if err := m.Restore(ctx, snap); err != nil {
		return err
	}
	p.logger.Debug("restored machine %s from %s", m.ID(), id)
	return nil
}

// Forget deletes the snapshot stored under id.
func (p *Persister) Forget(ctx context.Context, id string) error {
	if p == nil || p.store == nil {
		return errStoreMissing()
	}
	return p.store.Delete(ctx, id)
}

func (p *Persister) ready(m *machine.Machine) error {
	if p == nil || p.store == nil {
		return errStoreMissing()
	}
	if m == nil {
		return statemachine.CloneError(statemachine.ErrIllegalState, "machine required", nil, nil)
	}
	return nil
}

func errStoreMissing() error {
	return statemachine.CloneError(statemachine.ErrIllegalState, "snapshot store not configured", nil, nil)
}
