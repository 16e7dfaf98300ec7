package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/machine"
)

// Store keeps machine snapshots by ID.
type Store interface {
	Write(ctx context.Context, id string, snap machine.Snapshot) error
	// Read fails with an error carrying statemachine.ErrCodeNotFound when
	// no snapshot exists for id.
	Read(ctx context.Context, id string) (machine.Snapshot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// InMemoryStore keeps snapshots in process, encoded as JSON so that
// readers never share maps with the writer.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]byte)}
}

func (s *InMemoryStore) Write(_ context.Context, id string, snap machine.Snapshot) error {
	if err := validID(id); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = data
	return nil
}

func (s *InMemoryStore) Read(_ context.Context, id string) (machine.Snapshot, error) {
	s.mu.RLock()
	data, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return machine.Snapshot{}, notFound(id)
	}
	var snap machine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return machine.Snapshot{}, fmt.Errorf("unmarshal snapshot %s: %w", id, err)
	}
	return snap, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// List returns the stored IDs, sorted.
func (s *InMemoryStore) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func notFound(id string) error {
	return statemachine.CloneError(
		statemachine.ErrNotFound,
		fmt.Sprintf("snapshot %s not found", id),
		nil,
		map[string]any{"snapshot_id": id},
	)
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" {
		return statemachine.CloneError(statemachine.ErrIllegalState, "snapshot id required", nil, nil)
	}
	return nil
}
