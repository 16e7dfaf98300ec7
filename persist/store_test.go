package persist

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
	"github.com/goliatone/go-statemachine/machine"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot(id string) machine.Snapshot {
	return machine.Snapshot{
		MachineID: id,
		Graph:     "door",
		Active: []machine.ActiveState{
			{Region: graph.RootRegion, State: "closed"},
		},
		ExtendedState: map[string]any{"opened": float64(2)},
		History:       map[graph.RegionID]graph.StateID{graph.RootRegion: "open"},
		Deferred:      []statemachine.Event{statemachine.NewEvent("LOCK")},
	}
}

func newRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, opts...), mr
}

func redisOnly(s *RedisStore, _ *miniredis.Miniredis) Store { return s }

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewInMemoryStore() },
		"redis":  func(t *testing.T) Store { return redisOnly(newRedisStore(t)) },
	}

	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			_, err := store.Read(ctx, "door-1")
			require.Error(t, err)
			assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeNotFound))

			require.NoError(t, store.Write(ctx, "door-2", sampleSnapshot("door-2")))
			require.NoError(t, store.Write(ctx, "door-1", sampleSnapshot("door-1")))

			got, err := store.Read(ctx, "door-1")
			require.NoError(t, err)
			assert.True(t, got.Equal(sampleSnapshot("door-1")))

			ids, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"door-1", "door-2"}, ids)

			require.NoError(t, store.Delete(ctx, "door-1"))
			_, err = store.Read(ctx, "door-1")
			assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeNotFound))

			ids, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"door-2"}, ids)

			err = store.Write(ctx, " ", sampleSnapshot("x"))
			assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeIllegalState))
		})
	}
}

func TestInMemoryStoreCopiesSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	snap := sampleSnapshot("door-1")
	require.NoError(t, store.Write(ctx, "door-1", snap))

	snap.ExtendedState["opened"] = float64(99)

	got, err := store.Read(ctx, "door-1")
	require.NoError(t, err)
	assert.Equal(t, float64(2), got.ExtendedState["opened"])
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, WithPrefix("doors:"), WithTTL(time.Minute))

	require.NoError(t, store.Write(ctx, "door-1", sampleSnapshot("door-1")))
	assert.True(t, mr.Exists("doors:door-1"))
	assert.Equal(t, time.Minute, mr.TTL("doors:door-1"))

	mr.FastForward(2 * time.Minute)

	_, err := store.Read(ctx, "door-1")
	assert.True(t, statemachine.IsCode(err, statemachine.ErrCodeNotFound))
}

func TestRedisStoreReportsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("statemachine:snapshot:door-1", "{not json"))

	_, err := store.Read(ctx, "door-1")
	require.Error(t, err)
	assert.False(t, statemachine.IsCode(err, statemachine.ErrCodeNotFound))
	assert.Contains(t, err.Error(), "unmarshal snapshot door-1")
}
