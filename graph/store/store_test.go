package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/graph/store"
)

// conformance runs the same behavioural contract against any Store
// implementation, mirroring the teacher's practice of sharing test logic
// across backend implementations.
func conformance(t *testing.T, newStore func() store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetLatest on empty thread returns ErrNotFound", func(t *testing.T) {
		s := newStore()
		defer func() { _ = s.Close() }()

		_, err := s.GetLatest(ctx, "thread-1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Put then GetLatest round-trips state", func(t *testing.T) {
		s := newStore()
		defer func() { _ = s.Close() }()

		cp := graph.Checkpoint{
			ThreadID:        "thread-1",
			CheckpointID:    "1",
			NodeThatJustRan: "supervisor",
			State:           graph.WorkflowState{ThreadID: "thread-1", CurrentAgent: "supervisor"},
			CreatedAt:       time.Now().UTC(),
		}
		require.NoError(t, s.Put(ctx, cp))

		got, err := s.GetLatest(ctx, "thread-1")
		require.NoError(t, err)
		assert.Equal(t, cp.CheckpointID, got.CheckpointID)
		assert.Equal(t, "supervisor", got.State.CurrentAgent)
	})

	t.Run("Put rejects a checkpoint not chained to the newest", func(t *testing.T) {
		s := newStore()
		defer func() { _ = s.Close() }()

		first := graph.Checkpoint{ThreadID: "t", CheckpointID: "1", CreatedAt: time.Now().UTC()}
		require.NoError(t, s.Put(ctx, first))

		stale := graph.Checkpoint{ThreadID: "t", CheckpointID: "2", ParentCheckpointID: "99", CreatedAt: time.Now().UTC()}
		err := s.Put(ctx, stale)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("List returns checkpoints in ascending sequence order", func(t *testing.T) {
		s := newStore()
		defer func() { _ = s.Close() }()

		base := time.Now().UTC()
		require.NoError(t, s.Put(ctx, graph.Checkpoint{
			ThreadID: "t", CheckpointID: "1", CreatedAt: base,
		}))
		require.NoError(t, s.Put(ctx, graph.Checkpoint{
			ThreadID: "t", CheckpointID: "2", ParentCheckpointID: "1", CreatedAt: base.Add(time.Second),
		}))

		list, err := s.List(ctx, "t")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "1", list[0].CheckpointID)
		assert.Equal(t, "2", list[1].CheckpointID)
	})

	t.Run("GetLatest returns the highest sequence number when created_at ties", func(t *testing.T) {
		s := newStore()
		defer func() { _ = s.Close() }()

		base := time.Now().UTC()
		require.NoError(t, s.Put(ctx, graph.Checkpoint{
			ThreadID: "t", CheckpointID: "1", CreatedAt: base,
		}))
		require.NoError(t, s.Put(ctx, graph.Checkpoint{
			ThreadID: "t", CheckpointID: "2", ParentCheckpointID: "1", CreatedAt: base,
		}))

		got, err := s.GetLatest(ctx, "t")
		require.NoError(t, err)
		assert.Equal(t, "2", got.CheckpointID)
	})

	t.Run("DeleteThread removes all checkpoints", func(t *testing.T) {
		s := newStore()
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Put(ctx, graph.Checkpoint{ThreadID: "t", CheckpointID: "1", CreatedAt: time.Now().UTC()}))
		require.NoError(t, s.DeleteThread(ctx, "t"))

		_, err := s.GetLatest(ctx, "t")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMemStoreConformance(t *testing.T) {
	conformance(t, func() store.Store { return store.NewMemStore() })
}

func TestSQLiteStoreConformance(t *testing.T) {
	conformance(t, func() store.Store {
		s, err := store.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return s
	})
}
