package store

import (
	"context"
	"sync"

	"github.com/flowbase/orchestrator/graph"
)

// MemStore is an in-memory Store, used by unit tests and by the CLI's
// -store=memory dev mode. It is not durable across process restarts.
type MemStore struct {
	mu    sync.RWMutex
	byID  map[string]map[string]graph.Checkpoint // threadID -> checkpointID -> checkpoint
	order map[string][]string                    // threadID -> checkpointIDs in write order
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:  make(map[string]map[string]graph.Checkpoint),
		order: make(map[string][]string),
	}
}

func (m *MemStore) Put(_ context.Context, cp graph.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	thread := m.byID[cp.ThreadID]
	if thread == nil {
		thread = make(map[string]graph.Checkpoint)
		m.byID[cp.ThreadID] = thread
	}

	if ids := m.order[cp.ThreadID]; len(ids) > 0 {
		newest := ids[len(ids)-1]
		if cp.ParentCheckpointID != newest {
			return ErrConflict
		}
	} else if cp.ParentCheckpointID != "" {
		return ErrConflict
	}

	thread[cp.CheckpointID] = cp
	m.order[cp.ThreadID] = append(m.order[cp.ThreadID], cp.CheckpointID)
	return nil
}

func (m *MemStore) GetLatest(_ context.Context, threadID string) (graph.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.order[threadID]
	if len(ids) == 0 {
		return graph.Checkpoint{}, ErrNotFound
	}
	return m.byID[threadID][ids[len(ids)-1]], nil
}

func (m *MemStore) Get(_ context.Context, threadID, checkpointID string) (graph.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	thread, ok := m.byID[threadID]
	if !ok {
		return graph.Checkpoint{}, ErrNotFound
	}
	cp, ok := thread[checkpointID]
	if !ok {
		return graph.Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

func (m *MemStore) List(_ context.Context, threadID string) ([]graph.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.order[threadID]
	out := make([]graph.Checkpoint, 0, len(ids))
	thread := m.byID[threadID]
	for _, id := range ids {
		out = append(out, thread[id])
	}
	return out, nil
}

func (m *MemStore) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, threadID)
	delete(m.order, threadID)
	return nil
}

func (m *MemStore) Close() error { return nil }
