// Package store provides persistence implementations for the workflow
// checkpointer (C1 Graph Engine & Checkpointer).
package store

import (
	"context"
	"errors"

	"github.com/flowbase/orchestrator/graph"
)

// ErrNotFound is returned when a requested thread or checkpoint does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by Put when the checkpoint being written is not a
// child of the thread's current newest checkpoint — another writer has
// already advanced the thread past ParentCheckpointID (spec §4.6, single-
// writer invariant). The engine treats this as fatal for the current
// in-memory run: it must abort and let the caller re-Resume from the new
// newest checkpoint.
var ErrConflict = errors.New("checkpoint conflict: thread advanced by another writer")

// ErrStoreUnavailable wraps a transport-level failure (connection refused,
// timeout) so callers can distinguish "the store rejected this write" from
// "the store could not be reached".
type ErrStoreUnavailable struct {
	Cause error
}

func (e *ErrStoreUnavailable) Error() string { return "store unavailable: " + e.Cause.Error() }
func (e *ErrStoreUnavailable) Unwrap() error { return e.Cause }

// Store is the narrowed persistence contract the Graph Engine needs: write a
// checkpoint, read the newest one to resume a thread, list history, and
// delete a thread's checkpoints entirely. The teacher's Store[S] additionally
// exposed SaveStep/SaveCheckpointV2/CheckIdempotency/PendingEvents for its
// frontier-scheduler and transactional-outbox features; with those cut (see
// DESIGN.md) this system only ever needs the operations below.
type Store interface {
	// Put persists checkpoint atomically. If checkpoint.ParentCheckpointID
	// does not match the thread's current newest checkpoint ID (and the
	// thread already has at least one checkpoint), Put returns ErrConflict
	// without writing.
	Put(ctx context.Context, checkpoint graph.Checkpoint) error

	// GetLatest returns the newest checkpoint for threadID, or ErrNotFound
	// if the thread has never been checkpointed.
	GetLatest(ctx context.Context, threadID string) (graph.Checkpoint, error)

	// Get returns a specific checkpoint by ID, or ErrNotFound.
	Get(ctx context.Context, threadID, checkpointID string) (graph.Checkpoint, error)

	// List returns a thread's checkpoints ordered oldest first, for the
	// replay/debugging surface (spec §6.1 GET /threads/{id}/checkpoints).
	List(ctx context.Context, threadID string) ([]graph.Checkpoint, error)

	// DeleteThread removes all checkpoints for a thread.
	DeleteThread(ctx context.Context, threadID string) error

	// Close releases any underlying resources (database handle, connection
	// pool).
	Close() error
}
