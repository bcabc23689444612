package graph

import "context"

// ctxKey is an unexported type so this package's context values never
// collide with keys set by callers.
type ctxKey int

const checkpointIDKey ctxKey = iota

// withCheckpointID attaches the checkpoint_id the engine will use to persist
// the result of the node currently running. It is set before Node.Run is
// invoked so a node that itself needs to reference "the checkpoint this
// state will resume from" (the approval node, recording checkpoint_id on an
// ApprovalRequest row) doesn't have to guess it ahead of the engine's own
// write.
func withCheckpointID(ctx context.Context, checkpointID string) context.Context {
	return context.WithValue(ctx, checkpointIDKey, checkpointID)
}

// CheckpointIDFromContext returns the checkpoint_id a running node's result
// will be persisted under, if the engine set one.
func CheckpointIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(checkpointIDKey).(string)
	return id, ok
}
