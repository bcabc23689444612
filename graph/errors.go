package graph

import "errors"

// Error kinds from spec §7, implemented as sentinels/typed errors rather
// than stringly-typed codes.

// ErrHopLimitExceeded is returned when a run reaches per_run_hop_limit node
// transitions without completing (spec §4.6, §8 boundary behaviour).
var ErrHopLimitExceeded = errors.New("hop limit exceeded")

// ErrInvalidRoute is returned when a node returns a Next.To that is not a
// declared node name or "end" (spec §8 invariant 3).
var ErrInvalidRoute = errors.New("next_agent is not a declared node or \"end\"")

// ErrBusy is returned by Run and Resume when the per-thread advisory lock is
// held by another run and does not release within the bounded wait, and by a
// run whose checkpoint write is rejected with store.ErrConflict because
// another writer advanced the thread (spec §4.6 single-writer invariant).
var ErrBusy = errors.New("thread busy: another run holds the advisory lock")

// ErrCancelled is returned when a run observes its cancellation flag between
// node boundaries (spec §5).
var ErrCancelled = errors.New("run cancelled")

// ErrStaleResume is returned by Resume when the ticket's checkpoint is not
// the thread's current newest checkpoint (spec §4.6 resume protocol step a).
var ErrStaleResume = errors.New("stale resume: checkpoint is not the latest for this thread")

// NodeFailed wraps a node-level failure that could not be recovered by
// retry. The engine emits a run_failed event and returns it from Run or
// Resume. No checkpoint is written for the failed invocation: the thread's
// newest checkpoint stays the one written before the failing node ran.
type NodeFailed struct {
	NodeID string
	Cause  error
}

func (e *NodeFailed) Error() string { return "node " + e.NodeID + " failed: " + e.Cause.Error() }
func (e *NodeFailed) Unwrap() error { return e.Cause }

// AgentError is a non-retryable LLM error that fails the node immediately
// (spec §4.3 Errors).
type AgentError struct {
	AgentName string
	Cause     error
}

func (e *AgentError) Error() string { return "agent " + e.AgentName + ": " + e.Cause.Error() }
func (e *AgentError) Unwrap() error { return e.Cause }

// EngineError reports a misuse of the Engine's construction API (registering
// a nil node, connecting an undeclared edge endpoint) as distinct from a
// runtime NodeFailed/AgentError produced while executing a graph.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string { return e.Message }
