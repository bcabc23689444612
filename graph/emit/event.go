package emit

// Event represents an observability event emitted during workflow execution.
// The graph engine emits node started/completed, approval requested, run
// completed and run failed events.
//
// Events are emitted to an Emitter which can log to stdout, forward to
// OpenTelemetry, or fan out to the SSE streaming API (C8) for clients
// watching a run live.
type Event struct {
	// ThreadID identifies the conversation/run this event belongs to.
	ThreadID string

	// WorkflowID is the per-run workflow_id assigned by the API layer. The
	// graph engine does not set it, so it is empty on engine events.
	WorkflowID string

	// Step is the sequential node-transition number within the run
	// (1-indexed). The run_completed event emitted on reaching the end node
	// carries zero; run_failed carries the step at which the run stopped.
	Step int

	// NodeID identifies which node emitted this event. Empty for the
	// run_completed event emitted on reaching the end node.
	NodeID string

	// Type classifies the event for SSE clients and log filtering. The
	// engine emits "node_started", "node_completed", "approval_requested",
	// "run_completed" and "run_failed".
	Type string

	// Msg is a human-readable description of the event.
	Msg string

	// Meta contains additional structured data specific to this event, e.g.
	// "duration_ms", "error", "tokens", "checkpoint_id", "approval_request_id".
	Meta map[string]interface{}
}
