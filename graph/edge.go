package graph

// Edge represents a conditional connection between two nodes in the
// workflow graph. Edges define the control flow the supervisor and worker
// nodes route along (spec §4.6): from supervisor to a worker or "end", from
// a worker to "approval" or back to supervisor, and from "approval" back to
// supervisor after resume.
type Edge struct {
	From string
	To   string

	// When is an optional predicate; if nil the edge is unconditional. If
	// non-nil, the edge is only traversed when When(state) returns true. A
	// node's own explicit NodeResult.Route always takes precedence over
	// edge-based routing — edges are the declared topology, not the runtime
	// decision.
	When Predicate
}

// Predicate evaluates state to determine if an edge should be traversed.
// Predicates must be pure: deterministic, no side effects.
type Predicate func(state WorkflowState) bool
