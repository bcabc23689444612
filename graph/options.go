package graph

import "time"

// Options holds the Engine's tunable configuration (spec §6 configuration
// surface). Unlike the teacher's Options, which tuned a concurrent
// frontier-scheduler (MaxConcurrentNodes, QueueDepth, BackpressureTimeout,
// ReplayMode), this engine runs one node at a time per thread, so those
// knobs have no home here — see DESIGN.md for why that machinery was cut.
type Options struct {
	// PerNodeHopLimit caps consecutive invocations of the same node before
	// the run is forced to terminate (spec §6, default 8).
	PerNodeHopLimit int

	// PerRunHopLimit caps total node transitions in a single run (spec §6,
	// default 25).
	PerRunHopLimit int

	// LLMTimeout bounds a single chat-model call (spec §6, default 60s).
	LLMTimeout time.Duration

	// DefaultNodeTimeout bounds node execution when the node's own
	// NodePolicy.Timeout is unset.
	DefaultNodeTimeout time.Duration

	// CheckpointTTL is how long a checkpoint row is retained before it is
	// eligible for garbage collection (spec §6). Zero means "never".
	CheckpointTTL time.Duration

	// ApprovalTimeout is how long a pending approval waits before the
	// approval tracker marks it expired (spec §6, default 24h).
	ApprovalTimeout time.Duration

	// ToolCatalogTTL is how long a selected tool set is cached by its
	// content hash before Catalog.Select recomputes it (spec §6, default
	// 300s).
	ToolCatalogTTL time.Duration

	// MaxToolsPerInvocation caps the tool set Catalog.Select returns to a
	// single agent invocation (spec §6, default 60).
	MaxToolsPerInvocation int

	Metrics     *PrometheusMetrics
	CostTracker *CostTracker
}

// DefaultOptions returns the spec §6 default configuration.
func DefaultOptions() Options {
	return Options{
		PerNodeHopLimit:       8,
		PerRunHopLimit:        25,
		LLMTimeout:            60 * time.Second,
		DefaultNodeTimeout:    30 * time.Second,
		ApprovalTimeout:       24 * time.Hour,
		ToolCatalogTTL:        300 * time.Second,
		MaxToolsPerInvocation: 60,
	}
}

// Option is a functional option for configuring an Engine.
type Option func(*Options)

// WithPerNodeHopLimit overrides the per-node hop limit.
func WithPerNodeHopLimit(n int) Option {
	return func(o *Options) { o.PerNodeHopLimit = n }
}

// WithPerRunHopLimit overrides the per-run hop limit.
func WithPerRunHopLimit(n int) Option {
	return func(o *Options) { o.PerRunHopLimit = n }
}

// WithLLMTimeout overrides the chat-model call timeout.
func WithLLMTimeout(d time.Duration) Option {
	return func(o *Options) { o.LLMTimeout = d }
}

// WithDefaultNodeTimeout overrides the timeout applied to nodes without an
// explicit NodePolicy.Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultNodeTimeout = d }
}

// WithCheckpointTTL overrides checkpoint retention.
func WithCheckpointTTL(d time.Duration) Option {
	return func(o *Options) { o.CheckpointTTL = d }
}

// WithApprovalTimeout overrides how long an approval waits before expiring.
func WithApprovalTimeout(d time.Duration) Option {
	return func(o *Options) { o.ApprovalTimeout = d }
}

// WithToolCatalogTTL overrides the tool-selection cache TTL.
func WithToolCatalogTTL(d time.Duration) Option {
	return func(o *Options) { o.ToolCatalogTTL = d }
}

// WithMaxToolsPerInvocation overrides the per-invocation tool cap.
func WithMaxToolsPerInvocation(n int) Option {
	return func(o *Options) { o.MaxToolsPerInvocation = n }
}

// WithMetrics attaches a PrometheusMetrics collector (C9).
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine := graph.New(reducer, store, emitter, graph.WithMetrics(metrics))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(o *Options) { o.Metrics = metrics }
}

// WithCostTracker attaches per-model LLM cost accounting.
func WithCostTracker(tracker *CostTracker) Option {
	return func(o *Options) { o.CostTracker = tracker }
}
