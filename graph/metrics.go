package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics exposes the C9 Observability metric surface, all
// namespaced "orchestrator_":
//
//   - node_invocations_total (counter, labels: node, status)
//   - llm_calls_total (counter, labels: model, status)
//   - approvals_created_total (counter)
//   - approvals_resolved_total (counter, labels: decision)
//   - approvals_timeouts_total (counter)
//   - node_duration_seconds (histogram, labels: node)
//   - llm_latency_seconds (histogram, labels: model)
//   - approval_latency_seconds (histogram)
//   - active_workflows (gauge)
//   - approvals_backlog (gauge)
//   - webhook_duplicate_total (counter)
type PrometheusMetrics struct {
	nodeInvocations   *prometheus.CounterVec
	llmCalls          *prometheus.CounterVec
	approvalsCreated  prometheus.Counter
	approvalsResolved *prometheus.CounterVec
	approvalsTimeouts prometheus.Counter
	webhookDuplicates prometheus.Counter

	nodeDuration     *prometheus.HistogramVec
	llmLatency       *prometheus.HistogramVec
	approvalLatency  prometheus.Histogram
	activeWorkflows  prometheus.Gauge
	approvalsBacklog prometheus.Gauge
}

// NewPrometheusMetrics registers the full C9 metric set against registry.
// Pass prometheus.DefaultRegisterer to use the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)

	return &PrometheusMetrics{
		nodeInvocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "node_invocations_total",
			Help: "Node executions, by node and outcome status",
		}, []string{"node", "status"}),
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "llm_calls_total",
			Help: "Chat model invocations, by model and outcome status",
		}, []string{"model", "status"}),
		approvalsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "approvals_created_total",
			Help: "Approval requests opened against the issue tracker",
		}),
		approvalsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "approvals_resolved_total",
			Help: "Approval requests resolved, by decision",
		}, []string{"decision"}),
		approvalsTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "approvals_timeouts_total",
			Help: "Approval requests that expired before a decision was recorded",
		}),
		webhookDuplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "webhook_duplicate_total",
			Help: "Approval webhook deliveries for an already-resolved request",
		}),
		nodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orchestrator", Name: "node_duration_seconds",
			Help:    "Node execution duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orchestrator", Name: "llm_latency_seconds",
			Help:    "Chat model round-trip latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		approvalLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orchestrator", Name: "approval_latency_seconds",
			Help:    "Time from approval creation to resolution",
			Buckets: []float64{10, 60, 300, 900, 3600, 14400, 43200, 86400},
		}),
		activeWorkflows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator", Name: "active_workflows",
			Help: "Threads currently mid-run (resumed, not yet terminal or interrupted)",
		}),
		approvalsBacklog: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator", Name: "approvals_backlog",
			Help: "Approval requests currently in pending status",
		}),
	}
}

func (pm *PrometheusMetrics) RecordNodeInvocation(node, status string) {
	if pm == nil {
		return
	}
	pm.nodeInvocations.WithLabelValues(node, status).Inc()
}

func (pm *PrometheusMetrics) RecordNodeDuration(node string, d time.Duration) {
	if pm == nil {
		return
	}
	pm.nodeDuration.WithLabelValues(node).Observe(d.Seconds())
}

func (pm *PrometheusMetrics) RecordLLMCall(model, status string, latency time.Duration) {
	if pm == nil {
		return
	}
	pm.llmCalls.WithLabelValues(model, status).Inc()
	pm.llmLatency.WithLabelValues(model).Observe(latency.Seconds())
}

func (pm *PrometheusMetrics) RecordApprovalCreated() {
	if pm == nil {
		return
	}
	pm.approvalsCreated.Inc()
}

func (pm *PrometheusMetrics) RecordApprovalResolved(decision string, latency time.Duration) {
	if pm == nil {
		return
	}
	pm.approvalsResolved.WithLabelValues(decision).Inc()
	pm.approvalLatency.Observe(latency.Seconds())
}

func (pm *PrometheusMetrics) RecordApprovalTimeout() {
	if pm == nil {
		return
	}
	pm.approvalsTimeouts.Inc()
}

func (pm *PrometheusMetrics) SetActiveWorkflows(n int) {
	if pm == nil {
		return
	}
	pm.activeWorkflows.Set(float64(n))
}

func (pm *PrometheusMetrics) SetApprovalsBacklog(n int) {
	if pm == nil {
		return
	}
	pm.approvalsBacklog.Set(float64(n))
}

func (pm *PrometheusMetrics) RecordWebhookDuplicate() {
	if pm == nil {
		return
	}
	pm.webhookDuplicates.Inc()
}
