// Package approval implements the Approval Manager (C5): creates and
// resolves human-in-the-loop approval requests, mirroring state to an
// external issue tracker and a relational store (spec §4.5).
//
// The teacher (dshills-langgraph-go) has no HITL/issue-tracker concept at
// all — this package is new, grounded on codeready-toolchain-tarsy's
// service+store layering and its golang-migrate/pgx use in
// pkg/database/client.go (DESIGN.md).
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowbase/orchestrator/graph"
)

// Status is the lifecycle of an ApprovalRequest row (spec §3).
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Decision is the outcome a resolver applies to a pending request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Request is the persisted ApprovalRequest row of spec §3.
type Request struct {
	RequestID        string
	WorkflowID       string
	ThreadID         string
	CheckpointID     string
	AgentName        string
	RiskLevel        graph.RiskLevel
	PendingOperation graph.PendingOperation
	Status           Status
	CreatedAt        time.Time
	ResolvedAt       *time.Time
	ResolverIdentity string
	RejectionReason  string
	ExternalIssueID  string
	ExternalIssueURL string
	ExternalPRNumber int
}

// PRContext is the optional pull-request linkage passed to create_request
// (spec §4.5 step d).
type PRContext struct {
	Number int
	URL    string
}

// ResumeTicket is handed to the Graph Engine's Resume after a request
// resolves (spec §4.5 "Returns a ResumeTicket").
type ResumeTicket struct {
	ThreadID     string
	CheckpointID string
	Decision     graph.ApprovalStatus
}

// Sentinel / typed errors for the C5 error surface (spec §7).
var (
	// ErrAlreadyResolved is returned by Resolve when the row's status is no
	// longer pending; the row is left unchanged and the ticket returned with
	// this error carries its existing terminal state.
	ErrAlreadyResolved = errors.New("approval: request already resolved")

	// ErrNotFound is returned when no row matches the given external issue
	// ID or request ID.
	ErrNotFound = errors.New("approval: request not found")

	// ErrDuplicateExternalIssue signals a store-level unique-constraint
	// violation on external_issue_id, which should never happen given
	// create_request's natural-key idempotency but is surfaced distinctly
	// in case the store detects it.
	ErrDuplicateExternalIssue = errors.New("approval: external issue id already in use")
)

// IssueTracker is the out-of-scope external collaborator (spec §1): an
// HTTP API that creates issues and accepts PR comments. Implementations:
// HTTPIssueTracker (production) and MockIssueTracker (tests).
type IssueTracker interface {
	// CreateIssue opens a tracker issue for a pending approval and returns
	// its external ID and URL.
	CreateIssue(ctx context.Context, title, description string, priority graph.RiskLevel) (issueID, issueURL string, err error)

	// CommentOnPR posts a comment linking the approval issue on the given
	// pull request (spec §4.5 step d).
	CommentOnPR(ctx context.Context, prNumber int, comment string) error

	// CloseIssue marks the tracker issue resolved, best-effort cleanup for
	// the "failure after insert, before issue-id recorded" path (spec §4.5).
	CloseIssue(ctx context.Context, issueID string) error
}

// Store is the persistence contract C5 needs: the Postgres-flavored
// approval_requests table of spec §6, accessed through pgx (DESIGN.md).
type Store interface {
	Insert(ctx context.Context, req Request) error
	GetByWorkflowCheckpoint(ctx context.Context, workflowID, checkpointID string) (Request, error)
	GetByExternalIssueID(ctx context.Context, externalIssueID string) (Request, error)
	GetByID(ctx context.Context, requestID string) (Request, error)
	Update(ctx context.Context, req Request) error
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Request, error)
	CountByStatus(ctx context.Context, status Status) (int, error)
	Close() error
}

// Metrics is the narrow slice of graph.PrometheusMetrics the manager drives
// (approvals_created_total, approvals_resolved_total, approvals_timeouts_total,
// approval_latency_seconds, approvals_backlog — spec §4.9).
type Metrics interface {
	RecordApprovalCreated()
	RecordApprovalResolved(decision string, latency time.Duration)
	RecordApprovalTimeout()
	SetApprovalsBacklog(n int)
}

// Manager implements C5's create_request / resolve / expire_stale
// operations.
type Manager struct {
	store   Store
	tracker IssueTracker
	metrics Metrics
}

// New constructs a Manager.
func New(store Store, tracker IssueTracker, metrics Metrics) *Manager {
	return &Manager{store: store, tracker: tracker, metrics: metrics}
}

// CreateRequest implements spec §4.5's create_request transactional
// sequence: insert pending row, open a tracker issue, record its id/url,
// optionally comment on a linked PR. Duplicate attempts for the same
// (workflowID, checkpointID) return the existing row rather than creating a
// second one (natural-key idempotency).
func (m *Manager) CreateRequest(ctx context.Context, workflowID, threadID, checkpointID, agentName string, riskLevel graph.RiskLevel, op graph.PendingOperation, pr *PRContext) (Request, error) {
	if existing, err := m.store.GetByWorkflowCheckpoint(ctx, workflowID, checkpointID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Request{}, fmt.Errorf("approval: checking for existing request: %w", err)
	}

	req := Request{
		RequestID:        uuid.NewString(),
		WorkflowID:       workflowID,
		ThreadID:         threadID,
		CheckpointID:     checkpointID,
		AgentName:        agentName,
		RiskLevel:        riskLevel,
		PendingOperation: op,
		Status:           StatusPending,
		CreatedAt:        time.Now(),
	}
	if pr != nil {
		req.ExternalPRNumber = pr.Number
	}

	// (a) insert with status=pending.
	if err := m.store.Insert(ctx, req); err != nil {
		return Request{}, fmt.Errorf("approval: inserting request: %w", err)
	}

	// (b) create the tracker issue.
	title := fmt.Sprintf("[%s] Approval required: %s %s", riskLevel, op.Kind, op.Target)
	description := fmt.Sprintf(
		"Workflow %s requests approval to run %q against %q in %q (risk: %s).",
		workflowID, op.Kind, op.Target, op.Environment, riskLevel,
	)
	issueID, issueURL, err := m.tracker.CreateIssue(ctx, title, description, riskLevel)
	if err != nil {
		// (a) succeeded but (b) failed: mark the row expired rather than
		// leaving a pending row with no external issue to ever resolve it.
		req.Status = StatusExpired
		_ = m.store.Update(ctx, req)
		return Request{}, fmt.Errorf("approval: creating tracker issue: %w", err)
	}

	// (c) update the row with the external issue reference.
	req.ExternalIssueID = issueID
	req.ExternalIssueURL = issueURL
	if err := m.store.Update(ctx, req); err != nil {
		// The issue now exists in the tracker with nothing pointing back to
		// it; best-effort clean it up since the row never recorded it.
		_ = m.tracker.CloseIssue(ctx, issueID)
		return Request{}, fmt.Errorf("approval: recording external issue id: %w", err)
	}

	// (d) comment on the linked PR, if any.
	if pr != nil && pr.Number != 0 {
		comment := fmt.Sprintf("Approval requested: %s", issueURL)
		if err := m.tracker.CommentOnPR(ctx, pr.Number, comment); err != nil {
			// Non-fatal: the approval row and issue are already durable.
			_ = err
		}
	}

	if m.metrics != nil {
		m.metrics.RecordApprovalCreated()
	}
	return req, nil
}

// Resolve implements spec §4.5's resolve operation. Idempotent: resolving
// an already-terminal row leaves it unchanged and returns a ticket carrying
// its existing terminal state together with ErrAlreadyResolved, whether the
// requested decision matches that state or differs from it (spec
// §8 "called with a different decision on an already-resolved row returns
// AlreadyResolved").
func (m *Manager) Resolve(ctx context.Context, externalIssueID string, decision Decision, resolverIdentity, reason string) (ResumeTicket, error) {
	req, err := m.store.GetByExternalIssueID(ctx, externalIssueID)
	if err != nil {
		return ResumeTicket{}, fmt.Errorf("approval: %w", err)
	}

	if req.Status != StatusPending {
		return ResumeTicket{
			ThreadID:     req.ThreadID,
			CheckpointID: req.CheckpointID,
			Decision:     toWorkflowStatus(req.Status),
		}, ErrAlreadyResolved
	}

	now := time.Now()
	req.Status = Status(decision)
	req.ResolvedAt = &now
	req.ResolverIdentity = resolverIdentity
	req.RejectionReason = reason

	if err := m.store.Update(ctx, req); err != nil {
		return ResumeTicket{}, fmt.Errorf("approval: updating request: %w", err)
	}

	if m.metrics != nil {
		m.metrics.RecordApprovalResolved(string(decision), now.Sub(req.CreatedAt))
	}

	return ResumeTicket{
		ThreadID:     req.ThreadID,
		CheckpointID: req.CheckpointID,
		Decision:     toWorkflowStatus(req.Status),
	}, nil
}

// ExpireStale implements spec §4.5's background sweep: pending requests
// older than timeout move to expired, one counter increment per expiration.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	cutoff := now.Add(-timeout)
	stale, err := m.store.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("approval: listing stale requests: %w", err)
	}

	count := 0
	for _, req := range stale {
		req.Status = StatusExpired
		req.ResolvedAt = &now
		if err := m.store.Update(ctx, req); err != nil {
			continue
		}
		if m.metrics != nil {
			m.metrics.RecordApprovalTimeout()
		}
		count++
	}
	return count, nil
}

// Get looks up a request by its internal request_id, used by the streaming
// API to attach an external_issue_url to the approval_requested event it
// forwards from the engine's interrupt (spec §4.8).
func (m *Manager) Get(ctx context.Context, requestID string) (Request, error) {
	req, err := m.store.GetByID(ctx, requestID)
	if err != nil {
		return Request{}, fmt.Errorf("approval: %w", err)
	}
	return req, nil
}

// RefreshBacklogGauge recomputes approvals_backlog from the store's current
// pending count (spec §4.9 gauge).
func (m *Manager) RefreshBacklogGauge(ctx context.Context) error {
	if m.metrics == nil {
		return nil
	}
	n, err := m.store.CountByStatus(ctx, StatusPending)
	if err != nil {
		return err
	}
	m.metrics.SetApprovalsBacklog(n)
	return nil
}

func toWorkflowStatus(s Status) graph.ApprovalStatus {
	switch s {
	case StatusApproved:
		return graph.ApprovalApproved
	case StatusRejected:
		return graph.ApprovalRejected
	case StatusExpired:
		return graph.ApprovalExpired
	default:
		return graph.ApprovalPending
	}
}
