package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/orchestrator/graph"
)

func newTestManager() (*Manager, *MemoryStore, *MockIssueTracker) {
	store := NewMemoryStore()
	tracker := NewMockIssueTracker()
	return New(store, tracker, nil), store, tracker
}

func testOp() graph.PendingOperation {
	return graph.PendingOperation{Kind: "deploy", Target: "payments-api", Environment: "production"}
}

func TestCreateRequest_OpensIssueAndRecordsIt(t *testing.T) {
	mgr, store, tracker := newTestManager()
	ctx := context.Background()

	req, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskCritical, testOp(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ExternalIssueID)
	assert.NotEmpty(t, req.ExternalIssueURL)
	assert.Equal(t, StatusPending, req.Status)
	assert.True(t, tracker.IsOpen(req.ExternalIssueID))

	stored, err := store.GetByWorkflowCheckpoint(ctx, "wf-1", "cp-1")
	require.NoError(t, err)
	assert.Equal(t, req.RequestID, stored.RequestID)
}

func TestCreateRequest_CommentsOnLinkedPR(t *testing.T) {
	mgr, _, tracker := newTestManager()
	ctx := context.Background()

	req, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), &PRContext{Number: 42})
	require.NoError(t, err)

	comments := tracker.Comments(42)
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], req.ExternalIssueURL)
}

func TestCreateRequest_IdempotentByWorkflowCheckpoint(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	first, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), nil)
	require.NoError(t, err)

	second, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), nil)
	require.NoError(t, err)

	assert.Equal(t, first.RequestID, second.RequestID)
	assert.Equal(t, first.ExternalIssueID, second.ExternalIssueID)
}

func TestCreateRequest_TrackerFailureExpiresRow(t *testing.T) {
	mgr, store, tracker := newTestManager()
	ctx := context.Background()
	tracker.FailNext = true

	_, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), nil)
	require.Error(t, err)

	stored, err := store.GetByWorkflowCheckpoint(ctx, "wf-1", "cp-1")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, stored.Status)
}

func TestResolve_ApprovedReturnsResumeTicket(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	req, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), nil)
	require.NoError(t, err)

	ticket, err := mgr.Resolve(ctx, req.ExternalIssueID, DecisionApproved, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", ticket.ThreadID)
	assert.Equal(t, "cp-1", ticket.CheckpointID)
	assert.Equal(t, graph.ApprovalApproved, ticket.Decision)
}

func TestResolve_RejectedRecordsReason(t *testing.T) {
	mgr, store, _ := newTestManager()
	ctx := context.Background()

	req, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), nil)
	require.NoError(t, err)

	ticket, err := mgr.Resolve(ctx, req.ExternalIssueID, DecisionRejected, "bob", "too risky before the freeze")
	require.NoError(t, err)
	assert.Equal(t, graph.ApprovalRejected, ticket.Decision)

	stored, err := store.GetByExternalIssueID(ctx, req.ExternalIssueID)
	require.NoError(t, err)
	assert.Equal(t, "too risky before the freeze", stored.RejectionReason)
	assert.NotNil(t, stored.ResolvedAt)
}

func TestResolve_AlreadyResolvedIsIdempotent(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	req, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), nil)
	require.NoError(t, err)

	_, err = mgr.Resolve(ctx, req.ExternalIssueID, DecisionApproved, "alice", "")
	require.NoError(t, err)

	ticket, err := mgr.Resolve(ctx, req.ExternalIssueID, DecisionApproved, "alice", "")
	require.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, graph.ApprovalApproved, ticket.Decision)
}

func TestResolve_UnknownIssueIDReturnsNotFound(t *testing.T) {
	mgr, _, _ := newTestManager()
	_, err := mgr.Resolve(context.Background(), "does-not-exist", DecisionApproved, "alice", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExpireStale_MovesOldPendingRequestsToExpired(t *testing.T) {
	mgr, store, _ := newTestManager()
	ctx := context.Background()

	req, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), nil)
	require.NoError(t, err)

	stale := req
	stale.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Update(ctx, stale))

	n, err := mgr.ExpireStale(ctx, time.Now(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	updated, err := store.GetByExternalIssueID(ctx, req.ExternalIssueID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, updated.Status)
}

func TestExpireStale_LeavesFreshPendingRequestsAlone(t *testing.T) {
	mgr, store, _ := newTestManager()
	ctx := context.Background()

	req, err := mgr.CreateRequest(ctx, "wf-1", "thread-1", "cp-1", "infrastructure", graph.RiskHigh, testOp(), nil)
	require.NoError(t, err)

	n, err := mgr.ExpireStale(ctx, time.Now(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	unchanged, err := store.GetByExternalIssueID(ctx, req.ExternalIssueID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, unchanged.Status)
}
