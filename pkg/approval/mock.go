package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowbase/orchestrator/graph"
)

// MockIssueTracker is an in-memory IssueTracker for tests.
type MockIssueTracker struct {
	mu       sync.Mutex
	issues   map[string]bool // issueID -> open
	comments map[int][]string
	FailNext bool
}

// NewMockIssueTracker returns an empty mock tracker.
func NewMockIssueTracker() *MockIssueTracker {
	return &MockIssueTracker{
		issues:   make(map[string]bool),
		comments: make(map[int][]string),
	}
}

func (m *MockIssueTracker) CreateIssue(ctx context.Context, title, description string, priority graph.RiskLevel) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return "", "", fmt.Errorf("mock tracker: forced failure")
	}
	id := uuid.NewString()
	m.issues[id] = true
	return id, "https://tracker.example.com/issues/" + id, nil
}

func (m *MockIssueTracker) CommentOnPR(ctx context.Context, prNumber int, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[prNumber] = append(m.comments[prNumber], comment)
	return nil
}

func (m *MockIssueTracker) CloseIssue(ctx context.Context, issueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issueID] = false
	return nil
}

// Comments returns the comments recorded against a PR, for test assertions.
func (m *MockIssueTracker) Comments(prNumber int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.comments[prNumber]...)
}

// IsOpen reports whether an issue is still open, for test assertions.
func (m *MockIssueTracker) IsOpen(issueID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issues[issueID]
}

// MemoryStore is an in-memory Store for tests. Like PgxStore, Insert rejects
// a non-empty external_issue_id that is already in use; unlike PgxStore, it
// does not enforce (workflow_id, checkpoint_id) uniqueness.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Request // keyed by RequestID
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Request)}
}

func (s *MemoryStore) Insert(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ExternalIssueID != "" {
		for _, r := range s.rows {
			if r.ExternalIssueID == req.ExternalIssueID {
				return ErrDuplicateExternalIssue
			}
		}
	}
	s.rows[req.RequestID] = req
	return nil
}

func (s *MemoryStore) GetByWorkflowCheckpoint(ctx context.Context, workflowID, checkpointID string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.WorkflowID == workflowID && r.CheckpointID == checkpointID {
			return r, nil
		}
	}
	return Request{}, ErrNotFound
}

func (s *MemoryStore) GetByExternalIssueID(ctx context.Context, externalIssueID string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ExternalIssueID == externalIssueID {
			return r, nil
		}
	}
	return Request{}, ErrNotFound
}

func (s *MemoryStore) GetByID(ctx context.Context, requestID string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[requestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Update(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[req.RequestID]; !ok {
		return ErrNotFound
	}
	s.rows[req.RequestID] = req
	return nil
}

func (s *MemoryStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.rows {
		if r.Status == StatusPending && r.CreatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
