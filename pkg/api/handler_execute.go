package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/graph/emit"
)

// executeContext is the optional {context: {...}} payload on POST
// /execute/stream, mapped onto graph.ProjectContext (spec §4.8, §3
// project_context).
type executeContext struct {
	Repo     string `json:"repo"`
	Language string `json:"language"`
	Branch   string `json:"branch"`
	PRNumber int    `json:"pr_number"`
}

// executeStreamRequest is the POST /execute/stream body (spec §4.8).
type executeStreamRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	Context   executeContext `json:"context,omitempty"`
}

// executeStreamHandler implements spec §4.8's POST /execute/stream: assigns
// a workflow_id, reuses or creates a thread_id, and drives the Graph Engine
// to completion or interrupt, translating engine lifecycle events into the
// endpoint's event vocabulary (workflow_started, agent_selected, content,
// approval_requested, workflow_completed, error). The stream closes on the
// terminal engine event or on client disconnect, which cancels the run's
// context (spec §4.6 Cancellation).
func (s *Server) executeStreamHandler(c *echo.Context) error {
	var req executeStreamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	workflowID := uuid.NewString()
	threadID := threadIDFor(req.SessionID, uuid.NewString)

	userMsg, _ := graph.NewMessage(graph.RoleUser, req.Message)
	initial := graph.WorkflowState{
		WorkflowID:  workflowID,
		ThreadID:    threadID,
		Messages:    []graph.Message{userMsg},
		SessionMode: graph.SessionAgent,
		ProjectContext: graph.ProjectContext{
			Repo:     req.Context.Repo,
			Language: req.Context.Language,
			Branch:   req.Context.Branch,
			PRNumber: req.Context.PRNumber,
		},
	}

	sse := newSSEWriter(c)
	_ = sse.send("workflow_started", map[string]any{"workflow_id": workflowID, "thread_id": threadID})

	events, unsubscribe := s.deps.Subscribers.Subscribe(threadID)
	defer unsubscribe()

	ctx := c.Request().Context()
	go func() {
		if _, err := s.deps.Engine.Run(ctx, threadID, initial, "supervisor"); err != nil {
			s.deps.Subscribers.Emit(emit.Event{ThreadID: threadID, Type: "run_failed", Msg: err.Error()})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if s.forwardEngineEvent(ctx, sse, ev) {
				return nil
			}
		}
	}
}

// forwardEngineEvent translates one engine emit.Event into the endpoint's
// SSE vocabulary and writes it. It returns true when the event ends the
// stream.
func (s *Server) forwardEngineEvent(ctx context.Context, sse *sseWriter, ev emit.Event) bool {
	switch ev.Type {
	case "node_started":
		if isAgentNode(ev.NodeID) {
			_ = sse.send("agent_selected", map[string]any{"agent": ev.NodeID})
		}
		return false

	case "node_completed":
		if text := s.latestAssistantContent(ctx, ev.ThreadID); text != "" {
			_ = sse.send("content", map[string]any{"text": text})
		}
		return false

	case "approval_requested":
		data := map[string]any{"approval_request_id": ev.Meta["approval_request_id"]}
		if requestID, ok := ev.Meta["approval_request_id"].(string); ok && requestID != "" {
			if req, err := s.deps.Approvals.Get(ctx, requestID); err == nil {
				data["risk"] = string(req.RiskLevel)
				data["issue_url"] = req.ExternalIssueURL
			}
		}
		_ = sse.send("approval_requested", data)
		return false

	case "run_completed":
		_ = sse.send("workflow_completed", map[string]any{"thread_id": ev.ThreadID})
		return true

	case "run_failed":
		_ = sse.send("error", map[string]any{"message": ev.Msg})
		return true

	default:
		return false
	}
}

func isAgentNode(nodeID string) bool {
	switch nodeID {
	case "", "approval", graph.EndNode:
		return false
	default:
		return true
	}
}

// latestAssistantContent reads the thread's latest checkpoint and returns
// its most recent assistant message, used to surface a worker's reply as a
// "content" event after its node completes.
func (s *Server) latestAssistantContent(ctx context.Context, threadID string) string {
	cp, err := s.deps.Store.GetLatest(ctx, threadID)
	if err != nil {
		return ""
	}
	return lastAssistantContent(cp.State)
}
