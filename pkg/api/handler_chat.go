package api

import (
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/pkg/router"
)

// chatStreamRequest is the POST /chat/stream body (spec §4.8).
type chatStreamRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// chatStreamHandler implements spec §4.8's POST /chat/stream: always ask
// mode, bypassing the supervisor for a general query (scenario A) and
// redirecting task-shaped messages to /execute/stream (scenario B).
func (s *Server) chatStreamHandler(c *echo.Context) error {
	var req chatStreamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	intent := router.Classify(req.Message, graph.SessionAsk)

	sse := newSSEWriter(c)

	if intent.Type == router.IntentTaskSubmission {
		_ = sse.send("redirect", map[string]any{
			"endpoint": "/execute/stream",
			"task":     intent.TaskDescription,
		})
		return nil
	}

	threadID := threadIDFor(req.SessionID, uuid.NewString)
	userMsg, _ := graph.NewMessage(graph.RoleUser, req.Message)
	state := graph.WorkflowState{
		ThreadID:    threadID,
		Messages:    []graph.Message{userMsg},
		SessionMode: graph.SessionAsk,
	}

	result, err := s.deps.Agents.Run(c.Request().Context(), "conversational", state)
	if err != nil {
		_ = sse.send("error", map[string]any{"message": "failed to generate a response"})
		return nil
	}

	if reply := lastAssistantContent(result); reply != "" {
		_ = sse.send("content", map[string]any{"text": reply})
	}
	_ = sse.send("done", map[string]any{})
	return nil
}

func lastAssistantContent(state graph.WorkflowState) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == graph.RoleAssistant {
			return state.Messages[i].Content
		}
	}
	return ""
}
