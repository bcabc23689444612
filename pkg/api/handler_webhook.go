package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/graph/emit"
	"github.com/flowbase/orchestrator/pkg/approval"
)

// webhookSignatureHeader carries the hex-encoded HMAC-SHA256 of the raw
// request body, keyed on Deps.WebhookSecret (spec §4.8, §6
// tracker_webhook_secret).
const webhookSignatureHeader = "X-Tracker-Signature"

// webhookPayload is the tracker's callback body (spec §4.8 "Webhook payload
// (consumed)"): issue_id plus its new free-text state, mapped onto
// approval.Decision via Deps.ApprovedStates/RejectedStates.
type webhookPayload struct {
	IssueID string `json:"issue_id"`
	State   string `json:"state"`
}

// webhookHandler implements POST /webhooks/approval: verifies the tracker's
// signature, maps the delivered state to a decision, resolves the matching
// approval request, and resumes the suspended run asynchronously. It always
// answers 202 once the signature and payload check out, including on replay
// (spec §8 Scenario E) and on an unrecognised state, which is a no-op.
func (s *Server) webhookHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	if !s.verifyWebhookSignature(body, c.Request().Header.Get(webhookSignatureHeader)) {
		return echo.NewHTTPError(http.StatusUnauthorized, "bad signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.IssueID == "" || payload.State == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	decision, recognised := mapWebhookState(payload.State, s.deps.ApprovedStates, s.deps.RejectedStates)
	if !recognised {
		return c.JSON(http.StatusAccepted, map[string]any{"status": "ignored"})
	}

	ticket, err := s.deps.Approvals.Resolve(c.Request().Context(), payload.IssueID, decision, "tracker-webhook", "")
	if errors.Is(err, approval.ErrAlreadyResolved) {
		s.deps.Metrics.RecordWebhookDuplicate()
		return c.JSON(http.StatusAccepted, map[string]any{"status": "duplicate"})
	}
	if err != nil {
		s.logger.Error("webhook: resolve failed", "issue_id", payload.IssueID, "error", err)
		return c.JSON(http.StatusAccepted, map[string]any{"status": "error"})
	}

	go s.resumeFromWebhook(graph.ResumeTicket{
		ThreadID:     ticket.ThreadID,
		CheckpointID: ticket.CheckpointID,
		Decision:     ticket.Decision,
	})

	return c.JSON(http.StatusAccepted, map[string]any{"status": "accepted"})
}

// resumeFromWebhook runs on its own goroutine, detached from the request
// context that returned 202 before this completes. Engine events it
// produces still reach any listener subscribed to the thread, since
// Subscribers fan out independently of which goroutine calls Engine.Resume.
func (s *Server) resumeFromWebhook(ticket graph.ResumeTicket) {
	ctx := context.Background()
	if _, err := s.deps.Engine.Resume(ctx, ticket); err != nil {
		s.logger.Error("webhook: resume failed", "thread_id", ticket.ThreadID, "error", err)
		s.deps.Subscribers.Emit(emit.Event{ThreadID: ticket.ThreadID, Type: "run_failed", Msg: err.Error()})
	}
}

func (s *Server) verifyWebhookSignature(body []byte, provided string) bool {
	if provided == "" || s.deps.WebhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.deps.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// mapWebhookState maps a tracker's free-text issue state onto an
// approval.Decision via the configured approved/rejected sets. The second
// return value is false when the state belongs to neither set, in which
// case the caller treats the delivery as a no-op (spec §4.8).
func mapWebhookState(state string, approvedStates, rejectedStates []string) (approval.Decision, bool) {
	for _, s := range approvedStates {
		if s == state {
			return approval.DecisionApproved, true
		}
	}
	for _, s := range rejectedStates {
		if s == state {
			return approval.DecisionRejected, true
		}
	}
	return "", false
}
