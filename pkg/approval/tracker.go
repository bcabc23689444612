package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/flowbase/orchestrator/graph"
)

// HTTPIssueTracker implements IssueTracker against a generic REST-flavored
// issue tracker, grounded on graph/tool/http.go's plain *http.Client
// request/response shape.
type HTTPIssueTracker struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHTTPIssueTracker returns a tracker client that authenticates with a
// bearer token against baseURL (spec §6 tracker.base_url / tracker.token).
func NewHTTPIssueTracker(baseURL, token string) *HTTPIssueTracker {
	return &HTTPIssueTracker{
		client:  &http.Client{},
		baseURL: baseURL,
		token:   token,
	}
}

type createIssueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type createIssueResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (t *HTTPIssueTracker) CreateIssue(ctx context.Context, title, description string, priority graph.RiskLevel) (string, string, error) {
	payload, err := json.Marshal(createIssueRequest{Title: title, Description: description, Priority: string(priority)})
	if err != nil {
		return "", "", fmt.Errorf("marshalling create-issue request: %w", err)
	}

	var out createIssueResponse
	if err := t.do(ctx, http.MethodPost, "/issues", payload, &out); err != nil {
		return "", "", err
	}
	return out.ID, out.URL, nil
}

type commentRequest struct {
	Body string `json:"body"`
}

func (t *HTTPIssueTracker) CommentOnPR(ctx context.Context, prNumber int, comment string) error {
	payload, err := json.Marshal(commentRequest{Body: comment})
	if err != nil {
		return fmt.Errorf("marshalling comment request: %w", err)
	}
	path := fmt.Sprintf("/pulls/%d/comments", prNumber)
	return t.do(ctx, http.MethodPost, path, payload, nil)
}

func (t *HTTPIssueTracker) CloseIssue(ctx context.Context, issueID string) error {
	payload, err := json.Marshal(map[string]string{"status": "closed"})
	if err != nil {
		return fmt.Errorf("marshalling close-issue request: %w", err)
	}
	path := fmt.Sprintf("/issues/%s", issueID)
	return t.do(ctx, http.MethodPatch, path, payload, nil)
}

func (t *HTTPIssueTracker) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building tracker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling issue tracker: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading tracker response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("issue tracker returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding tracker response: %w", err)
		}
	}
	return nil
}
