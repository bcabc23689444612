// Package graph provides the workflow orchestration engine: the compiled
// state-machine graph, its checkpointer, and the interrupt/resume protocol
// used for human-in-the-loop approval.
package graph

import "time"

// Role identifies who produced a Message. It is a closed set — there is no
// way to construct a Message with an invalid role through NewMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is an LLM-issued request to execute a named tool with structured
// arguments. It appears on assistant messages only.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is the closed sum type from the Design Notes: System | User |
// Assistant{tool_calls?} | Tool{tool_call_id}. Go has no tagged unions, so
// the invariant ("a tool message without tool_call_id is invalid") is
// enforced at construction time by NewMessage rather than by the type
// system, which is the idiomatic substitute this codebase uses elsewhere
// for closed variants.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewMessage validates role-specific invariants before returning a Message.
func NewMessage(role Role, content string) (Message, error) {
	if role == RoleTool {
		return Message{}, &ValidationError{Field: "tool_call_id", Reason: "tool message requires NewToolMessage"}
	}
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return Message{}, &ValidationError{Field: "role", Reason: "unknown role " + string(role)}
	}
	return Message{Role: role, Content: content}, nil
}

// NewToolMessage constructs a Tool-role message; toolCallID must be
// non-empty, matching the tool_call_id of the assistant ToolCall it answers.
// This catches the "tool message without tool_call_id" bug class at the
// boundary, per the Design Notes.
func NewToolMessage(toolCallID, content string) (Message, error) {
	if toolCallID == "" {
		return Message{}, &ValidationError{Field: "tool_call_id", Reason: "tool message without tool_call_id"}
	}
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}, nil
}

// NewAssistantMessage constructs an Assistant-role message, optionally
// carrying tool calls the LLM issued.
func NewAssistantMessage(content string, toolCalls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ValidationError reports a construction-time invariant violation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// ApprovalStatus is the lifecycle of a WorkflowState's pending approval.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// RiskLevel classifies a pending operation's blast radius (C4 Risk Assessor).
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// SessionMode biases intent classification thresholds (C7).
type SessionMode string

const (
	SessionAsk   SessionMode = "ask"
	SessionAgent SessionMode = "agent"
)

// EndNode is the sentinel NextAgent value meaning "terminate the run".
const EndNode = "end"

// RoutingDecision records why the supervisor picked the next agent.
type RoutingDecision struct {
	Agent      string  `json:"agent"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// PendingOperation describes an operation awaiting approval before a worker
// node is allowed to carry it out.
type PendingOperation struct {
	Kind        string         `json:"kind"`
	Target      string         `json:"target"`
	Params      map[string]any `json:"params,omitempty"`
	Environment string         `json:"environment"`
}

// ProjectContext is workspace metadata threaded through every node.
type ProjectContext struct {
	Repo     string `json:"repo"`
	Language string `json:"language"`
	Branch   string `json:"branch,omitempty"`
	// PRNumber is the pull request this run is associated with, if any
	// (spec §4.5 pr_context, scenario D's context.pr_number).
	PRNumber int `json:"pr_number,omitempty"`
}

// CostSnapshot is the running token/USD accumulator for a thread
// (SPEC_FULL §3.1, grounded on the teacher's CostTracker).
type CostSnapshot struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	USD              float64 `json:"usd"`
}

// WorkflowState is the value transported between nodes (spec §3). Unlike the
// teacher's library, which is generic over an arbitrary state type S, this
// system has exactly one state shape, so WorkflowState is a concrete struct.
type WorkflowState struct {
	Messages   []Message `json:"messages"`
	ThreadID   string    `json:"thread_id"`
	WorkflowID string    `json:"workflow_id"`

	CurrentAgent string `json:"current_agent"`
	NextAgent    string `json:"next_agent"`

	RoutingDecision *RoutingDecision `json:"routing_decision,omitempty"`

	PendingOperation  *PendingOperation `json:"pending_operation,omitempty"`
	RequiresApproval  bool              `json:"requires_approval"`
	ApprovalStatus    ApprovalStatus    `json:"approval_status"`
	ApprovalRequestID string            `json:"approval_request_id,omitempty"`
	// PendingAgent records the worker node that requested approval, so the
	// approval node can route back to it on an "approved" resume (spec §4.6).
	PendingAgent string `json:"pending_agent,omitempty"`

	RiskLevel RiskLevel `json:"risk_level"`

	TaskResult map[string]any `json:"task_result,omitempty"`

	ProjectContext ProjectContext `json:"project_context"`
	SessionMode    SessionMode    `json:"session_mode"`

	CapturedInsights []string `json:"captured_insights,omitempty"`

	Cost    CostSnapshot `json:"cost"`
	TraceID string       `json:"trace_id,omitempty"`

	// HopLimitReached is set by the Agent Runtime (C3) when a node's own
	// per-invocation tool-call loop hit its hop limit (spec §4.3 step 5).
	HopLimitReached bool `json:"hop_limit_reached,omitempty"`
}

// Reducer merges a partial state update (delta) into the previous state
// (teacher's Reducer[S] concept, instantiated concretely since this system
// has a single state shape rather than an arbitrary type parameter).
// Messages and CapturedInsights are appended, TaskResult keys are merged
// into the previous map, and the Cost counters are summed. RequiresApproval
// is only ever set to true (a false delta leaves it unchanged), and
// HopLimitReached is always taken from the delta. Every other field is
// last-write-wins when the delta sets it.
type Reducer func(prev, delta WorkflowState) WorkflowState

// DefaultReducer implements the append-messages / overwrite-scalars merge
// semantics spec §4.6 step 4 requires.
func DefaultReducer(prev, delta WorkflowState) WorkflowState {
	out := prev

	if len(delta.Messages) > 0 {
		out.Messages = append(append([]Message{}, prev.Messages...), delta.Messages...)
	}
	if delta.ThreadID != "" {
		out.ThreadID = delta.ThreadID
	}
	if delta.WorkflowID != "" {
		out.WorkflowID = delta.WorkflowID
	}
	if delta.CurrentAgent != "" {
		out.CurrentAgent = delta.CurrentAgent
	}
	if delta.NextAgent != "" {
		out.NextAgent = delta.NextAgent
	}
	if delta.RoutingDecision != nil {
		out.RoutingDecision = delta.RoutingDecision
	}
	if delta.PendingOperation != nil {
		out.PendingOperation = delta.PendingOperation
	}
	if delta.RequiresApproval {
		out.RequiresApproval = true
	}
	if delta.ApprovalStatus != "" {
		out.ApprovalStatus = delta.ApprovalStatus
	}
	if delta.ApprovalRequestID != "" {
		out.ApprovalRequestID = delta.ApprovalRequestID
	}
	if delta.PendingAgent != "" {
		out.PendingAgent = delta.PendingAgent
	}
	if delta.RiskLevel != "" {
		out.RiskLevel = delta.RiskLevel
	}
	if delta.TaskResult != nil {
		if out.TaskResult == nil {
			out.TaskResult = map[string]any{}
		}
		for k, v := range delta.TaskResult {
			out.TaskResult[k] = v
		}
	}
	if delta.ProjectContext != (ProjectContext{}) {
		out.ProjectContext = delta.ProjectContext
	}
	if delta.SessionMode != "" {
		out.SessionMode = delta.SessionMode
	}
	if len(delta.CapturedInsights) > 0 {
		out.CapturedInsights = append(append([]string{}, prev.CapturedInsights...), delta.CapturedInsights...)
	}
	out.Cost.PromptTokens += delta.Cost.PromptTokens
	out.Cost.CompletionTokens += delta.Cost.CompletionTokens
	out.Cost.USD += delta.Cost.USD
	if delta.TraceID != "" {
		out.TraceID = delta.TraceID
	}
	out.HopLimitReached = delta.HopLimitReached

	return out
}

// ClearApproval resets the approval fields after a resume decision has been
// applied (spec §4.6 resume protocol step b).
func (s WorkflowState) ClearApproval(decision ApprovalStatus) WorkflowState {
	s.ApprovalStatus = decision
	s.RequiresApproval = false
	s.PendingOperation = nil
	return s
}

// LastUserMessage returns the content of the most recent user message,
// truncated to maxLen bytes (spec §4.3 step 1). It returns "" if there
// is no user message.
func (s WorkflowState) LastUserMessage(maxLen int) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			c := s.Messages[i].Content
			if len(c) > maxLen {
				return c[:maxLen]
			}
			return c
		}
	}
	return ""
}

// Now is the injection point for the current time, overridden in tests so
// checkpoint timestamps are deterministic.
var Now = time.Now
