package workflow

import (
	"context"
	"fmt"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/pkg/agent"
	"github.com/flowbase/orchestrator/pkg/approval"
	"github.com/flowbase/orchestrator/pkg/risk"
)

// findToolCall returns the first tool call named name on any assistant
// message in messages, searched newest-first since a node's delta may
// contain more than one assistant turn (hop-limited tool-call loop) and only
// the latest coordination call should drive routing.
func findToolCall(messages []graph.Message, name string) (*graph.ToolCall, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != graph.RoleAssistant {
			continue
		}
		for _, tc := range messages[i].ToolCalls {
			if tc.Name == name {
				call := tc
				return &call, true
			}
		}
	}
	return nil, false
}

func argString(args map[string]any, key string) string {
	v, ok := args[key].(string)
	if !ok {
		return ""
	}
	return v
}

func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func argObject(args map[string]any, key string) map[string]any {
	v, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

// ConversationalNode wraps the "conversational" agent, used both as the
// graph's ask-mode entry point and directly by the chat-stream handler
// (spec §4.8). It never proposes operations or routes to a worker; its
// result always terminates the run it is part of.
func ConversationalNode(agents *agent.Registry) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.WorkflowState) graph.NodeResult {
		delta, err := agents.Run(ctx, "conversational", state)
		if err != nil {
			return graph.NodeResult{Err: err}
		}
		return graph.NodeResult{Delta: delta, Route: graph.Stop()}
	})
}

// SupervisorNode invokes the "supervisor" agent and reads its routing
// decision off a route_to_agent tool call. workerNames is the closed set of
// valid targets; anything else (including no tool call at all) defaults to
// "end" rather than leaving next_agent unset, since the invariant in spec §3
// requires next_agent to always name a known node or "end".
func SupervisorNode(agents *agent.Registry, workerNames []string) graph.Node {
	valid := make(map[string]struct{}, len(workerNames))
	for _, w := range workerNames {
		valid[w] = struct{}{}
	}

	return graph.NodeFunc(func(ctx context.Context, state graph.WorkflowState) graph.NodeResult {
		delta, err := agents.Run(ctx, "supervisor", state)
		if err != nil {
			return graph.NodeResult{Err: err}
		}

		next := graph.EndNode
		decision := &graph.RoutingDecision{Agent: graph.EndNode, Reasoning: "no routing decision from supervisor"}
		if call, ok := findToolCall(delta.Messages, ToolRouteToAgent); ok {
			candidate := argString(call.Arguments, "agent")
			if _, ok := valid[candidate]; ok {
				next = candidate
			}
			decision = &graph.RoutingDecision{
				Agent:      next,
				Reasoning:  argString(call.Arguments, "reasoning"),
				Confidence: argFloat(call.Arguments, "confidence"),
			}
		}

		delta.NextAgent = next
		delta.RoutingDecision = decision
		return graph.NodeResult{Delta: delta}
	})
}

// WorkerNode invokes the named worker agent and translates its
// propose_operation / complete_task coordination calls into the state
// fields the supervisor/approval/end edges branch on (spec §4.6 edge
// table). If the agent issues neither call, the delta carries no routing
// signal and the worker->supervisor catch-all edge applies.
func WorkerNode(name string, agents *agent.Registry, assessor *risk.Assessor) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.WorkflowState) graph.NodeResult {
		delta, err := agents.Run(ctx, name, state)
		if err != nil {
			return graph.NodeResult{Err: err}
		}

		if call, ok := findToolCall(delta.Messages, ToolProposeOperation); ok {
			op := graph.PendingOperation{
				Kind:        argString(call.Arguments, "kind"),
				Target:      argString(call.Arguments, "target"),
				Environment: argString(call.Arguments, "environment"),
				Params:      argObject(call.Arguments, "params"),
			}
			assessment := assessor.Assess(op)

			delta.PendingOperation = &op
			delta.RiskLevel = assessment.RiskLevel
			delta.PendingAgent = name
			if assessment.RequiresApproval {
				delta.RequiresApproval = true
			}
			return graph.NodeResult{Delta: delta}
		}

		if _, ok := findToolCall(delta.Messages, ToolCompleteTask); ok {
			delta.NextAgent = graph.EndNode
			return graph.NodeResult{Delta: delta}
		}

		return graph.NodeResult{Delta: delta}
	})
}

// ApprovalNode requests human approval for the pending operation a worker
// just proposed and interrupts the run (spec §4.5, §4.6 step 6). It only
// runs on first entry to "approval"; the re-entry path after a resolution
// is handled directly by Engine.Resume, which routes straight to the
// pending worker or back to the supervisor without invoking this node
// again (DESIGN.md).
func ApprovalNode(manager *approval.Manager) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.WorkflowState) graph.NodeResult {
		if state.PendingOperation == nil {
			return graph.NodeResult{Err: fmt.Errorf("workflow: approval node entered with no pending operation")}
		}

		checkpointID, ok := graph.CheckpointIDFromContext(ctx)
		if !ok {
			return graph.NodeResult{Err: fmt.Errorf("workflow: approval node has no checkpoint id to attach")}
		}

		var pr *approval.PRContext
		if state.ProjectContext.PRNumber != 0 {
			pr = &approval.PRContext{Number: state.ProjectContext.PRNumber}
		}

		req, err := manager.CreateRequest(ctx, state.WorkflowID, state.ThreadID, checkpointID,
			state.PendingAgent, state.RiskLevel, *state.PendingOperation, pr)
		if err != nil {
			return graph.NodeResult{Err: err}
		}

		return graph.NodeResult{
			Delta: graph.WorkflowState{
				ApprovalRequestID: req.RequestID,
				ApprovalStatus:    graph.ApprovalPending,
			},
			Route: graph.Interrupt(req.RequestID),
		}
	})
}
