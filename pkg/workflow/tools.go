// Package workflow wires the Agent Runtime (C3), Risk Assessor (C4), and
// Approval Manager (C5) onto the Graph Engine (C6): the supervisor/worker/
// approval/conversational node table and the synthetic tools a model uses
// to signal routing and operation-proposal decisions back into WorkflowState.
//
// The teacher has no equivalent of this file — dshills-langgraph-go ships
// the engine and leaves graph construction entirely to the caller. The node
// shapes here are grounded on the teacher's own examples under
// cmd/examples (NodeFunc closures over injected dependencies) (DESIGN.md).
package workflow

import (
	"context"

	"github.com/flowbase/orchestrator/graph/tool"
	"github.com/flowbase/orchestrator/pkg/catalog"
)

// ToolRouteToAgent, ToolProposeOperation, and ToolCompleteTask are the
// synthetic tool names the supervisor and worker nodes watch for on an
// assistant message's tool calls. They are not executed against any real
// system; calling them is how the model expresses a routing or
// approval-proposal decision, and echoTool simply hands the arguments back
// so the agent runtime's tool-call loop can complete its turn.
const (
	ToolRouteToAgent     = "route_to_agent"
	ToolProposeOperation = "propose_operation"
	ToolCompleteTask     = "complete_task"
)

// echoTool implements tool.Tool by returning its input unchanged. The
// synthetic coordination tools have no side effect of their own; the side
// effect is the node logic downstream inspecting the tool call that
// triggered them.
type echoTool struct{ name string }

func (t echoTool) Name() string { return t.name }

func (t echoTool) Call(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return input, nil
}

// ToolFetchRunbook lets the infrastructure and cicd agents pull a runbook
// page before proposing a risky operation (terraform_apply, deploy, ...).
// Unlike the coordination tools it has a real side effect: it is backed by
// graph/tool.HTTPTool, restricted here to a GET against the one parameter
// an agent controls.
const ToolFetchRunbook = "fetch_runbook"

// runbookTool adapts the general-purpose HTTPTool to the fetch_runbook
// contract.
type runbookTool struct{ http *tool.HTTPTool }

func (t runbookTool) Name() string { return ToolFetchRunbook }

func (t runbookTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return t.http.Call(ctx, map[string]interface{}{
		"method": "GET",
		"url":    input["url"],
	})
}

// SyntheticTools returns the executable tool.Tool implementations for the
// three coordination tools plus fetch_runbook, keyed by name, ready to
// merge into the map passed to agent.New.
func SyntheticTools() map[string]tool.Tool {
	return map[string]tool.Tool{
		ToolRouteToAgent:     echoTool{name: ToolRouteToAgent},
		ToolProposeOperation: echoTool{name: ToolProposeOperation},
		ToolCompleteTask:     echoTool{name: ToolCompleteTask},
		ToolFetchRunbook:     runbookTool{http: tool.NewHTTPTool()},
	}
}

// SyntheticToolDescriptors returns the catalog.ToolDescriptor entries for
// the coordination tools and fetch_runbook, so they can be merged into a
// Discoverer's static tool list. The coordination tools carry
// "universal"/critical tags so the minimal selection strategy always
// includes them: a supervisor that cannot call route_to_agent cannot route
// at all. fetch_runbook is a high-priority tool without the universal tag.
func SyntheticToolDescriptors() []catalog.ToolDescriptor {
	return []catalog.ToolDescriptor{
		{
			Name:        ToolRouteToAgent,
			Description: "Route the workflow to the named worker agent, or to \"end\" to terminate.",
			Server:      "internal",
			Tags:        []string{"universal", "routing"},
			Priority:    catalog.PriorityCritical,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"agent", "reasoning", "confidence"},
				"properties": map[string]any{
					"agent":      map[string]any{"type": "string"},
					"reasoning":  map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
			},
		},
		{
			Name:        ToolProposeOperation,
			Description: "Propose a concrete operation (deploy, migration, infra change, ...) that requires risk assessment before it runs.",
			Server:      "internal",
			Tags:        []string{"universal", "routing"},
			Priority:    catalog.PriorityCritical,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"kind", "target", "environment"},
				"properties": map[string]any{
					"kind":        map[string]any{"type": "string"},
					"target":      map[string]any{"type": "string"},
					"environment": map[string]any{"type": "string"},
					"params":      map[string]any{"type": "object"},
				},
			},
		},
		{
			Name:        ToolCompleteTask,
			Description: "Declare the current worker's task complete and return a summary result.",
			Server:      "internal",
			Tags:        []string{"universal", "routing"},
			Priority:    catalog.PriorityCritical,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"summary"},
				"properties": map[string]any{
					"summary": map[string]any{"type": "string"},
					"result":  map[string]any{"type": "object"},
				},
			},
		},
		{
			Name:        ToolFetchRunbook,
			Description: "Fetch a runbook or playbook page over HTTP before proposing a risky infrastructure or deployment operation.",
			Server:      "runbook-service",
			Tags:        []string{"infra", "runbook"},
			Priority:    catalog.PriorityHigh,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"url"},
				"properties": map[string]any{
					"url": map[string]any{"type": "string"},
				},
			},
		},
	}
}
