package workflow

import (
	"fmt"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/pkg/agent"
	"github.com/flowbase/orchestrator/pkg/approval"
	"github.com/flowbase/orchestrator/pkg/risk"
)

// DefaultWorkerNames is the fixed set of specialised worker agents named in
// spec §4.6's node list, in the order the supervisor's system prompt should
// present them.
var DefaultWorkerNames = []string{
	"feature_dev",
	"code_review",
	"infrastructure",
	"cicd",
	"documentation",
}

// Build registers the conversational/supervisor/worker/approval node table
// and their conditional edges on engine, per spec §4.6:
//
//	supervisor -> {worker, end}      on next_agent
//	worker     -> approval           when requires_approval
//	worker     -> end                when next_agent == end (complete_task)
//	worker     -> supervisor         otherwise (catch-all)
//	approval   -> (interrupt only; resume routing is Engine.Resume's job)
//
// Callers choose the entry node per run via Engine.Run's entryNode argument
// ("supervisor" for agent-mode runs, "conversational" for ask-mode runs);
// Build sets "supervisor" as the engine's start node, used when a run is
// given no entry node.
func Build(engine *graph.Engine, agents *agent.Registry, assessor *risk.Assessor, approvals *approval.Manager, workerNames []string) error {
	if len(workerNames) == 0 {
		workerNames = DefaultWorkerNames
	}

	if err := engine.Add("conversational", ConversationalNode(agents), nil); err != nil {
		return fmt.Errorf("workflow: registering conversational: %w", err)
	}
	if err := engine.Add("supervisor", SupervisorNode(agents, workerNames), nil); err != nil {
		return fmt.Errorf("workflow: registering supervisor: %w", err)
	}
	if err := engine.Add("approval", ApprovalNode(approvals), nil); err != nil {
		return fmt.Errorf("workflow: registering approval: %w", err)
	}

	for _, name := range workerNames {
		if err := engine.Add(name, WorkerNode(name, agents, assessor), nil); err != nil {
			return fmt.Errorf("workflow: registering worker %s: %w", name, err)
		}
	}

	for _, name := range workerNames {
		worker := name
		if err := engine.Connect("supervisor", worker, func(s graph.WorkflowState) bool {
			return s.NextAgent == worker
		}); err != nil {
			return fmt.Errorf("workflow: connecting supervisor->%s: %w", worker, err)
		}
	}
	if err := engine.Connect("supervisor", graph.EndNode, func(s graph.WorkflowState) bool {
		return s.NextAgent == graph.EndNode
	}); err != nil {
		return fmt.Errorf("workflow: connecting supervisor->end: %w", err)
	}

	for _, name := range workerNames {
		if err := engine.Connect(name, "approval", func(s graph.WorkflowState) bool {
			return s.RequiresApproval
		}); err != nil {
			return fmt.Errorf("workflow: connecting %s->approval: %w", name, err)
		}
		if err := engine.Connect(name, graph.EndNode, func(s graph.WorkflowState) bool {
			return s.NextAgent == graph.EndNode
		}); err != nil {
			return fmt.Errorf("workflow: connecting %s->end: %w", name, err)
		}
		// Catch-all: neither approval nor completion, so the worker hands
		// control back to the supervisor for the next routing decision.
		if err := engine.Connect(name, "supervisor", nil); err != nil {
			return fmt.Errorf("workflow: connecting %s->supervisor: %w", name, err)
		}
	}

	if err := engine.StartAt("supervisor"); err != nil {
		return fmt.Errorf("workflow: setting start node: %w", err)
	}
	return nil
}
