package tool

import "context"

// Tool defines the interface for executable tools that LLMs can invoke.
//
// A Tool is either a coordination tool the workflow engine watches for
// (route_to_agent, propose_operation, complete_task — see
// pkg/workflow.SyntheticTools) or a real side-effecting tool a worker agent
// can call (fetch_runbook, backed by HTTPTool). Implementations should:
//   - Validate input parameters
//   - Respect context cancellation and timeouts
//   - Return structured output as map[string]interface{}
//   - Handle errors gracefully with clear error messages
//   - Be idempotent when possible
//
// Example implementation:
//
//	type RunbookTool struct{ http *HTTPTool }
//
//	func (t *RunbookTool) Name() string {
//	    return "fetch_runbook"
//	}
//
//	func (t *RunbookTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
//	    url, ok := input["url"].(string)
//	    if !ok {
//	        return nil, errors.New("url parameter required")
//	    }
//	    return t.http.Call(ctx, map[string]interface{}{"method": "GET", "url": url})
//	}
//
// Example usage in the agent runtime:
//
//	out, err := registry.tools["fetch_runbook"].Call(ctx, map[string]interface{}{
//	    "url": "https://runbooks.internal/terraform-apply",
//	})
type Tool interface {
	// Name returns the unique identifier for this tool.
	//
	// The name must match the tool name in ToolSpec used by the LLM.
	// Names should be lowercase with underscores, following function naming conventions.
	//
	// Examples: "route_to_agent", "propose_operation", "fetch_runbook"
	Name() string

	// Call executes the tool with the provided input and returns the result.
	//
	// Parameters:
	//   - ctx: Context for cancellation, timeout, and metadata propagation
	//   - input: Tool parameters as key-value pairs (may be nil for parameterless tools)
	//
	// Returns:
	//   - map[string]interface{}: Tool execution result
	//   - error: Execution errors, validation errors, or context cancellation
	//
	// The input structure should match the Schema defined in the corresponding ToolSpec.
	// The output can be any structured data that the LLM can process.
	//
	// Implementations should:
	//   - Check ctx.Err() before expensive operations
	//   - Validate required input parameters
	//   - Return descriptive errors for invalid inputs
	//   - Include relevant metadata in the output
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}
