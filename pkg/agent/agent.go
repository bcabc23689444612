// Package agent implements the Agent Runtime (C3): the per-agent loop that
// turns a WorkflowState into an LLM call, executes any tool calls the model
// issues, and returns a state delta for the Graph Engine to merge.
package agent

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/graph/model"
	"github.com/flowbase/orchestrator/graph/tool"
	"github.com/flowbase/orchestrator/pkg/catalog"
)

// DefaultHopLimit is the per-invocation tool-call loop bound (spec §4.3
// step 5).
const DefaultHopLimit = 8

// DefaultTaskDescriptionMaxLen truncates the task description used for
// tool selection, never the messages actually sent to the LLM (spec §4.3
// step 1).
const DefaultTaskDescriptionMaxLen = 500

// Config is an agent's static configuration: its system prompt, catalog
// loading strategy, LLM call parameters, and per-invocation hop limit.
type Config struct {
	Name         string
	SystemPrompt string
	Strategy     catalog.Strategy
	Temperature  float64
	MaxTokens    int
	HopLimit     int
}

// binding is the cached result of binding a tool set to an LLM: in this
// codebase's ChatModel interface there is no separate "bind" call, so the
// cached value is simply the ToolSpec list itself, keyed by (agent name,
// tool content hash) so an unchanged catalog selection skips recomputing
// ToolSpecs.
type binding struct {
	toolSpecs []model.ToolSpec
}

// Registry is the struct-of-functions agent runtime: a map of agent name to
// Config plus the shared dependencies (catalog, chat model, tool
// executors) and the LLM-binding LRU cache keyed by (agent_name, tool_hash)
// (spec §4.3 step 3, Design Notes §9).
type Registry struct {
	agents      map[string]Config
	catalog     *catalog.Catalog
	chatModel   model.ChatModel
	tools       map[string]tool.Tool
	bindings    *lru.Cache[string, binding]
	retryPolicy graph.RetryPolicy
}

// New builds a Registry over the given agent configs, catalog, chat model,
// and executable tools. tools is keyed by tool name, matching
// catalog.ToolDescriptor.Name.
func New(agents []Config, cat *catalog.Catalog, chatModel model.ChatModel, tools map[string]tool.Tool) (*Registry, error) {
	cache, err := lru.New[string, binding](512)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Config, len(agents))
	for _, a := range agents {
		byName[a.Name] = a
	}
	return &Registry{
		agents:      byName,
		catalog:     cat,
		chatModel:   chatModel,
		tools:       tools,
		bindings:    cache,
		retryPolicy: graph.DefaultLLMRetryPolicy(),
	}, nil
}

// Run executes one agent invocation against state and returns the resulting
// state delta, following the 6-step algorithm of spec §4.3.
func (r *Registry) Run(ctx context.Context, agentName string, state graph.WorkflowState) (graph.WorkflowState, error) {
	cfg, ok := r.agents[agentName]
	if !ok {
		return graph.WorkflowState{}, fmt.Errorf("agent: unknown agent %q", agentName)
	}

	// Step 1: task description for tool selection only.
	taskDescription := state.LastUserMessage(DefaultTaskDescriptionMaxLen)

	// Step 2: ask C2 for a tool set.
	sel, err := r.catalog.Select(ctx, taskDescription, agentName, cfg.Strategy)
	if err != nil {
		return graph.WorkflowState{}, fmt.Errorf("agent %s: tool selection: %w", agentName, err)
	}

	// Step 3: binding cache.
	bindKey := agentName + "\x00" + sel.Hash
	bind, ok := r.bindings.Get(bindKey)
	if !ok {
		bind = binding{toolSpecs: toToolSpecs(sel.Tools)}
		r.bindings.Add(bindKey, bind)
	}

	ctx = withAgentName(ctx, agentName)

	// Step 4: prepend system prompt if not already present.
	messages := toModelMessages(state.Messages)
	if cfg.SystemPrompt != "" && !hasSystemPrompt(messages, cfg.SystemPrompt) {
		messages = append([]model.Message{{Role: model.RoleSystem, Content: cfg.SystemPrompt}}, messages...)
	}

	hopLimit := cfg.HopLimit
	if hopLimit <= 0 {
		hopLimit = DefaultHopLimit
	}

	var newMessages []graph.Message
	hopLimitReached := false

	for hop := 0; ; hop++ {
		if hop >= hopLimit {
			hopLimitReached = true
			break
		}

		out, err := r.chatWithRetry(ctx, messages, bind.toolSpecs)
		if err != nil {
			return graph.WorkflowState{}, &graph.AgentError{AgentName: agentName, Cause: err}
		}

		assistantMsg := graph.NewAssistantMessage(out.Text, toGraphToolCalls(out.ToolCalls)...)
		newMessages = append(newMessages, assistantMsg)
		messages = append(messages, toModelMessage(assistantMsg))

		if len(out.ToolCalls) == 0 {
			break
		}

		for _, call := range out.ToolCalls {
			result, toolErr := r.callTool(ctx, call)
			toolMsg, buildErr := graph.NewToolMessage(call.ID, formatToolResult(result, toolErr))
			if buildErr != nil {
				// call.ID was empty; the provider didn't give us one to pair
				// the result with, so fabricate a stable stand-in rather
				// than dropping the result.
				toolMsg, _ = graph.NewToolMessage(call.Name, formatToolResult(result, toolErr))
			}
			newMessages = append(newMessages, toolMsg)
			messages = append(messages, toModelMessage(toolMsg))
		}
	}

	return graph.WorkflowState{
		Messages:        newMessages,
		CurrentAgent:    agentName,
		HopLimitReached: hopLimitReached,
	}, nil
}

func (r *Registry) chatWithRetry(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	var out model.ChatOut
	err := graph.Retry(ctx, r.retryPolicy, func(_ int) error {
		var callErr error
		out, callErr = r.chatModel.Chat(ctx, messages, tools)
		return callErr
	})
	return out, err
}

// callTool executes a tool call. Execution errors are captured in the
// returned string rather than raised, per spec §4.3: the LLM decides what
// to do next, the node does not fail.
func (r *Registry) callTool(ctx context.Context, call model.ToolCall) (map[string]interface{}, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return nil, fmt.Errorf("tool %q is not available", call.Name)
	}
	return t.Call(ctx, call.Input)
}

func formatToolResult(result map[string]interface{}, err error) string {
	if err != nil {
		return fmt.Sprintf("error: %s", err.Error())
	}
	return fmt.Sprintf("%v", result)
}

func toToolSpecs(descs []catalog.ToolDescriptor) []model.ToolSpec {
	specs := make([]model.ToolSpec, len(descs))
	for i, d := range descs {
		specs[i] = model.ToolSpec{Name: d.Name, Description: d.Description, Schema: d.InputSchema}
	}
	return specs
}

func hasSystemPrompt(messages []model.Message, prompt string) bool {
	for _, m := range messages {
		if m.Role == model.RoleSystem && m.Content == prompt {
			return true
		}
	}
	return false
}

func toModelMessages(messages []graph.Message) []model.Message {
	out := make([]model.Message, len(messages))
	for i, m := range messages {
		out[i] = toModelMessage(m)
	}
	return out
}

func toModelMessage(m graph.Message) model.Message {
	mm := model.Message{Role: model.RoleUser, Content: m.Content, ToolCallID: m.ToolCallID}
	switch m.Role {
	case graph.RoleSystem:
		mm.Role = model.RoleSystem
	case graph.RoleUser:
		mm.Role = model.RoleUser
	case graph.RoleAssistant:
		mm.Role = model.RoleAssistant
	case graph.RoleTool:
		mm.Role = model.RoleTool
	}
	if len(m.ToolCalls) > 0 {
		mm.ToolCalls = make([]model.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			mm.ToolCalls[i] = model.ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Arguments}
		}
	}
	return mm
}

func toGraphToolCalls(calls []model.ToolCall) []graph.ToolCall {
	out := make([]graph.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = graph.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Input}
	}
	return out
}
