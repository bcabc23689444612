package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/orchestrator/graph"
	graphmodel "github.com/flowbase/orchestrator/graph/model"
	"github.com/flowbase/orchestrator/graph/tool"
	"github.com/flowbase/orchestrator/pkg/agent"
	"github.com/flowbase/orchestrator/pkg/catalog"
)

func newRegistry(t *testing.T, chatModel graphmodel.ChatModel, tools map[string]tool.Tool) *agent.Registry {
	t.Helper()
	cat := catalog.New(catalog.StaticDiscoverer{Tools: []catalog.ToolDescriptor{
		{Name: "route_to_agent", Priority: catalog.PriorityCritical, Tags: []string{"universal"}},
	}})
	require.NoError(t, cat.Refresh(context.Background()))

	reg, err := agent.New([]agent.Config{
		{Name: "supervisor", SystemPrompt: "route the task", Strategy: catalog.StrategyMinimal, HopLimit: 3},
	}, cat, chatModel, tools)
	require.NoError(t, err)
	return reg
}

func userState(text string) graph.WorkflowState {
	msg, err := graph.NewMessage(graph.RoleUser, text)
	if err != nil {
		panic(err)
	}
	return graph.WorkflowState{ThreadID: "t", Messages: []graph.Message{msg}}
}

func TestRegistryRunReturnsTextResponse(t *testing.T) {
	chatModel := &graphmodel.MockChatModel{Responses: []graphmodel.ChatOut{{Text: "done"}}}
	reg := newRegistry(t, chatModel, nil)

	out, err := reg.Run(context.Background(), "supervisor", userState("route this"))
	require.NoError(t, err)
	assert.Equal(t, "supervisor", out.CurrentAgent)
	assert.False(t, out.HopLimitReached)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "done", out.Messages[0].Content)
}

func TestRegistryRunExecutesToolCallAndFeedsResultBack(t *testing.T) {
	runbook := &tool.MockTool{
		ToolName:  "fetch_runbook",
		Responses: []map[string]interface{}{{"body": "drain traffic first"}},
	}
	chatModel := &graphmodel.MockChatModel{Responses: []graphmodel.ChatOut{
		{ToolCalls: []graphmodel.ToolCall{{ID: "call-1", Name: "fetch_runbook", Input: map[string]interface{}{"url": "https://runbooks.internal/x"}}}},
		{Text: "proceeding per runbook"},
	}}
	reg := newRegistry(t, chatModel, map[string]tool.Tool{"fetch_runbook": runbook})

	out, err := reg.Run(context.Background(), "supervisor", userState("apply terraform"))
	require.NoError(t, err)
	assert.Equal(t, 1, runbook.CallCount())
	assert.Equal(t, "https://runbooks.internal/x", runbook.Calls[0].Input["url"])

	// messages: assistant tool-call, tool result, final assistant text
	require.Len(t, out.Messages, 3)
	assert.Equal(t, graph.RoleTool, out.Messages[1].Role)
	assert.Contains(t, out.Messages[1].Content, "drain traffic first")
	assert.Equal(t, "proceeding per runbook", out.Messages[2].Content)
}

func TestRegistryRunStopsAtHopLimitInsteadOfLoopingForever(t *testing.T) {
	always := &graphmodel.MockChatModel{Responses: []graphmodel.ChatOut{
		{ToolCalls: []graphmodel.ToolCall{{ID: "1", Name: "fetch_runbook", Input: map[string]interface{}{"url": "x"}}}},
	}}
	runbook := &tool.MockTool{ToolName: "fetch_runbook"}
	reg := newRegistry(t, always, map[string]tool.Tool{"fetch_runbook": runbook})

	out, err := reg.Run(context.Background(), "supervisor", userState("apply terraform"))
	require.NoError(t, err)
	assert.True(t, out.HopLimitReached)
	assert.Equal(t, 3, runbook.CallCount())
}

func TestRegistryRunSurfacesUnknownToolAsToolResultError(t *testing.T) {
	chatModel := &graphmodel.MockChatModel{Responses: []graphmodel.ChatOut{
		{ToolCalls: []graphmodel.ToolCall{{ID: "1", Name: "not_registered", Input: nil}}},
		{Text: "gave up"},
	}}
	reg := newRegistry(t, chatModel, nil)

	out, err := reg.Run(context.Background(), "supervisor", userState("apply terraform"))
	require.NoError(t, err)
	require.Len(t, out.Messages, 3)
	assert.Contains(t, out.Messages[1].Content, "error:")
}

func TestRegistryRunWrapsChatModelErrorAsAgentError(t *testing.T) {
	chatModel := &graphmodel.MockChatModel{Err: errors.New("provider unavailable")}
	reg := newRegistry(t, chatModel, nil)

	_, err := reg.Run(context.Background(), "supervisor", userState("route this"))
	require.Error(t, err)
	var agentErr *graph.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, "supervisor", agentErr.AgentName)
}

func TestRegistryRunUnknownAgentErrors(t *testing.T) {
	reg := newRegistry(t, &graphmodel.MockChatModel{}, nil)
	_, err := reg.Run(context.Background(), "ghost", userState("hi"))
	assert.Error(t, err)
}
