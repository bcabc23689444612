package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/orchestrator/pkg/catalog"
)

func sampleTools() []catalog.ToolDescriptor {
	return []catalog.ToolDescriptor{
		{Name: "read_file", Priority: catalog.PriorityCritical, Tags: []string{"universal"}},
		{Name: "write_file", Priority: catalog.PriorityHigh, Tags: []string{"filesystem"}},
		{Name: "deploy", Priority: catalog.PriorityHigh, Tags: []string{"deploy", "infra"}},
		{Name: "lint", Priority: catalog.PriorityMedium, Tags: []string{"code_review"}},
		{Name: "chitchat", Priority: catalog.PriorityLow, Tags: []string{"fun"}},
	}
}

func TestSelectMinimalIncludesUniversalAndKeywordMatches(t *testing.T) {
	c := catalog.New(catalog.StaticDiscoverer{Tools: sampleTools()})
	sel, err := c.Select(context.Background(), "please deploy the service", "feature_dev", catalog.StrategyMinimal)
	require.NoError(t, err)

	names := toolNames(sel.Tools)
	assert.Contains(t, names, "read_file") // universal critical tool
	assert.Contains(t, names, "deploy")    // tag matches a task keyword
	assert.NotContains(t, names, "lint")
}

func TestSelectIsDeterministic(t *testing.T) {
	c := catalog.New(catalog.StaticDiscoverer{Tools: sampleTools()})
	a, err := c.Select(context.Background(), "deploy", "feature_dev", catalog.StrategyMinimal)
	require.NoError(t, err)
	b, err := c.Select(context.Background(), "deploy", "feature_dev", catalog.StrategyMinimal)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
}

func TestSelectAgentProfileUnion(t *testing.T) {
	c := catalog.New(catalog.StaticDiscoverer{Tools: sampleTools()},
		catalog.WithAgentProfiles(map[string]catalog.AgentProfile{
			"feature_dev": {RecommendedTools: []string{"write_file"}, SharedTools: []string{"lint"}},
		}))
	sel, err := c.Select(context.Background(), "", "feature_dev", catalog.StrategyAgentProfile)
	require.NoError(t, err)
	names := toolNames(sel.Tools)
	assert.ElementsMatch(t, []string{"write_file", "lint"}, names)
}

func TestSelectFullReturnsEverything(t *testing.T) {
	c := catalog.New(catalog.StaticDiscoverer{Tools: sampleTools()})
	sel, err := c.Select(context.Background(), "", "feature_dev", catalog.StrategyFull)
	require.NoError(t, err)
	assert.Len(t, sel.Tools, len(sampleTools()))
}

func TestTieBreakDropsLowWhenOverLimit(t *testing.T) {
	c := catalog.New(catalog.StaticDiscoverer{Tools: sampleTools()}, catalog.WithMaxTools(2))
	sel, err := c.Select(context.Background(), "", "x", catalog.StrategyFull)
	require.NoError(t, err)
	assert.Len(t, sel.Tools, 2)
	for _, tl := range sel.Tools {
		assert.NotEqual(t, catalog.PriorityLow, tl.Priority)
	}
}

func TestRefreshServesStaleOnDiscoveryFailure(t *testing.T) {
	d := &flakyDiscoverer{tools: sampleTools()}
	c := catalog.New(d)
	require.NoError(t, c.Refresh(context.Background()))

	d.err = errors.New("discovery unreachable")
	require.NoError(t, c.Refresh(context.Background()))

	sel, err := c.Select(context.Background(), "deploy", "x", catalog.StrategyMinimal)
	require.NoError(t, err)
	assert.NotEmpty(t, sel.Tools)
}

func TestSelectFallsBackToUniversalSetWhenNoSnapshotEverSucceeded(t *testing.T) {
	d := &flakyDiscoverer{err: errors.New("discovery unreachable")}
	c := catalog.New(d, catalog.WithFallbackTools([]catalog.ToolDescriptor{
		{Name: "route_to_agent", Priority: catalog.PriorityCritical, Tags: []string{"universal", "routing"}},
		{Name: "deploy", Priority: catalog.PriorityHigh, Tags: []string{"deploy", "infra"}},
	}))

	sel, err := c.Select(context.Background(), "deploy the service", "supervisor", catalog.StrategyMinimal)
	require.NoError(t, err)

	names := toolNames(sel.Tools)
	assert.Contains(t, names, "route_to_agent")
	assert.NotContains(t, names, "deploy") // only the critical/universal subset, no snapshot to keyword-match against
}

func TestSelectWithNoFallbackConfiguredReturnsEmptyNotError(t *testing.T) {
	d := &flakyDiscoverer{err: errors.New("discovery unreachable")}
	c := catalog.New(d)

	sel, err := c.Select(context.Background(), "deploy", "supervisor", catalog.StrategyMinimal)
	require.NoError(t, err)
	assert.Empty(t, sel.Tools)
}

func TestValidateArgumentsRejectsSchemaViolation(t *testing.T) {
	c := catalog.New(catalog.StaticDiscoverer{Tools: []catalog.ToolDescriptor{
		{
			Name: "deploy",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"environment": map[string]any{"type": "string"}},
				"required":   []any{"environment"},
			},
		},
	}})
	require.NoError(t, c.Refresh(context.Background()))

	assert.Error(t, c.ValidateArguments("deploy", map[string]any{}))
	assert.NoError(t, c.ValidateArguments("deploy", map[string]any{"environment": "staging"}))
}

func toolNames(tools []catalog.ToolDescriptor) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

type flakyDiscoverer struct {
	tools []catalog.ToolDescriptor
	err   error
}

func (d *flakyDiscoverer) Discover(_ context.Context) ([]catalog.ToolDescriptor, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.tools, nil
}
