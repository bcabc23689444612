package workflow

import (
	"github.com/flowbase/orchestrator/pkg/agent"
	"github.com/flowbase/orchestrator/pkg/catalog"
)

// DefaultAgentConfigs returns the agent.Config table for the supervisor,
// conversational, and default worker agents (spec §4.1's five worker
// specialisations). System prompts are intentionally short: prompt content
// is explicitly out of scope (spec §1 Non-goals), so these are load-bearing
// only in that they tell each agent which coordination tool to call, not how
// to reason about the task.
func DefaultAgentConfigs() []agent.Config {
	return []agent.Config{
		{
			Name:         "conversational",
			SystemPrompt: "You are a helpful software engineering assistant answering a question. Do not propose operations or call routing tools.",
			Strategy:     catalog.StrategyMinimal,
			Temperature:  0.7,
			MaxTokens:    1024,
			HopLimit:     agent.DefaultHopLimit,
		},
		{
			Name:         "supervisor",
			SystemPrompt: "You route a software engineering task to the best worker agent by calling route_to_agent, or \"end\" if the task is already complete.",
			Strategy:     catalog.StrategyMinimal,
			Temperature:  0.0,
			MaxTokens:    512,
			HopLimit:     agent.DefaultHopLimit,
		},
		{
			Name:         "feature_dev",
			SystemPrompt: "You implement application features. Call propose_operation before any change that deploys or mutates shared state, and complete_task when finished.",
			Strategy:     catalog.StrategyAgentProfile,
			Temperature:  0.2,
			MaxTokens:    4096,
			HopLimit:     agent.DefaultHopLimit,
		},
		{
			Name:         "code_review",
			SystemPrompt: "You review proposed changes for correctness, security, and style. Call complete_task with your findings when done.",
			Strategy:     catalog.StrategyAgentProfile,
			Temperature:  0.2,
			MaxTokens:    4096,
			HopLimit:     agent.DefaultHopLimit,
		},
		{
			Name:         "infrastructure",
			SystemPrompt: "You make infrastructure changes. Call propose_operation for every terraform_apply, compose_up, or k8s_apply before executing it.",
			Strategy:     catalog.StrategyAgentProfile,
			Temperature:  0.0,
			MaxTokens:    4096,
			HopLimit:     agent.DefaultHopLimit,
		},
		{
			Name:         "cicd",
			SystemPrompt: "You manage CI/CD pipelines and deployments. Call propose_operation for every deploy before executing it.",
			Strategy:     catalog.StrategyAgentProfile,
			Temperature:  0.0,
			MaxTokens:    4096,
			HopLimit:     agent.DefaultHopLimit,
		},
		{
			Name:         "documentation",
			SystemPrompt: "You write and update documentation. Call propose_operation before update_docs operations and complete_task when finished.",
			Strategy:     catalog.StrategyAgentProfile,
			Temperature:  0.3,
			MaxTokens:    4096,
			HopLimit:     agent.DefaultHopLimit,
		},
	}
}

// DefaultAgentProfiles returns the catalog.AgentProfile table the
// agent_profile and progressive loading strategies consult, one entry per
// worker plus the supervisor. Each worker recommends the coordination tools
// plus a small set of domain tools tagged for its specialisation; the
// concrete domain tool names depend on the deployment's Discoverer, so only
// the coordination tools and fetch_runbook (recommended to infrastructure
// and cicd) are named here; all four are present in every catalog via
// SyntheticToolDescriptors.
func DefaultAgentProfiles() map[string]catalog.AgentProfile {
	coordination := []string{ToolRouteToAgent, ToolProposeOperation, ToolCompleteTask}
	withRunbook := append(append([]string{}, coordination...), ToolFetchRunbook)
	return map[string]catalog.AgentProfile{
		"supervisor":     {RecommendedTools: []string{ToolRouteToAgent}},
		"feature_dev":    {RecommendedTools: coordination},
		"code_review":    {RecommendedTools: coordination},
		"infrastructure": {RecommendedTools: withRunbook},
		"cicd":           {RecommendedTools: withRunbook},
		"documentation":  {RecommendedTools: coordination},
	}
}
