package agent

import "context"

type agentNameKey struct{}

// withAgentName attaches the invoking agent's name to ctx before the chat
// model call, the same per-call-context-key idiom graph.CheckpointIDFromContext
// uses to pass the approval node its checkpoint id.
func withAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameKey{}, name)
}

// AgentNameFromContext returns the agent name Run attached to ctx, if any.
// A model.ChatModel that multiplexes per-agent models (pkg/llm.Router) reads
// this to pick which underlying provider/model to call.
func AgentNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(agentNameKey{}).(string)
	return name, ok
}
