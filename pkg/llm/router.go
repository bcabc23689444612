// Package llm multiplexes the provider-specific graph/model adapters
// (openai, anthropic, google) the teacher ships behind a single
// model.ChatModel, selecting a model per invoking agent (spec §6
// per_agent_models). Grounded on kadirpekel-hector/llms/registry.go's
// LLMRegistry: a name-keyed provider table built lazily from a factory,
// guarded by a mutex, instead of hector's generic BaseRegistry (out of
// pack) which this module has no reason to import for a single map.
package llm

import (
	"context"
	"sync"

	"github.com/flowbase/orchestrator/graph/model"
	"github.com/flowbase/orchestrator/pkg/agent"
)

// Factory builds a provider ChatModel for a given model name, closing over
// whatever API key/credentials the caller already resolved.
type Factory func(modelName string) model.ChatModel

// Router is a model.ChatModel that picks which underlying model to call
// based on the agent name agent.Registry.Run attaches to the request
// context, falling back to defaultModel for agents with no override.
// Instances are built lazily and cached by model name since every call for
// the same model name would otherwise rebuild an HTTP client per request.
type Router struct {
	factory       Factory
	perAgentModel map[string]string
	defaultModel  string

	mu    sync.Mutex
	cache map[string]model.ChatModel
}

// NewRouter builds a Router. perAgentModel maps agent name to model name
// (e.g. {"infrastructure": "gpt-4o", "documentation": "gpt-4o-mini"});
// agents absent from the map use defaultModel.
func NewRouter(factory Factory, perAgentModel map[string]string, defaultModel string) *Router {
	return &Router{
		factory:       factory,
		perAgentModel: perAgentModel,
		defaultModel:  defaultModel,
		cache:         make(map[string]model.ChatModel),
	}
}

// Chat implements model.ChatModel.
func (r *Router) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	modelName := r.defaultModel
	if name, ok := agent.AgentNameFromContext(ctx); ok {
		if override, ok := r.perAgentModel[name]; ok && override != "" {
			modelName = override
		}
	}
	return r.modelFor(modelName).Chat(ctx, messages, tools)
}

func (r *Router) modelFor(modelName string) model.ChatModel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cm, ok := r.cache[modelName]; ok {
		return cm
	}
	cm := r.factory(modelName)
	r.cache[modelName] = cm
	return cm
}
