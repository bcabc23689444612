package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/graph/emit"
	"github.com/flowbase/orchestrator/graph/model"
	"github.com/flowbase/orchestrator/graph/model/anthropic"
	"github.com/flowbase/orchestrator/graph/model/google"
	"github.com/flowbase/orchestrator/graph/model/openai"
	"github.com/flowbase/orchestrator/graph/store"
	"github.com/flowbase/orchestrator/pkg/agent"
	"github.com/flowbase/orchestrator/pkg/approval"
	"github.com/flowbase/orchestrator/pkg/catalog"
	"github.com/flowbase/orchestrator/pkg/config"
	"github.com/flowbase/orchestrator/pkg/llm"
	"github.com/flowbase/orchestrator/pkg/risk"
	"github.com/flowbase/orchestrator/pkg/workflow"
)

// app bundles every constructed component a subcommand might need, built
// once from a loaded Config (Design Notes §9 "Global state": an Engine-ish
// value constructed at startup and threaded through handlers, rather than
// package-level singletons).
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     store.Store
	catalog   *catalog.Catalog
	chatModel model.ChatModel
	agents    *agent.Registry
	assessor  *risk.Assessor
	approvals *approval.Manager
	metrics   *graph.PrometheusMetrics
	engine    *graph.Engine
	subs      *emit.SubscriberEmitter
}

// loadConfig resolves the --config/--env flags into a validated Config.
func loadConfig(configPath, envPath string) (config.Config, error) {
	return config.Load(configPath, envPath)
}

// newApp wires every component per spec §4 using cfg, following the
// teacher's construct-then-inject style (DESIGN.md pkg/api grounding).
func newApp(cfg config.Config) (*app, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := newCheckpointStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}

	assessor := risk.New(risk.DefaultRules())
	if cfg.RiskRulesPath != "" {
		loaded, err := risk.LoadFile(cfg.RiskRulesPath)
		if err != nil {
			return nil, fmt.Errorf("risk rules: %w", err)
		}
		assessor = loaded
	}

	registry := prometheus.NewRegistry()
	metrics := graph.NewPrometheusMetrics(registry)

	cat := catalog.New(
		catalog.StaticDiscoverer{Tools: workflow.SyntheticToolDescriptors()},
		catalog.WithTTL(cfg.ToolCatalogTTL()),
		catalog.WithMaxTools(cfg.MaxToolsPerInvocation),
		catalog.WithAgentProfiles(workflow.DefaultAgentProfiles()),
		catalog.WithFallbackTools(workflow.SyntheticToolDescriptors()),
	)

	chatModel := llm.NewRouter(modelFactory(cfg.LLMAPIKey), cfg.PerAgentModels, defaultModelName(cfg.PerAgentModels))

	tools := workflow.SyntheticTools()
	agents, err := agent.New(workflow.DefaultAgentConfigs(), cat, chatModel, tools)
	if err != nil {
		return nil, fmt.Errorf("agent registry: %w", err)
	}

	approvalStore, tracker, err := newApprovalBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("approval backend: %w", err)
	}
	approvals := approval.New(approvalStore, tracker, metrics)

	subs := emit.NewSubscriberEmitter()
	logEmitter := emit.NewLogEmitter(os.Stderr, true)
	emitter := emit.NewMultiEmitter(logEmitter, subs)

	engine := graph.New(graph.DefaultReducer, st, emitter,
		graph.WithPerNodeHopLimit(cfg.PerNodeHopLimit),
		graph.WithPerRunHopLimit(cfg.PerRunHopLimit),
		graph.WithLLMTimeout(cfg.LLMTimeout()),
		graph.WithCheckpointTTL(cfg.CheckpointTTL()),
		graph.WithApprovalTimeout(cfg.ApprovalTimeout()),
		graph.WithToolCatalogTTL(cfg.ToolCatalogTTL()),
		graph.WithMaxToolsPerInvocation(cfg.MaxToolsPerInvocation),
		graph.WithMetrics(metrics),
	)

	if err := workflow.Build(engine, agents, assessor, approvals, workflow.DefaultWorkerNames); err != nil {
		return nil, fmt.Errorf("workflow graph: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		catalog:   cat,
		chatModel: chatModel,
		agents:    agents,
		assessor:  assessor,
		approvals: approvals,
		metrics:   metrics,
		engine:    engine,
		subs:      subs,
	}, nil
}

func newCheckpointStore(cfg config.Config) (store.Store, error) {
	switch cfg.Checkpoint.Driver {
	case "mysql":
		return store.NewMySQLStore(cfg.Checkpoint.DSN)
	case "memory":
		return store.NewMemStore(), nil
	default:
		return store.NewSQLiteStore(cfg.Checkpoint.DSN)
	}
}

func newApprovalBackend(cfg config.Config) (approval.Store, approval.IssueTracker, error) {
	if cfg.Approval.DSN == "" {
		return approval.NewMemoryStore(), approval.NewMockIssueTracker(), nil
	}
	st, err := approval.NewPgxStore(context.Background(), cfg.Approval.DSN)
	if err != nil {
		return nil, nil, err
	}
	return st, approval.NewHTTPIssueTracker(cfg.TrackerBaseURL, cfg.TrackerToken), nil
}

// modelFactory builds a per-model-name ChatModel, dispatching on the model
// name's vendor prefix the way the catalogue of provider adapters under
// graph/model names its defaults (claude-* / gpt-*,o-prefixed / gemini-*).
func modelFactory(apiKey string) llm.Factory {
	return func(modelName string) model.ChatModel {
		switch {
		case strings.HasPrefix(modelName, "gemini"):
			return google.NewChatModel(apiKey, modelName)
		case strings.HasPrefix(modelName, "gpt") || strings.HasPrefix(modelName, "o1") || strings.HasPrefix(modelName, "o3"):
			return openai.NewChatModel(apiKey, modelName)
		default:
			return anthropic.NewChatModel(apiKey, modelName)
		}
	}
}

func defaultModelName(perAgent map[string]string) string {
	if m, ok := perAgent["default"]; ok && m != "" {
		return m
	}
	return ""
}

// expireApprovalsLoop runs the spec §4.5 expire_stale background sweep on
// an interval, stopping when ctx is cancelled.
func (a *app) expireApprovalsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := a.approvals.ExpireStale(ctx, now, a.cfg.ApprovalTimeout())
			if err != nil {
				a.logger.Error("approval expire sweep failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("expired stale approvals", "count", n)
			}
		}
	}
}

