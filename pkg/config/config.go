// Package config loads and validates the enumerated configuration surface
// of spec §6: YAML plus environment-variable overrides, returned as a
// validated value that is threaded through the engine, server, and service
// constructors rather than read ambiently from os.Getenv in business logic
// (SPEC_FULL §2.1).
package config

import (
	"fmt"
	"time"
)

// Config is the enumerated configuration surface of spec §6.
type Config struct {
	CheckpointTTLSeconds   int `yaml:"checkpoint_ttl_seconds"`
	ApprovalTimeoutSeconds int `yaml:"approval_timeout_seconds"`
	PerNodeHopLimit        int `yaml:"per_node_hop_limit"`
	PerRunHopLimit         int `yaml:"per_run_hop_limit"`
	LLMTimeoutSeconds      int `yaml:"llm_timeout_seconds"`
	ToolCatalogTTLSeconds  int `yaml:"tool_catalog_ttl_seconds"`
	MaxToolsPerInvocation  int `yaml:"max_tools_per_invocation"`

	RiskRulesPath string `yaml:"risk_rules_path"`

	TrackerBaseURL       string `yaml:"tracker_base_url"`
	TrackerWebhookSecret string `yaml:"tracker_webhook_secret"`
	TrackerToken         string `yaml:"tracker_token"`

	LLMEndpoint string `yaml:"llm_endpoint"`
	LLMAPIKey   string `yaml:"llm_api_key"`

	PerAgentModels       map[string]string `yaml:"per_agent_models"`
	PerAgentToolStrategy map[string]string `yaml:"per_agent_tool_strategy"`

	AllowedWebhookStates AllowedWebhookStates `yaml:"allowed_webhook_states"`

	HTTPAddr string `yaml:"http_addr"`

	Checkpoint CheckpointStoreConfig `yaml:"checkpoint_store"`
	Approval   ApprovalStoreConfig   `yaml:"approval_store"`
}

// AllowedWebhookStates maps the external tracker's free-text issue state to
// the approved/rejected sets the webhook handler recognises (spec §6).
type AllowedWebhookStates struct {
	Approved []string `yaml:"approved"`
	Rejected []string `yaml:"rejected"`
}

// CheckpointStoreConfig selects and configures C1's backend.
type CheckpointStoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "mysql" | "memory"
	DSN    string `yaml:"dsn"`
}

// ApprovalStoreConfig configures C5's Postgres-backed store.
type ApprovalStoreConfig struct {
	DSN string `yaml:"dsn"`
}

// Defaults returns the spec §4.3/§4.6 proposed defaults, used as the
// starting point before YAML/env overrides are applied.
func Defaults() Config {
	return Config{
		CheckpointTTLSeconds:   0, // never, per spec §4.1 retention contract
		ApprovalTimeoutSeconds: 24 * 60 * 60,
		PerNodeHopLimit:        8,
		PerRunHopLimit:         25,
		LLMTimeoutSeconds:      60,
		ToolCatalogTTLSeconds:  300,
		MaxToolsPerInvocation:  60,
		HTTPAddr:               ":8080",
		AllowedWebhookStates: AllowedWebhookStates{
			Approved: []string{"approved", "closed_approved"},
			Rejected: []string{"rejected", "closed_rejected"},
		},
		Checkpoint: CheckpointStoreConfig{Driver: "sqlite", DSN: "orchestrator.db"},
	}
}

// Validate checks the configuration's internal consistency, per spec §6's
// configuration surface being an enumerated, validated set.
func (c Config) Validate() error {
	if c.PerNodeHopLimit <= 0 {
		return fmt.Errorf("config: per_node_hop_limit must be positive")
	}
	if c.PerRunHopLimit <= 0 {
		return fmt.Errorf("config: per_run_hop_limit must be positive")
	}
	if c.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("config: llm_timeout_seconds must be positive")
	}
	if c.MaxToolsPerInvocation <= 0 {
		return fmt.Errorf("config: max_tools_per_invocation must be positive")
	}
	if c.Checkpoint.Driver != "sqlite" && c.Checkpoint.Driver != "mysql" && c.Checkpoint.Driver != "memory" {
		return fmt.Errorf("config: checkpoint_store.driver must be sqlite, mysql, or memory, got %q", c.Checkpoint.Driver)
	}
	if len(c.AllowedWebhookStates.Approved) == 0 && len(c.AllowedWebhookStates.Rejected) == 0 {
		return fmt.Errorf("config: allowed_webhook_states must declare at least one approved or rejected state")
	}
	return nil
}

// ApprovalTimeout returns ApprovalTimeoutSeconds as a time.Duration.
func (c Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.ApprovalTimeoutSeconds) * time.Second
}

// LLMTimeout returns LLMTimeoutSeconds as a time.Duration.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// ToolCatalogTTL returns ToolCatalogTTLSeconds as a time.Duration.
func (c Config) ToolCatalogTTL() time.Duration {
	return time.Duration(c.ToolCatalogTTLSeconds) * time.Second
}

// CheckpointTTL returns CheckpointTTLSeconds as a time.Duration. Zero means
// "never", matching the retention contract of spec §4.1.
func (c Config) CheckpointTTL() time.Duration {
	return time.Duration(c.CheckpointTTLSeconds) * time.Second
}
