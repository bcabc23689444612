package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/orchestrator/graph"
)

func TestAssess_DefaultRules(t *testing.T) {
	a := New(DefaultRules())

	tests := []struct {
		name         string
		op           graph.PendingOperation
		wantRisk     graph.RiskLevel
		wantApproval bool
		wantRule     string
	}{
		{
			name:         "prod deploy is critical",
			op:           graph.PendingOperation{Kind: "deploy", Environment: "production"},
			wantRisk:     graph.RiskCritical,
			wantApproval: true,
			wantRule:     "prod_deploy",
		},
		{
			name:         "staging deploy falls through to default",
			op:           graph.PendingOperation{Kind: "deploy", Environment: "staging"},
			wantRisk:     graph.RiskLow,
			wantApproval: false,
			wantRule:     "default",
		},
		{
			name:         "terraform apply to staging is high risk",
			op:           graph.PendingOperation{Kind: "terraform_apply", Environment: "staging"},
			wantRisk:     graph.RiskHigh,
			wantApproval: true,
			wantRule:     "infra_change",
		},
		{
			name:         "k8s apply to production is high risk",
			op:           graph.PendingOperation{Kind: "k8s_apply", Environment: "production"},
			wantRisk:     graph.RiskHigh,
			wantApproval: true,
			wantRule:     "infra_change",
		},
		{
			name:         "db migration is medium risk regardless of environment",
			op:           graph.PendingOperation{Kind: "db_migrate", Environment: "development"},
			wantRisk:     graph.RiskMedium,
			wantApproval: true,
			wantRule:     "db_migration",
		},
		{
			name:         "docs update is low risk, no approval",
			op:           graph.PendingOperation{Kind: "update_docs", Environment: "production"},
			wantRisk:     graph.RiskLow,
			wantApproval: false,
			wantRule:     "docs_update",
		},
		{
			name:         "unknown kind defaults to low risk",
			op:           graph.PendingOperation{Kind: "unknown_kind", Environment: "production"},
			wantRisk:     graph.RiskLow,
			wantApproval: false,
			wantRule:     "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Assess(tt.op)
			assert.Equal(t, tt.wantRisk, got.RiskLevel)
			assert.Equal(t, tt.wantApproval, got.RequiresApproval)
			assert.Equal(t, tt.wantRule, got.MatchedRule)
		})
	}
}

func TestAssess_IsPure(t *testing.T) {
	a := New(DefaultRules())
	op := graph.PendingOperation{Kind: "deploy", Environment: "production"}

	first := a.Assess(op)
	second := a.Assess(op)

	assert.Equal(t, first, second)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk_rules.yaml")
	contents := `
- name: custom_prod_deploy
  kinds: [deploy]
  environments: [production]
  risk: critical
  requires_approval: true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	a, err := LoadFile(path)
	require.NoError(t, err)

	got := a.Assess(graph.PendingOperation{Kind: "deploy", Environment: "production"})
	assert.Equal(t, graph.RiskCritical, got.RiskLevel)
	assert.True(t, got.RequiresApproval)
	assert.Equal(t, "custom_prod_deploy", got.MatchedRule)

	// A kind the custom file never declares falls through to the terminal
	// default rule, not an error.
	got = a.Assess(graph.PendingOperation{Kind: "update_docs", Environment: "production"})
	assert.Equal(t, graph.RiskLow, got.RiskLevel)
	assert.False(t, got.RequiresApproval)
	assert.Equal(t, "default", got.MatchedRule)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile("/nonexistent/risk_rules.yaml")
	require.Error(t, err)
}
