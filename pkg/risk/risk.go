// Package risk implements the Risk Assessor (C4): a pure, data-driven rule
// table that classifies a pending operation's blast radius and decides
// whether it requires human approval (spec §4.4).
package risk

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v2"

	"github.com/flowbase/orchestrator/graph"
)

// Rule is one row of the risk-rule table. Kind and Environment are matched
// against the pending operation; an empty Environments set matches any
// environment. Rules are evaluated in order; the first match wins.
type Rule struct {
	Name         string          `yaml:"name"`
	Kinds        []string        `yaml:"kinds"`
	Environments []string        `yaml:"environments,omitempty"`
	Risk         graph.RiskLevel `yaml:"risk"`
	Approval     bool            `yaml:"requires_approval"`
}

// DefaultRules is the spec §4.4 rule table, used when no risk_rules_path is
// configured or the file fails to load at startup.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:         "prod_deploy",
			Kinds:        []string{"deploy"},
			Environments: []string{"production"},
			Risk:         graph.RiskCritical,
			Approval:     true,
		},
		{
			Name:         "infra_change",
			Kinds:        []string{"terraform_apply", "compose_up", "k8s_apply"},
			Environments: []string{"staging", "production"},
			Risk:         graph.RiskHigh,
			Approval:     true,
		},
		{
			Name:     "db_migration",
			Kinds:    []string{"db_migrate"},
			Risk:     graph.RiskMedium,
			Approval: true,
		},
		{
			Name:     "docs_update",
			Kinds:    []string{"update_docs"},
			Risk:     graph.RiskLow,
			Approval: false,
		},
	}
}

// defaultRule is the terminal "else" row of spec §4.4: unknown kinds
// default here.
var defaultRule = Rule{Name: "default", Risk: graph.RiskLow, Approval: false}

// Assessor evaluates a pending operation against its rule table, which is
// fixed once the Assessor is built.
type Assessor struct {
	rules []Rule
}

// New constructs an Assessor over the given rules. Pass DefaultRules() to
// use the spec's built-in table.
func New(rules []Rule) *Assessor {
	return &Assessor{rules: rules}
}

// LoadFile parses a YAML rule file (the risk_rules_path configuration
// surface field) into an Assessor. The file is a list of Rule records with
// the same fields DefaultRules() uses.
func LoadFile(path string) (*Assessor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("risk: reading rules file: %w", err)
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("risk: parsing rules file: %w", err)
	}
	return New(rules), nil
}

// Assessment is the output of evaluating a pending operation.
type Assessment struct {
	RiskLevel        graph.RiskLevel
	RequiresApproval bool
	MatchedRule      string
}

// Assess evaluates op against the rule table, first match wins, falling
// back to the terminal default rule (spec §4.4). Evaluation is pure: the
// same (op, rule table) always produces the same Assessment.
func (a *Assessor) Assess(op graph.PendingOperation) Assessment {
	for _, r := range a.rules {
		if ruleMatches(r, op) {
			return Assessment{RiskLevel: r.Risk, RequiresApproval: r.Approval, MatchedRule: r.Name}
		}
	}
	return Assessment{RiskLevel: defaultRule.Risk, RequiresApproval: defaultRule.Approval, MatchedRule: defaultRule.Name}
}

func ruleMatches(r Rule, op graph.PendingOperation) bool {
	if !containsString(r.Kinds, op.Kind) {
		return false
	}
	if len(r.Environments) == 0 {
		return true
	}
	return containsString(r.Environments, op.Environment)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
