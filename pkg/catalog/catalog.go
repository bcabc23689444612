// Package catalog implements the Tool Catalog & Progressive Loader: a
// read-mostly map of tool_name -> ToolDescriptor, refreshed from a
// discovery source on a TTL and selected from under one of four loading
// strategies.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Priority classifies how essential a tool is to progressive loading and
// to the tie-break rule when a selection exceeds MaxTools.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityOrder = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// ToolDescriptor is the catalog's view of a discoverable tool: enough
// metadata to decide whether to load it, and an input schema used both to
// validate LLM tool-call arguments and to build the ToolSpec sent to a
// ChatModel.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Server      string         `json:"server"`
	Tags        []string       `json:"tags"`
	Priority    Priority       `json:"priority"`
	InputSchema map[string]any `json:"input_schema"`
}

// Strategy selects which subset of the catalog an agent sees.
type Strategy string

const (
	StrategyMinimal      Strategy = "minimal"
	StrategyAgentProfile Strategy = "agent_profile"
	StrategyProgressive  Strategy = "progressive"
	StrategyFull         Strategy = "full"
)

// AgentProfile is the static per-agent configuration consulted by the
// agent_profile and progressive strategies.
type AgentProfile struct {
	RecommendedTools []string
	SharedTools      []string
}

// Discoverer fetches the current tool set from wherever tools are actually
// registered (an MCP server, a static config file, a service registry).
// The catalog calls it on refresh and serves the last good snapshot if it
// errors.
type Discoverer interface {
	Discover(ctx context.Context) ([]ToolDescriptor, error)
}

// ErrNoCache is returned (wrapped) by ValidateArguments when no discovery
// has succeeded yet, so there is no snapshot to validate against. Select
// never returns it: with no snapshot it degrades to the universal set
// (spec §4.2 contract).
var ErrNoCache = errors.New("catalog: no cached snapshot available")

// snapshot is the atomically-swapped read view of the catalog.
type snapshot struct {
	tools     map[string]ToolDescriptor
	byTag     map[string][]string // tag -> tool names, for the minimal-strategy keyword match
	fetchedAt time.Time
}

// Catalog maintains the discovered tool map and serves deterministic,
// content-hashed selections under each loading strategy (spec §4.2).
type Catalog struct {
	mu           sync.RWMutex
	snap         *snapshot
	discoverer   Discoverer
	ttl          time.Duration
	maxTools     int
	profiles     map[string]AgentProfile
	selectCache  *selectionCache
	schemaErrors map[string]error
	fallback     []ToolDescriptor
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithTTL overrides the default 5-minute discovery refresh interval.
func WithTTL(ttl time.Duration) Option {
	return func(c *Catalog) { c.ttl = ttl }
}

// WithMaxTools overrides the default selection size limit of 60.
func WithMaxTools(n int) Option {
	return func(c *Catalog) { c.maxTools = n }
}

// WithAgentProfiles registers the static per-agent tool configuration used
// by the agent_profile and progressive strategies.
func WithAgentProfiles(profiles map[string]AgentProfile) Option {
	return func(c *Catalog) { c.profiles = profiles }
}

// WithFallbackTools registers the static tool set Select degrades to when
// no discovery has ever succeeded (spec §4.2: "if no cache exists, return
// the universal set only"). Without this, a Discoverer that fails on its
// very first call leaves a supervisor agent with no tools at all, not even
// route_to_agent, instead of the defined degraded set.
func WithFallbackTools(tools []ToolDescriptor) Option {
	return func(c *Catalog) { c.fallback = tools }
}

// New creates a Catalog backed by the given Discoverer. It performs no I/O;
// call Refresh (or Select, which refreshes lazily) to populate the first
// snapshot.
func New(d Discoverer, opts ...Option) *Catalog {
	c := &Catalog{
		discoverer:  d,
		ttl:         5 * time.Minute,
		maxTools:    60,
		profiles:    map[string]AgentProfile{},
		selectCache: newSelectionCache(256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh calls the Discoverer and, on success, atomically swaps in a new
// snapshot and validates every descriptor's InputSchema compiles as JSON
// Schema (malformed schemas are dropped from the snapshot, not fatal to the
// refresh as a whole, so one bad tool doesn't blind the catalog to the
// rest).
func (c *Catalog) Refresh(ctx context.Context) error {
	descs, err := c.discoverer.Discover(ctx)
	if err != nil {
		c.mu.RLock()
		hasCache := c.snap != nil
		c.mu.RUnlock()
		if hasCache {
			return nil // serve stale data, per spec §4.2
		}
		return fmt.Errorf("catalog: initial discovery failed: %w", err)
	}

	tools := make(map[string]ToolDescriptor, len(descs))
	byTag := map[string][]string{}
	for _, d := range descs {
		if err := validateSchema(d.InputSchema); err != nil {
			continue
		}
		tools[d.Name] = d
		for _, tag := range d.Tags {
			byTag[tag] = append(byTag[tag], d.Name)
		}
	}

	c.mu.Lock()
	c.snap = &snapshot{tools: tools, byTag: byTag, fetchedAt: time.Now()}
	c.selectCache.Clear()
	c.mu.Unlock()
	return nil
}

func validateSchema(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool-schema.json", doc); err != nil {
		return err
	}
	_, err = compiler.Compile("tool-schema.json")
	return err
}

// ValidateArguments checks LLM-issued tool-call arguments for the named
// tool against its InputSchema, the C2-side half of the boundary the Agent
// Runtime relies on before executing a tool call.
func (c *Catalog) ValidateArguments(toolName string, args map[string]any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return fmt.Errorf("catalog: %w", ErrNoCache)
	}
	desc, ok := c.snap.tools[toolName]
	if !ok {
		return fmt.Errorf("catalog: unknown tool %q", toolName)
	}
	if desc.InputSchema == nil {
		return nil
	}
	data, err := json.Marshal(desc.InputSchema)
	if err != nil {
		return err
	}
	var schemaDoc any
	if err := json.Unmarshal(data, &schemaDoc); err != nil {
		return err
	}
	argsData, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var argsDoc any
	if err := json.Unmarshal(argsData, &argsDoc); err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(toolName+".json", schemaDoc); err != nil {
		return err
	}
	schema, err := compiler.Compile(toolName + ".json")
	if err != nil {
		return err
	}
	return schema.Validate(argsDoc)
}

// stale reports whether the current snapshot is older than the TTL, used
// by Select to decide whether to trigger a background refresh.
func (c *Catalog) stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap == nil || time.Since(c.snap.fetchedAt) > c.ttl
}

// Selection is the result of Select: an ordered tool list plus a stable
// content hash used by the Agent Runtime's LLM binding cache (spec §4.2).
type Selection struct {
	Tools []ToolDescriptor
	Hash  string
}

// Select returns the deterministic tool set for (taskDescription, agent,
// strategy) under the current catalog snapshot. If the snapshot is stale
// it refreshes first (best-effort; a failed refresh serves the existing
// snapshot, and an empty catalog degrades to the universal set, per spec
// §4.2).
func (c *Catalog) Select(ctx context.Context, taskDescription, agent string, strategy Strategy) (Selection, error) {
	if c.stale() {
		_ = c.Refresh(ctx)
	}

	c.mu.RLock()
	snap := c.snap
	profile := c.profiles[agent]
	c.mu.RUnlock()

	cacheKey := selectionCacheKey(taskDescription, agent, strategy)
	if sel, ok := c.selectCache.Get(cacheKey); ok {
		return sel, nil
	}

	if snap == nil {
		return c.selectFallback(), nil
	}

	var names map[string]struct{}
	switch strategy {
	case StrategyMinimal:
		names = selectMinimal(snap, taskDescription)
	case StrategyAgentProfile:
		names = selectAgentProfile(snap, profile)
	case StrategyProgressive:
		names = selectMinimal(snap, taskDescription)
		for name := range selectAgentProfile(snap, profile) {
			if d, ok := snap.tools[name]; ok && (d.Priority == PriorityCritical || d.Priority == PriorityHigh) {
				names[name] = struct{}{}
			}
		}
	case StrategyFull:
		names = make(map[string]struct{}, len(snap.tools))
		for name := range snap.tools {
			names[name] = struct{}{}
		}
	default:
		names = selectMinimal(snap, taskDescription)
	}

	selected := make([]ToolDescriptor, 0, len(names))
	for name := range names {
		selected = append(selected, snap.tools[name])
	}
	selected = tieBreak(selected, c.maxTools)

	sel := Selection{Tools: selected, Hash: contentHash(selected)}
	c.selectCache.Add(cacheKey, sel)
	return sel, nil
}

// selectFallback applies selectMinimal's critical/universal filter to the
// static WithFallbackTools set instead of a discovered snapshot, since a
// cold-start Select (snap == nil) has no snapshot to filter.
func (c *Catalog) selectFallback() Selection {
	selected := make([]ToolDescriptor, 0, len(c.fallback))
	for _, d := range c.fallback {
		if d.Priority == PriorityCritical && hasTag(d.Tags, "universal") {
			selected = append(selected, d)
		}
	}
	selected = tieBreak(selected, c.maxTools)
	return Selection{Tools: selected, Hash: contentHash(selected)}
}

func selectMinimal(snap *snapshot, taskDescription string) map[string]struct{} {
	out := map[string]struct{}{}
	for name, d := range snap.tools {
		if d.Priority == PriorityCritical && hasTag(d.Tags, "universal") {
			out[name] = struct{}{}
		}
	}
	for _, kw := range tokenize(taskDescription) {
		for _, name := range snap.byTag[kw] {
			out[name] = struct{}{}
		}
	}
	return out
}

func selectAgentProfile(snap *snapshot, profile AgentProfile) map[string]struct{} {
	out := map[string]struct{}{}
	for _, name := range profile.RecommendedTools {
		if _, ok := snap.tools[name]; ok {
			out[name] = struct{}{}
		}
	}
	for _, name := range profile.SharedTools {
		if _, ok := snap.tools[name]; ok {
			out[name] = struct{}{}
		}
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// tieBreak sorts tools by name when they fit within limit; otherwise it
// enforces the size limit by keeping critical, then high, then medium tools
// (by name within a priority) and dropping low, per spec §4.2.
func tieBreak(tools []ToolDescriptor, limit int) []ToolDescriptor {
	if len(tools) <= limit {
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		return tools
	}
	sort.Slice(tools, func(i, j int) bool {
		pi, pj := priorityOrder[tools[i].Priority], priorityOrder[tools[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return tools[i].Name < tools[j].Name
	})
	kept := make([]ToolDescriptor, 0, limit)
	for _, t := range tools {
		if t.Priority == PriorityLow {
			continue
		}
		if len(kept) >= limit {
			break
		}
		kept = append(kept, t)
	}
	return kept
}

// contentHash computes the stable digest over the selection's sorted tool
// names (spec §4.2): two selections with the same tool set hash identically
// regardless of discovery order.
func contentHash(tools []ToolDescriptor) string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	sort.Strings(names)
	h := sha256.Sum256([]byte(strings.Join(names, "\x00")))
	return hex.EncodeToString(h[:])
}

func selectionCacheKey(taskDescription, agent string, strategy Strategy) string {
	return string(strategy) + "\x00" + agent + "\x00" + taskDescription
}
