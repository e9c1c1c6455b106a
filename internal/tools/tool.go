// Package tools renders declared rules into the projections each
// supported tool consumes. A Tool is pure: it maps a rule to the file
// locations and content that express it, and the engine does the rest.
package tools

import (
	"fmt"
	"sort"

	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/manifest"
)

// Tool describes one supported assistant or editor.
type Tool interface {
	// Name is the stable identifier used in manifests, rule front
	// matter, and intent ids.
	Name() string

	// Render maps one rule to the projections that express it for
	// this tool. The Tool field of each projection is filled in by
	// the caller. No filesystem access.
	Render(rule *manifest.Rule) []engine.DesiredProjection
}

// Registry resolves tool names to implementations.
type Registry struct {
	byName map[string]Tool
}

// NewRegistry builds a registry. Registering two tools with the same
// name is a programming error.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.byName[t.Name()]; dup {
			panic(fmt.Sprintf("tools: duplicate tool name %q", t.Name()))
		}
		r.byName[t.Name()] = t
	}
	return r
}

// Builtin returns a registry holding every shipped tool.
func Builtin() *Registry {
	return NewRegistry(Cursor{}, Claude{}, VSCode{}, Copilot{})
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntentID is "rule:<id>/tool:<name>", the stable identity of one
// (rule, tool) pair across runs.
func IntentID(ruleID, tool string) string {
	return "rule:" + ruleID + "/tool:" + tool
}

// BuildDesired composes manifest, rules, and registry into the
// engine's desired state: one intent per active (rule, tool) pair.
// Rules arrive sorted by priority then id, and intents keep that
// order, so same-file blocks append in render order.
func BuildDesired(reg *Registry, m *manifest.Manifest, rules []manifest.Rule) (*engine.DesiredState, error) {
	for _, name := range m.Tools {
		if _, ok := reg.Lookup(name); !ok {
			return nil, fmt.Errorf("manifest declares unknown tool %q", name)
		}
	}

	state := &engine.DesiredState{}
	for i := range rules {
		rule := &rules[i]
		for _, name := range m.Tools {
			if !rule.AppliesTo(name) {
				continue
			}
			tool, _ := reg.Lookup(name)
			projs := tool.Render(rule)
			for j := range projs {
				projs[j].Tool = tool.Name()
			}
			state.Intents = append(state.Intents, engine.DesiredIntent{
				ID:          IntentID(rule.ID, name),
				Args:        ruleArgs(rule, name),
				Projections: projs,
			})
		}
	}
	return state, nil
}

// ruleArgs captures the rendering inputs of one (rule, tool) pair.
// Their canonical snapshot decides whether the intent changed, so
// everything Render depends on must appear here.
func ruleArgs(r *manifest.Rule, tool string) map[string]any {
	return map[string]any{
		"rule":     r.ID,
		"priority": r.Priority,
		"content":  r.Content,
		"tool":     tool,
	}
}
