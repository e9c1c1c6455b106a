package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/reposync/reposync/internal/fsx"
)

// Rule is one declared rule, parsed from a Markdown file with YAML
// front matter:
//
//	---
//	id: no-unwrap
//	priority: 10
//	tools: [cursor]
//	---
//	Never call unwrap in production code.
type Rule struct {
	ID       string
	Priority int
	// Tools restricts which tools project this rule. Empty means
	// every tool the manifest declares.
	Tools   []string
	Content string
	Source  fsx.NormalizedPath
}

// AppliesTo reports whether the rule projects to the named tool.
func (r *Rule) AppliesTo(tool string) bool {
	if len(r.Tools) == 0 {
		return true
	}
	for _, t := range r.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// Rule ids appear in intent ids, managed file names, and JSON
// pointers, so the charset stays narrow.
var ruleIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type frontMatter struct {
	ID       string   `yaml:"id"`
	Priority int      `yaml:"priority"`
	Tools    []string `yaml:"tools"`
}

// DiscoverRules expands the manifest's include patterns and parses
// every matching rule file. Rules come back ordered by ascending
// priority then id; equal-priority rules therefore render in a stable
// order. Duplicate rule ids across files are an error.
func DiscoverRules(root *fsx.Root, m *Manifest) ([]Rule, error) {
	fsys := os.DirFS(root.Dir())
	seen := map[string]fsx.NormalizedPath{}
	matched := map[fsx.NormalizedPath]bool{}
	var rules []Rule

	for _, pat := range m.Rules.Include {
		paths, err := doublestar.Glob(fsys, pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("rule pattern %q: %w", pat, err)
		}
		for _, p := range paths {
			np := fsx.Normalize(p)
			if matched[np] {
				continue
			}
			matched[np] = true

			data, exists, err := root.ReadFile(np)
			if err != nil {
				return nil, fmt.Errorf("read rule %s: %w", np, err)
			}
			if !exists {
				continue
			}
			r, err := ParseRule(np, data)
			if err != nil {
				return nil, err
			}
			if prev, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("duplicate rule id %q in %s and %s", r.ID, prev, np)
			}
			seen[r.ID] = np
			rules = append(rules, *r)
		}
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

// ParseRule splits a rule file into front matter and body.
func ParseRule(source fsx.NormalizedPath, data []byte) (*Rule, error) {
	header, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", source, err)
	}
	var fm frontMatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return nil, fmt.Errorf("rule %s: front matter: %w", source, err)
	}
	if fm.ID == "" {
		return nil, fmt.Errorf("rule %s: front matter missing id", source)
	}
	if !ruleIDPattern.MatchString(fm.ID) {
		return nil, fmt.Errorf("rule %s: rule id %q must match %s", source, fm.ID, ruleIDPattern)
	}
	return &Rule{
		ID:       fm.ID,
		Priority: fm.Priority,
		Tools:    fm.Tools,
		Content:  strings.TrimSpace(string(body)),
		Source:   source,
	}, nil
}

// splitFrontMatter separates the YAML header from the Markdown body.
// Rule files open with a "---" line; the header runs until the next
// "---" line and the body is everything after it.
func splitFrontMatter(data []byte) (header, body []byte, err error) {
	lines := bytes.Split(data, []byte("\n"))
	if len(lines) == 0 || string(bytes.TrimSpace(lines[0])) != "---" {
		return nil, nil, errors.New("missing front matter opening ---")
	}
	for i := 1; i < len(lines); i++ {
		if string(bytes.TrimSpace(lines[i])) == "---" {
			header = bytes.Join(lines[1:i], []byte("\n"))
			body = bytes.Join(lines[i+1:], []byte("\n"))
			return header, body, nil
		}
	}
	return nil, nil, errors.New("missing front matter closing ---")
}
