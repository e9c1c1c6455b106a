// Package manifest reads the project manifest and discovers rule
// sources. The manifest declares which tools are synchronized and
// which files hold rules; rules are Markdown with YAML front matter.
package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
)

// CurrentVersion is the only manifest version this build reads.
const CurrentVersion = 1

// FileName is the manifest file name inside the state directory.
const FileName = "repoconfig.yaml"

// Path is the manifest location relative to the repository root.
var Path = fsx.Normalize(ledger.StateDir + "/" + FileName)

// Manifest is the parsed project manifest.
type Manifest struct {
	Version int         `yaml:"version"`
	Tools   []string    `yaml:"tools"`
	Rules   RulesConfig `yaml:"rules"`
}

// RulesConfig names where rule sources live.
type RulesConfig struct {
	// Include holds doublestar patterns relative to the repository
	// root, e.g. "rules/**/*.md".
	Include []string `yaml:"include"`
}

// Load reads and validates the manifest from the repository root.
func Load(root *fsx.Root) (*Manifest, error) {
	data, exists, err := root.ReadFile(Path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("manifest %s not found (run init first)", Path)
	}
	return Parse(data)
}

// Parse validates raw manifest bytes against the embedded schema and
// decodes them. Schema validation runs first so errors carry manifest
// line numbers instead of Go decoding noise.
func Parse(data []byte) (*Manifest, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Tools))
	for _, tool := range m.Tools {
		if seen[tool] {
			return nil, fmt.Errorf("manifest lists tool %q twice", tool)
		}
		seen[tool] = true
	}
	return &m, nil
}

// SyncsTool reports whether the manifest declares the named tool.
func (m *Manifest) SyncsTool(name string) bool {
	for _, tool := range m.Tools {
		if tool == name {
			return true
		}
	}
	return false
}
