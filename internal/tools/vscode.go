package tools

import (
	"github.com/reposync/reposync/internal/canon"
	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
	"github.com/reposync/reposync/internal/projection"
)

// VSCode records each rule under the "reposync.rules" key of
// .vscode/settings.json: a digest of the rule text plus its priority,
// for editor extensions to consume. Rule ids never need pointer
// escaping, the id charset excludes "/" and "~".
type VSCode struct{}

func (VSCode) Name() string { return "vscode" }

func (VSCode) Render(rule *manifest.Rule) []engine.DesiredProjection {
	return []engine.DesiredProjection{{
		File:    fsx.Normalize(".vscode/settings.json"),
		Kind:    ledger.KindJSONKey,
		Pointer: "/reposync.rules/" + rule.ID,
		Content: projection.Content{Value: map[string]any{
			"digest":   canon.Digest(canon.DomainBlock, []byte(rule.Content)),
			"priority": rule.Priority,
		}},
	}}
}
