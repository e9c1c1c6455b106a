package tools

import (
	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
	"github.com/reposync/reposync/internal/projection"
)

// Cursor projects each rule as a marker-fenced block in .cursorrules.
type Cursor struct{}

func (Cursor) Name() string { return "cursor" }

func (Cursor) Render(rule *manifest.Rule) []engine.DesiredProjection {
	return []engine.DesiredProjection{{
		File:    fsx.Normalize(".cursorrules"),
		Kind:    ledger.KindTextBlock,
		Content: projection.Content{Text: rule.Content},
	}}
}
