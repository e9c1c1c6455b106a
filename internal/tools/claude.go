package tools

import (
	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
	"github.com/reposync/reposync/internal/projection"
)

// Claude projects each rule as a marker-fenced section of CLAUDE.md,
// headed by the rule id so the file stays navigable for humans.
type Claude struct{}

func (Claude) Name() string { return "claude" }

func (Claude) Render(rule *manifest.Rule) []engine.DesiredProjection {
	return []engine.DesiredProjection{{
		File:    fsx.Normalize("CLAUDE.md"),
		Kind:    ledger.KindTextBlock,
		Content: projection.Content{Text: "## " + rule.ID + "\n\n" + rule.Content},
	}}
}
