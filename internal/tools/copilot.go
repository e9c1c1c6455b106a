package tools

import (
	"strings"

	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
	"github.com/reposync/reposync/internal/projection"
)

// Copilot owns one instructions file per rule under
// .github/instructions/, in the applyTo front-matter format Copilot
// reads.
type Copilot struct{}

func (Copilot) Name() string { return "copilot" }

func (Copilot) Render(rule *manifest.Rule) []engine.DesiredProjection {
	return []engine.DesiredProjection{{
		File:    fsx.Normalize(".github/instructions/" + rule.ID + ".instructions.md"),
		Kind:    ledger.KindFileManaged,
		Content: projection.Content{Raw: renderInstructions(rule)},
	}}
}

func renderInstructions(rule *manifest.Rule) []byte {
	var b strings.Builder
	b.WriteString("---\napplyTo: \"**\"\n---\n")
	b.WriteString(rule.Content)
	b.WriteString("\n")
	return []byte(b.String())
}
