package engine

import (
	"fmt"
	"strings"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/projection"
)

// DesiredProjection is one write location an intent wants, with the
// content already rendered. The engine never calls back into rule
// rendering: drivers hand it a closed snapshot.
type DesiredProjection struct {
	Tool    string
	File    fsx.NormalizedPath
	Kind    ledger.Kind
	Pointer string // json_key only
	Content projection.Content
}

// DesiredIntent is the rendered form of one (rule, tool) pair.
type DesiredIntent struct {
	// ID is "rule:<id>/tool:<name>", stable across runs.
	ID string

	// Args are the rendering inputs. Their canonical snapshot decides
	// whether the intent changed since the last run.
	Args map[string]any

	Projections []DesiredProjection
}

// DesiredState is the full snapshot the engine reconciles toward.
type DesiredState struct {
	Intents []DesiredIntent
}

// key identifies a projection within an intent across runs.
func (p *DesiredProjection) key() string {
	return p.Tool + "\x00" + string(p.File) + "\x00" + string(p.Kind) + "\x00" + p.Pointer
}

// Validate rejects desired states the engine could not apply without
// ambiguity: duplicate intents, malformed projections, and overlapping
// ownership claims. Ownership is exclusive per location, and a
// json_key pointer owns its whole subtree, so nested pointers overlap.
func (s *DesiredState) Validate() error {
	seen := make(map[string]bool, len(s.Intents))
	type claim struct {
		intent  string
		pointer string
	}
	var (
		blockClaims = map[string][]claim{} // file -> text_block claims per intent
		keyClaims   = map[string][]claim{} // file -> pointer claims
		fileClaims  = map[string]string{}  // file -> intent with file_managed
		anyClaims   = map[string][]string{}
	)

	for i := range s.Intents {
		in := &s.Intents[i]
		if in.ID == "" {
			return fmt.Errorf("intent %d has empty id", i)
		}
		if seen[in.ID] {
			return fmt.Errorf("duplicate intent id %q", in.ID)
		}
		seen[in.ID] = true
		if len(in.Projections) == 0 {
			return fmt.Errorf("intent %q has no projections", in.ID)
		}

		perIntentBlocks := map[string]bool{}
		for j := range in.Projections {
			p := &in.Projections[j]
			file := string(p.File)
			if p.File != fsx.Normalize(file) || p.File.IsRoot() {
				return fmt.Errorf("intent %q: projection file %q is not a normalized relative path", in.ID, file)
			}
			if strings.HasPrefix(file, ledger.StateDir+"/") {
				return fmt.Errorf("intent %q: projection file %q is inside the state directory", in.ID, file)
			}
			anyClaims[file] = append(anyClaims[file], in.ID)

			switch p.Kind {
			case ledger.KindTextBlock:
				if p.Pointer != "" {
					return fmt.Errorf("intent %q: text_block projection on %s carries a pointer", in.ID, file)
				}
				// Blocks from distinct intents coexist (distinct
				// instance ids); two from one intent would share a
				// delimiter.
				if perIntentBlocks[file] {
					return fmt.Errorf("intent %q: two text_block projections on %s", in.ID, file)
				}
				perIntentBlocks[file] = true
				blockClaims[file] = append(blockClaims[file], claim{intent: in.ID})

			case ledger.KindJSONKey:
				if _, err := projection.ParsePointer(p.Pointer); err != nil {
					return fmt.Errorf("intent %q: %w", in.ID, err)
				}
				for _, prev := range keyClaims[file] {
					if pointersOverlap(prev.pointer, p.Pointer) {
						return &ledger.OwnershipError{
							File: p.File, Location: "pointer " + p.Pointer,
							IntentA: prev.intent, IntentB: in.ID,
						}
					}
				}
				keyClaims[file] = append(keyClaims[file], claim{intent: in.ID, pointer: p.Pointer})

			case ledger.KindFileManaged:
				if p.Pointer != "" {
					return fmt.Errorf("intent %q: file_managed projection on %s carries a pointer", in.ID, file)
				}
				if other, ok := fileClaims[file]; ok {
					return &ledger.OwnershipError{
						File: p.File, Location: "whole file",
						IntentA: other, IntentB: in.ID,
					}
				}
				fileClaims[file] = in.ID

			default:
				return fmt.Errorf("intent %q: unknown projection kind %q", in.ID, p.Kind)
			}
		}
	}

	// A file_managed claim excludes every other claim on that file.
	for file, owner := range fileClaims {
		for _, id := range anyClaims[file] {
			if id != owner {
				return &ledger.OwnershipError{
					File: fsx.Normalize(file), Location: "whole file",
					IntentA: owner, IntentB: id,
				}
			}
		}
		if len(blockClaims[file]) > 0 || len(keyClaims[file]) > 0 {
			// Same intent mixing file_managed with another kind on one
			// file is just as ambiguous.
			return &ledger.OwnershipError{
				File: fsx.Normalize(file), Location: "whole file",
				IntentA: owner, IntentB: owner,
			}
		}
	}
	return nil
}

// pointersOverlap reports whether one pointer owns the other's subtree.
// Escaping keeps "/" purely structural, so string prefixing on a "/"
// boundary is exact.
func pointersOverlap(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}
