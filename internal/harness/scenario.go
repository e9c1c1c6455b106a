package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one end-to-end test case: a repository setup followed by
// an ordered sequence of steps.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Setup seeds the repository before the first step.
	Setup Setup `yaml:"setup"`

	// Steps run in order; each may assert expectations afterwards.
	Steps []Step `yaml:"steps"`

	// GoldenFiles lists root-relative paths whose final bytes are
	// appended to the transcript.
	GoldenFiles []string `yaml:"golden_files,omitempty"`
}

// Setup is the initial repository state: file contents keyed by
// root-relative path. The manifest and rule files go here.
type Setup struct {
	Files map[string]string `yaml:"files"`
}

// Step is one action. Exactly one of the operation fields is set.
type Step struct {
	// Sync reconciles the current rules in apply mode.
	Sync *struct{} `yaml:"sync,omitempty"`

	// DryRun reconciles without writing anything.
	DryRun *struct{} `yaml:"dry_run,omitempty"`

	// Unroll reconciles against a reduced desired state, removing the
	// named intents (or, with all, everything).
	Unroll *UnrollStep `yaml:"unroll,omitempty"`

	// Edit overwrites a file, simulating an external change.
	Edit *EditStep `yaml:"edit,omitempty"`

	// RemoveRule deletes the source file of the rule with this id.
	RemoveRule string `yaml:"remove_rule,omitempty"`

	// Drift runs the read-only drift detector.
	Drift *struct{} `yaml:"drift,omitempty"`

	// Expect is checked after the operation, when present.
	Expect *Expect `yaml:"expect,omitempty"`
}

// UnrollStep selects which intents to remove.
type UnrollStep struct {
	Intents []string `yaml:"intents,omitempty"`
	All     bool     `yaml:"all,omitempty"`
}

// EditStep replaces one file's content wholesale.
type EditStep struct {
	File    string `yaml:"file"`
	Content string `yaml:"content"`
}

// Expect asserts on the state after a step. All clauses are optional;
// empty clauses check nothing.
type Expect struct {
	// Outcomes maps intent ids to reconcile outcomes ("created",
	// "updated", "removed", "unchanged", "conflict", "failed"). Valid
	// after sync, dry_run, and unroll steps.
	Outcomes map[string]string `yaml:"outcomes,omitempty"`

	// Drift maps intent ids to drift states ("in_sync", "drifted",
	// "broken_link", "missing_file"). Valid after drift steps.
	Drift map[string]string `yaml:"drift,omitempty"`

	// Files maps root-relative paths to their exact expected content.
	Files map[string]string `yaml:"files,omitempty"`

	// Contains maps root-relative paths to substrings they must hold.
	Contains map[string][]string `yaml:"contains,omitempty"`

	// Absent lists paths that must not exist.
	Absent []string `yaml:"absent,omitempty"`
}

// stepOp names the operation a step performs, or errors if the step
// does not set exactly one.
func (s *Step) stepOp() (string, error) {
	var ops []string
	if s.Sync != nil {
		ops = append(ops, "sync")
	}
	if s.DryRun != nil {
		ops = append(ops, "dry_run")
	}
	if s.Unroll != nil {
		ops = append(ops, "unroll")
	}
	if s.Edit != nil {
		ops = append(ops, "edit")
	}
	if s.RemoveRule != "" {
		ops = append(ops, "remove_rule")
	}
	if s.Drift != nil {
		ops = append(ops, "drift")
	}
	switch len(ops) {
	case 0:
		return "", fmt.Errorf("step sets no operation")
	case 1:
		return ops[0], nil
	default:
		return "", fmt.Errorf("step sets %d operations %v, want exactly one", len(ops), ops)
	}
}

// reportsOutcomes lists the operations that produce a reconcile report.
var reportsOutcomes = map[string]bool{"sync": true, "dry_run": true, "unroll": true}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes scenario YAML. Unknown fields are rejected so
// a typo in a clause name fails loudly instead of silently checking
// nothing.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		op, err := step.stepOp()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}

		if step.Unroll != nil {
			if step.Unroll.All && len(step.Unroll.Intents) > 0 {
				return fmt.Errorf("steps[%d]: unroll sets both all and intents", i)
			}
			if !step.Unroll.All && len(step.Unroll.Intents) == 0 {
				return fmt.Errorf("steps[%d]: unroll needs intents or all", i)
			}
		}
		if step.Edit != nil && step.Edit.File == "" {
			return fmt.Errorf("steps[%d]: edit needs a file", i)
		}

		if e := step.Expect; e != nil {
			if len(e.Outcomes) > 0 && !reportsOutcomes[op] {
				return fmt.Errorf("steps[%d]: expect.outcomes is not valid after %s", i, op)
			}
			if len(e.Drift) > 0 && op != "drift" {
				return fmt.Errorf("steps[%d]: expect.drift is only valid after drift", i)
			}
		}
	}
	return nil
}
