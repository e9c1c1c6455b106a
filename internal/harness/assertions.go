package harness

import (
	"fmt"
	"strings"

	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
)

// The check functions are pure: they compare observed state against an
// expect clause and describe every mismatch in one error, so a failing
// scenario reports all broken expectations at once.

func checkOutcomes(report *engine.Report, want map[string]string) error {
	byID := make(map[string]engine.IntentResult, len(report.Results))
	for _, res := range report.Results {
		byID[res.ID] = res
	}

	var problems []string
	for id, outcome := range want {
		res, ok := byID[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("intent %s: not in report", id))
			continue
		}
		if string(res.Outcome) != outcome {
			msg := fmt.Sprintf("intent %s: outcome %s, want %s", id, res.Outcome, outcome)
			if res.Reason != "" {
				msg += " (" + res.Reason + ")"
			}
			problems = append(problems, msg)
		}
	}
	return joinProblems(problems)
}

func checkDriftStates(drift *engine.DriftReport, want map[string]string) error {
	byID := make(map[string]engine.IntentDrift, len(drift.Intents))
	for _, in := range drift.Intents {
		byID[in.ID] = in
	}

	var problems []string
	for id, state := range want {
		in, ok := byID[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("intent %s: not in drift report", id))
			continue
		}
		if string(in.State) != state {
			problems = append(problems, fmt.Sprintf("intent %s: state %s, want %s", id, in.State, state))
		}
	}
	return joinProblems(problems)
}

func checkFiles(root *fsx.Root, e *Expect) error {
	var problems []string

	for rel, want := range e.Files {
		data, exists, err := root.ReadFile(fsx.Normalize(rel))
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("file %s: %v", rel, err))
		case !exists:
			problems = append(problems, fmt.Sprintf("file %s: absent, want content", rel))
		case string(data) != want:
			problems = append(problems, fmt.Sprintf("file %s: content mismatch\n--- got ---\n%s\n--- want ---\n%s", rel, data, want))
		}
	}

	for rel, snippets := range e.Contains {
		data, exists, err := root.ReadFile(fsx.Normalize(rel))
		if err != nil {
			problems = append(problems, fmt.Sprintf("file %s: %v", rel, err))
			continue
		}
		if !exists {
			problems = append(problems, fmt.Sprintf("file %s: absent", rel))
			continue
		}
		for _, snippet := range snippets {
			if !strings.Contains(string(data), snippet) {
				problems = append(problems, fmt.Sprintf("file %s: missing %q", rel, snippet))
			}
		}
	}

	for _, rel := range e.Absent {
		_, exists, err := root.ReadFile(fsx.Normalize(rel))
		if err != nil {
			problems = append(problems, fmt.Sprintf("file %s: %v", rel, err))
			continue
		}
		if exists {
			problems = append(problems, fmt.Sprintf("file %s: exists, want absent", rel))
		}
	}

	return joinProblems(problems)
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "\n"))
}
