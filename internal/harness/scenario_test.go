package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: smallest valid scenario
setup:
  files:
    readme.md: "hello"
steps:
  - sync: {}
`

func TestParseScenarioMinimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	op, err := s.Steps[0].stepOp()
	require.NoError(t, err)
	assert.Equal(t, "sync", op)
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: has a misspelled clause
steps:
  - sync: {}
    expects:
      outcomes: {}
`))
	require.Error(t, err, "unknown field 'expects' must be rejected, not ignored")
}

func TestParseScenarioRejectsMissingName(t *testing.T) {
	_, err := ParseScenario([]byte(`
description: no name
steps:
  - sync: {}
`))
	require.ErrorContains(t, err, "name is required")
}

func TestParseScenarioRejectsEmptySteps(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: empty
description: has no steps
`))
	require.ErrorContains(t, err, "steps")
}

func TestParseScenarioRejectsTwoOpsInOneStep(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: two-ops
description: a step doing two things at once
steps:
  - sync: {}
    drift: {}
`))
	require.ErrorContains(t, err, "exactly one")
}

func TestParseScenarioRejectsStepWithoutOp(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: no-op
description: a step that only expects
steps:
  - expect:
      absent: [x]
`))
	require.ErrorContains(t, err, "no operation")
}

func TestParseScenarioRejectsUnrollWithoutSelection(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: bad-unroll
description: unroll must name intents or say all
steps:
  - unroll: {}
`))
	require.ErrorContains(t, err, "unroll needs intents or all")
}

func TestParseScenarioRejectsUnrollWithBothSelections(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: bad-unroll
description: unroll cannot mix all with named intents
steps:
  - unroll:
      all: true
      intents: [x]
`))
	require.ErrorContains(t, err, "both all and intents")
}

func TestParseScenarioRejectsDriftExpectOnSyncStep(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: misplaced-expect
description: drift states cannot be asserted after a sync
steps:
  - sync: {}
    expect:
      drift:
        some-intent: drifted
`))
	require.ErrorContains(t, err, "expect.drift")
}

func TestParseScenarioRejectsOutcomesOnEditStep(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: misplaced-outcomes
description: edits produce no report to assert on
steps:
  - edit:
      file: a.txt
      content: hi
    expect:
      outcomes:
        some-intent: updated
`))
	require.ErrorContains(t, err, "expect.outcomes")
}
