// Package harness runs scenario-driven end-to-end tests against the
// reconciliation engine.
//
// A scenario is a YAML file (testdata/scenarios/*.yaml) describing a
// repository setup and an ordered list of steps: sync runs, dry runs,
// unrolls, external edits, rule removals, and drift checks. Each step
// can carry an expect clause asserting per-intent outcomes, drift
// states, and file contents.
//
// Scenarios execute against a real temporary repository root with the
// real engine, backends, and ledger store; only the clock and the
// instance-id generator are replaced with deterministic versions. The
// harness records a transcript of every report it sees plus the final
// bytes of selected files, and compares it against a golden file via
// goldie:
//
//	go test ./internal/harness -update
//
// regenerates the golden files.
package harness
