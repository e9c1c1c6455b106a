package harness

import (
	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares the recorded transcript against
// testdata/golden/{name}.golden. Run the package tests with -update to
// regenerate.
func (h *Harness) AssertGolden(name string) {
	h.t.Helper()

	g := goldie.New(h.t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(h.t, name, h.Transcript())
}
