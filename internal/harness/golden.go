package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/patchflow/patchflow/internal/ir"
)

// RunWithGolden executes a scenario and compares the final graph snapshot
// against a golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for expected normalization
// output: the canonical snapshot covers blocks, edges, the obligation
// ledger, and the revision counter, so any structural drift fails loudly.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot := map[string]any{
		"scenario_name": scenario.Name,
		"graph":         result.Run.Graph.CanonicalSnapshot(),
		"converged":     result.Run.Converged,
	}
	snapshotJSON, err := ir.MarshalCanonical(snapshot)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshotJSON)

	return result, nil
}
