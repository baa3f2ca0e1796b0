package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
)

// planFixture returns a graph with one open obligation plus a plan that
// discharges it by adding a default source.
func planFixture(t *testing.T) (ir.DraftGraph, ElaborationPlan) {
	t.Helper()
	g := mustBuild(t, []ir.DraftBlock{userBlock("fa1", catalog.BlockFloatAnchor)}, nil)
	require.Len(t, g.Obligations, 1)
	obID := g.Obligations[0].ID

	plan := ElaborationPlan{
		ObligationID: obID,
		AddBlocks: []ir.DraftBlock{{
			ID:     "elab:" + obID + ":src",
			Type:   catalog.BlockDefaultValue,
			Origin: ir.ElabOrigin(obID, ir.RoleDefaultSource),
		}},
		AddEdges: []ir.DraftEdge{{
			ID:     "elab:" + obID + ":wire",
			Source: ir.EdgeEnd{Block: "elab:" + obID + ":src", Port: "out"},
			Sink:   ir.EdgeEnd{Block: "fa1", Port: "in"},
			Role:   ir.EdgeDefaultWire,
			Origin: ir.ElabOrigin(obID, ir.RoleDefaultSource),
		}},
	}
	return g, plan
}

func TestApplyFreshPlan(t *testing.T) {
	g, plan := planFixture(t)

	out, err := Apply(g, plan)
	require.NoError(t, err)

	assert.Len(t, out.Blocks, 2)
	assert.Len(t, out.Edges, 1)
	assert.Equal(t, g.Revision+1, out.Revision)

	ob, ok := out.ObligationByID(plan.ObligationID)
	require.True(t, ok)
	assert.Equal(t, ir.ObligationDischarged, ob.Status.State)
	assert.Equal(t, plan.Artifacts(), ob.Status.Artifacts)

	// The input graph value is untouched.
	assert.Len(t, g.Blocks, 1)
	assert.Equal(t, ir.ObligationOpen, g.Obligations[0].Status.State)
}

func TestApplyIsIdempotent(t *testing.T) {
	g, plan := planFixture(t)

	once, err := Apply(g, plan)
	require.NoError(t, err)
	twice, err := Apply(once, plan)
	require.NoError(t, err)

	assert.Equal(t, once.Revision, twice.Revision)
	assert.Equal(t, once, twice)
}

func TestApplyPartialIsContractViolation(t *testing.T) {
	g, plan := planFixture(t)

	// Pre-insert only one of the plan's two artifacts.
	corrupted := g.Clone()
	corrupted.Blocks = append(corrupted.Blocks, plan.AddBlocks[0])
	corrupted.SortByID()

	_, err := Apply(corrupted, plan)
	require.Error(t, err)
	assert.True(t, IsPartialApply(err))
}

func TestApplyEmptyPlanDischarges(t *testing.T) {
	g := mustBuild(t, []ir.DraftBlock{userBlock("fa1", catalog.BlockFloatAnchor)}, nil)
	obID := g.Obligations[0].ID

	out, err := Apply(g, ElaborationPlan{ObligationID: obID})
	require.NoError(t, err)

	ob, ok := out.ObligationByID(obID)
	require.True(t, ok)
	assert.Equal(t, ir.ObligationDischarged, ob.Status.State)
	assert.Empty(t, ob.Status.Artifacts)
	assert.Equal(t, g.Revision+1, out.Revision)

	// A second application is a no-op.
	again, err := Apply(out, ElaborationPlan{ObligationID: obID})
	require.NoError(t, err)
	assert.Equal(t, out.Revision, again.Revision)
}

func TestApplyUnknownObligation(t *testing.T) {
	g := mustBuild(t, []ir.DraftBlock{userBlock("fa1", catalog.BlockFloatAnchor)}, nil)

	_, err := Apply(g, ElaborationPlan{ObligationID: "missingInputSource:ghost.in/in"})
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeUnknownObligation, ce.Code)
}

func TestApplyReplacement(t *testing.T) {
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("const1", catalog.BlockConst),
			userBlock("fa1", catalog.BlockFloatAnchor),
		},
		[]ir.DraftEdge{userWire("w1", "const1.out", "fa1.in")})
	require.Empty(t, g.Obligations)

	// Splice a block into w1. The obligation must be in the ledger for the
	// plan to discharge, so merge one in first.
	ob := ir.NewObligation(
		ir.ObligationKey{Kind: ir.NeedsCycleBreak, Src: outKey("const1.out"), Dst: inKey("fa1.in")},
		ir.Anchor{EdgeID: "w1"},
	)
	g, added := mergeObligations(g, []ir.Obligation{ob})
	require.Equal(t, 1, added)

	plan := ElaborationPlan{
		ObligationID: ob.ID,
		AddBlocks:    []ir.DraftBlock{{ID: "mid1", Type: catalog.BlockUnitDelay, Origin: ir.ElabOrigin(ob.ID, ir.RoleCycleBreak)}},
		Replacements: []EdgeReplacement{{
			RemoveEdgeID: "w1",
			AddEdges: []ir.DraftEdge{
				userWire("x0", "const1.out", "mid1.a"),
				userWire("x1", "mid1.out", "fa1.in"),
			},
		}},
	}

	out, err := Apply(g, plan)
	require.NoError(t, err)

	_, ok := out.EdgeByID("w1")
	assert.False(t, ok)
	_, ok = out.EdgeByID("x0")
	assert.True(t, ok)
	_, ok = out.EdgeByID("x1")
	assert.True(t, ok)
	_, ok = out.BlockByID("mid1")
	assert.True(t, ok)
}

func TestPlanArtifactsSorted(t *testing.T) {
	plan := ElaborationPlan{
		AddBlocks: []ir.DraftBlock{{ID: "z"}},
		AddEdges:  []ir.DraftEdge{{ID: "a"}},
		Replacements: []EdgeReplacement{{
			RemoveEdgeID: "w",
			AddEdges:     []ir.DraftEdge{{ID: "m"}},
		}},
	}
	assert.Equal(t, []string{"a", "m", "z"}, plan.Artifacts())
}

func TestMergeObligationsDeduplicates(t *testing.T) {
	g := mustBuild(t, []ir.DraftBlock{userBlock("add1", catalog.BlockAdd)}, nil)
	existing := g.Obligations[0]

	// Re-deriving an existing obligation is a no-op: merging never touches
	// ledger entries.
	merged, added := mergeObligations(g, []ir.Obligation{existing})
	assert.Equal(t, 0, added)
	assert.Equal(t, g.Revision, merged.Revision)

	fresh := ir.NewObligation(
		ir.ObligationKey{Kind: ir.NeedsPayloadAnchor, Var: "p:add1.a/in"},
		ir.Anchor{EdgeID: "w1", Var: "p:add1.a/in"},
	)
	merged, added = mergeObligations(g, []ir.Obligation{existing, fresh})
	assert.Equal(t, 1, added)
	assert.Equal(t, g.Revision+1, merged.Revision)
	assert.Len(t, merged.Obligations, 3)
}

func TestWithObligationStatus(t *testing.T) {
	g := mustBuild(t, []ir.DraftBlock{userBlock("add1", catalog.BlockAdd)}, nil)
	id := g.Obligations[0].ID

	blocked := ir.ObligationStatus{
		State:   ir.ObligationBlocked,
		Reason:  ir.BlockedNoDefaultSource,
		Message: "no source",
	}
	out, err := withObligationStatus(g, id, blocked)
	require.NoError(t, err)

	ob, ok := out.ObligationByID(id)
	require.True(t, ok)
	assert.Equal(t, blocked, ob.Status)
	assert.Equal(t, g.Revision+1, out.Revision)

	// Original untouched.
	assert.Equal(t, ir.ObligationOpen, g.Obligations[0].Status.State)

	_, err = withObligationStatus(g, "ghost", blocked)
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeUnknownObligation, ce.Code)
}
