package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
)

func derive(t *testing.T, g ir.DraftGraph) []ir.Obligation {
	t.Helper()
	facts, eq, card := solveGraph(g)
	return DeriveObligations(g, catalog.Builtin(), catalog.BuiltinAdapters(), facts, eq, card)
}

func TestDeriveAdapterNeed(t *testing.T) {
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("conv1", catalog.BlockIntToFloat),
			userBlock("conv2", catalog.BlockBoolToInt),
		},
		[]ir.DraftEdge{userWire("w1", "conv1.out", "conv2.in")})

	obs := derive(t, g)

	require.Len(t, obs, 1)
	ob := obs[0]
	assert.Equal(t, ir.NeedsAdapter, ob.Kind)
	assert.Equal(t, "needsAdapter:conv1.out/out->conv2.in/in", ob.ID)
	assert.Equal(t, "w1", ob.Anchor.EdgeID)
	require.Len(t, ob.Deps, 2)
	assert.Equal(t, ir.DepPortResolved, ob.Deps[0].Kind)
	assert.Equal(t, outKey("conv1.out"), ob.Deps[0].Port)
	assert.Equal(t, inKey("conv2.in"), ob.Deps[1].Port)
}

func TestDeriveAdapterSkipsElaborationEdges(t *testing.T) {
	// Policies build their edges type-correct; derivation never second-guesses
	// them, whatever the facts say.
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("conv1", catalog.BlockIntToFloat),
			userBlock("conv2", catalog.BlockBoolToInt),
		},
		[]ir.DraftEdge{{
			ID:     "w1",
			Source: ir.EdgeEnd{Block: "conv1", Port: "out"},
			Sink:   ir.EdgeEnd{Block: "conv2", Port: "in"},
			Role:   ir.EdgeInternalHelper,
			Origin: ir.ElabOrigin("ob1", ir.RoleCycleBreak),
		}})

	assert.Empty(t, derive(t, g))
}

func TestDeriveAdapterNotNeededAfterUnion(t *testing.T) {
	// Wiring an open output into a concrete input resolves the group via
	// union, so both endpoints agree and no adapter is derived.
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("add1", catalog.BlockAdd),
			userBlock("conv1", catalog.BlockBoolToInt),
		},
		[]ir.DraftEdge{userWire("w1", "add1.out", "conv1.in")})

	for _, ob := range derive(t, g) {
		assert.NotEqual(t, ir.NeedsAdapter, ob.Kind)
	}
}

func TestDeriveCardinalityAdapterOnZipBoundary(t *testing.T) {
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("add1", catalog.BlockAdd),
			userBlock("arr1", catalog.BlockArray),
			userBlock("const1", catalog.BlockConst),
		},
		[]ir.DraftEdge{
			userWire("w1", "arr1.elements", "add1.a"),
			userWire("w2", "const1.out", "add1.b"),
		})

	obs := derive(t, g)

	var cardObs []ir.Obligation
	for _, ob := range obs {
		if ob.Kind == ir.NeedsCardinalityAdapter {
			cardObs = append(cardObs, ob)
		}
	}
	require.Len(t, cardObs, 1)
	assert.Equal(t, "needsCardinalityAdapter:const1.out/out->add1.b/in", cardObs[0].ID)
	assert.Equal(t, "w2", cardObs[0].Anchor.EdgeID)
}

func TestDeriveCycleBreak(t *testing.T) {
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("add1", catalog.BlockAdd),
			userBlock("add2", catalog.BlockAdd),
		},
		[]ir.DraftEdge{
			userWire("w1", "add1.out", "add2.a"),
			userWire("w2", "add2.out", "add1.a"),
		})

	obs := derive(t, g)

	var cycleObs []ir.Obligation
	for _, ob := range obs {
		if ob.Kind == ir.NeedsCycleBreak {
			cycleObs = append(cycleObs, ob)
		}
	}
	require.Len(t, cycleObs, 1)
	// The cut is the lexicographically first user edge inside the component.
	assert.Equal(t, "needsCycleBreak:add1.out/out->add2.a/in", cycleObs[0].ID)
	assert.Equal(t, "w1", cycleObs[0].Anchor.EdgeID)
}

func TestDeriveCycleBreakSelfLoop(t *testing.T) {
	g := mustBuild(t,
		[]ir.DraftBlock{userBlock("add1", catalog.BlockAdd)},
		[]ir.DraftEdge{userWire("w1", "add1.out", "add1.a")})

	obs := derive(t, g)

	var found bool
	for _, ob := range obs {
		if ob.Kind == ir.NeedsCycleBreak {
			found = true
			assert.Equal(t, "w1", ob.Anchor.EdgeID)
		}
	}
	assert.True(t, found, "self loop needs a cycle break")
}

func TestDeriveNoCycleBreakThroughFrameDelay(t *testing.T) {
	// The delay's output is next-frame data, so the loop is already broken.
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("add1", catalog.BlockAdd),
			userBlock("ud1", catalog.BlockUnitDelay),
		},
		[]ir.DraftEdge{
			userWire("w1", "add1.out", "ud1.a"),
			userWire("w2", "ud1.out", "add1.a"),
		})

	for _, ob := range derive(t, g) {
		assert.NotEqual(t, ir.NeedsCycleBreak, ob.Kind)
	}
}

func TestDerivePayloadAnchor(t *testing.T) {
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("add1", catalog.BlockAdd),
			userBlock("const1", catalog.BlockConst),
		},
		[]ir.DraftEdge{userWire("w1", "const1.out", "add1.a")})

	obs := derive(t, g)

	var anchorObs []ir.Obligation
	for _, ob := range obs {
		if ob.Kind == ir.NeedsPayloadAnchor {
			anchorObs = append(anchorObs, ob)
		}
	}
	require.Len(t, anchorObs, 1)
	ob := anchorObs[0]
	assert.Equal(t, "needsPayloadAnchor:p%3Aadd1%2Ea%2Fin", ob.ID)
	assert.Equal(t, ir.VarID("p:add1.a/in"), ob.Anchor.Var)
	assert.Equal(t, "w1", ob.Anchor.EdgeID)
}

func TestDerivePayloadAnchorNeedsEligibleEdge(t *testing.T) {
	// Open payload groups with no wire to splice onto wait for the default
	// sources to arrive first.
	g := mustBuild(t, []ir.DraftBlock{userBlock("const1", catalog.BlockConst)}, nil)

	for _, ob := range derive(t, g) {
		assert.NotEqual(t, ir.NeedsPayloadAnchor, ob.Kind)
	}
}

func TestDerivePayloadAnchorOnePerIteration(t *testing.T) {
	// Two disjoint open groups: only the lexicographically first gets an
	// anchor this iteration. One structural change at a time.
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("add1", catalog.BlockAdd),
			userBlock("add2", catalog.BlockAdd),
			userBlock("const1", catalog.BlockConst),
			userBlock("const2", catalog.BlockConst),
		},
		[]ir.DraftEdge{
			userWire("w1", "const1.out", "add1.a"),
			userWire("w2", "const2.out", "add2.a"),
		})

	var anchorObs []ir.Obligation
	for _, ob := range derive(t, g) {
		if ob.Kind == ir.NeedsPayloadAnchor {
			anchorObs = append(anchorObs, ob)
		}
	}
	require.Len(t, anchorObs, 1)
	assert.Equal(t, ir.VarID("p:add1.a/in"), anchorObs[0].Anchor.Var)
}

func TestDeriveCleanGraphProducesNothing(t *testing.T) {
	g := mustBuild(t,
		[]ir.DraftBlock{
			userBlock("const1", catalog.BlockConst),
			userBlock("fa1", catalog.BlockFloatAnchor),
		},
		[]ir.DraftEdge{userWire("w1", "const1.out", "fa1.in")})

	assert.Empty(t, derive(t, g))
}
