package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/normalize"
	"github.com/patchflow/patchflow/internal/testutil"
)

func builtinDriver(opts ...normalize.Option) *normalize.Driver {
	return normalize.NewDriver(catalog.Builtin(), catalog.BuiltinAdapters(), opts...)
}

func blockCountByType(g ir.DraftGraph) map[string]int {
	counts := make(map[string]int)
	for _, b := range g.Blocks {
		counts[b.Type]++
	}
	return counts
}

func hasDiag(diags []ir.Diagnostic, subKind string) bool {
	for _, d := range diags {
		if d.SubKind == subKind {
			return true
		}
	}
	return false
}

func requireAllDischarged(t *testing.T, g ir.DraftGraph) {
	t.Helper()
	for _, ob := range g.Obligations {
		assert.Equal(t, ir.ObligationDischarged, ob.Status.State, "obligation %s", ob.ID)
	}
}

func TestRunLoneAdd(t *testing.T) {
	// A lone Add has no sources and no payload evidence. The fixpoint fills
	// both inputs with default sources, then anchors the still-open payload
	// group, then confirms nothing more changes.
	g := testutil.MustGraph(t, catalog.Builtin(),
		[]ir.DraftBlock{testutil.Block("add1", catalog.BlockAdd)}, nil)

	res, err := builtinDriver().Run(g)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)

	counts := blockCountByType(res.Graph)
	assert.Equal(t, 1, counts[catalog.BlockAdd])
	assert.Equal(t, 2, counts[catalog.BlockDefaultValue])
	assert.Equal(t, 1, counts[catalog.BlockFloatAnchor])

	requireAllDischarged(t, res.Graph)
	require.NotNil(t, res.Strict)
	assert.True(t, hasDiag(res.Diagnostics, ir.SubCheaterAdapterUsed))

	hint, ok := res.Facts.Lookup(testutil.OutKey("add1.out"))
	require.True(t, ok)
	assert.Equal(t, ir.HintOK, hint.State)
	payload, _ := hint.Type.Payload.Value()
	assert.Equal(t, ir.PayloadFloat, payload)
}

func TestRunConstsIntoAdd(t *testing.T) {
	g := testutil.MustGraph(t, catalog.Builtin(),
		[]ir.DraftBlock{
			testutil.Block("add1", catalog.BlockAdd),
			testutil.Block("const1", catalog.BlockConst),
			testutil.Block("const2", catalog.BlockConst),
		},
		[]ir.DraftEdge{
			testutil.Wire("w1", "const1.out", "add1.a"),
			testutil.Wire("w2", "const2.out", "add1.b"),
		})

	res, err := builtinDriver().Run(g)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 1, blockCountByType(res.Graph)[catalog.BlockFloatAnchor])
	require.NotNil(t, res.Strict)

	hint, ok := res.Facts.Lookup(testutil.OutKey("add1.out"))
	require.True(t, ok)
	card, _ := hint.Type.Extent.Cardinality.Value()
	assert.Equal(t, ir.CardOne, card.Kind)
}

func TestRunZipBoundaryInsertsBroadcast(t *testing.T) {
	// An array field and a plain signal feed the same zip block. The signal
	// side gets a broadcast, the open payload group gets an anchor, and the
	// zipped ports all resolve to the array's instance.
	g := testutil.MustGraph(t, catalog.Builtin(),
		[]ir.DraftBlock{
			testutil.Block("add1", catalog.BlockAdd),
			testutil.Block("arr1", catalog.BlockArray),
			testutil.Block("const1", catalog.BlockConst),
		},
		[]ir.DraftEdge{
			testutil.Wire("w1", "arr1.elements", "add1.a"),
			testutil.Wire("w2", "const1.out", "add1.b"),
		})

	res, err := builtinDriver().Run(g)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)

	counts := blockCountByType(res.Graph)
	assert.Equal(t, 1, counts[catalog.BlockBroadcast])
	assert.Equal(t, 1, counts[catalog.BlockFloatAnchor])
	assert.Len(t, res.Graph.Blocks, 5)

	assert.True(t, hasDiag(res.Diagnostics, ir.SubCardinalityAdapter))
	assert.True(t, hasDiag(res.Diagnostics, ir.SubCheaterAdapterUsed))
	requireAllDischarged(t, res.Graph)
	require.NotNil(t, res.Strict)

	for _, endpoint := range []string{"add1.a", "add1.b"} {
		hint, ok := res.Facts.Lookup(testutil.InKey(endpoint))
		require.True(t, ok)
		card, resolved := hint.Type.Extent.Cardinality.Value()
		require.True(t, resolved)
		assert.Equal(t, ir.CardMany, card.Kind)
		inst, resolved := card.Instance.Value()
		require.True(t, resolved)
		assert.Equal(t, ir.InstanceRef{Domain: "array", Instance: "arr1"}, inst)
	}
}

func TestRunCycleGetsDelayAndAnchor(t *testing.T) {
	g := testutil.MustGraph(t, catalog.Builtin(),
		[]ir.DraftBlock{
			testutil.Block("add1", catalog.BlockAdd),
			testutil.Block("add2", catalog.BlockAdd),
		},
		[]ir.DraftEdge{
			testutil.Wire("w1", "add1.out", "add2.a"),
			testutil.Wire("w2", "add2.out", "add1.a"),
		})

	res, err := builtinDriver().Run(g)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)

	counts := blockCountByType(res.Graph)
	assert.Equal(t, 2, counts[catalog.BlockAdd])
	assert.Equal(t, 2, counts[catalog.BlockDefaultValue])
	assert.Equal(t, 1, counts[catalog.BlockUnitDelay])
	assert.Equal(t, 1, counts[catalog.BlockFloatAnchor])

	assert.True(t, hasDiag(res.Diagnostics, ir.SubCycleBreakInserted))
	assert.True(t, hasDiag(res.Diagnostics, ir.SubCheaterAdapterUsed))
	requireAllDischarged(t, res.Graph)
	require.NotNil(t, res.Strict)
}

func TestRunDeterministic(t *testing.T) {
	build := func() ir.DraftGraph {
		return testutil.MustGraph(t, catalog.Builtin(),
			[]ir.DraftBlock{
				testutil.Block("add1", catalog.BlockAdd),
				testutil.Block("add2", catalog.BlockAdd),
			},
			[]ir.DraftEdge{
				testutil.Wire("w1", "add1.out", "add2.a"),
				testutil.Wire("w2", "add2.out", "add1.a"),
			})
	}

	res1, err := builtinDriver().Run(build())
	require.NoError(t, err)
	res2, err := builtinDriver().Run(build())
	require.NoError(t, err)

	h1, err := ir.GraphHash(res1.Graph)
	require.NoError(t, err)
	h2, err := ir.GraphHash(res2.Graph)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, res1.Diagnostics, res2.Diagnostics)
}

func TestRunIdempotentOnNormalizedGraph(t *testing.T) {
	g := testutil.MustGraph(t, catalog.Builtin(),
		[]ir.DraftBlock{testutil.Block("add1", catalog.BlockAdd)}, nil)

	first, err := builtinDriver().Run(g)
	require.NoError(t, err)
	require.True(t, first.Converged)

	second, err := builtinDriver().Run(first.Graph)
	require.NoError(t, err)

	assert.True(t, second.Converged)
	assert.Equal(t, 1, second.Iterations)

	h1, err := ir.GraphHash(first.Graph)
	require.NoError(t, err)
	h2, err := ir.GraphHash(second.Graph)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestRunIterationCap(t *testing.T) {
	// The lone-Add scenario needs three iterations; cap it at one.
	g := testutil.MustGraph(t, catalog.Builtin(),
		[]ir.DraftBlock{testutil.Block("add1", catalog.BlockAdd)}, nil)

	res, err := builtinDriver(normalize.WithMaxIterations(1)).Run(g)
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Nil(t, res.Strict)
	assert.True(t, hasDiag(res.Diagnostics, ir.SubNonConvergence))
}

func TestRunEmptyGraph(t *testing.T) {
	g := testutil.MustGraph(t, catalog.Builtin(), nil, nil)

	res, err := builtinDriver().Run(g)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	require.NotNil(t, res.Strict)
	assert.Empty(t, res.Strict.Types)
}

func TestRunUnknownBlockTypeDiagnostic(t *testing.T) {
	g := testutil.MustGraph(t, catalog.Builtin(),
		[]ir.DraftBlock{testutil.Block("mystery1", "Mystery")}, nil)

	res, err := builtinDriver().Run(g)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.True(t, hasDiag(res.Diagnostics, ir.SubUnknownBlockType))
}

func TestRunTemporalityMismatchBlocksStrict(t *testing.T) {
	// Both endpoints are concrete floats, so the adapter search has no
	// chain to find; only the temporality axis disagrees. The obligation
	// must block and the run must not finalize a strict graph around the
	// mismatched wire.
	cat := catalog.NewInMemory("",
		catalog.BlockDef{
			Name: "Ramp",
			Outputs: []catalog.PortDef{
				{Name: "out", Type: catalog.TypeTemplate{Payload: ir.PayloadFloat}},
			},
			Card: catalog.CardinalityMeta{Mode: catalog.SignalOnly},
		},
		catalog.BlockDef{
			Name: "Latch",
			Inputs: []catalog.PortDef{
				{Name: "in", Type: catalog.TypeTemplate{Payload: ir.PayloadFloat, Temporality: ir.Discrete}},
			},
			Card: catalog.CardinalityMeta{Mode: catalog.SignalOnly},
		},
	)
	g := testutil.MustGraph(t, cat,
		[]ir.DraftBlock{
			testutil.Block("ramp1", "Ramp"),
			testutil.Block("latch1", "Latch"),
		},
		[]ir.DraftEdge{testutil.Wire("w1", "ramp1.out", "latch1.in")})

	res, err := normalize.NewDriver(cat, catalog.NewAdapterCatalog(nil)).Run(g)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Nil(t, res.Strict)

	ob, ok := res.Graph.ObligationByID("needsAdapter:ramp1.out/out->latch1.in/in")
	require.True(t, ok)
	assert.Equal(t, ir.ObligationBlocked, ob.Status.State)
	assert.Equal(t, ir.BlockedNoAdapterChain, ob.Status.Reason)
	assert.Empty(t, ob.Status.Artifacts)

	// The mismatched wire survives untouched.
	_, ok = res.Graph.EdgeByID("w1")
	assert.True(t, ok)
}
