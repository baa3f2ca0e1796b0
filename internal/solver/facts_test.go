package solver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/solver"
	"github.com/patchflow/patchflow/internal/testutil"
)

func computeFacts(t *testing.T, blocks []ir.DraftBlock, edges []ir.DraftEdge) ir.TypeFacts {
	t.Helper()
	g := testutil.MustGraph(t, catalog.Builtin(), blocks, edges)
	cs := solver.Extract(g, catalog.Builtin())
	eq := solver.SolveEquality(cs)
	card := solver.SolveCardinality(cs)
	return solver.ComputeFacts(cs, eq, card)
}

func TestComputeFactsFullyResolvedPort(t *testing.T) {
	facts := computeFacts(t,
		[]ir.DraftBlock{testutil.Block("tr1", catalog.BlockTimeRoot)}, nil)

	hint, ok := facts.Lookup(testutil.OutKey("tr1.time"))
	require.True(t, ok)
	assert.Equal(t, ir.HintOK, hint.State)

	payload, resolved := hint.Type.Payload.Value()
	require.True(t, resolved)
	assert.Equal(t, ir.PayloadTimeRoot, payload)

	card, resolved := hint.Type.Extent.Cardinality.Value()
	require.True(t, resolved)
	assert.Equal(t, ir.CardOne, card.Kind)

	assert.True(t, facts.AllOK())
}

func TestComputeFactsUnknownPayloadCarriesGroupRoot(t *testing.T) {
	facts := computeFacts(t,
		[]ir.DraftBlock{
			testutil.Block("add1", catalog.BlockAdd),
			testutil.Block("const1", catalog.BlockConst),
		},
		[]ir.DraftEdge{testutil.Wire("w1", "const1.out", "add1.a")})

	hint, ok := facts.Lookup(testutil.OutKey("const1.out"))
	require.True(t, ok)
	assert.Equal(t, ir.HintUnknown, hint.State)

	// The unresolved payload term names the group root, so derivation can
	// group ports by shared variable straight from the facts.
	require.True(t, hint.Type.Payload.IsVar())
	assert.Equal(t, ir.VarID("p:add1.a/in"), hint.Type.Payload.Var())
	assert.False(t, facts.AllOK())
}

func TestComputeFactsUnresolvedUnitDefaultsToNone(t *testing.T) {
	// Units are optional annotations: a group with no unit evidence is
	// dimensionless, it does not stay open the way payloads do.
	facts := computeFacts(t,
		[]ir.DraftBlock{testutil.Block("const1", catalog.BlockConst)}, nil)

	hint, ok := facts.Lookup(testutil.OutKey("const1.out"))
	require.True(t, ok)
	assert.Equal(t, ir.HintUnknown, hint.State)

	unit, resolved := hint.Type.Unit.Value()
	require.True(t, resolved)
	assert.Equal(t, ir.UnitNone, unit)
}

func TestComputeFactsConflict(t *testing.T) {
	facts := computeFacts(t,
		[]ir.DraftBlock{
			testutil.Block("const1", catalog.BlockConst),
			testutil.Block("conv1", catalog.BlockIntToFloat),
			testutil.Block("fa1", catalog.BlockFloatAnchor),
		},
		[]ir.DraftEdge{
			testutil.Wire("w1", "const1.out", "fa1.in"),
			testutil.Wire("w2", "const1.out", "conv1.in"),
		})

	hint, ok := facts.Lookup(testutil.OutKey("const1.out"))
	require.True(t, ok)
	assert.Equal(t, ir.HintConflict, hint.State)
	assert.False(t, facts.AllOK())
}

func TestComputeFactsKeysSortedAndComplete(t *testing.T) {
	facts := computeFacts(t,
		[]ir.DraftBlock{
			testutil.Block("add1", catalog.BlockAdd),
			testutil.Block("tr1", catalog.BlockTimeRoot),
		}, nil)

	keys := facts.Keys()
	require.Len(t, keys, 4)
	for i := 1; i < len(keys); i++ {
		assert.Negative(t, keys[i-1].Compare(keys[i]))
	}
}
