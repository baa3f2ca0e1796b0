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

func solveCard(t *testing.T, cat catalog.Catalog, blocks []ir.DraftBlock, edges []ir.DraftEdge) *solver.CardSolution {
	t.Helper()
	g := testutil.MustGraph(t, cat, blocks, edges)
	return solver.SolveCardinality(solver.Extract(g, cat))
}

func TestSolveCardinalityDefaultsToOne(t *testing.T) {
	card := solveCard(t, catalog.Builtin(),
		[]ir.DraftBlock{testutil.Block("const1", catalog.BlockConst)}, nil)

	v, ok := card.CardOf(testutil.OutKey("const1.out"))
	require.True(t, ok)
	assert.Equal(t, ir.CardOne, v.Kind)
	assert.Empty(t, card.Diags)
}

func TestSolveCardinalityTransformOutputIsMany(t *testing.T) {
	card := solveCard(t, catalog.Builtin(),
		[]ir.DraftBlock{testutil.Block("arr1", catalog.BlockArray)}, nil)

	v, ok := card.CardOf(testutil.OutKey("arr1.elements"))
	require.True(t, ok)
	require.Equal(t, ir.CardMany, v.Kind)
	inst, resolved := v.Instance.Value()
	require.True(t, resolved)
	assert.Equal(t, ir.InstanceRef{Domain: "array", Instance: "arr1"}, inst)
}

func TestSolveCardinalityPreserveCarriesManyThrough(t *testing.T) {
	card := solveCard(t, catalog.Builtin(),
		[]ir.DraftBlock{
			testutil.Block("arr1", catalog.BlockArray),
			testutil.Block("ud1", catalog.BlockUnitDelay),
		},
		[]ir.DraftEdge{testutil.Wire("w1", "arr1.elements", "ud1.a")})

	for _, key := range []ir.PortKey{testutil.InKey("ud1.a"), testutil.OutKey("ud1.out")} {
		v, ok := card.CardOf(key)
		require.True(t, ok, "port %s", key)
		assert.Equal(t, ir.CardMany, v.Kind, "port %s", key)
	}
}

func TestSolveCardinalityZipMixesSignalAndField(t *testing.T) {
	// A field and a signal feed the same zip block: the field drives the
	// block's ports to many, the signal is skipped with a note instead of
	// conflicting.
	card := solveCard(t, catalog.Builtin(),
		[]ir.DraftBlock{
			testutil.Block("add1", catalog.BlockAdd),
			testutil.Block("arr1", catalog.BlockArray),
			testutil.Block("const1", catalog.BlockConst),
		},
		[]ir.DraftEdge{
			testutil.Wire("w1", "arr1.elements", "add1.a"),
			testutil.Wire("w2", "const1.out", "add1.b"),
		})

	assert.Empty(t, card.Diags)

	for _, endpoint := range []string{"add1.a", "add1.b"} {
		v, ok := card.CardOf(testutil.InKey(endpoint))
		require.True(t, ok)
		require.Equal(t, ir.CardMany, v.Kind, "port %s", endpoint)
		inst, resolved := v.Instance.Value()
		require.True(t, resolved)
		assert.Equal(t, "arr1", inst.Instance)
	}

	// The clamped signal stays one.
	v, ok := card.CardOf(testutil.OutKey("const1.out"))
	require.True(t, ok)
	assert.Equal(t, ir.CardOne, v.Kind)
	assert.False(t, card.Conflicted(testutil.OutKey("const1.out")))

	require.Len(t, card.Notes, 1)
	note := card.Notes[0]
	assert.Equal(t, "zip:add1", note.SetKey)
	assert.Equal(t, []ir.PortKey{testutil.OutKey("const1.out")}, note.SkippedPorts)
	inst, resolved := note.Instance.Value()
	require.True(t, resolved)
	assert.Equal(t, "arr1", inst.Instance)
}

func TestSolveCardinalityZipAllSignalsStayOne(t *testing.T) {
	// A zip set with no many member never invents field-ness.
	card := solveCard(t, catalog.Builtin(),
		[]ir.DraftBlock{
			testutil.Block("add1", catalog.BlockAdd),
			testutil.Block("const1", catalog.BlockConst),
			testutil.Block("const2", catalog.BlockConst),
		},
		[]ir.DraftEdge{
			testutil.Wire("w1", "const1.out", "add1.a"),
			testutil.Wire("w2", "const2.out", "add1.b"),
		})

	assert.Empty(t, card.Notes)
	for _, endpoint := range []string{"add1.a", "add1.b", "add1.out"} {
		v, ok := card.CardOf(testutil.InKey(endpoint))
		if endpoint == "add1.out" {
			v, ok = card.CardOf(testutil.OutKey(endpoint))
		}
		require.True(t, ok)
		assert.Equal(t, ir.CardOne, v.Kind, "port %s", endpoint)
	}
}

func TestSolveCardinalityBroadcastOutputResolvedByZipSet(t *testing.T) {
	// Broadcast's output instance is an open variable resolved by the zip
	// set it feeds.
	card := solveCard(t, catalog.Builtin(),
		[]ir.DraftBlock{
			testutil.Block("add1", catalog.BlockAdd),
			testutil.Block("arr1", catalog.BlockArray),
			testutil.Block("bc1", catalog.BlockBroadcast),
			testutil.Block("const1", catalog.BlockConst),
		},
		[]ir.DraftEdge{
			testutil.Wire("w1", "arr1.elements", "add1.a"),
			testutil.Wire("w2", "const1.out", "bc1.in"),
			testutil.Wire("w3", "bc1.out", "add1.b"),
		})

	assert.Empty(t, card.Diags)
	v, ok := card.CardOf(testutil.OutKey("bc1.out"))
	require.True(t, ok)
	require.Equal(t, ir.CardMany, v.Kind)
	inst, resolved := v.Instance.Value()
	require.True(t, resolved)
	assert.Equal(t, "arr1", inst.Instance)
}

func TestSolveCardinalityClampManyConflict(t *testing.T) {
	cs := solver.ConstraintSet{
		Base:  map[ir.PortKey]ir.CanonicalType{},
		Ports: []ir.PortKey{testutil.OutKey("x.out")},
		Card: []solver.CardConstraint{
			{Kind: solver.CardClampOne, Port: testutil.OutKey("x.out")},
			{
				Kind:     solver.CardForceMany,
				Port:     testutil.OutKey("x.out"),
				Instance: ir.NewVal(ir.InstanceRef{Domain: "array", Instance: "x"}),
			},
		},
	}

	card := solver.SolveCardinality(cs)

	assert.True(t, card.Conflicted(testutil.OutKey("x.out")))
	require.Len(t, card.Diags, 1)
	assert.Equal(t, ir.SubClampManyConflict, card.Diags[0].SubKind)

	// Conflicted groups still resolve so downstream reads never block.
	v, ok := card.CardOf(testutil.OutKey("x.out"))
	require.True(t, ok)
	assert.Equal(t, ir.CardOne, v.Kind)
}

func TestSolveCardinalityInstanceConflict(t *testing.T) {
	port := testutil.OutKey("x.out")
	cs := solver.ConstraintSet{
		Base:  map[ir.PortKey]ir.CanonicalType{},
		Ports: []ir.PortKey{port},
		Card: []solver.CardConstraint{
			{Kind: solver.CardForceMany, Port: port, Instance: ir.NewVal(ir.InstanceRef{Domain: "array", Instance: "a"})},
			{Kind: solver.CardForceMany, Port: port, Instance: ir.NewVal(ir.InstanceRef{Domain: "array", Instance: "b"})},
		},
	}

	card := solver.SolveCardinality(cs)

	assert.True(t, card.Conflicted(port))
	require.Len(t, card.Diags, 1)
	assert.Equal(t, ir.SubInstanceConflict, card.Diags[0].SubKind)
}

func TestSolveCardinalityUnresolvedInstanceVar(t *testing.T) {
	// A forced-many group whose instance variable never resolves is reported
	// in finalization.
	port := testutil.InKey("x.in")
	cs := solver.ConstraintSet{
		Base:  map[ir.PortKey]ir.CanonicalType{},
		Ports: []ir.PortKey{port},
		Card: []solver.CardConstraint{
			{Kind: solver.CardForceMany, Port: port, Instance: ir.NewVar[ir.InstanceRef]("i:x")},
		},
	}

	card := solver.SolveCardinality(cs)

	assert.True(t, card.Conflicted(port))
	require.Len(t, card.Diags, 1)
	assert.Equal(t, ir.SubUnresolvedInstanceVar, card.Diags[0].SubKind)
}
