package solver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/solver"
)

func newStringUF() *solver.UnionFind[string] {
	return solver.NewUnionFind[string](func(a, b string) bool { return a == b })
}

func TestUnionFindFindCreatesSingleton(t *testing.T) {
	uf := newStringUF()
	assert.Equal(t, ir.VarID("x"), uf.Find("x"))

	_, ok := uf.Resolved("x")
	assert.False(t, ok)
}

func TestUnionFindSmallerRootWins(t *testing.T) {
	uf := newStringUF()
	require.NoError(t, uf.Union("b", "a"))
	assert.Equal(t, ir.VarID("a"), uf.Find("b"))

	// Union order does not change the root.
	uf2 := newStringUF()
	require.NoError(t, uf2.Union("a", "b"))
	assert.Equal(t, ir.VarID("a"), uf2.Find("b"))
}

func TestUnionFindAssignAndResolve(t *testing.T) {
	uf := newStringUF()
	require.NoError(t, uf.Assign("x", "float"))

	v, ok := uf.Resolved("x")
	require.True(t, ok)
	assert.Equal(t, "float", v)

	// Re-assigning an equal value is a no-op.
	require.NoError(t, uf.Assign("x", "float"))

	// A different value conflicts.
	err := uf.Assign("x", "int")
	var conflict *solver.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ir.VarID("x"), conflict.Root)
}

func TestUnionFindValueMigratesToNewRoot(t *testing.T) {
	uf := newStringUF()
	require.NoError(t, uf.Assign("b", "float"))
	require.NoError(t, uf.Union("a", "b"))

	v, ok := uf.Resolved("a")
	require.True(t, ok)
	assert.Equal(t, "float", v)
}

func TestUnionFindConflictStillMerges(t *testing.T) {
	uf := newStringUF()
	require.NoError(t, uf.Assign("a", "float"))
	require.NoError(t, uf.Assign("b", "int"))

	err := uf.Union("a", "b")
	var conflict *solver.ConflictError
	require.ErrorAs(t, err, &conflict)

	// The groups merged anyway: downstream reads see one group carrying the
	// root's value.
	assert.Equal(t, ir.VarID("a"), uf.Find("b"))
	v, ok := uf.Resolved("b")
	require.True(t, ok)
	assert.Equal(t, "float", v)
}

func TestUnionFindAssignPropagatesThroughGroup(t *testing.T) {
	uf := newStringUF()
	require.NoError(t, uf.Union("a", "b"))
	require.NoError(t, uf.Union("b", "c"))
	require.NoError(t, uf.Assign("c", "bool"))

	for _, id := range []ir.VarID{"a", "b", "c"} {
		v, ok := uf.Resolved(id)
		require.True(t, ok, "var %s", id)
		assert.Equal(t, "bool", v)
	}
}
