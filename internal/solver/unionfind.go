package solver

import (
	"fmt"

	"github.com/patchflow/patchflow/internal/ir"
)

// UnionFind is a union-find over variable ids, parameterized over the
// resolved-value type. A node either carries a value (resolved) or is a
// parent pointer; the two states are separate maps, not a runtime tag
// check on one heterogeneous map.
//
// Determinism: the lexicographically smaller root always wins a union, so
// the root of a group is independent of union order.
type UnionFind[V any] struct {
	parent map[ir.VarID]ir.VarID
	values map[ir.VarID]V
	eq     func(a, b V) bool
}

// ConflictError reports an attempt to merge or assign two unequal
// resolved values.
type ConflictError struct {
	Root ir.VarID
	A, B any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting values for %s: %v vs %v", e.Root, e.A, e.B)
}

// NewUnionFind creates an empty structure with the given value equality.
func NewUnionFind[V any](eq func(a, b V) bool) *UnionFind[V] {
	return &UnionFind[V]{
		parent: make(map[ir.VarID]ir.VarID),
		values: make(map[ir.VarID]V),
		eq:     eq,
	}
}

// Find returns the root of x, creating a singleton node on first sight.
// Paths are compressed.
func (u *UnionFind[V]) Find(x ir.VarID) ir.VarID {
	p, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		return x
	}
	if p == x {
		return x
	}
	root := u.Find(p)
	u.parent[x] = root
	return root
}

// Assign resolves x's group to the given value. Assigning to an
// already-resolved group is an error unless the values compare equal.
func (u *UnionFind[V]) Assign(x ir.VarID, v V) error {
	root := u.Find(x)
	if existing, ok := u.values[root]; ok {
		if !u.eq(existing, v) {
			return &ConflictError{Root: root, A: existing, B: v}
		}
		return nil
	}
	u.values[root] = v
	return nil
}

// Union merges the groups of a and b. Merging two value-bearing groups
// with unequal values is an error; the groups are still merged so that
// downstream reads see a single (conflicted) group.
func (u *UnionFind[V]) Union(a, b ir.VarID) error {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return nil
	}
	// Smaller id becomes the root.
	if rb < ra {
		ra, rb = rb, ra
	}
	var err error
	va, okA := u.values[ra]
	vb, okB := u.values[rb]
	if okA && okB && !u.eq(va, vb) {
		err = &ConflictError{Root: ra, A: va, B: vb}
	}
	u.parent[rb] = ra
	if !okA && okB {
		u.values[ra] = vb
	}
	delete(u.values, rb)
	return err
}

// Resolved returns the value of x's group, if any.
func (u *UnionFind[V]) Resolved(x ir.VarID) (V, bool) {
	v, ok := u.values[u.Find(x)]
	return v, ok
}
