package catalog

import (
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/patchflow/patchflow/internal/ir"
)

// AdapterSpec declares one adapter block converting one type signature
// into another.
type AdapterSpec struct {
	Block string
	From  TypeSig
	To    TypeSig
}

// chainCacheSize bounds the memoized chain lookups. Graphs reuse a small
// set of type pairs heavily across fixpoint iterations.
const chainCacheSize = 256

type chainKey struct {
	from TypeSig
	to   TypeSig
}

type chainResult struct {
	chain []string
	ok    bool
}

// AdapterCatalog answers assignability queries and finds shortest adapter
// chains between concrete types. Lookups are memoized in an LRU cache.
type AdapterCatalog struct {
	specs []AdapterSpec
	cache *lru.Cache[chainKey, chainResult]
}

// NewAdapterCatalog builds a catalog from specs. Specs are sorted by
// (from, to, block) so BFS expansion order is independent of declaration
// order.
func NewAdapterCatalog(specs []AdapterSpec) *AdapterCatalog {
	sorted := slices.Clone(specs)
	slices.SortFunc(sorted, func(a, b AdapterSpec) int {
		if c := compareSigs(a.From, b.From); c != 0 {
			return c
		}
		if c := compareSigs(a.To, b.To); c != 0 {
			return c
		}
		return compareIDs(a.Block, b.Block)
	})
	cache, err := lru.New[chainKey, chainResult](chainCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &AdapterCatalog{specs: sorted, cache: cache}
}

func compareIDs(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Assignable reports whether a value of type from may be wired into a port
// of type to without an adapter. Assignability is looser than equality:
// a unit-annotated source may feed a dimensionless sink (dropping the unit
// contract is free), and zero cardinality is normalized to one.
func (c *AdapterCatalog) Assignable(from, to ir.CanonicalType) bool {
	fromSig, ok := TypeSigOf(from)
	if !ok {
		return false
	}
	toSig, ok := TypeSigOf(to)
	if !ok {
		return false
	}
	if fromSig.Payload != toSig.Payload {
		return false
	}
	if fromSig.Unit != toSig.Unit && toSig.Unit != ir.UnitNone {
		return false
	}
	ft, okF := from.Extent.Temporality.Value()
	tt, okT := to.Extent.Temporality.Value()
	if !okF || !okT || ft != tt {
		return false
	}
	return cardAssignable(from.Extent.Cardinality, to.Extent.Cardinality)
}

func cardAssignable(from, to ir.Term[ir.CardValue]) bool {
	fv, okF := from.Value()
	tv, okT := to.Value()
	if !okF || !okT {
		return false
	}
	fk := normalizeZero(fv.Kind)
	tk := normalizeZero(tv.Kind)
	if fk != tk {
		return false
	}
	if fk != ir.CardMany {
		return true
	}
	fi, okFI := fv.Instance.Value()
	ti, okTI := tv.Instance.Value()
	return okFI && okTI && fi == ti
}

// normalizeZero treats zero cardinality as one for assignability. The
// solver applies the same normalization; axis validation downstream keeps
// zero distinguishable.
func normalizeZero(k ir.CardKind) ir.CardKind {
	if k == ir.CardZero {
		return ir.CardOne
	}
	return k
}

// Chain returns the shortest adapter chain (a sequence of adapter block
// type names) converting from into to, or false when no chain exists.
// Equal signatures yield an empty chain.
func (c *AdapterCatalog) Chain(from, to ir.CanonicalType) ([]string, bool) {
	fromSig, ok := TypeSigOf(from)
	if !ok {
		return nil, false
	}
	toSig, ok := TypeSigOf(to)
	if !ok {
		return nil, false
	}
	if fromSig == toSig {
		return []string{}, true
	}

	key := chainKey{from: fromSig, to: toSig}
	if res, ok := c.cache.Get(key); ok {
		return slices.Clone(res.chain), res.ok
	}

	chain, found := c.bfs(fromSig, toSig)
	c.cache.Add(key, chainResult{chain: chain, ok: found})
	return slices.Clone(chain), found
}

// bfs runs breadth-first search over type signatures. Specs are pre-sorted,
// so among equal-length chains the lexicographically first wins.
func (c *AdapterCatalog) bfs(from, to TypeSig) ([]string, bool) {
	type node struct {
		sig   TypeSig
		chain []string
	}
	visited := map[TypeSig]bool{from: true}
	queue := []node{{sig: from}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, spec := range c.specs {
			if spec.From != cur.sig || visited[spec.To] {
				continue
			}
			chain := append(slices.Clone(cur.chain), spec.Block)
			if spec.To == to {
				return chain, true
			}
			visited[spec.To] = true
			queue = append(queue, node{sig: spec.To, chain: chain})
		}
	}
	return nil, false
}
