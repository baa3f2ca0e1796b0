package normalize

import (
	"slices"
	"strings"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/solver"
)

// deriveContext bundles the read-only inputs the derivation functions
// share. Derivation never mutates the graph; it only emits obligations.
type deriveContext struct {
	graph    ir.DraftGraph
	cat      catalog.Catalog
	adapters *catalog.AdapterCatalog
	facts    ir.TypeFacts
	eq       *solver.EqSolution
	card     *solver.CardSolution
}

// DeriveObligations runs the independent derivation passes and unions
// their output. The ledger deduplicates by id, so emitting an obligation
// that already exists is harmless.
func DeriveObligations(g ir.DraftGraph, cat catalog.Catalog, adapters *catalog.AdapterCatalog, facts ir.TypeFacts, eq *solver.EqSolution, card *solver.CardSolution) []ir.Obligation {
	ctx := deriveContext{graph: g, cat: cat, adapters: adapters, facts: facts, eq: eq, card: card}
	var out []ir.Obligation
	out = append(out, ctx.adapterNeeds()...)
	out = append(out, ctx.cardinalityAdapterNeed()...)
	out = append(out, ctx.cycleBreakNeed()...)
	out = append(out, ctx.payloadAnchorNeed()...)
	return out
}

// adapterNeeds emits a needsAdapter obligation for every user or default
// wire whose endpoints both resolve ok but are not assignable. Edges
// inserted by elaboration never need adapters: the policies build them
// type-correct.
func (ctx deriveContext) adapterNeeds() []ir.Obligation {
	var out []ir.Obligation
	for _, e := range ctx.graph.Edges {
		if e.Role != ir.EdgeUserWire && e.Role != ir.EdgeDefaultWire {
			continue
		}
		src, snk := e.SourceKey(), e.SinkKey()
		srcHint, okS := ctx.facts.Lookup(src)
		snkHint, okD := ctx.facts.Lookup(snk)
		if !okS || !okD || srcHint.State != ir.HintOK || snkHint.State != ir.HintOK {
			continue
		}
		if ctx.adapters.Assignable(srcHint.Type, snkHint.Type) {
			continue
		}
		out = append(out, ir.NewObligation(
			ir.ObligationKey{Kind: ir.NeedsAdapter, Src: src, Dst: snk},
			ir.Anchor{EdgeID: e.ID},
			ir.FactDep{Kind: ir.DepPortResolved, Port: src},
			ir.FactDep{Kind: ir.DepPortResolved, Port: snk},
		))
	}
	return out
}

// cardinalityAdapterNeed inspects the solver's zip-clamp notes for a
// boundary edge: a wire whose source group was skipped as forcedOne while
// its sink, a member of the zip set, resolved many. At most one obligation
// is emitted per iteration — one structural change at a time prevents
// oscillation.
func (ctx deriveContext) cardinalityAdapterNeed() []ir.Obligation {
	type boundary struct {
		edge ir.DraftEdge
		src  ir.PortKey
		snk  ir.PortKey
	}
	var candidates []boundary
	for _, note := range ctx.card.Notes {
		for _, e := range ctx.graph.Edges {
			src, snk := e.SourceKey(), e.SinkKey()
			if !slices.Contains(note.SkippedPorts, src) {
				continue
			}
			if !slices.Contains(note.SetPorts, snk) {
				continue
			}
			if v, ok := ctx.card.CardOf(snk); !ok || v.Kind != ir.CardMany {
				continue
			}
			candidates = append(candidates, boundary{edge: e, src: src, snk: snk})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	slices.SortFunc(candidates, func(a, b boundary) int {
		return strings.Compare(a.edge.ID, b.edge.ID)
	})
	c := candidates[0]
	return []ir.Obligation{ir.NewObligation(
		ir.ObligationKey{Kind: ir.NeedsCardinalityAdapter, Src: c.src, Dst: c.snk},
		ir.Anchor{EdgeID: c.edge.ID},
	)}
}

// cycleBreakNeed finds same-frame cycles and selects one cut edge.
//
// The dependency graph excludes edges out of frame-delaying blocks: their
// outputs are only available on the next frame, so they cannot carry a
// same-frame dependency. Tarjan's algorithm finds the strongly connected
// components; a non-trivial SCC that already contains a frame-delaying
// block is considered broken. At most one obligation per iteration.
func (ctx deriveContext) cycleBreakNeed() []ir.Obligation {
	delaying := make(map[string]bool)
	for _, b := range ctx.graph.Blocks {
		if def, ok := ctx.cat.Lookup(b.Type); ok && def.FrameDelaying {
			delaying[b.ID] = true
		}
	}

	graph := make(map[string][]string)
	for _, b := range ctx.graph.Blocks {
		graph[b.ID] = []string{}
	}
	for _, e := range ctx.graph.Edges {
		if delaying[e.Source.Block] {
			continue
		}
		graph[e.Source.Block] = append(graph[e.Source.Block], e.Sink.Block)
	}

	sccs := tarjanSCC(graph)
	// Deterministic SCC order: by smallest member.
	for _, scc := range sccs {
		slices.Sort(scc)
	}
	slices.SortFunc(sccs, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})

	for _, scc := range sccs {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		hasDelay := false
		for _, id := range scc {
			if delaying[id] {
				hasDelay = true
				break
			}
		}
		if hasDelay {
			continue
		}
		cut, ok := ctx.selectCutEdge(scc)
		if !ok {
			continue
		}
		return []ir.Obligation{ir.NewObligation(
			ir.ObligationKey{Kind: ir.NeedsCycleBreak, Src: cut.SourceKey(), Dst: cut.SinkKey()},
			ir.Anchor{EdgeID: cut.ID},
		)}
	}
	return nil
}

// selectCutEdge picks the edge to break a cycle on: edges inside the SCC,
// preferring user-authored over elaboration-inserted, then lexicographic
// edge id.
func (ctx deriveContext) selectCutEdge(scc []string) (ir.DraftEdge, bool) {
	inSCC := make(map[string]bool, len(scc))
	for _, id := range scc {
		inSCC[id] = true
	}
	var candidates []ir.DraftEdge
	for _, e := range ctx.graph.Edges {
		if inSCC[e.Source.Block] && inSCC[e.Sink.Block] {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return ir.DraftEdge{}, false
	}
	slices.SortFunc(candidates, func(a, b ir.DraftEdge) int {
		aElab := a.Origin.Kind == ir.OriginElaboration
		bElab := b.Origin.Kind == ir.OriginElaboration
		if aElab != bElab {
			if aElab {
				return 1
			}
			return -1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return candidates[0], true
}

// payloadAnchorNeed groups ports by shared unresolved payload variable and
// emits one obligation for the lexicographically first group that has an
// eligible wire to splice an anchor onto. This is the last-resort
// mechanism for chains with no concrete payload evidence anywhere.
func (ctx deriveContext) payloadAnchorNeed() []ir.Obligation {
	open := make(map[ir.VarID]bool)
	for _, k := range ctx.facts.Keys() {
		hint, _ := ctx.facts.Lookup(k)
		if hint.State == ir.HintUnknown && hint.Type.Payload.IsVar() {
			open[ctx.eq.PayloadRoot(k)] = true
		}
	}
	if len(open) == 0 {
		return nil
	}
	roots := make([]ir.VarID, 0, len(open))
	for r := range open {
		roots = append(roots, r)
	}
	slices.Sort(roots)

	for _, root := range roots {
		edge, ok := ctx.eligibleAnchorEdge(root)
		if !ok {
			continue
		}
		return []ir.Obligation{ir.NewObligation(
			ir.ObligationKey{Kind: ir.NeedsPayloadAnchor, Var: root},
			ir.Anchor{EdgeID: edge.ID, Var: root},
		)}
	}
	return nil
}

// eligibleAnchorEdge returns the first user or default wire, by id, whose
// endpoints both sit in the given payload group.
func (ctx deriveContext) eligibleAnchorEdge(root ir.VarID) (ir.DraftEdge, bool) {
	for _, e := range ctx.graph.Edges {
		if e.Role != ir.EdgeUserWire && e.Role != ir.EdgeDefaultWire {
			continue
		}
		if ctx.eq.PayloadRoot(e.SourceKey()) == root && ctx.eq.PayloadRoot(e.SinkKey()) == root {
			return e, true
		}
	}
	return ir.DraftEdge{}, false
}

// tarjanSCC finds strongly connected components over block ids. Neighbors
// are visited in sorted order so the SCC output is deterministic.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		neighbors := slices.Clone(graph[v])
		slices.Sort(neighbors)
		for _, w := range neighbors {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	return slices.Contains(graph[node], node)
}
