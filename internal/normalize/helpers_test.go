package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/solver"
)

func userBlock(id, blockType string) ir.DraftBlock {
	return ir.DraftBlock{ID: id, Type: blockType, Origin: ir.UserOrigin()}
}

func userWire(id, from, to string) ir.DraftEdge {
	srcBlock, srcPort := splitTestEndpoint(from)
	snkBlock, snkPort := splitTestEndpoint(to)
	return ir.DraftEdge{
		ID:     id,
		Source: ir.EdgeEnd{Block: srcBlock, Port: srcPort},
		Sink:   ir.EdgeEnd{Block: snkBlock, Port: snkPort},
		Role:   ir.EdgeUserWire,
		Origin: ir.UserOrigin(),
	}
}

func splitTestEndpoint(s string) (block, port string) {
	i := strings.LastIndex(s, ".")
	if i < 0 {
		panic("endpoint must be block.port: " + s)
	}
	return s[:i], s[i+1:]
}

func inKey(endpoint string) ir.PortKey {
	block, port := splitTestEndpoint(endpoint)
	return ir.PortKey{Block: block, Port: port, Dir: ir.DirIn}
}

func outKey(endpoint string) ir.PortKey {
	block, port := splitTestEndpoint(endpoint)
	return ir.PortKey{Block: block, Port: port, Dir: ir.DirOut}
}

func mustBuild(t *testing.T, blocks []ir.DraftBlock, edges []ir.DraftEdge) ir.DraftGraph {
	t.Helper()
	g, err := BuildDraftGraph(blocks, edges, catalog.Builtin())
	require.NoError(t, err)
	return g
}

// solveGraph runs one full solver pass the way the driver does, so policy
// and derivation tests see realistic facts.
func solveGraph(g ir.DraftGraph) (ir.TypeFacts, *solver.EqSolution, *solver.CardSolution) {
	cs := solver.Extract(g, catalog.Builtin())
	eq := solver.SolveEquality(cs)
	card := solver.SolveCardinality(cs)
	return solver.ComputeFacts(cs, eq, card), eq, card
}

func policyCtx(g ir.DraftGraph, facts ir.TypeFacts) PolicyContext {
	return PolicyContext{
		Graph:    g,
		Catalog:  catalog.Builtin(),
		Adapters: catalog.BuiltinAdapters(),
		Facts:    facts,
	}
}
