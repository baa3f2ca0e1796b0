// Package testutil provides deterministic helpers for building draft
// graphs in tests.
package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/normalize"
)

// Block builds a user-origin draft block.
func Block(id, blockType string) ir.DraftBlock {
	return ir.DraftBlock{ID: id, Type: blockType, Origin: ir.UserOrigin()}
}

// Wire builds a user wire between "block.port" endpoints.
//
//	testutil.Wire("w1", "const1.out", "add1.a")
func Wire(id, from, to string) ir.DraftEdge {
	srcBlock, srcPort := splitEndpoint(from)
	snkBlock, snkPort := splitEndpoint(to)
	return ir.DraftEdge{
		ID:     id,
		Source: ir.EdgeEnd{Block: srcBlock, Port: srcPort},
		Sink:   ir.EdgeEnd{Block: snkBlock, Port: snkPort},
		Role:   ir.EdgeUserWire,
		Origin: ir.UserOrigin(),
	}
}

// MustGraph builds the initial draft graph or fails the test.
func MustGraph(t *testing.T, cat catalog.Catalog, blocks []ir.DraftBlock, edges []ir.DraftEdge) ir.DraftGraph {
	t.Helper()
	g, err := normalize.BuildDraftGraph(blocks, edges, cat)
	require.NoError(t, err)
	return g
}

// OutKey returns the output port key for a "block.port" endpoint.
func OutKey(endpoint string) ir.PortKey {
	block, port := splitEndpoint(endpoint)
	return ir.PortKey{Block: block, Port: port, Dir: ir.DirOut}
}

// InKey returns the input port key for a "block.port" endpoint.
func InKey(endpoint string) ir.PortKey {
	block, port := splitEndpoint(endpoint)
	return ir.PortKey{Block: block, Port: port, Dir: ir.DirIn}
}

func splitEndpoint(s string) (block, port string) {
	i := strings.LastIndex(s, ".")
	if i < 0 {
		panic("testutil: endpoint must be block.port: " + s)
	}
	return s[:i], s[i+1:]
}
