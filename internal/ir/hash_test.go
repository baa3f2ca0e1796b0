package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashTestGraph() DraftGraph {
	g := DraftGraph{
		Blocks: []DraftBlock{
			{ID: "add1", Type: "Add", Origin: UserOrigin()},
			{ID: "const1", Type: "Const", Origin: UserOrigin()},
		},
		Edges: []DraftEdge{{
			ID:     "w1",
			Source: EdgeEnd{Block: "const1", Port: "out"},
			Sink:   EdgeEnd{Block: "add1", Port: "a"},
			Role:   EdgeUserWire,
			Origin: UserOrigin(),
		}},
	}
	g.SortByID()
	return g
}

func TestGraphHashIndependentOfMutationOrder(t *testing.T) {
	g1 := hashTestGraph()

	// Same content assembled in reverse order.
	g2 := DraftGraph{
		Blocks: []DraftBlock{
			{ID: "const1", Type: "Const", Origin: UserOrigin()},
			{ID: "add1", Type: "Add", Origin: UserOrigin()},
		},
		Edges: g1.Edges,
	}
	g2.SortByID()

	h1, err := GraphHash(g1)
	require.NoError(t, err)
	h2, err := GraphHash(g2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestGraphHashSensitiveToRevision(t *testing.T) {
	g1 := hashTestGraph()
	g2 := g1.Clone()
	g2.Revision++

	h1, err := GraphHash(g1)
	require.NoError(t, err)
	h2, err := GraphHash(g2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestGraphHashSensitiveToObligationState(t *testing.T) {
	g1 := hashTestGraph()
	g1.Obligations = []Obligation{NewObligation(
		ObligationKey{Kind: NeedsInputSource, Port: PortKey{Block: "add1", Port: "b", Dir: DirIn}},
		Anchor{Port: PortKey{Block: "add1", Port: "b", Dir: DirIn}},
	)}

	g2 := g1.Clone()
	g2.Obligations[0].Status = ObligationStatus{State: ObligationDischarged}

	h1, err := GraphHash(g1)
	require.NoError(t, err)
	h2, err := GraphHash(g2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashCanonicalDomainSeparation(t *testing.T) {
	data := []byte(`{"k":"v"}`)
	assert.NotEqual(t,
		HashCanonical(DomainGraph, data),
		HashCanonical(DomainCatalog, data))
	assert.NotEqual(t,
		HashCanonical(DomainGraph, data),
		HashCanonical(DomainRun, data))
}

func TestCanonicalSnapshotOmitsEmptyOptionalFields(t *testing.T) {
	g := hashTestGraph()
	snap := g.CanonicalSnapshot()

	blocks, ok := snap["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 2)
	block := blocks[0].(map[string]any)
	assert.NotContains(t, block, "params")

	origin := block["origin"].(map[string]any)
	assert.Equal(t, "user", origin["kind"])
	assert.NotContains(t, origin, "obligation_id")
	assert.NotContains(t, origin, "role")
}
