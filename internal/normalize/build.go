package normalize

import (
	"fmt"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
)

// BuildDraftGraph converts the flat, already-expanded graph supplied by
// composite expansion into the initial DraftGraph: origins normalized,
// everything sorted by id, and one missingInputSource obligation seeded
// per unconnected, exposed, non-collect input port.
//
// Duplicate block or edge ids are a contract violation on the upstream
// collaborator, not a diagnostic.
func BuildDraftGraph(blocks []ir.DraftBlock, edges []ir.DraftEdge, cat catalog.Catalog) (ir.DraftGraph, error) {
	g := ir.DraftGraph{Revision: 0}

	seenBlocks := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		if seenBlocks[b.ID] {
			return ir.DraftGraph{}, &ContractError{
				Code:    ErrCodeDuplicateID,
				Message: fmt.Sprintf("duplicate block id %q", b.ID),
			}
		}
		seenBlocks[b.ID] = true
		if b.Origin.Kind == "" {
			b.Origin = ir.UserOrigin()
		}
		g.Blocks = append(g.Blocks, b)
	}

	seenEdges := make(map[string]bool, len(edges))
	for _, e := range edges {
		if seenEdges[e.ID] {
			return ir.DraftGraph{}, &ContractError{
				Code:    ErrCodeDuplicateID,
				Message: fmt.Sprintf("duplicate edge id %q", e.ID),
			}
		}
		seenEdges[e.ID] = true
		if e.Role == "" {
			e.Role = ir.EdgeUserWire
		}
		if e.Origin.Kind == "" {
			e.Origin = ir.UserOrigin()
		}
		g.Edges = append(g.Edges, e)
	}

	g.SortByID()
	g.Obligations = seedInputObligations(g, cat)
	g.SortByID()
	return g, nil
}

// seedInputObligations emits one missingInputSource obligation per
// unconnected, exposed, non-collect input port of a known block type.
// Unknown block types get their diagnostic from extraction.
func seedInputObligations(g ir.DraftGraph, cat catalog.Catalog) []ir.Obligation {
	var out []ir.Obligation
	for _, b := range g.Blocks {
		def, ok := cat.Lookup(b.Type)
		if !ok {
			continue
		}
		for _, p := range def.Inputs {
			if p.Hidden || p.Collect {
				continue
			}
			key := catalog.PortKeyFor(b.ID, p, ir.DirIn)
			if g.Connected(key) {
				continue
			}
			out = append(out, ir.NewObligation(
				ir.ObligationKey{Kind: ir.NeedsInputSource, Port: key},
				ir.Anchor{Port: key},
			))
		}
	}
	return out
}
