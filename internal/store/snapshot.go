package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/patchflow/patchflow/internal/ir"
)

// graphSnapshot mirrors the canonical JSON layout produced by
// ir.DraftGraph.CanonicalSnapshot.
type graphSnapshot struct {
	Blocks []blockSnapshot `json:"blocks"`
	Edges  []edgeSnapshot  `json:"edges"`
}

type originJSON struct {
	Kind         string `json:"kind"`
	ObligationID string `json:"obligation_id"`
	Role         string `json:"role"`
}

type blockSnapshot struct {
	ID     string     `json:"id"`
	Type   string     `json:"type"`
	Params ir.VObject `json:"params"`
	Origin originJSON `json:"origin"`
}

type edgeSnapshot struct {
	ID     string     `json:"id"`
	Source string     `json:"source"`
	Sink   string     `json:"sink"`
	Role   string     `json:"role"`
	Origin originJSON `json:"origin"`
}

// ParseGraphSnapshot decodes a stored canonical graph snapshot back into
// draft blocks and edges. The obligation ledger is not decoded: rebuilding
// a draft graph from the blocks and edges re-seeds it deterministically.
func ParseGraphSnapshot(data string) ([]ir.DraftBlock, []ir.DraftEdge, error) {
	var snap graphSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, nil, fmt.Errorf("parse graph snapshot: %w", err)
	}

	blocks := make([]ir.DraftBlock, len(snap.Blocks))
	for i, b := range snap.Blocks {
		blocks[i] = ir.DraftBlock{
			ID:     b.ID,
			Type:   b.Type,
			Params: b.Params,
			Origin: origin(b.Origin),
		}
	}

	edges := make([]ir.DraftEdge, len(snap.Edges))
	for i, e := range snap.Edges {
		src, err := parseEndpoint(e.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("parse graph snapshot: edge %q: %w", e.ID, err)
		}
		snk, err := parseEndpoint(e.Sink)
		if err != nil {
			return nil, nil, fmt.Errorf("parse graph snapshot: edge %q: %w", e.ID, err)
		}
		edges[i] = ir.DraftEdge{
			ID:     e.ID,
			Source: src,
			Sink:   snk,
			Role:   ir.EdgeRole(e.Role),
			Origin: origin(e.Origin),
		}
	}
	return blocks, edges, nil
}

func origin(o originJSON) ir.Origin {
	return ir.Origin{
		Kind:         ir.OriginKind(o.Kind),
		ObligationID: o.ObligationID,
		Role:         ir.ElabRole(o.Role),
	}
}

// parseEndpoint splits a "block.port" endpoint on its last dot; block ids
// may themselves contain dots (elaboration ids do).
func parseEndpoint(s string) (ir.EdgeEnd, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return ir.EdgeEnd{}, fmt.Errorf("malformed endpoint %q", s)
	}
	return ir.EdgeEnd{Block: s[:i], Port: s[i+1:]}, nil
}
