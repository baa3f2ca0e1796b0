package ir

import "slices"

// OriginKind distinguishes user-authored structure from structure inserted
// by the normalization fixpoint.
type OriginKind string

const (
	OriginUser        OriginKind = "user"
	OriginElaboration OriginKind = "elaboration"
)

// ElabRole records why an elaboration inserted a block or edge.
type ElabRole string

const (
	RoleDefaultSource ElabRole = "defaultSource"
	RoleAdapter       ElabRole = "adapter"
	RoleCycleBreak    ElabRole = "cycleBreak"
	RoleAnchor        ElabRole = "anchor"
	RoleBroadcast     ElabRole = "broadcast"
)

// Origin tags a block or edge with its provenance. Elaboration origins
// additionally record the obligation that produced them and the role the
// inserted structure plays.
type Origin struct {
	Kind         OriginKind `json:"kind"`
	ObligationID string     `json:"obligation_id,omitempty"`
	Role         ElabRole   `json:"role,omitempty"`
}

// UserOrigin is the origin of author-supplied structure.
func UserOrigin() Origin { return Origin{Kind: OriginUser} }

// ElabOrigin is the origin of structure inserted to discharge obligationID.
func ElabOrigin(obligationID string, role ElabRole) Origin {
	return Origin{Kind: OriginElaboration, ObligationID: obligationID, Role: role}
}

// Display holds editor-facing metadata. Normalization carries it through
// untouched; inserted blocks get an empty Display.
type Display struct {
	Label string `json:"label,omitempty"`
	X     int64  `json:"x,omitempty"`
	Y     int64  `json:"y,omitempty"`
}

// DraftBlock is one block of the mutable compilation graph.
// Blocks are never deleted during normalization, only added.
type DraftBlock struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Params  VObject `json:"params,omitempty"`
	Origin  Origin  `json:"origin"`
	Display Display `json:"display,omitempty"`
}

// EdgeRole classifies why an edge exists.
type EdgeRole string

const (
	EdgeUserWire       EdgeRole = "userWire"
	EdgeDefaultWire    EdgeRole = "defaultWire"
	EdgeImplicitCoerce EdgeRole = "implicitCoerce"
	EdgeInternalHelper EdgeRole = "internalHelper"
)

// EdgeEnd is one endpoint of an edge. Direction is implied by the side:
// Source ends are outputs, Sink ends are inputs.
type EdgeEnd struct {
	Block string `json:"block"`
	Port  string `json:"port"`
}

// DraftEdge is one wire of the graph. Replacement is expressed as
// remove-one/add-many through an ElaborationPlan, never in place.
type DraftEdge struct {
	ID     string   `json:"id"`
	Source EdgeEnd  `json:"source"`
	Sink   EdgeEnd  `json:"sink"`
	Role   EdgeRole `json:"role"`
	Origin Origin   `json:"origin"`
}

// SourceKey returns the source endpoint as an output port key.
func (e DraftEdge) SourceKey() PortKey {
	return PortKey{Block: e.Source.Block, Port: e.Source.Port, Dir: DirOut}
}

// SinkKey returns the sink endpoint as an input port key.
func (e DraftEdge) SinkKey() PortKey {
	return PortKey{Block: e.Sink.Block, Port: e.Sink.Port, Dir: DirIn}
}

// DraftGraph is the single mutable structure for one compilation: blocks,
// edges, and the obligation ledger, each kept sorted by id, plus a revision
// counter bumped by every apply step.
//
// DraftGraph has value semantics. Mutating passes clone the graph, edit the
// clone, re-sort, and bump Revision; the previous value stays intact.
type DraftGraph struct {
	Blocks      []DraftBlock `json:"blocks"`
	Edges       []DraftEdge  `json:"edges"`
	Obligations []Obligation `json:"obligations"`
	Revision    int64        `json:"revision"`
}

// Clone returns a deep copy. Slices are reallocated; parameter bags are
// shared because they are treated as immutable after construction.
func (g DraftGraph) Clone() DraftGraph {
	out := DraftGraph{Revision: g.Revision}
	out.Blocks = slices.Clone(g.Blocks)
	out.Edges = slices.Clone(g.Edges)
	out.Obligations = make([]Obligation, len(g.Obligations))
	for i, ob := range g.Obligations {
		out.Obligations[i] = ob.clone()
	}
	return out
}

// SortByID restores the sorted-by-id invariant. Every mutation site must
// call this before the graph value escapes; it is the sole determinism
// mechanism for iteration order.
func (g *DraftGraph) SortByID() {
	slices.SortFunc(g.Blocks, func(a, b DraftBlock) int {
		return compareIDs(a.ID, b.ID)
	})
	slices.SortFunc(g.Edges, func(a, b DraftEdge) int {
		return compareIDs(a.ID, b.ID)
	})
	slices.SortFunc(g.Obligations, func(a, b Obligation) int {
		return compareIDs(a.ID, b.ID)
	})
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

// BlockByID returns the block with the given id.
func (g DraftGraph) BlockByID(id string) (DraftBlock, bool) {
	for _, b := range g.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return DraftBlock{}, false
}

// EdgeByID returns the edge with the given id.
func (g DraftGraph) EdgeByID(id string) (DraftEdge, bool) {
	for _, e := range g.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return DraftEdge{}, false
}

// ObligationByID returns the obligation with the given id.
func (g DraftGraph) ObligationByID(id string) (Obligation, bool) {
	for _, ob := range g.Obligations {
		if ob.ID == id {
			return ob, true
		}
	}
	return Obligation{}, false
}

// EdgesInto returns the edges whose sink is the given input port, in id order.
func (g DraftGraph) EdgesInto(k PortKey) []DraftEdge {
	var out []DraftEdge
	for _, e := range g.Edges {
		if e.Sink.Block == k.Block && e.Sink.Port == k.Port {
			out = append(out, e)
		}
	}
	return out
}

// EdgesFrom returns the edges whose source is the given output port, in id order.
func (g DraftGraph) EdgesFrom(k PortKey) []DraftEdge {
	var out []DraftEdge
	for _, e := range g.Edges {
		if e.Source.Block == k.Block && e.Source.Port == k.Port {
			out = append(out, e)
		}
	}
	return out
}

// Connected reports whether any edge touches the given port.
func (g DraftGraph) Connected(k PortKey) bool {
	if k.Dir == DirIn {
		return len(g.EdgesInto(k)) > 0
	}
	return len(g.EdgesFrom(k)) > 0
}
