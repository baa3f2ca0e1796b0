package solver

import (
	"fmt"
	"slices"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
)

// EqKind discriminates payload/unit equality constraint forms.
type EqKind string

const (
	// EqAssign resolves a port's variable to a concrete value.
	EqAssign EqKind = "assign"
	// EqUnion merges two variables: shared def-level variables within a
	// block, or the two endpoints of an edge.
	EqUnion EqKind = "union"
)

// EqConstraint is one payload or unit constraint. Port carries provenance
// for stable conflict reporting.
type EqConstraint struct {
	Kind  EqKind
	A     ir.VarID
	B     ir.VarID // union only
	Value string   // assign only
	Port  ir.PortKey
	Other ir.PortKey // union across an edge: the far endpoint
}

// CardKind discriminates cardinality constraint forms.
type CardConstraintKind string

const (
	// CardClampOne pins a port's group to the single-value cardinality.
	CardClampOne CardConstraintKind = "clampOne"
	// CardForceMany pins a port's group to per-instance cardinality; the
	// instance term may still be a variable.
	CardForceMany CardConstraintKind = "forceMany"
	// CardEqual merges the groups of two ports.
	CardEqual CardConstraintKind = "equal"
)

// CardConstraint is one cardinality constraint.
type CardConstraint struct {
	Kind     CardConstraintKind
	Port     ir.PortKey
	Instance ir.Term[ir.InstanceRef] // forceMany only
	A, B     ir.PortKey              // equal only
}

// ZipSet is a declared zip-broadcast port set: the mixing block's own
// ports plus every source port wired into one of them. Signal and field
// members legally coexist inside a set.
type ZipSet struct {
	Key   string // "zip:<blockID>", the deterministic set identity
	Ports []ir.PortKey
}

// ConstraintSet is the complete per-iteration constraint extraction output.
type ConstraintSet struct {
	// Base maps every live port to its instantiated base type. Hidden and
	// collect ports are absent: they do not participate in unification.
	Base map[ir.PortKey]ir.CanonicalType
	// Ports is Base's key set in lexicographic order.
	Ports []ir.PortKey

	Payload []EqConstraint
	Unit    []EqConstraint
	Card    []CardConstraint
	ZipSets []ZipSet

	// Collect records the ports excluded from unification.
	Collect map[ir.PortKey]bool

	// Diags carries extraction-level diagnostics (unknown block types,
	// dangling edge endpoints).
	Diags []ir.Diagnostic
}

// Extract reads the graph and the block-definition catalog and produces
// the complete constraint set for one solver iteration. Pure and
// deterministic: identical (graph, catalog) inputs yield identical output,
// including ordering.
func Extract(g ir.DraftGraph, cat catalog.Catalog) ConstraintSet {
	cs := ConstraintSet{
		Base:    make(map[ir.PortKey]ir.CanonicalType),
		Collect: make(map[ir.PortKey]bool),
	}

	// zipIndex maps a member port to its set's position in cs.ZipSets.
	zipIndex := make(map[ir.PortKey]int)

	for _, b := range g.Blocks {
		def, ok := cat.Lookup(b.Type)
		if !ok {
			cs.Diags = append(cs.Diags, ir.Diagnostic{
				Kind:    ir.DiagCatalog,
				SubKind: ir.SubUnknownBlockType,
				Ports:   []string{b.ID},
				Message: fmt.Sprintf("block %q has unknown type %q", b.ID, b.Type),
			})
			continue
		}
		extractBlock(&cs, zipIndex, b, def)
	}

	for _, e := range g.Edges {
		extractEdge(&cs, zipIndex, g, cat, e)
	}

	cs.Ports = make([]ir.PortKey, 0, len(cs.Base))
	for k := range cs.Base {
		cs.Ports = append(cs.Ports, k)
	}
	slices.SortFunc(cs.Ports, ir.PortKey.Compare)
	return cs
}

// extractBlock emits base types and within-block constraints for one block.
func extractBlock(cs *ConstraintSet, zipIndex map[ir.PortKey]int, b ir.DraftBlock, def catalog.BlockDef) {
	livePorts := make([]ir.PortKey, 0, len(def.Inputs)+len(def.Outputs))

	visit := func(p catalog.PortDef, dir ir.PortDir) {
		key := catalog.PortKeyFor(b.ID, p, dir)
		if p.Collect {
			cs.Collect[key] = true
			return
		}
		if p.Hidden {
			return
		}
		cs.Base[key] = catalog.InstantiateType(p.Type, b.ID, key)
		livePorts = append(livePorts, key)

		// Def-level variables shared across the block's ports.
		if p.Type.PayloadVar != "" {
			cs.Payload = append(cs.Payload, EqConstraint{
				Kind: EqUnion,
				A:    key.PayloadVar(),
				B:    catalog.DefVarID("p", b.ID, p.Type.PayloadVar),
				Port: key,
			})
		} else {
			cs.Payload = append(cs.Payload, EqConstraint{
				Kind:  EqAssign,
				A:     key.PayloadVar(),
				Value: string(p.Type.Payload),
				Port:  key,
			})
		}
		if p.Type.UnitVar != "" {
			cs.Unit = append(cs.Unit, EqConstraint{
				Kind: EqUnion,
				A:    key.UnitVar(),
				B:    catalog.DefVarID("u", b.ID, p.Type.UnitVar),
				Port: key,
			})
		} else {
			cs.Unit = append(cs.Unit, EqConstraint{
				Kind:  EqAssign,
				A:     key.UnitVar(),
				Value: string(p.Type.Unit),
				Port:  key,
			})
		}
	}
	for _, p := range def.Inputs {
		visit(p, ir.DirIn)
	}
	for _, p := range def.Outputs {
		visit(p, ir.DirOut)
	}

	isInput := func(k ir.PortKey) bool { return k.Dir == ir.DirIn }

	switch def.Card.Mode {
	case catalog.SignalOnly:
		for _, k := range livePorts {
			cs.Card = append(cs.Card, CardConstraint{Kind: CardClampOne, Port: k})
		}

	case catalog.Transform:
		// Outputs get a deterministic concrete many(ref) keyed by block id
		// and declared domain; inputs keep their fresh variables.
		inst := ir.NewVal(ir.InstanceRef{Domain: def.Card.Domain, Instance: b.ID})
		for _, k := range livePorts {
			if !isInput(k) {
				cs.Card = append(cs.Card, CardConstraint{Kind: CardForceMany, Port: k, Instance: inst})
			}
		}
		if def.Card.Broadcast == catalog.BroadcastZip {
			addZipSet(cs, zipIndex, b.ID, livePorts)
		}

	case catalog.Preserve:
		if def.Card.Broadcast == catalog.BroadcastZip {
			addZipSet(cs, zipIndex, b.ID, livePorts)
		} else if len(livePorts) > 1 {
			first := livePorts[0]
			for _, k := range livePorts[1:] {
				cs.Card = append(cs.Card, CardConstraint{Kind: CardEqual, A: first, B: k})
			}
		}

	case catalog.FieldOnly:
		// The instance is an open variable shared by the block's inputs,
		// resolved by later propagation.
		instVar := ir.NewVar[ir.InstanceRef](ir.VarID("i:" + b.ID))
		for _, k := range livePorts {
			if isInput(k) {
				cs.Card = append(cs.Card, CardConstraint{Kind: CardForceMany, Port: k, Instance: instVar})
			}
		}

	case catalog.BroadcastMode:
		instVar := ir.NewVar[ir.InstanceRef](ir.VarID("i:" + b.ID))
		for _, k := range livePorts {
			if isInput(k) {
				cs.Card = append(cs.Card, CardConstraint{Kind: CardClampOne, Port: k})
			} else {
				cs.Card = append(cs.Card, CardConstraint{Kind: CardForceMany, Port: k, Instance: instVar})
			}
		}
	}
}

func addZipSet(cs *ConstraintSet, zipIndex map[ir.PortKey]int, blockID string, ports []ir.PortKey) {
	set := ZipSet{Key: "zip:" + blockID, Ports: slices.Clone(ports)}
	cs.ZipSets = append(cs.ZipSets, set)
	for _, k := range ports {
		zipIndex[k] = len(cs.ZipSets) - 1
	}
}

// extractEdge emits the across-edge constraints for one wire. Payload and
// unit always unify across an edge. Cardinality unifies strictly unless
// the sink belongs to a zip-broadcast set, in which case the source port
// joins the set instead: many-ness flows through the set, one-ness never
// blocks the siblings.
func extractEdge(cs *ConstraintSet, zipIndex map[ir.PortKey]int, g ir.DraftGraph, cat catalog.Catalog, e ir.DraftEdge) {
	src, snk := e.SourceKey(), e.SinkKey()
	if cs.Collect[src] || cs.Collect[snk] {
		return
	}
	if _, ok := cs.Base[src]; !ok {
		reportDangling(cs, g, cat, e, src)
		return
	}
	if _, ok := cs.Base[snk]; !ok {
		reportDangling(cs, g, cat, e, snk)
		return
	}

	// Payload and unit unify across an edge only when propagation can do
	// work: at least one endpoint must be open at definition level. Two
	// def-concrete endpoints stay independent — a mismatch there is an
	// adapter obligation, not a solver conflict.
	srcBase, snkBase := cs.Base[src], cs.Base[snk]
	if srcBase.Payload.IsVar() || snkBase.Payload.IsVar() {
		cs.Payload = append(cs.Payload, EqConstraint{
			Kind: EqUnion, A: src.PayloadVar(), B: snk.PayloadVar(), Port: src, Other: snk,
		})
	}
	if srcBase.Unit.IsVar() || snkBase.Unit.IsVar() {
		cs.Unit = append(cs.Unit, EqConstraint{
			Kind: EqUnion, A: src.UnitVar(), B: snk.UnitVar(), Port: src, Other: snk,
		})
	}

	if idx, ok := zipIndex[snk]; ok {
		set := &cs.ZipSets[idx]
		if !slices.Contains(set.Ports, src) {
			set.Ports = append(set.Ports, src)
			zipIndex[src] = idx
		}
		return
	}
	cs.Card = append(cs.Card, CardConstraint{Kind: CardEqual, A: src, B: snk})
}

// reportDangling emits a diagnostic for an edge endpoint that names no
// live port. Endpoints on blocks whose type is already unknown stay
// silent; that block has its own diagnostic.
func reportDangling(cs *ConstraintSet, g ir.DraftGraph, cat catalog.Catalog, e ir.DraftEdge, k ir.PortKey) {
	if b, ok := g.BlockByID(k.Block); ok {
		if _, known := cat.Lookup(b.Type); !known {
			return
		}
	}
	cs.Diags = append(cs.Diags, ir.Diagnostic{
		Kind:    ir.DiagCatalog,
		SubKind: ir.SubUnknownPort,
		Ports:   []string{k.String()},
		Edges:   []string{e.ID},
		Message: fmt.Sprintf("edge %q references unknown port %s", e.ID, k),
	})
}
