package catalog

import (
	"slices"
	"strings"

	"github.com/patchflow/patchflow/internal/ir"
)

// CardMode declares how a block relates the cardinalities of its ports.
type CardMode string

const (
	// SignalOnly blocks carry exactly one value on every port.
	SignalOnly CardMode = "signalOnly"
	// Transform blocks create a new instance domain: outputs are concretely
	// many over an instance keyed by block id, inputs are unconstrained.
	Transform CardMode = "transform"
	// Preserve blocks carry whatever cardinality flows through: all ports
	// share one cardinality variable.
	Preserve CardMode = "preserve"
	// FieldOnly blocks require per-instance fields on their inputs; the
	// instance itself is resolved by propagation.
	FieldOnly CardMode = "fieldOnly"
	// BroadcastMode is the internal mode of the synthetic Broadcast block:
	// input clamped to one, output forced many with an open instance.
	BroadcastMode CardMode = "broadcast"
)

// BroadcastPolicy declares whether a block's ports form a zip-broadcast
// set, where signal (one) and field (many) values legally coexist.
type BroadcastPolicy string

const (
	BroadcastNone BroadcastPolicy = "none"
	BroadcastZip  BroadcastPolicy = "zip"
)

// CardinalityMeta is a block definition's cardinality declaration.
type CardinalityMeta struct {
	Mode      CardMode
	Broadcast BroadcastPolicy
	// Domain names the instance domain a Transform block creates.
	Domain string
}

// TypeTemplate describes a port's type at definition level. A slot is
// either concrete or names a def-level variable shared across the ports of
// one block instance ("T" on both inputs and the output of Add, say).
type TypeTemplate struct {
	Payload    ir.PayloadKind // used when PayloadVar is empty
	PayloadVar string
	Unit       ir.Unit // used when UnitVar is empty
	UnitVar    string
	// Temporality defaults to continuous when empty.
	Temporality ir.Temporality
}

// PortDef declares one port of a block definition.
type PortDef struct {
	Name string
	Type TypeTemplate
	// Hidden ports are not exposed as wireable and get no missing-input
	// obligation.
	Hidden bool
	// Collect ports accept heterogeneous fan-in and are excluded from
	// payload/unit/cardinality unification.
	Collect bool
	// DefaultSource optionally overrides the block type used to fill this
	// input when it is left unconnected.
	DefaultSource string
}

// BlockDef is one entry of the block-definition catalog.
type BlockDef struct {
	Name    string
	Inputs  []PortDef
	Outputs []PortDef
	Card    CardinalityMeta
	// FrameDelaying blocks make their outputs available only on the next
	// frame; edges out of them do not participate in same-frame cycles.
	FrameDelaying bool
}

// FindInput returns the named input port definition.
func (d BlockDef) FindInput(name string) (PortDef, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortDef{}, false
}

// FindOutput returns the named output port definition.
func (d BlockDef) FindOutput(name string) (PortDef, bool) {
	for _, p := range d.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortDef{}, false
}

// Catalog is the read-only block-definition lookup consumed by extraction
// and the policies.
type Catalog interface {
	// Lookup returns the definition for a block type name.
	Lookup(typeName string) (BlockDef, bool)
	// Names returns all defined type names in lexicographic order.
	Names() []string
	// FallbackSource returns the polymorphic block type used as a default
	// source when a port declares no override.
	FallbackSource() (string, bool)
}

// InMemory is a map-backed Catalog.
type InMemory struct {
	defs     map[string]BlockDef
	fallback string
}

// NewInMemory builds a catalog from definitions. The fallback is the block
// type used for default sources without a port-level override; empty means
// no fallback.
func NewInMemory(fallback string, defs ...BlockDef) *InMemory {
	m := make(map[string]BlockDef, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return &InMemory{defs: m, fallback: fallback}
}

// Lookup implements Catalog.
func (c *InMemory) Lookup(typeName string) (BlockDef, bool) {
	d, ok := c.defs[typeName]
	return d, ok
}

// Names implements Catalog.
func (c *InMemory) Names() []string {
	names := make([]string, 0, len(c.defs))
	for n := range c.defs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// FallbackSource implements Catalog.
func (c *InMemory) FallbackSource() (string, bool) {
	return c.fallback, c.fallback != ""
}

// Hash computes a content-addressed hash of a catalog's definitions, used
// to pin stored runs to the catalog they ran against.
func Hash(c Catalog) (string, error) {
	names := c.Names()
	entries := make([]any, 0, len(names))
	for _, n := range names {
		d, _ := c.Lookup(n)
		entries = append(entries, defSnapshot(d))
	}
	canonical, err := ir.MarshalCanonical(map[string]any{"defs": entries})
	if err != nil {
		return "", err
	}
	return ir.HashCanonical(ir.DomainCatalog, canonical), nil
}

func defSnapshot(d BlockDef) map[string]any {
	ports := func(defs []PortDef) []any {
		out := make([]any, len(defs))
		for i, p := range defs {
			m := map[string]any{"name": p.Name}
			if p.Type.PayloadVar != "" {
				m["payload_var"] = p.Type.PayloadVar
			} else {
				m["payload"] = string(p.Type.Payload)
			}
			if p.Type.UnitVar != "" {
				m["unit_var"] = p.Type.UnitVar
			} else if p.Type.Unit != ir.UnitNone {
				m["unit"] = string(p.Type.Unit)
			}
			if p.Hidden {
				m["hidden"] = true
			}
			if p.Collect {
				m["collect"] = true
			}
			out[i] = m
		}
		return out
	}
	return map[string]any{
		"name":           d.Name,
		"inputs":         ports(d.Inputs),
		"outputs":        ports(d.Outputs),
		"mode":           string(d.Card.Mode),
		"broadcast":      string(d.Card.Broadcast),
		"domain":         d.Card.Domain,
		"frame_delaying": d.FrameDelaying,
	}
}

// DefVarID scopes a def-level variable name to one block instance.
// Both inputs and outputs of the same block sharing the template var "T"
// map to the same solver variable.
func DefVarID(universe, blockID, varName string) ir.VarID {
	return ir.VarID(universe + ":" + blockID + "/$" + varName)
}

// Temporality returns the template's temporality, defaulting to continuous.
func (t TypeTemplate) temporality() ir.Temporality {
	if t.Temporality == "" {
		return ir.Continuous
	}
	return t.Temporality
}

// InstantiateType builds the base CanonicalType for one port of one block
// instance. Payload and unit slots become concrete values or block-scoped
// variables; the cardinality slot is always a fresh variable keyed by port
// identity (transform outputs are later forced concrete by constraints);
// the remaining axes get their defaults.
func InstantiateType(t TypeTemplate, blockID string, port ir.PortKey) ir.CanonicalType {
	var payload ir.Term[ir.PayloadKind]
	if t.PayloadVar != "" {
		payload = ir.NewVar[ir.PayloadKind](DefVarID("p", blockID, t.PayloadVar))
	} else {
		payload = ir.NewVal(t.Payload)
	}
	var unit ir.Term[ir.Unit]
	if t.UnitVar != "" {
		unit = ir.NewVar[ir.Unit](DefVarID("u", blockID, t.UnitVar))
	} else {
		unit = ir.NewVal(t.Unit)
	}
	return ir.CanonicalType{
		Payload: payload,
		Unit:    unit,
		Extent: ir.Extent{
			Cardinality: ir.NewVar[ir.CardValue](port.CardVar()),
			Temporality: ir.NewVal(t.temporality()),
			Binding:     ir.NewVal(ir.BindingUnbound),
			Perspective: ir.NewVal(ir.PerspectiveWorld),
			Branch:      ir.NewVal(ir.BranchMain),
		},
	}
}

// PortKeyFor builds the PortKey for a declared port.
func PortKeyFor(blockID string, p PortDef, dir ir.PortDir) ir.PortKey {
	return ir.PortKey{Block: blockID, Port: p.Name, Dir: dir}
}

// TypeSigOf projects a resolved CanonicalType onto the (payload, unit)
// signature the adapter catalog works over.
func TypeSigOf(t ir.CanonicalType) (TypeSig, bool) {
	p, okP := t.Payload.Value()
	u, okU := t.Unit.Value()
	if !okP || !okU {
		return TypeSig{}, false
	}
	return TypeSig{Payload: p, Unit: u}, true
}

// TypeSig is the adapter-relevant projection of a type.
type TypeSig struct {
	Payload ir.PayloadKind
	Unit    ir.Unit
}

func (s TypeSig) String() string {
	if s.Unit == ir.UnitNone {
		return string(s.Payload)
	}
	return string(s.Payload) + "[" + string(s.Unit) + "]"
}

func compareSigs(a, b TypeSig) int {
	if c := strings.Compare(string(a.Payload), string(b.Payload)); c != 0 {
		return c
	}
	return strings.Compare(string(a.Unit), string(b.Unit))
}
