package ir

import (
	"fmt"
	"strings"
)

// VarID identifies a type variable in one of the solver universes.
// Variable ids are deterministic functions of port or block identity
// (e.g. "p:add1.a/in"), never of allocation order.
type VarID string

// Term is an axis slot: either an unresolved variable or an instantiated
// value. The two states are distinguished structurally rather than by a
// runtime tag check on a shared map; see NewVar and NewVal.
type Term[T any] struct {
	id    VarID
	value T
	known bool
}

// NewVar creates an unresolved term referencing a solver variable.
func NewVar[T any](id VarID) Term[T] {
	return Term[T]{id: id}
}

// NewVal creates an instantiated term.
func NewVal[T any](value T) Term[T] {
	return Term[T]{value: value, known: true}
}

// IsVar reports whether the term is an unresolved variable.
func (t Term[T]) IsVar() bool { return !t.known }

// Var returns the variable id. Only meaningful when IsVar is true.
func (t Term[T]) Var() VarID { return t.id }

// Value returns the instantiated value and whether one is present.
func (t Term[T]) Value() (T, bool) { return t.value, t.known }

// MustValue returns the instantiated value and panics on a variable.
// Use only where instantiation has already been verified.
func (t Term[T]) MustValue() T {
	if !t.known {
		panic(fmt.Sprintf("MustValue on unresolved variable %q", t.id))
	}
	return t.value
}

// PayloadKind names the payload axis of a port type.
type PayloadKind string

// Payload kinds used by the builtin catalog. The set is open: catalogs may
// declare additional kinds, the solver treats them as opaque values.
const (
	PayloadFloat    PayloadKind = "float"
	PayloadInt      PayloadKind = "int"
	PayloadBool     PayloadKind = "bool"
	PayloadString   PayloadKind = "string"
	PayloadEvent    PayloadKind = "event"
	PayloadTimeRoot PayloadKind = "timeRoot"
)

// Unit is the physical-unit axis. UnitNone means dimensionless.
type Unit string

// UnitNone is the dimensionless unit.
const UnitNone Unit = ""

// Temporality is the temporality axis value.
type Temporality string

const (
	Continuous Temporality = "continuous"
	Discrete   Temporality = "discrete"
)

// Binding, Perspective, and Branch are the remaining extent axes. The
// normalization core carries them through unchanged; axis validation
// downstream gives them meaning.
type (
	Binding     string
	Perspective string
	Branch      string
)

// Default axis values assigned when a catalog template leaves them open.
const (
	BindingUnbound   Binding     = "unbound"
	PerspectiveWorld Perspective = "world"
	BranchMain       Branch      = "main"
)

// CardKind discriminates cardinality values.
type CardKind string

const (
	CardZero CardKind = "zero"
	CardOne  CardKind = "one"
	CardMany CardKind = "many"
)

// InstanceRef names the collection a `many` cardinality is indexed over:
// a domain type plus the instance that created it (typically a block id).
type InstanceRef struct {
	Domain   string `json:"domain"`
	Instance string `json:"instance"`
}

func (r InstanceRef) String() string {
	return r.Domain + ":" + r.Instance
}

// CardValue is an instantiated cardinality. For CardMany the instance may
// itself still be an unresolved variable (fieldOnly blocks force many with
// an instance term the solver resolves later).
type CardValue struct {
	Kind     CardKind
	Instance Term[InstanceRef]
}

// One is the single-value cardinality.
func One() CardValue { return CardValue{Kind: CardOne} }

// Zero is the no-value cardinality.
func Zero() CardValue { return CardValue{Kind: CardZero} }

// ManyOf is a per-element cardinality over the given instance term.
func ManyOf(inst Term[InstanceRef]) CardValue {
	return CardValue{Kind: CardMany, Instance: inst}
}

// Instantiated reports whether the cardinality carries no unresolved
// instance variable.
func (c CardValue) Instantiated() bool {
	return c.Kind != CardMany || !c.Instance.IsVar()
}

func (c CardValue) String() string {
	if c.Kind != CardMany {
		return string(c.Kind)
	}
	if inst, ok := c.Instance.Value(); ok {
		return fmt.Sprintf("many(%s)", inst)
	}
	return fmt.Sprintf("many(?%s)", c.Instance.Var())
}

// Extent is the five-axis component of a port type.
type Extent struct {
	Cardinality Term[CardValue]
	Temporality Term[Temporality]
	Binding     Term[Binding]
	Perspective Term[Perspective]
	Branch      Term[Branch]
}

// CanonicalType is the full multi-axis type of a port: payload kind,
// physical unit, and extent. Each slot is either concrete or a variable.
type CanonicalType struct {
	Payload Term[PayloadKind]
	Unit    Term[Unit]
	Extent  Extent
}

// Instantiated reports whether every axis is concrete, including the
// instance reference inside a many cardinality.
func (t CanonicalType) Instantiated() bool {
	if t.Payload.IsVar() || t.Unit.IsVar() {
		return false
	}
	e := t.Extent
	if e.Cardinality.IsVar() || e.Temporality.IsVar() ||
		e.Binding.IsVar() || e.Perspective.IsVar() || e.Branch.IsVar() {
		return false
	}
	return e.Cardinality.MustValue().Instantiated()
}

// String renders a compact human-readable form, e.g.
// "float·one@continuous" or "float[m]·many(array:arr1)@discrete".
// Unresolved variables render as "?<var>".
func (t CanonicalType) String() string {
	var b strings.Builder
	writeTerm(&b, t.Payload, func(p PayloadKind) string { return string(p) })
	if u, ok := t.Unit.Value(); ok {
		if u != UnitNone {
			fmt.Fprintf(&b, "[%s]", u)
		}
	} else {
		fmt.Fprintf(&b, "[?%s]", t.Unit.Var())
	}
	b.WriteString("·")
	writeTerm(&b, t.Extent.Cardinality, CardValue.String)
	b.WriteString("@")
	writeTerm(&b, t.Extent.Temporality, func(tp Temporality) string { return string(tp) })
	return b.String()
}

func writeTerm[T any](b *strings.Builder, t Term[T], show func(T) string) {
	if v, ok := t.Value(); ok {
		b.WriteString(show(v))
		return
	}
	b.WriteString("?")
	b.WriteString(string(t.Var()))
}

// PortDir distinguishes input and output endpoints.
type PortDir string

const (
	DirIn  PortDir = "in"
	DirOut PortDir = "out"
)

// PortKey identifies one port of one block, with direction. It is the key
// type for TypeFacts and the stable identity used in diagnostics.
type PortKey struct {
	Block string  `json:"block"`
	Port  string  `json:"port"`
	Dir   PortDir `json:"dir"`
}

func (k PortKey) String() string {
	return k.Block + "." + k.Port + "/" + string(k.Dir)
}

// Compare orders port keys lexicographically by block, port, direction.
// This is the tie-breaking order used throughout the solvers.
func (k PortKey) Compare(o PortKey) int {
	if c := strings.Compare(k.Block, o.Block); c != 0 {
		return c
	}
	if c := strings.Compare(k.Port, o.Port); c != 0 {
		return c
	}
	return strings.Compare(string(k.Dir), string(o.Dir))
}

// PayloadVar returns the deterministic payload variable id for a port.
func (k PortKey) PayloadVar() VarID { return VarID("p:" + k.String()) }

// UnitVar returns the deterministic unit variable id for a port.
func (k PortKey) UnitVar() VarID { return VarID("u:" + k.String()) }

// CardVar returns the deterministic cardinality variable id for a port.
func (k PortKey) CardVar() VarID { return VarID("c:" + k.String()) }
