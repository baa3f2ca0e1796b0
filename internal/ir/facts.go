package ir

import "slices"

// HintState classifies how much of a port's type is known.
type HintState string

const (
	HintOK       HintState = "ok"
	HintUnknown  HintState = "unknown"
	HintConflict HintState = "conflict"
)

// PortTypeHint is the per-port solver verdict: a fully-resolved type, a
// partially-resolved type still containing variables, or a conflict.
type PortTypeHint struct {
	State HintState
	Type  CanonicalType
}

// OKHint wraps a fully-instantiated type.
func OKHint(t CanonicalType) PortTypeHint {
	return PortTypeHint{State: HintOK, Type: t}
}

// UnknownHint wraps a partially-resolved type.
func UnknownHint(t CanonicalType) PortTypeHint {
	return PortTypeHint{State: HintUnknown, Type: t}
}

// ConflictHint marks a port whose constraints contradict each other.
// The type carries whatever was resolved before the conflict.
func ConflictHint(t CanonicalType) PortTypeHint {
	return PortTypeHint{State: HintConflict, Type: t}
}

// TypeFacts is a pure, non-owning snapshot mapping every live port to its
// PortTypeHint. Facts are recomputed from scratch each iteration and never
// patched incrementally, which keeps the solvers pure functions of
// (graph, catalog).
type TypeFacts struct {
	ports map[PortKey]PortTypeHint
}

// NewTypeFacts creates an empty snapshot.
func NewTypeFacts() TypeFacts {
	return TypeFacts{ports: make(map[PortKey]PortTypeHint)}
}

// Set records the hint for a port.
func (f TypeFacts) Set(k PortKey, h PortTypeHint) {
	f.ports[k] = h
}

// Lookup returns the hint for a port.
func (f TypeFacts) Lookup(k PortKey) (PortTypeHint, bool) {
	h, ok := f.ports[k]
	return h, ok
}

// Keys returns all port keys in lexicographic order.
func (f TypeFacts) Keys() []PortKey {
	keys := make([]PortKey, 0, len(f.ports))
	for k := range f.ports {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, PortKey.Compare)
	return keys
}

// Len returns the number of recorded ports.
func (f TypeFacts) Len() int { return len(f.ports) }

// AllOK reports whether every recorded port has an ok hint.
func (f TypeFacts) AllOK() bool {
	for _, h := range f.ports {
		if h.State != HintOK {
			return false
		}
	}
	return true
}
