package solver

import (
	"fmt"
	"slices"

	"github.com/patchflow/patchflow/internal/ir"
)

// EqSolution is the payload/unit equality solver output: two independent
// union-find universes plus the conflict diagnostics discovered while
// propagating.
type EqSolution struct {
	payload       *UnionFind[string]
	unit          *UnionFind[string]
	payloadBroken map[ir.VarID]bool // conflicted group roots
	unitBroken    map[ir.VarID]bool
	Diags         []ir.Diagnostic
}

// SolveEquality runs equality propagation over the payload and unit
// universes. Conflicts are terminal for the affected group but never abort
// the solve; every constraint is processed.
func SolveEquality(cs ConstraintSet) *EqSolution {
	sol := &EqSolution{
		payload:       NewUnionFind[string](func(a, b string) bool { return a == b }),
		unit:          NewUnionFind[string](func(a, b string) bool { return a == b }),
		payloadBroken: make(map[ir.VarID]bool),
		unitBroken:    make(map[ir.VarID]bool),
	}
	sol.run(cs.Payload, sol.payload, sol.payloadBroken, ir.SubConflictingPayloads)
	sol.run(cs.Unit, sol.unit, sol.unitBroken, ir.SubConflictingUnits)
	return sol
}

func (s *EqSolution) run(constraints []EqConstraint, uf *UnionFind[string], broken map[ir.VarID]bool, subKind string) {
	for _, c := range constraints {
		var err error
		switch c.Kind {
		case EqAssign:
			err = uf.Assign(c.A, c.Value)
		case EqUnion:
			err = uf.Union(c.A, c.B)
		}
		if err == nil {
			continue
		}
		broken[uf.Find(c.A)] = true
		ports := conflictPorts(c)
		s.Diags = append(s.Diags, ir.Diagnostic{
			Kind:    ir.DiagSolver,
			SubKind: subKind,
			Ports:   ports,
			Message: fmt.Sprintf("%s at %s: %v", subKind, ports[0], err),
		})
	}
}

// conflictPorts renders a deterministic, stable port key list for a failed
// constraint: the lexicographically smaller endpoint first.
func conflictPorts(c EqConstraint) []string {
	if c.Other == (ir.PortKey{}) {
		return []string{c.Port.String()}
	}
	ports := []string{c.Port.String(), c.Other.String()}
	slices.Sort(ports)
	return ports
}

// PayloadOf returns the resolved payload kind for a port.
func (s *EqSolution) PayloadOf(k ir.PortKey) (ir.PayloadKind, bool) {
	v, ok := s.payload.Resolved(k.PayloadVar())
	return ir.PayloadKind(v), ok
}

// UnitOf returns the resolved unit for a port.
func (s *EqSolution) UnitOf(k ir.PortKey) (ir.Unit, bool) {
	v, ok := s.unit.Resolved(k.UnitVar())
	return ir.Unit(v), ok
}

// PayloadRoot returns the canonical group root of a port's payload
// variable. Ports sharing a root share a payload, resolved or not.
func (s *EqSolution) PayloadRoot(k ir.PortKey) ir.VarID {
	return s.payload.Find(k.PayloadVar())
}

// PayloadConflicted reports whether a port's payload group hit a conflict.
func (s *EqSolution) PayloadConflicted(k ir.PortKey) bool {
	return s.payloadBroken[s.payload.Find(k.PayloadVar())]
}

// UnitConflicted reports whether a port's unit group hit a conflict.
func (s *EqSolution) UnitConflicted(k ir.PortKey) bool {
	return s.unitBroken[s.unit.Find(k.UnitVar())]
}
