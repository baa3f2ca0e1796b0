package solver

import "github.com/patchflow/patchflow/internal/ir"

// ComputeFacts folds the two solver solutions back onto every live port,
// producing the TypeFacts snapshot for this iteration. A port resolves ok
// when every axis is instantiated, conflict when any of its groups broke,
// and unknown otherwise.
func ComputeFacts(cs ConstraintSet, eq *EqSolution, card *CardSolution) ir.TypeFacts {
	facts := ir.NewTypeFacts()
	for _, k := range cs.Ports {
		base := cs.Base[k]
		t := base

		if v, ok := eq.PayloadOf(k); ok {
			t.Payload = ir.NewVal(v)
		} else {
			t.Payload = ir.NewVar[ir.PayloadKind](eq.PayloadRoot(k))
		}
		if v, ok := eq.UnitOf(k); ok {
			t.Unit = ir.NewVal(v)
		} else {
			// Units are optional annotations: a group with no unit
			// evidence is dimensionless, it does not stay open the way
			// payloads do.
			t.Unit = ir.NewVal(ir.UnitNone)
		}
		if v, ok := card.CardOf(k); ok {
			t.Extent.Cardinality = ir.NewVal(v)
		}

		conflicted := eq.PayloadConflicted(k) || eq.UnitConflicted(k) || card.Conflicted(k)
		switch {
		case conflicted:
			facts.Set(k, ir.ConflictHint(t))
		case t.Instantiated():
			facts.Set(k, ir.OKHint(t))
		default:
			facts.Set(k, ir.UnknownHint(t))
		}
	}
	return facts
}
