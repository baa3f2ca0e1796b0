package solver

import (
	"fmt"
	"slices"

	"github.com/patchflow/patchflow/internal/ir"
)

// ZipClampNote records a zip-broadcast propagation that was skipped because
// the member group is forced to one. This is legal coexistence, not a
// conflict; derivation inspects notes to decide whether a boundary edge
// needs an explicit broadcast block.
type ZipClampNote struct {
	SetKey       string
	SetPorts     []ir.PortKey
	SkippedPorts []ir.PortKey // the forcedOne group's members, sorted
	Instance     ir.Term[ir.InstanceRef]
}

// CardSolution is the cardinality solver output.
type CardSolution struct {
	uf       *UnionFind[struct{}]
	resolved map[ir.VarID]ir.CardValue
	broken   map[ir.VarID]bool
	Notes    []ZipClampNote
	Diags    []ir.Diagnostic
}

// groupFacts are the per-group facts collected in phase 2.
type groupFacts struct {
	forcedOne bool
	manyTerms []ir.Term[ir.InstanceRef]
}

// SolveCardinality resolves every cardinality variable to one or
// many(instance) in five ordered phases:
//
//  1. equality union-find over explicit equal constraints
//  2. fact collection per group (forcedOne, forcedMany instance terms)
//  3. local resolution; groups with no facts default to one
//  4. zip-broadcast fixpoint, propagating many through declared sets
//  5. finalization, reporting any group still carrying an open instance
//
// All phases run to completion; group conflicts are terminal for the group
// but never stop the solve. Ties always break toward lexicographically
// smaller keys.
func SolveCardinality(cs ConstraintSet) *CardSolution {
	sol := &CardSolution{
		uf:       NewUnionFind[struct{}](func(a, b struct{}) bool { return true }),
		resolved: make(map[ir.VarID]ir.CardValue),
		broken:   make(map[ir.VarID]bool),
	}

	// Phase 1: equality.
	for _, k := range cs.Ports {
		sol.uf.Find(k.CardVar())
	}
	for _, c := range cs.Card {
		if c.Kind == CardEqual {
			// Union never conflicts here: no values are assigned in this
			// universe, groups carry facts instead.
			_ = sol.uf.Union(c.A.CardVar(), c.B.CardVar())
		}
	}

	// Group membership, sorted for deterministic reporting.
	members := make(map[ir.VarID][]ir.PortKey)
	for _, k := range cs.Ports {
		root := sol.uf.Find(k.CardVar())
		members[root] = append(members[root], k)
	}
	roots := make([]ir.VarID, 0, len(members))
	for root := range members {
		roots = append(roots, root)
		slices.SortFunc(members[root], ir.PortKey.Compare)
	}
	slices.Sort(roots)

	// Phase 2: fact collection.
	facts := make(map[ir.VarID]*groupFacts)
	factsOf := func(root ir.VarID) *groupFacts {
		f := facts[root]
		if f == nil {
			f = &groupFacts{}
			facts[root] = f
		}
		return f
	}
	for _, c := range cs.Card {
		root := sol.uf.Find(c.Port.CardVar())
		switch c.Kind {
		case CardClampOne:
			factsOf(root).forcedOne = true
		case CardForceMany:
			f := factsOf(root)
			f.manyTerms = append(f.manyTerms, c.Instance)
		}
	}

	// Phase 3: local resolution.
	for _, root := range roots {
		f := facts[root]
		switch {
		case f != nil && f.forcedOne && len(f.manyTerms) > 0:
			sol.conflict(ir.SubClampManyConflict, members[root],
				"group is clamped to one but forced to many")
			sol.broken[root] = true
			sol.resolved[root] = ir.One()
		case f != nil && len(f.manyTerms) > 0:
			inst, ok := unifyInstanceTerms(f.manyTerms)
			if !ok {
				sol.conflict(ir.SubInstanceConflict, members[root],
					"group is forced to many over conflicting instances")
				sol.broken[root] = true
			}
			sol.resolved[root] = ir.ManyOf(inst)
		default:
			// Signal by default: absence of field evidence never blocks
			// resolution.
			sol.resolved[root] = ir.One()
		}
	}

	// Phase 4: zip-broadcast fixpoint, bounded by group count.
	noted := make(map[string]bool)
	for range len(roots) + 1 {
		changed := false
		for _, set := range cs.ZipSets {
			changed = sol.propagateZip(set, facts, members, noted) || changed
		}
		if !changed {
			break
		}
	}

	// Phase 5: finalize.
	for _, root := range roots {
		v := sol.resolved[root]
		if v.Kind == ir.CardMany && v.Instance.IsVar() && !sol.broken[root] {
			sol.conflict(ir.SubUnresolvedInstanceVar, members[root],
				fmt.Sprintf("instance variable %s never resolved", v.Instance.Var()))
			sol.broken[root] = true
		}
	}
	return sol
}

// propagateZip pushes resolved many-ness through one zip-broadcast set.
// Groups forced to one are skipped with a note: clampOne members legally
// coexist with many siblings, modeling runtime signal-to-field broadcast.
func (s *CardSolution) propagateZip(set ZipSet, facts map[ir.VarID]*groupFacts, members map[ir.VarID][]ir.PortKey, noted map[string]bool) bool {
	// Member group roots in set order, deduplicated.
	var groupRoots []ir.VarID
	seen := make(map[ir.VarID]bool)
	for _, k := range set.Ports {
		root := s.uf.Find(k.CardVar())
		if !seen[root] {
			seen[root] = true
			groupRoots = append(groupRoots, root)
		}
	}

	// Pick the driving instance: first concrete resolved many, else the
	// first open many.
	var driving ir.Term[ir.InstanceRef]
	haveDriving := false
	for _, root := range groupRoots {
		v := s.resolved[root]
		if v.Kind != ir.CardMany {
			continue
		}
		if !v.Instance.IsVar() {
			driving = v.Instance
			haveDriving = true
			break
		}
		if !haveDriving {
			driving = v.Instance
			haveDriving = true
		}
	}
	if !haveDriving {
		return false
	}

	changed := false
	for _, root := range groupRoots {
		f := facts[root]
		v := s.resolved[root]
		switch {
		case v.Kind == ir.CardMany:
			di, dOK := driving.Value()
			vi, vOK := v.Instance.Value()
			if dOK && !vOK {
				s.resolved[root] = ir.ManyOf(driving)
				changed = true
			} else if dOK && vOK && di != vi && !s.broken[root] {
				s.conflict(ir.SubInstanceConflict, members[root],
					fmt.Sprintf("zip set %s mixes instances %s and %s", set.Key, di, vi))
				s.broken[root] = true
			}
		case f != nil && f.forcedOne:
			key := set.Key + "|" + string(root)
			if !noted[key] {
				noted[key] = true
				s.Notes = append(s.Notes, ZipClampNote{
					SetKey:       set.Key,
					SetPorts:     slices.Clone(set.Ports),
					SkippedPorts: slices.Clone(members[root]),
					Instance:     driving,
				})
			}
		default:
			s.resolved[root] = ir.ManyOf(driving)
			changed = true
		}
	}
	return changed
}

func (s *CardSolution) conflict(subKind string, ports []ir.PortKey, msg string) {
	keys := make([]string, len(ports))
	for i, p := range ports {
		keys[i] = p.String()
	}
	anchor := ""
	if len(keys) > 0 {
		anchor = keys[0]
	}
	s.Diags = append(s.Diags, ir.Diagnostic{
		Kind:    ir.DiagSolver,
		SubKind: subKind,
		Ports:   keys,
		Message: fmt.Sprintf("%s at %s: %s", subKind, anchor, msg),
	})
}

// unifyInstanceTerms merges the instance terms of one forcedMany group.
// Concrete terms must agree; with no concrete term the lexicographically
// smallest variable represents the group.
func unifyInstanceTerms(terms []ir.Term[ir.InstanceRef]) (ir.Term[ir.InstanceRef], bool) {
	var concrete *ir.InstanceRef
	varID := ir.VarID("")
	for _, t := range terms {
		if v, ok := t.Value(); ok {
			if concrete == nil {
				c := v
				concrete = &c
			} else if *concrete != v {
				return ir.NewVal(*concrete), false
			}
		} else if varID == "" || t.Var() < varID {
			varID = t.Var()
		}
	}
	if concrete != nil {
		return ir.NewVal(*concrete), true
	}
	return ir.NewVar[ir.InstanceRef](varID), true
}

// CardOf returns the resolved cardinality for a port.
func (s *CardSolution) CardOf(k ir.PortKey) (ir.CardValue, bool) {
	v, ok := s.resolved[s.uf.Find(k.CardVar())]
	return v, ok
}

// Conflicted reports whether a port's cardinality group hit a conflict.
func (s *CardSolution) Conflicted(k ir.PortKey) bool {
	return s.broken[s.uf.Find(k.CardVar())]
}

// GroupRoot returns the canonical root of a port's cardinality group.
func (s *CardSolution) GroupRoot(k ir.PortKey) ir.VarID {
	return s.uf.Find(k.CardVar())
}
