package normalize

import (
	"fmt"
	"slices"

	"github.com/patchflow/patchflow/internal/ir"
)

// EdgeReplacement removes one edge and adds its replacements. In-place
// edge mutation does not exist; splicing is always remove-then-add.
type EdgeReplacement struct {
	RemoveEdgeID string
	AddEdges     []ir.DraftEdge
}

// ElaborationPlan is the only artifact a policy may produce: block and
// edge additions plus edge replacements, tagged with the obligation they
// discharge. Diags carries the structural diagnostics that accompany a
// successful elaboration (cheater adapter used, broadcast inserted).
type ElaborationPlan struct {
	ObligationID string
	AddBlocks    []ir.DraftBlock
	AddEdges     []ir.DraftEdge
	Replacements []EdgeReplacement
	Diags        []ir.Diagnostic
}

// Artifacts lists the ids of everything the plan inserts, recorded on the
// discharged obligation.
func (p ElaborationPlan) Artifacts() []string {
	var out []string
	for _, b := range p.AddBlocks {
		out = append(out, b.ID)
	}
	for _, e := range p.AddEdges {
		out = append(out, e.ID)
	}
	for _, r := range p.Replacements {
		for _, e := range r.AddEdges {
			out = append(out, e.ID)
		}
	}
	slices.Sort(out)
	return out
}

// Apply executes a plan against the graph, returning a new graph value.
//
// Apply is idempotent: a plan whose artifacts are all already present is a
// no-op, returning the graph unchanged with the same revision. A plan
// found PARTIALLY applied is a contract violation — the graph was mutated
// behind the driver's back — and returns an error, never a silent merge.
func Apply(g ir.DraftGraph, plan ElaborationPlan) (ir.DraftGraph, error) {
	present, absent := 0, 0
	tally := func(ok bool) {
		if ok {
			present++
		} else {
			absent++
		}
	}
	for _, b := range plan.AddBlocks {
		_, ok := g.BlockByID(b.ID)
		tally(ok)
	}
	for _, e := range plan.AddEdges {
		_, ok := g.EdgeByID(e.ID)
		tally(ok)
	}
	for _, r := range plan.Replacements {
		_, removed := g.EdgeByID(r.RemoveEdgeID)
		tally(!removed)
		for _, e := range r.AddEdges {
			_, ok := g.EdgeByID(e.ID)
			tally(ok)
		}
	}

	switch {
	case absent == 0:
		// Structure fully applied already. Still discharge the obligation
		// if a previous run never got to it (an empty plan has no
		// structure at all).
		if ob, ok := g.ObligationByID(plan.ObligationID); ok && ob.Status.State == ir.ObligationDischarged {
			return g, nil
		}
		out := g.Clone()
		if err := dischargeObligation(&out, plan); err != nil {
			return ir.DraftGraph{}, err
		}
		out.Revision = g.Revision + 1
		return out, nil
	case present != 0:
		return ir.DraftGraph{}, &ContractError{
			Code:         ErrCodePlanPartiallyApplied,
			Message:      fmt.Sprintf("%d artifacts present, %d absent", present, absent),
			ObligationID: plan.ObligationID,
		}
	}

	out := g.Clone()
	out.Blocks = append(out.Blocks, plan.AddBlocks...)
	out.Edges = append(out.Edges, plan.AddEdges...)
	for _, r := range plan.Replacements {
		out.Edges = slices.DeleteFunc(out.Edges, func(e ir.DraftEdge) bool {
			return e.ID == r.RemoveEdgeID
		})
		out.Edges = append(out.Edges, r.AddEdges...)
	}
	if err := dischargeObligation(&out, plan); err != nil {
		return ir.DraftGraph{}, err
	}
	out.SortByID()
	out.Revision = g.Revision + 1
	return out, nil
}

func dischargeObligation(g *ir.DraftGraph, plan ElaborationPlan) error {
	for i := range g.Obligations {
		if g.Obligations[i].ID == plan.ObligationID {
			g.Obligations[i].Status = ir.ObligationStatus{
				State:     ir.ObligationDischarged,
				Artifacts: plan.Artifacts(),
			}
			return nil
		}
	}
	return &ContractError{
		Code:         ErrCodeUnknownObligation,
		Message:      "plan discharges an obligation missing from the ledger",
		ObligationID: plan.ObligationID,
	}
}

// withObligationStatus returns a new graph with one obligation's status
// replaced. Used by the driver to record blocked outcomes.
func withObligationStatus(g ir.DraftGraph, id string, status ir.ObligationStatus) (ir.DraftGraph, error) {
	out := g.Clone()
	for i := range out.Obligations {
		if out.Obligations[i].ID == id {
			out.Obligations[i].Status = status
			out.Revision = g.Revision + 1
			return out, nil
		}
	}
	return ir.DraftGraph{}, &ContractError{
		Code:         ErrCodeUnknownObligation,
		Message:      "status update for an obligation missing from the ledger",
		ObligationID: id,
	}
}

// mergeObligations adds newly-derived obligations absent from the ledger,
// returning the new graph and how many were actually new. Merging never
// changes existing entries: obligation identity makes re-derivation a
// no-op.
func mergeObligations(g ir.DraftGraph, derived []ir.Obligation) (ir.DraftGraph, int) {
	var fresh []ir.Obligation
	for _, ob := range derived {
		if _, exists := g.ObligationByID(ob.ID); !exists {
			fresh = append(fresh, ob)
		}
	}
	if len(fresh) == 0 {
		return g, 0
	}
	out := g.Clone()
	out.Obligations = append(out.Obligations, fresh...)
	out.SortByID()
	out.Revision = g.Revision + 1
	return out, len(fresh)
}
