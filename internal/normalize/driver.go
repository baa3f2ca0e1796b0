package normalize

import (
	"fmt"
	"log/slog"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/solver"
)

// DefaultMaxIterations bounds the fixpoint loop. Each iteration performs at
// most one structural change per obligation, so well-formed graphs converge
// in a handful of iterations; the cap exists for pathological elaboration.
const DefaultMaxIterations = 50

// Driver owns the normalization fixpoint. It is the only component with
// mutation authority over the draft graph: solvers, derivation, and
// policies are pure functions feeding it.
type Driver struct {
	cat      catalog.Catalog
	adapters *catalog.AdapterCatalog
	maxIter  int
	logger   *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxIterations overrides the fixpoint iteration cap.
func WithMaxIterations(n int) Option {
	return func(d *Driver) { d.maxIter = n }
}

// WithLogger sets the driver's logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// NewDriver builds a driver over a block catalog and adapter catalog.
func NewDriver(cat catalog.Catalog, adapters *catalog.AdapterCatalog, opts ...Option) *Driver {
	d := &Driver{
		cat:      cat,
		adapters: adapters,
		maxIter:  DefaultMaxIterations,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result is the outcome of one normalization run. Graph and Facts are
// always populated, converged or not; Strict is non-nil only when the run
// converged with every port resolved and every obligation discharged.
type Result struct {
	Graph       ir.DraftGraph
	Facts       ir.TypeFacts
	Diagnostics []ir.Diagnostic
	Iterations  int
	Converged   bool
	Strict      *StrictTypedGraph
}

// StrictTypedGraph is the fully-resolved product handed to later compiler
// stages: the final graph plus one concrete type per live port.
type StrictTypedGraph struct {
	Graph       ir.DraftGraph
	Types       map[ir.PortKey]ir.CanonicalType
	Diagnostics []ir.Diagnostic
}

// solveState is one iteration's solver output.
type solveState struct {
	cs    solver.ConstraintSet
	eq    *solver.EqSolution
	card  *solver.CardSolution
	facts ir.TypeFacts
}

func (d *Driver) solve(g ir.DraftGraph) solveState {
	cs := solver.Extract(g, d.cat)
	eq := solver.SolveEquality(cs)
	card := solver.SolveCardinality(cs)
	return solveState{
		cs:    cs,
		eq:    eq,
		card:  card,
		facts: solver.ComputeFacts(cs, eq, card),
	}
}

func (s solveState) diags() []ir.Diagnostic {
	var out []ir.Diagnostic
	out = append(out, s.cs.Diags...)
	out = append(out, s.eq.Diags...)
	out = append(out, s.card.Diags...)
	return out
}

// Run drives the graph to its fixpoint: solve, derive, discharge, apply,
// repeated until an iteration changes nothing or the cap is hit.
//
// Structural diagnostics accumulate across iterations; solver diagnostics
// are taken from the final solve only, since intermediate conflicts are
// often resolved by later elaboration.
func (d *Driver) Run(g ir.DraftGraph) (Result, error) {
	var structural []ir.Diagnostic
	var state solveState
	converged := false
	iterations := 0

	for i := 1; i <= d.maxIter; i++ {
		iterations = i
		state = d.solve(g)

		var newCount int
		g, newCount = mergeObligations(g, DeriveObligations(g, d.cat, d.adapters, state.facts, state.eq, state.card))

		applied, blocked := 0, 0
		ctx := PolicyContext{Graph: g, Catalog: d.cat, Adapters: d.adapters, Facts: state.facts}
		for _, ob := range openObligations(g) {
			if !depsMet(ob, state.facts) {
				continue
			}
			// Re-read: an earlier discharge this iteration may have settled it.
			cur, ok := g.ObligationByID(ob.ID)
			if !ok || cur.Status.State != ir.ObligationOpen {
				continue
			}
			outcome, err := Discharge(cur, ctx)
			if err != nil {
				return Result{}, err
			}
			switch {
			case outcome.Plan != nil:
				next, err := Apply(g, *outcome.Plan)
				if err != nil {
					return Result{}, err
				}
				g = next
				structural = append(structural, outcome.Plan.Diags...)
				applied++
			case outcome.Blocked != nil:
				next, err := withObligationStatus(g, cur.ID, *outcome.Blocked)
				if err != nil {
					return Result{}, err
				}
				g = next
				blocked++
			}
			ctx.Graph = g
		}

		d.logger.Debug("normalize iteration",
			slog.Int("iteration", i),
			slog.Int64("revision", g.Revision),
			slog.Int("new_obligations", newCount),
			slog.Int("plans_applied", applied),
			slog.Int("blocked", blocked),
		)

		if newCount == 0 && applied == 0 && blocked == 0 {
			converged = true
			break
		}
	}

	if !converged {
		// The last iteration still mutated the graph; re-solve so the
		// reported facts match the graph we return.
		state = d.solve(g)
		structural = append(structural, ir.Diagnostic{
			Kind:    ir.DiagConvergence,
			SubKind: ir.SubNonConvergence,
			Message: fmt.Sprintf("no fixpoint after %d iterations", d.maxIter),
		})
	}

	diags := ir.DedupDiagnostics(append(structural, state.diags()...))
	res := Result{
		Graph:       g,
		Facts:       state.facts,
		Diagnostics: diags,
		Iterations:  iterations,
		Converged:   converged,
	}
	if converged && state.facts.AllOK() && allDischarged(g) {
		res.Strict = d.finalize(g, state.facts, diags)
	}
	return res, nil
}

// finalize projects the converged graph into its strict form.
func (d *Driver) finalize(g ir.DraftGraph, facts ir.TypeFacts, diags []ir.Diagnostic) *StrictTypedGraph {
	types := make(map[ir.PortKey]ir.CanonicalType, facts.Len())
	for _, k := range facts.Keys() {
		hint, _ := facts.Lookup(k)
		types[k] = hint.Type
	}
	return &StrictTypedGraph{Graph: g, Types: types, Diagnostics: diags}
}

// openObligations returns the open entries of the ledger in id order.
func openObligations(g ir.DraftGraph) []ir.Obligation {
	var out []ir.Obligation
	for _, ob := range g.Obligations {
		if ob.Status.State == ir.ObligationOpen {
			out = append(out, ob)
		}
	}
	return out
}

// allDischarged reports whether every ledger entry discharged. A blocked
// obligation records a requirement normalization could not satisfy, so it
// keeps the graph out of strict form even when every port resolved.
func allDischarged(g ir.DraftGraph) bool {
	for _, ob := range g.Obligations {
		if ob.Status.State != ir.ObligationDischarged {
			return false
		}
	}
	return true
}

// depsMet reports whether every declared fact-dependency holds. An unknown
// dependency kind fails closed: the obligation waits.
func depsMet(ob ir.Obligation, facts ir.TypeFacts) bool {
	for _, dep := range ob.Deps {
		if dep.Kind != ir.DepPortResolved {
			return false
		}
		hint, ok := facts.Lookup(dep.Port)
		if !ok || hint.State != ir.HintOK {
			return false
		}
	}
	return true
}
