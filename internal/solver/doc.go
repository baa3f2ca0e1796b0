// Package solver implements the per-iteration constraint pipeline:
// extraction of a complete constraint set from the graph and catalog,
// the payload/unit equality solver, the five-phase cardinality solver,
// and the TypeFacts snapshot derived from the solutions.
//
// Everything here is a pure function of (graph, catalog). Facts are
// recomputed from scratch each iteration and never patched incrementally.
// Tie-breaking always favors lexicographically smaller port, group, and
// variable keys, so results are independent of map iteration order.
package solver
