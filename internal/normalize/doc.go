// Package normalize implements the fixpoint engine that elaborates a draft
// graph until it is fully type-resolved or a terminal diagnostic is
// produced.
//
// ARCHITECTURE:
//
// Single-threaded fixpoint loop. Each iteration runs four phases in order:
//
//  1. Solve: constraint extraction plus the equality and cardinality
//     solvers (package solver), recomputed from scratch.
//  2. Derive: pure functions emit new obligations from solved facts;
//     the ledger merges them by deterministic id.
//  3. Discharge: one policy per obligation kind proposes an elaboration
//     plan, or declares the obligation permanently blocked.
//  4. Apply: idempotent, monotone graph mutation; bumps the revision.
//
// The loop ends when an iteration produces zero new obligations and zero
// plans, or when the iteration cap converts a pathological elaboration
// into a NonConvergence diagnostic plus a best-effort partial result.
//
// CRITICAL PATTERNS:
//
// Obligation ids are pure functions of their semantic target, so
// re-derivation deduplicates naturally and the ledger is idempotent.
//
// The driver is the only component with mutation authority. Every apply
// step builds a new DraftGraph value; blocks and obligations are add-only,
// edges are replaced remove-then-add. Obligation evaluation order is the
// sorted-id order of the ledger, never insertion order.
//
// Expected failure modes are values: solver conflicts and blocked
// obligations are recorded, never thrown. Errors are reserved for
// programming-contract violations such as a partially applied plan.
package normalize
