// Package ir provides the canonical data model for patchflow normalization.
//
// This package contains type definitions plus the canonical serialization
// used for content-addressed identity. All other internal packages import
// ir; ir imports nothing internal. This keeps IR the foundational layer
// with no circular dependencies.
//
// Key design constraints:
//   - Determinism comes from identifiers: blocks, edges, and obligations
//     are kept sorted by id after every mutation. There is no other
//     ordering mechanism.
//   - Obligation ids are pure functions of their semantic target
//     (ObligationKey), never of insertion order. Re-deriving the same
//     obligation yields the same id, so the ledger deduplicates naturally.
//   - DraftGraph has value semantics. Apply steps build a new graph value
//     from the previous one; blocks and obligations are add-only, edge
//     replacement is remove-then-add.
//   - All JSON tags use snake_case.
package ir
