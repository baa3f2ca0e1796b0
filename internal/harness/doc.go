// Package harness provides conformance testing for the normalization
// fixpoint.
//
// The harness loads a scenario, builds the draft graph it describes, runs
// the normalization driver against the builtin catalog, and validates the
// outcome as an executable contract test.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	blocks:
//	  - id: const1
//	    type: Const
//	wires:
//	  - id: w1
//	    from: const1.out
//	    to: add1.a
//	assertions:
//	  - type: converged
//	  - type: block_count
//	    block_type: DefaultValue
//	    count: 2
//	  - type: port_payload
//	    port: add1.out/out
//	    payload: float
//
// # Assertion Types
//
//   - converged: the run reached its fixpoint under the iteration cap
//   - strict: the run produced a strict typed graph
//   - block_count: exactly N blocks of a type exist in the final graph
//   - port_payload: a port resolved to the given concrete payload
//   - port_cardinality: a port resolved to the given cardinality kind
//   - obligation_state: the named obligation ended in the given state
//   - diagnostic: a diagnostic with the given sub-kind was emitted
//
// # Deterministic Testing
//
// Scenarios run entirely in memory against the builtin catalog. The
// engine is deterministic by construction, so the final graph snapshot is
// byte-stable and suitable for golden file comparison.
package harness
