package harness

import (
	"fmt"
	"strings"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/normalize"
)

// Result is the outcome of executing one scenario: the normalization
// result plus assertion verdicts.
type Result struct {
	Run      normalize.Result
	Passed   bool
	Failures []string
}

// NewResult returns an empty passing result.
func NewResult() *Result {
	return &Result{Passed: true}
}

func (r *Result) fail(format string, args ...any) {
	r.Passed = false
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// Run executes a scenario against the builtin catalog and evaluates its
// assertions. Scenario execution is deterministic; the same scenario
// always produces the same final graph.
func Run(scenario *Scenario) (*Result, error) {
	g, err := buildGraph(scenario)
	if err != nil {
		return nil, fmt.Errorf("build scenario graph: %w", err)
	}

	opts := []normalize.Option{}
	if scenario.MaxIterations > 0 {
		opts = append(opts, normalize.WithMaxIterations(scenario.MaxIterations))
	}
	driver := normalize.NewDriver(catalog.Builtin(), catalog.BuiltinAdapters(), opts...)

	run, err := driver.Run(g)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	result := NewResult()
	result.Run = run
	for i, a := range scenario.Assertions {
		evaluateAssertion(result, i, a)
	}
	return result, nil
}

// buildGraph converts scenario blocks and wires into the initial draft
// graph, including seeded input obligations.
func buildGraph(scenario *Scenario) (ir.DraftGraph, error) {
	blocks := make([]ir.DraftBlock, 0, len(scenario.Blocks))
	for _, b := range scenario.Blocks {
		blocks = append(blocks, ir.DraftBlock{ID: b.ID, Type: b.Type})
	}
	edges := make([]ir.DraftEdge, 0, len(scenario.Wires))
	for _, w := range scenario.Wires {
		srcBlock, srcPort, err := splitEndpoint(w.From)
		if err != nil {
			return ir.DraftGraph{}, err
		}
		snkBlock, snkPort, err := splitEndpoint(w.To)
		if err != nil {
			return ir.DraftGraph{}, err
		}
		edges = append(edges, ir.DraftEdge{
			ID:     w.ID,
			Source: ir.EdgeEnd{Block: srcBlock, Port: srcPort},
			Sink:   ir.EdgeEnd{Block: snkBlock, Port: snkPort},
		})
	}
	return normalize.BuildDraftGraph(blocks, edges, catalog.Builtin())
}

func evaluateAssertion(result *Result, index int, a Assertion) {
	run := result.Run
	switch a.Type {
	case AssertConverged:
		if !run.Converged {
			result.fail("assertions[%d]: run did not converge in %d iterations", index, run.Iterations)
		}
	case AssertStrict:
		if run.Strict == nil {
			result.fail("assertions[%d]: run did not produce a strict typed graph", index)
		}
	case AssertBlockCount:
		count := 0
		for _, b := range run.Graph.Blocks {
			if b.Type == a.BlockType {
				count++
			}
		}
		if count != a.Count {
			result.fail("assertions[%d]: %d blocks of type %q, expected %d", index, count, a.BlockType, a.Count)
		}
	case AssertPortPayload:
		key, err := parsePortKey(a.Port)
		if err != nil {
			result.fail("assertions[%d]: %v", index, err)
			return
		}
		hint, ok := run.Facts.Lookup(key)
		if !ok {
			result.fail("assertions[%d]: no facts for port %s", index, key)
			return
		}
		payload, resolved := hint.Type.Payload.Value()
		if !resolved || string(payload) != a.Payload {
			result.fail("assertions[%d]: port %s payload %v, expected %q", index, key, hint.Type.Payload, a.Payload)
		}
	case AssertPortCardinality:
		key, err := parsePortKey(a.Port)
		if err != nil {
			result.fail("assertions[%d]: %v", index, err)
			return
		}
		hint, ok := run.Facts.Lookup(key)
		if !ok {
			result.fail("assertions[%d]: no facts for port %s", index, key)
			return
		}
		card, resolved := hint.Type.Extent.Cardinality.Value()
		if !resolved || string(card.Kind) != a.Cardinality {
			result.fail("assertions[%d]: port %s cardinality %v, expected %q", index, key, hint.Type.Extent.Cardinality, a.Cardinality)
		}
	case AssertObligationState:
		ob, ok := run.Graph.ObligationByID(a.Obligation)
		if !ok {
			result.fail("assertions[%d]: obligation %q not in ledger", index, a.Obligation)
			return
		}
		if string(ob.Status.State) != a.State {
			result.fail("assertions[%d]: obligation %q state %q, expected %q", index, a.Obligation, ob.Status.State, a.State)
		}
	case AssertDiagnostic:
		for _, d := range run.Diagnostics {
			if d.SubKind == a.SubKind {
				return
			}
		}
		result.fail("assertions[%d]: no diagnostic with sub-kind %q", index, a.SubKind)
	}
}

// parsePortKey parses "block.port/in" or "block.port/out".
func parsePortKey(s string) (ir.PortKey, error) {
	slash := strings.LastIndex(s, "/")
	if slash < 0 {
		return ir.PortKey{}, fmt.Errorf("port %q must end in /in or /out", s)
	}
	dir := ir.PortDir(s[slash+1:])
	if dir != ir.DirIn && dir != ir.DirOut {
		return ir.PortKey{}, fmt.Errorf("port %q has unknown direction %q", s, dir)
	}
	block, port, err := splitEndpoint(s[:slash])
	if err != nil {
		return ir.PortKey{}, err
	}
	return ir.PortKey{Block: block, Port: port, Dir: dir}, nil
}
