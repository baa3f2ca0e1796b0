package ir

import (
	"slices"
	"strings"
)

// Diagnostic kinds. Solver diagnostics are terminal for the affected port
// or group; structural diagnostics are informational records emitted by a
// successful policy; convergence diagnostics report fixpoint-level outcomes.
const (
	DiagSolver      = "solver"
	DiagStructural  = "structural"
	DiagConvergence = "convergence"
	DiagCatalog     = "catalog"
)

// Diagnostic sub-kinds.
const (
	SubConflictingPayloads   = "ConflictingPayloads"
	SubConflictingUnits      = "ConflictingUnits"
	SubClampManyConflict     = "ClampManyConflict"
	SubInstanceConflict      = "InstanceConflict"
	SubUnresolvedInstanceVar = "UnresolvedInstanceVar"
	SubCheaterAdapterUsed    = "CheaterAdapterUsed"
	SubCardinalityAdapter    = "CardinalityAdapterInserted"
	SubCycleBreakInserted    = "CycleBreakInserted"
	SubNonConvergence        = "NonConvergence"
	SubUnknownBlockType      = "UnknownBlockType"
	SubUnknownPort           = "UnknownPort"
)

// Diagnostic is one flat, JSON-serializable record. Ports and edges are
// rendered as strings so records stay stable and greppable.
type Diagnostic struct {
	Kind    string   `json:"kind"`
	SubKind string   `json:"sub_kind"`
	Ports   []string `json:"ports,omitempty"`
	Edges   []string `json:"edges,omitempty"`
	Message string   `json:"message"`
}

// Key returns the stable deduplication key: kind:subKind:port:message.
func (d Diagnostic) Key() string {
	port := ""
	if len(d.Ports) > 0 {
		port = d.Ports[0]
	}
	return strings.Join([]string{d.Kind, d.SubKind, port, d.Message}, ":")
}

// DedupDiagnostics removes duplicate records by key and returns them in
// key order, so diagnostic output is reproducible across runs.
func DedupDiagnostics(diags []Diagnostic) []Diagnostic {
	seen := make(map[string]bool, len(diags))
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		k := d.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Diagnostic) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}
