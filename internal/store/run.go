package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/patchflow/patchflow/internal/ir"
)

// RunRecord is one persisted normalization run: the canonical input, the
// catalog it ran against, and the outcome. Graphs are stored as canonical
// JSON so a stored run replays byte-identically.
type RunRecord struct {
	ID          string
	Seq         int64
	InputHash   string
	InputGraph  string
	CatalogHash string
	ResultHash  string
	ResultGraph string
	Diagnostics []ir.Diagnostic
	Iterations  int
	Converged   bool

	EngineVersion string
	IRVersion     string
}

// RunIDGenerator mints run ids. Production uses UUIDv7; tests substitute
// FixedRunIDs for reproducible records.
type RunIDGenerator interface {
	NewRunID() (string, error)
}

// UUIDRunIDs generates time-ordered UUIDv7 run ids.
type UUIDRunIDs struct{}

// NewRunID implements RunIDGenerator.
func (UUIDRunIDs) NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return id.String(), nil
}

// FixedRunIDs returns pre-seeded ids in order, then fails.
type FixedRunIDs struct {
	IDs  []string
	next int
}

// NewRunID implements RunIDGenerator.
func (g *FixedRunIDs) NewRunID() (string, error) {
	if g.next >= len(g.IDs) {
		return "", fmt.Errorf("fixed run ids exhausted after %d", len(g.IDs))
	}
	id := g.IDs[g.next]
	g.next++
	return id, nil
}

// BuildRunRecord assembles a RunRecord from a run's inputs and outcome:
// canonical snapshots, content hashes, and versions.
func BuildRunRecord(id string, input, result ir.DraftGraph, catalogHash string, diags []ir.Diagnostic, iterations int, converged bool) (RunRecord, error) {
	inputJSON, err := ir.MarshalCanonical(input.CanonicalSnapshot())
	if err != nil {
		return RunRecord{}, fmt.Errorf("build run record: input: %w", err)
	}
	resultJSON, err := ir.MarshalCanonical(result.CanonicalSnapshot())
	if err != nil {
		return RunRecord{}, fmt.Errorf("build run record: result: %w", err)
	}
	return RunRecord{
		ID:            id,
		InputHash:     ir.HashCanonical(ir.DomainGraph, inputJSON),
		InputGraph:    string(inputJSON),
		CatalogHash:   catalogHash,
		ResultHash:    ir.HashCanonical(ir.DomainGraph, resultJSON),
		ResultGraph:   string(resultJSON),
		Diagnostics:   diags,
		Iterations:    iterations,
		Converged:     converged,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}, nil
}

// marshalDiagnostics serializes diagnostics for storage. Diagnostics are
// already deduped and key-ordered, so plain JSON is stable.
func marshalDiagnostics(diags []ir.Diagnostic) (string, error) {
	if diags == nil {
		diags = []ir.Diagnostic{}
	}
	b, err := json.Marshal(diags)
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}
	return string(b), nil
}

func unmarshalDiagnostics(data string) ([]ir.Diagnostic, error) {
	var diags []ir.Diagnostic
	if err := json.Unmarshal([]byte(data), &diags); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	return diags, nil
}
