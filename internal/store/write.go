package store

import (
	"context"
	"fmt"
)

// SaveRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored. Other constraint violations still return errors.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	diagsJSON, err := marshalDiagnostics(rec.Diagnostics)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	converged := 0
	if rec.Converged {
		converged = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, input_hash, input_graph, catalog_hash, result_hash, result_graph,
		 diagnostics, iterations, converged, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.InputHash,
		rec.InputGraph,
		rec.CatalogHash,
		rec.ResultHash,
		rec.ResultGraph,
		diagsJSON,
		rec.Iterations,
		converged,
		rec.EngineVersion,
		rec.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	return nil
}
