package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned by GetRun when no run has the given id.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, seq, input_hash, input_graph, catalog_hash, result_hash,
	result_graph, diagnostics, iterations, converged, engine_version, ir_version`

// GetRun returns the run with the given id, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("get run %q: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %q: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns all runs for an input graph hash, in deterministic
// order: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) when no runs match.
func (s *Store) ListRuns(ctx context.Context, inputHash string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE input_hash = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, inputHash)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: iterate: %w", err)
	}

	return runs, nil
}

// ListAllRuns returns every recorded run, in deterministic order:
// ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) when the log is empty.
func (s *Store) ListAllRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list all runs: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list all runs: iterate: %w", err)
	}

	return runs, nil
}

// scanner abstracts sql.Row and sql.Rows for scanRun.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		rec       RunRecord
		diagsJSON string
		converged int
	)
	err := sc.Scan(
		&rec.ID,
		&rec.Seq,
		&rec.InputHash,
		&rec.InputGraph,
		&rec.CatalogHash,
		&rec.ResultHash,
		&rec.ResultGraph,
		&diagsJSON,
		&rec.Iterations,
		&converged,
		&rec.EngineVersion,
		&rec.IRVersion,
	)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Converged = converged != 0
	rec.Diagnostics, err = unmarshalDiagnostics(diagsJSON)
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}
