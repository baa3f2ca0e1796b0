package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/normalize"
	"github.com/patchflow/patchflow/internal/store"
)

// ReplayRunResult is the verdict for one replayed run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Converged     bool   `json:"converged"`
	Iterations    int    `json:"iterations"`
	StoredHash    string `json:"stored_hash"`
	ReplayedHash  string `json:"replayed_hash"`
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult is the JSON payload of the replay command.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded runs and verify determinism",
		Long: `Rebuild the input graph of each recorded run, re-execute the
normalization fixpoint against the builtin catalog, and verify that every
replay reproduces the stored result hash.

Exit code 0 when every replay reproduces its stored hash, 1 when a replay
diverges, 2 on command errors.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, dbPath, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite path holding recorded runs (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&runID, "run", "", "replay a single run id")

	return cmd
}

func runReplay(opts *RootOptions, dbPath, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(dbPath)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening store", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	var recs []store.RunRecord
	if runID != "" {
		rec, err := st.GetRun(ctx, runID)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "loading run", err)
		}
		recs = []store.RunRecord{rec}
	} else {
		recs, err = st.ListAllRuns(ctx)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "listing runs", err)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(recs)),
		TotalRuns:        len(recs),
		AllDeterministic: true,
	}
	for _, rec := range recs {
		rr, err := replayRecord(rec)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("replaying run %s", rec.ID), err)
		}
		result.Runs = append(result.Runs, rr)
		if !rr.Deterministic {
			result.AllDeterministic = false
		}
		formatter.VerboseLog("run %s: replayed %s stored %s", rr.RunID, rr.ReplayedHash, rr.StoredHash)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printReplayText(formatter, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay diverged from stored results")
	}
	return nil
}

// replayRecord rebuilds a recorded input graph, re-runs the fixpoint with
// the iteration budget the original run used, and compares content hashes.
func replayRecord(rec store.RunRecord) (ReplayRunResult, error) {
	cat := catalog.Builtin()
	catalogHash, err := catalog.Hash(cat)
	if err != nil {
		return ReplayRunResult{}, err
	}
	if catalogHash != rec.CatalogHash {
		return ReplayRunResult{}, fmt.Errorf(
			"run %s was recorded against catalog %s, current catalog is %s", rec.ID, rec.CatalogHash, catalogHash)
	}

	blocks, edges, err := store.ParseGraphSnapshot(rec.InputGraph)
	if err != nil {
		return ReplayRunResult{}, err
	}
	g, err := normalize.BuildDraftGraph(blocks, edges, cat)
	if err != nil {
		return ReplayRunResult{}, err
	}
	inputHash, err := ir.GraphHash(g)
	if err != nil {
		return ReplayRunResult{}, err
	}
	if inputHash != rec.InputHash {
		return ReplayRunResult{}, fmt.Errorf(
			"run %s: rebuilt input hashes to %s, record says %s", rec.ID, inputHash, rec.InputHash)
	}

	maxIter := rec.Iterations
	if maxIter < 1 {
		maxIter = normalize.DefaultMaxIterations
	}
	driver := normalize.NewDriver(cat, catalog.BuiltinAdapters(), normalize.WithMaxIterations(maxIter))
	run, err := driver.Run(g)
	if err != nil {
		return ReplayRunResult{}, err
	}
	replayedHash, err := ir.GraphHash(run.Graph)
	if err != nil {
		return ReplayRunResult{}, err
	}

	return ReplayRunResult{
		RunID:         rec.ID,
		Converged:     run.Converged,
		Iterations:    run.Iterations,
		StoredHash:    rec.ResultHash,
		ReplayedHash:  replayedHash,
		Deterministic: replayedHash == rec.ResultHash,
	}, nil
}

func printReplayText(f *OutputFormatter, r ReplayResult) {
	fmt.Fprintf(f.Writer, "replayed %d run(s)\n", r.TotalRuns)
	for _, run := range r.Runs {
		verdict := "ok"
		if !run.Deterministic {
			verdict = "DIVERGED"
		}
		fmt.Fprintf(f.Writer, "  %s: %s (%d iterations)\n", run.RunID, verdict, run.Iterations)
		if !run.Deterministic {
			fmt.Fprintf(f.Writer, "    stored   %s\n", run.StoredHash)
			fmt.Fprintf(f.Writer, "    replayed %s\n", run.ReplayedHash)
		}
	}
	if r.AllDeterministic {
		fmt.Fprintln(f.Writer, "all runs deterministic")
	}
}
