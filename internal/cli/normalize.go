package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/normalize"
	"github.com/patchflow/patchflow/internal/store"
)

// NormalizeResult is the JSON payload of the normalize command.
type NormalizeResult struct {
	Converged   bool            `json:"converged"`
	Strict      bool            `json:"strict"`
	Iterations  int             `json:"iterations"`
	Blocks      int             `json:"blocks"`
	Edges       int             `json:"edges"`
	Obligations int             `json:"obligations"`
	ResultHash  string          `json:"result_hash"`
	RunID       string          `json:"run_id,omitempty"`
	Diagnostics []ir.Diagnostic `json:"diagnostics,omitempty"`
}

// NewNormalizeCommand creates the normalize command.
func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		maxIterations int
		dbPath        string
	)

	cmd := &cobra.Command{
		Use:   "normalize <patch-dir>",
		Short: "Normalize a patch to its typed fixpoint",
		Long: `Load a CUE patch document, run the normalization fixpoint against the
builtin catalog, and report the outcome.

Exit code 0 when the run converges with no solver conflicts, 1 when it
does not, 2 on command errors.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(rootOpts, args[0], maxIterations, dbPath, cmd)
		},
	}

	cmd.Flags().IntVar(&maxIterations, "max-iterations", normalize.DefaultMaxIterations, "fixpoint iteration cap")
	cmd.Flags().StringVar(&dbPath, "db", "", "optional sqlite path to record the run for later replay")

	return cmd
}

func runNormalize(opts *RootOptions, patchDir string, maxIterations int, dbPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	input, err := loadAndBuild(patchDir, formatter)
	if err != nil {
		return err
	}

	driverOpts := []normalize.Option{normalize.WithMaxIterations(maxIterations)}
	if opts.Verbose {
		driverOpts = append(driverOpts, normalize.WithLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))))
	}
	cat := catalog.Builtin()
	driver := normalize.NewDriver(cat, catalog.BuiltinAdapters(), driverOpts...)

	run, err := driver.Run(input)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "normalization failed", err)
	}

	resultHash, err := ir.GraphHash(run.Graph)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "hashing result", err)
	}

	result := NormalizeResult{
		Converged:   run.Converged,
		Strict:      run.Strict != nil,
		Iterations:  run.Iterations,
		Blocks:      len(run.Graph.Blocks),
		Edges:       len(run.Graph.Edges),
		Obligations: len(run.Graph.Obligations),
		ResultHash:  resultHash,
		Diagnostics: run.Diagnostics,
	}

	if dbPath != "" {
		runID, err := recordRun(cmd.Context(), dbPath, input, run, cat)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "recording run", err)
		}
		result.RunID = runID
		formatter.VerboseLog("run %s recorded in %s", runID, dbPath)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printNormalizeText(formatter, result)
	}

	if !run.Converged || run.Strict == nil {
		return NewExitError(ExitFailure, "normalization incomplete")
	}
	return nil
}

// loadAndBuild loads a patch document and builds the initial draft graph.
// Shared by normalize, validate, and facts.
func loadAndBuild(patchDir string, formatter *OutputFormatter) (ir.DraftGraph, error) {
	loadResult, loadErrors := LoadPatch(patchDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			formatter.Error(loadErr.Code, loadErr.Message, nil)
		} else {
			formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		}
		return ir.DraftGraph{}, WrapExitError(ExitCommandError, "loading patch", loadErrors[0])
	}
	formatter.VerboseLog("loaded %d CUE file(s): %d blocks, %d wires",
		loadResult.FileCount, len(loadResult.Blocks), len(loadResult.Edges))

	g, err := normalize.BuildDraftGraph(loadResult.Blocks, loadResult.Edges, catalog.Builtin())
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return ir.DraftGraph{}, WrapExitError(ExitCommandError, "building graph", err)
	}
	return g, nil
}

func recordRun(ctx context.Context, dbPath string, input ir.DraftGraph, run normalize.Result, cat catalog.Catalog) (string, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()

	catalogHash, err := catalog.Hash(cat)
	if err != nil {
		return "", err
	}
	runID, err := store.UUIDRunIDs{}.NewRunID()
	if err != nil {
		return "", err
	}
	rec, err := store.BuildRunRecord(runID, input, run.Graph, catalogHash, run.Diagnostics, run.Iterations, run.Converged)
	if err != nil {
		return "", err
	}
	if err := st.SaveRun(ctx, rec); err != nil {
		return "", err
	}
	return runID, nil
}

func printNormalizeText(f *OutputFormatter, r NormalizeResult) {
	fmt.Fprintf(f.Writer, "converged: %v (%d iterations)\n", r.Converged, r.Iterations)
	fmt.Fprintf(f.Writer, "strict: %v\n", r.Strict)
	fmt.Fprintf(f.Writer, "graph: %d blocks, %d edges, %d obligations\n", r.Blocks, r.Edges, r.Obligations)
	fmt.Fprintf(f.Writer, "result hash: %s\n", r.ResultHash)
	if r.RunID != "" {
		fmt.Fprintf(f.Writer, "run id: %s\n", r.RunID)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(f.Writer, "  [%s/%s] %s\n", d.Kind, d.SubKind, d.Message)
	}
}
