package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/normalize"
	"github.com/patchflow/patchflow/internal/solver"
)

// ValidationIssue is one problem found during validation.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <patch-dir>",
		Short: "Validate a patch without running the fixpoint",
		Long: `Validate a CUE patch document without full normalization.

Checks document shape, block types against the catalog, and wire
endpoints. Faster than normalize for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, patchDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Collect-all so one malformed wire does not hide the next.
	loadResult, loadErrors := LoadPatch(patchDir, LoadModeCollectAll)
	if loadResult == nil {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			formatter.Error(loadErr.Code, loadErr.Message, nil)
		} else {
			formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		}
		return WrapExitError(ExitCommandError, "loading patch", loadErrors[0])
	}
	formatter.VerboseLog("found %d CUE file(s) in %s", loadResult.FileCount, patchDir)

	var issues []ValidationIssue
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			issues = append(issues, ValidationIssue{Code: loadErr.Code, Message: loadErr.Message})
		} else {
			issues = append(issues, ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()})
		}
	}

	// One extraction pass surfaces catalog problems (unknown block types,
	// unknown ports, dangling wires) without running the fixpoint.
	if g, err := normalize.BuildDraftGraph(loadResult.Blocks, loadResult.Edges, catalog.Builtin()); err != nil {
		issues = append(issues, ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()})
	} else {
		cs := solver.Extract(g, catalog.Builtin())
		for _, d := range ir.DedupDiagnostics(cs.Diags) {
			issues = append(issues, ValidationIssue{Code: d.SubKind, Message: d.Message})
		}
	}

	result := ValidationResult{Valid: len(issues) == 0, Issues: issues}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintln(formatter.Writer, "valid")
	} else {
		for _, issue := range issues {
			fmt.Fprintf(formatter.Writer, "[%s] %s\n", issue.Code, issue.Message)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
