package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
	"github.com/patchflow/patchflow/internal/normalize"
)

// PortFact is one resolved port in the facts command output.
type PortFact struct {
	Port  string `json:"port"`
	State string `json:"state"`
	Type  string `json:"type,omitempty"`
}

// FactsResult is the JSON payload of the facts command.
type FactsResult struct {
	Converged bool       `json:"converged"`
	Ports     []PortFact `json:"ports"`
}

// NewFactsCommand creates the facts command.
func NewFactsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts <patch-dir>",
		Short: "Show resolved port types after normalization",
		Long: `Run the normalization fixpoint and print the per-port type facts,
one line per port in lexicographic order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFacts(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runFacts(opts *RootOptions, patchDir string, cmd *cobra.Command) error {
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

	driver := normalize.NewDriver(catalog.Builtin(), catalog.BuiltinAdapters())
	run, err := driver.Run(input)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "normalization failed", err)
	}

	result := FactsResult{Converged: run.Converged}
	for _, key := range run.Facts.Keys() {
		hint, _ := run.Facts.Lookup(key)
		fact := PortFact{Port: key.String(), State: string(hint.State)}
		if hint.State == ir.HintOK {
			fact.Type = hint.Type.String()
		}
		result.Ports = append(result.Ports, fact)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	for _, p := range result.Ports {
		if p.Type != "" {
			fmt.Fprintf(formatter.Writer, "%-40s %s\n", p.Port, p.Type)
		} else {
			fmt.Fprintf(formatter.Writer, "%-40s <%s>\n", p.Port, p.State)
		}
	}
	return nil
}
