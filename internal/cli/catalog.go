package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchflow/patchflow/internal/catalog"
)

// CatalogEntry is one block definition in the catalog command output.
type CatalogEntry struct {
	Name    string   `json:"name"`
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
	Mode    string   `json:"mode"`
}

// CatalogResult is the JSON payload of the catalog command.
type CatalogResult struct {
	Hash   string         `json:"hash"`
	Blocks []CatalogEntry `json:"blocks"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "catalog",
		Short:         "List the builtin block definitions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(rootOpts, cmd)
		},
	}

	return cmd
}

func runCatalog(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cat := catalog.Builtin()
	hash, err := catalog.Hash(cat)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "hashing catalog", err)
	}

	result := CatalogResult{Hash: hash}
	for _, name := range cat.Names() {
		def, _ := cat.Lookup(name)
		entry := CatalogEntry{Name: name, Mode: string(def.Card.Mode)}
		for _, p := range def.Inputs {
			entry.Inputs = append(entry.Inputs, p.Name)
		}
		for _, p := range def.Outputs {
			entry.Outputs = append(entry.Outputs, p.Name)
		}
		result.Blocks = append(result.Blocks, entry)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "catalog %s\n", result.Hash)
	for _, b := range result.Blocks {
		fmt.Fprintf(formatter.Writer, "%-14s mode=%-10s in=%v out=%v\n", b.Name, b.Mode, b.Inputs, b.Outputs)
	}
	return nil
}
