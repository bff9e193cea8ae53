package commands

import (
	"fmt"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/spf13/cobra"
)

// IndexOptions holds options for the index command.
type IndexOptions struct {
	Source string
}

// NewIndexCommand creates the index command.
func NewIndexCommand() *cobra.Command {
	opts := &IndexOptions{}

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Save the snapshot to the index store",
		Long: `Load the snapshot and save its modules, methods and required libraries
to the SQLite index store so they can be searched later with the indexes
command or the server's /indexes routes.`,
		Example: `  # Index the configured snapshot
  defsdb index

  # Label the index
  defsdb index --source ci-build-142`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "Label stored with the index (default: snapshot path)")

	return cmd
}

func runIndex(cmd *cobra.Command, opts *IndexOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	source := opts.Source
	if source == "" {
		source = cmdCtx.Cfg.Snapshot
	}

	idx, err := store.SaveIndex(cmd.Context(), cmdCtx.DB, source)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(idx)
	}
	r.Success(fmt.Sprintf("Indexed %s as %s", source, idx.ID))
	return nil
}
