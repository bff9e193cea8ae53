// Package commands implements the defsdb subcommands.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/internal/config"
	"github.com/leapstack-labs/defsdb/internal/state"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	DB       *defsdb.Database
}

// NewCommandContext creates a CommandContext with the configured snapshot
// loaded.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cmdCtx := NewCommandContextWithoutDB(cmd)

	db, err := openSnapshot(cmdCtx.Cfg.Snapshot, cmdCtx.Logger)
	if err != nil {
		return nil, err
	}
	cmdCtx.DB = db
	return cmdCtx, nil
}

// NewCommandContextWithoutDB creates a CommandContext without loading a
// snapshot. Useful for commands that read the index store or several
// snapshots.
func NewCommandContextWithoutDB(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}
}

// OpenStore opens the index store at the configured path. The caller must
// close it.
func (c *CommandContext) OpenStore() (*state.SQLiteStore, error) {
	store, err := state.OpenStore(c.Cfg.StatePath, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	return store, nil
}

func openSnapshot(path string, logger *slog.Logger) (*defsdb.Database, error) {
	db, err := defsdb.Open(path, defsdb.LoadOptions{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return db, nil
}
