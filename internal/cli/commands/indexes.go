package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/internal/state"
	"github.com/spf13/cobra"
)

// NewIndexesCommand creates the indexes command and its subcommands.
func NewIndexesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "List and query saved indexes",
		Long: `Work with snapshots saved by the index command. Without a subcommand the
saved indexes are listed, newest first.`,
		Example: `  # List saved indexes
  defsdb indexes

  # Modules of an index
  defsdb indexes modules <id> 'Net::*'

  # Every definition of a method name
  defsdb indexes methods <id> initialize`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(c *CommandContext, store state.Store) error {
				return listIndexes(cmd, c, store)
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show one index",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(c *CommandContext, store state.Store) error {
					return showIndex(cmd, c, store, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "modules <id> [pattern]",
			Short: "List the modules of an index",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				pattern := ""
				if len(args) == 2 {
					pattern = args[1]
				}
				return withStore(cmd, func(c *CommandContext, store state.Store) error {
					return indexModules(cmd, c, store, args[0], pattern)
				})
			},
		},
		&cobra.Command{
			Use:   "methods <id> <name>",
			Short: "Find every definition of a method name",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(c *CommandContext, store state.Store) error {
					return indexMethods(cmd, c, store, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "libs <id>",
			Short: "List the required libraries of an index",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(c *CommandContext, store state.Store) error {
					return indexLibs(cmd, c, store, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete an index",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(c *CommandContext, store state.Store) error {
					if err := store.DeleteIndex(cmd.Context(), args[0]); err != nil {
						return err
					}
					c.Renderer.Success("Deleted index " + args[0])
					return nil
				})
			},
		},
	)

	return cmd
}

// withStore opens the index store, runs fn and closes the store.
func withStore(cmd *cobra.Command, fn func(*CommandContext, state.Store) error) error {
	cmdCtx := NewCommandContextWithoutDB(cmd)
	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(cmdCtx, store)
}

func listIndexes(cmd *cobra.Command, c *CommandContext, store state.Store) error {
	r := c.Renderer
	indexes, err := store.ListIndexes(cmd.Context())
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(nonNil(indexes))
	}
	if len(indexes) == 0 {
		r.Muted("No indexes saved. Run 'defsdb index' to create one.")
		return nil
	}

	r.Header(1, fmt.Sprintf("Indexes (%d)", len(indexes)))
	rows := make([][]string, len(indexes))
	for i, idx := range indexes {
		rows[i] = []string{
			idx.ID,
			idx.Source,
			idx.CreatedAt.Local().Format(time.DateTime),
			strconv.Itoa(idx.Stats.Modules + idx.Stats.Classes),
			strconv.Itoa(idx.Stats.MethodDefinitions),
		}
	}
	r.Table([]string{"ID", "Source", "Created", "Modules", "Methods"}, rows)
	return nil
}

func showIndex(cmd *cobra.Command, c *CommandContext, store state.Store, id string) error {
	r := c.Renderer
	idx, err := store.GetIndex(cmd.Context(), id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(idx)
	}
	r.Header(1, "Index "+idx.ID)
	r.KeyValue("Source", idx.Source)
	r.KeyValue("Created", idx.CreatedAt.Local().Format(time.DateTime))
	r.KeyValue("Classes", strconv.Itoa(idx.Stats.Classes))
	r.KeyValue("Modules", strconv.Itoa(idx.Stats.Modules))
	r.KeyValue("Top-level constants", strconv.Itoa(idx.Stats.TopLevel))
	r.KeyValue("Method bodies", strconv.Itoa(idx.Stats.MethodBodies))
	r.KeyValue("Method definitions", strconv.Itoa(idx.Stats.MethodDefinitions))
	r.KeyValue("Required libraries", strconv.Itoa(idx.Stats.RequiredLibs))
	return nil
}

func indexModules(cmd *cobra.Command, c *CommandContext, store state.Store, id, pattern string) error {
	r := c.Renderer
	if _, err := store.GetIndex(cmd.Context(), id); err != nil {
		return err
	}
	mods, err := store.FindModules(cmd.Context(), id, pattern)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(nonNil(mods))
	}
	if len(mods) == 0 {
		r.Muted("No modules match.")
		return nil
	}

	r.Header(1, fmt.Sprintf("Modules (%d)", len(mods)))
	rows := make([][]string, len(mods))
	for i, m := range mods {
		rows[i] = []string{string(m.ModuleID), m.Name, m.Kind, m.Superclass}
	}
	r.Table([]string{"ID", "Name", "Kind", "Superclass"}, rows)
	return nil
}

func indexMethods(cmd *cobra.Command, c *CommandContext, store state.Store, id, name string) error {
	r := c.Renderer
	if _, err := store.GetIndex(cmd.Context(), id); err != nil {
		return err
	}
	methods, err := store.FindMethods(cmd.Context(), id, name)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(nonNil(methods))
	}
	if len(methods) == 0 {
		r.Muted(fmt.Sprintf("No definitions of %s.", name))
		return nil
	}

	r.Header(1, fmt.Sprintf("Definitions of %s (%d)", name, len(methods)))
	rows := make([][]string, len(methods))
	for i, m := range methods {
		rows[i] = []string{m.Signature(), m.Visibility, m.Owner, m.Location}
	}
	r.Table([]string{"Method", "Visibility", "Owner", "Location"}, rows)
	return nil
}

func indexLibs(cmd *cobra.Command, c *CommandContext, store state.Store, id string) error {
	r := c.Renderer
	if _, err := store.GetIndex(cmd.Context(), id); err != nil {
		return err
	}
	libs, err := store.RequiredLibs(cmd.Context(), id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(nonNil(libs))
	}
	r.Header(1, fmt.Sprintf("Required libraries (%d)", len(libs)))
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatList(libs))
		return nil
	}
	for _, lib := range libs {
		r.Println("  " + lib)
	}
	return nil
}
