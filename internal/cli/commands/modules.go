package commands

import (
	"fmt"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/spf13/cobra"
)

// ModuleRow is one line of the modules listing.
type ModuleRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Superclass string `json:"superclass,omitempty"`
}

// NewModulesCommand creates the modules command.
func NewModulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules [pattern]",
		Short: "List modules and classes",
		Long: `List the modules and classes of the snapshot in load order.

An optional glob pattern filters by qualified name. "*" matches across
"::" so "Net::*" lists every module nested under Net.`,
		Example: `  # List every module
  defsdb modules

  # List modules nested under Net
  defsdb modules 'Net::*'

  # List classes as JSON
  defsdb modules -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return runModules(cmd, pattern)
		},
	}
	return cmd
}

func runModules(cmd *cobra.Command, pattern string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	mods, err := cmdCtx.DB.FindModules(pattern)
	if err != nil {
		return err
	}

	rows := make([]ModuleRow, len(mods))
	for i, m := range mods {
		rows[i] = moduleRow(m)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(rows)
	}

	if len(rows) == 0 {
		r.Muted("No modules match.")
		return nil
	}

	r.Header(1, fmt.Sprintf("Modules (%d)", len(rows)))
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = []string{row.ID, row.Name, row.Kind, row.Superclass}
	}
	r.Table([]string{"ID", "Name", "Kind", "Superclass"}, cells)
	return nil
}

func moduleRow(m *defsdb.Module) ModuleRow {
	row := ModuleRow{
		ID:   string(m.ID()),
		Name: m.Name(),
		Kind: m.Kind().String(),
	}
	if super, ok := m.Superclass(); ok {
		row.Superclass = super.Name()
	}
	return row
}
