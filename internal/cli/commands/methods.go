package commands

import (
	"fmt"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/spf13/cobra"
)

// MethodsOptions holds options for the methods command.
type MethodsOptions struct {
	Instance  bool
	Singleton bool
}

// NewMethodsCommand creates the methods command.
func NewMethodsCommand() *cobra.Command {
	opts := &MethodsOptions{}

	cmd := &cobra.Command{
		Use:   "methods <module>",
		Short: "List the methods a module defines",
		Long: `List the method definitions recorded on a module or class, in the order
the snapshot lists them. Inherited methods are not included.`,
		Example: `  # List methods defined on TestClass
  defsdb methods TestClass

  # Only singleton methods
  defsdb methods TestClass --singleton`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMethods(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Instance, "instance", false, "Only instance methods")
	cmd.Flags().BoolVar(&opts.Singleton, "singleton", false, "Only singleton methods")
	cmd.MarkFlagsMutuallyExclusive("instance", "singleton")

	return cmd
}

func runMethods(cmd *cobra.Command, path string, opts *MethodsOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	mod, err := cmdCtx.DB.ResolveModule(path)
	if err != nil {
		return err
	}

	var defs []*defsdb.MethodDefinition
	switch {
	case opts.Instance:
		defs = mod.DefinedInstanceMethods()
	case opts.Singleton:
		defs = mod.DefinedSingletonMethods()
	default:
		defs = mod.DefinedMethods()
	}
	views := nonNil(defsdb.DescribeMethods(defs))

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(views)
	}

	if len(views) == 0 {
		r.Muted(fmt.Sprintf("%s defines no matching methods.", mod.Name()))
		return nil
	}

	r.Header(1, fmt.Sprintf("Methods of %s (%d)", mod.Name(), len(views)))
	renderMethodTable(r, views)
	return nil
}

// renderMethodTable writes method views as a table.
func renderMethodTable(r *output.Renderer, views []defsdb.MethodView) {
	rows := make([][]string, len(views))
	for i, v := range views {
		rows[i] = []string{v.Name, methodKind(v), v.Visibility, v.Owner, v.Location}
	}
	r.Table([]string{"Name", "Kind", "Visibility", "Owner", "Location"}, rows)
}

func methodKind(v defsdb.MethodView) string {
	if v.Singleton {
		return "singleton"
	}
	return "instance"
}
