package commands

import (
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/spf13/cobra"
)

// LookupOptions holds options for the lookup command.
type LookupOptions struct {
	Current string
	Context []string
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand() *cobra.Command {
	opts := &LookupOptions{}

	cmd := &cobra.Command{
		Use:   "lookup <name>",
		Short: "Look up a constant the way the interpreter does",
		Long: `Look up a constant name or path. The first segment is searched in the
module context (innermost first), then in the ancestors of the current
module, then in Object and its ancestors. Later segments are looked up
in the ancestors of the module found so far.

Unlike resolve, a miss is an error.`,
		Example: `  # Find a constant visible from inside TestClass
  defsdb lookup MixinConst --current TestClass

  # With a module context
  defsdb lookup X --current A::B::C::D --context A,A::B`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Current, "current", "", "Module the lookup starts from (default Object)")
	cmd.Flags().StringSliceVar(&opts.Context, "context", nil, "Enclosing modules, outermost first")

	return cmd
}

func runLookup(cmd *cobra.Command, name string, opts *LookupOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	db := cmdCtx.DB

	var current *defsdb.Module
	if opts.Current != "" {
		if current, err = db.ResolveModule(opts.Current); err != nil {
			return err
		}
	}

	moduleContext := make([]*defsdb.Module, 0, len(opts.Context))
	for _, path := range opts.Context {
		m, err := db.ResolveModule(path)
		if err != nil {
			return err
		}
		moduleContext = append(moduleContext, m)
	}

	e, err := db.LookupConstantPath(defsdb.SplitPath(name), current, moduleContext)
	if err != nil {
		return err
	}
	return renderEntity(cmdCtx.Renderer, defsdb.Describe(e))
}
