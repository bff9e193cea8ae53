package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ResolveOptions holds options for the resolve command.
type ResolveOptions struct {
	Context []string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	opts := &ResolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Resolve a constant path",
		Long: `Resolve a constant path the way a reference in source code would be
resolved. The first segment is searched through the lexical context,
innermost scope first, then the top level. A leading "::" anchors the path
at the top level and ignores the context.

Ancestors are not consulted; use lookup for that.`,
		Example: `  # Resolve a qualified name
  defsdb resolve A::B::C

  # Resolve X as seen from inside "module A; module B"
  defsdb resolve X --context A,B`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Context, "context", nil, "Lexical context, outermost first")

	return cmd
}

func runResolve(cmd *cobra.Command, path string, opts *ResolveOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	e, found, err := cmdCtx.DB.Resolve(path, opts.Context)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s not found", path)
	}
	return renderEntity(cmdCtx.Renderer, defsdb.Describe(e))
}

// renderEntity writes an entity view in the renderer's mode.
func renderEntity(r *output.Renderer, v defsdb.EntityView) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(v)
	}

	r.Header(1, fmt.Sprintf("%s %s", cases.Title(language.English).String(v.Kind), v.Name))
	if v.ID != "" {
		r.KeyValue("ID", string(v.ID))
	}
	if v.Superclass != "" {
		r.KeyValue("Superclass", v.Superclass)
	}
	if v.Class != "" {
		r.KeyValue("Class", v.Class)
	}
	if len(v.IncludedModules) > 0 {
		r.KeyValue("Includes", strings.Join(v.IncludedModules, ", "))
	}
	if len(v.Ancestors) > 0 {
		r.KeyValue("Ancestors", strings.Join(v.Ancestors, " < "))
	}
	if len(v.Constants) > 0 {
		r.KeyValue("Constants", strings.Join(v.Constants, ", "))
	}

	if len(v.Methods) > 0 {
		r.Println("")
		r.Header(2, fmt.Sprintf("Methods (%d)", len(v.Methods)))
		renderMethodTable(r, v.Methods)
	}
	return nil
}
