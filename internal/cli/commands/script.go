package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/internal/starlark"
	"github.com/spf13/cobra"
)

// ScriptOptions holds options for the script command.
type ScriptOptions struct {
	Exprs       []string
	Defines     []string
	Concurrency int
}

// ExprResult is the JSON output for one evaluated expression.
type ExprResult struct {
	Expr  string `json:"expr"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewScriptCommand creates the script command.
func NewScriptCommand() *cobra.Command {
	opts := &ScriptOptions{}

	cmd := &cobra.Command{
		Use:   "script [file]",
		Short: "Run Starlark against the snapshot",
		Long: `Run a Starlark script, or evaluate expressions, with the snapshot bound to
the predeclared "defs" module:

  defs.resolve(path, context=[])
  defs.lookup(name, current=None, context=[])
  defs.find_method(class_path, instance=None, singleton=None)
  defs.modules(pattern="")
  defs.toplevel()
  defs.libs()
  defs.stats()

Values given with -D are available in the "vars" dict.`,
		Example: `  # Evaluate an expression
  defsdb script -e 'defs.resolve("A::B::C").ancestors'

  # Evaluate several expressions concurrently
  defsdb script -e 'defs.stats()' -e 'len(defs.modules("Net::*"))'

  # Run a script with a variable
  defsdb script report.star -D target=TestClass`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Exprs, "expr", "e", nil, "Expression to evaluate (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Defines, "define", "D", nil, "Script variable as key=value (repeatable)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "Expressions evaluated at once")

	return cmd
}

func runScript(cmd *cobra.Command, args []string, opts *ScriptOptions) error {
	if len(args) == 0 && len(opts.Exprs) == 0 {
		return fmt.Errorf("nothing to run: pass a script file or --expr")
	}

	vars, err := parseDefines(opts.Defines)
	if err != nil {
		return err
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	rt, err := starlark.NewRuntime(cmdCtx.DB,
		starlark.WithOutput(r.Writer()),
		starlark.WithLogger(cmdCtx.Logger),
		starlark.WithVars(vars),
	)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}

	if len(args) == 1 {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}
		if _, err := rt.Exec(args[0], src); err != nil {
			return err
		}
	}

	if len(opts.Exprs) == 0 {
		return nil
	}
	return evalExprs(r, rt, opts)
}

func evalExprs(r *output.Renderer, rt *starlark.Runtime, opts *ScriptOptions) error {
	tasks := make([]starlark.EvalTask, len(opts.Exprs))
	for i, expr := range opts.Exprs {
		tasks[i] = starlark.EvalTask{Name: fmt.Sprintf("-e[%d]", i), Expr: expr}
	}
	results := starlark.NewParallelExecutor(rt, opts.Concurrency).Execute(tasks)

	var failed int
	out := make([]ExprResult, len(results))
	for i, res := range results {
		out[i] = ExprResult{Expr: tasks[i].Expr}
		if res.Error != nil {
			failed++
			out[i].Error = res.Error.Error()
			continue
		}
		v, err := starlark.ToGo(res.Value)
		if err != nil {
			failed++
			out[i].Error = err.Error()
			continue
		}
		out[i].Value = v
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
	} else {
		for i, res := range out {
			if res.Error != "" {
				r.Error(res.Error)
				continue
			}
			r.Println(results[i].Value.String())
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d expressions failed", failed, len(out))
	}
	return nil
}

// parseDefines turns key=value pairs into script variables.
func parseDefines(defines []string) (map[string]any, error) {
	vars := make(map[string]any, len(defines))
	for _, d := range defines {
		key, value, ok := strings.Cut(d, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid define %q: expected key=value", d)
		}
		vars[key] = value
	}
	return vars, nil
}
