package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/spf13/cobra"
)

// NewMethodCommand creates the method command.
func NewMethodCommand() *cobra.Command {
	var q defsdb.MethodQuery

	cmd := &cobra.Command{
		Use:   "method <class>",
		Short: "Find a method definition on a class",
		Long: `Find the definition of an instance or singleton method recorded directly
on a class or module. Exactly one of --instance and --singleton is required.`,
		Example: `  # Instance method
  defsdb method TestClass --instance test_method

  # Singleton method
  defsdb method TestClass --singleton test_singleton_method`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMethod(cmd, args[0], q)
		},
	}

	cmd.Flags().StringVar(&q.Instance, "instance", "", "Instance method name")
	cmd.Flags().StringVar(&q.Singleton, "singleton", "", "Singleton method name")

	return cmd
}

func runMethod(cmd *cobra.Command, classPath string, q defsdb.MethodQuery) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	def, found, err := cmdCtx.DB.FindMethodDefinition(classPath, q)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("method %s not found", methodSignature(classPath, q))
	}
	v := defsdb.DescribeMethod(def)

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(v)
	}

	r.Header(1, methodSignature(classPath, q))
	r.KeyValue("Kind", methodKind(v))
	r.KeyValue("Visibility", v.Visibility)
	if v.Owner != "" {
		r.KeyValue("Owner", v.Owner)
	}
	if v.Location != "" {
		r.KeyValue("Location", v.Location)
	}
	params := make([]string, len(v.Parameters))
	for i, p := range v.Parameters {
		params[i] = p.String()
	}
	r.KeyValue("Parameters", "("+strings.Join(params, ", ")+")")
	return nil
}

func methodSignature(classPath string, q defsdb.MethodQuery) string {
	if q.Singleton != "" {
		return classPath + "." + q.Singleton
	}
	return classPath + "#" + q.Instance
}
