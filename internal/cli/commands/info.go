package commands

import (
	"strconv"

	"github.com/leapstack-labs/defsdb/internal/cli/output"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/spf13/cobra"
)

// InfoOutput is the JSON output of the info command.
type InfoOutput struct {
	Snapshot     string       `json:"snapshot"`
	Stats        defsdb.Stats `json:"stats"`
	RequiredLibs []string     `json:"required_libs"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Summarize the snapshot",
		Long: `Load the snapshot and print entity counts and the libraries the program
had required when the snapshot was taken.`,
		Example: `  # Summarize the default snapshot
  defsdb info

  # Summarize another snapshot as JSON
  defsdb info -s other.json -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInfo(cmd)
		},
	}
	return cmd
}

func runInfo(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	out := InfoOutput{
		Snapshot:     cmdCtx.Cfg.Snapshot,
		Stats:        cmdCtx.DB.Stats(),
		RequiredLibs: nonNil(cmdCtx.DB.RequiredLibs()),
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Snapshot")
	r.KeyValue("File", out.Snapshot)
	r.KeyValue("Classes", strconv.Itoa(out.Stats.Classes))
	r.KeyValue("Modules", strconv.Itoa(out.Stats.Modules))
	r.KeyValue("Top-level constants", strconv.Itoa(out.Stats.TopLevel))
	r.KeyValue("Method bodies", strconv.Itoa(out.Stats.MethodBodies))
	r.KeyValue("Method definitions", strconv.Itoa(out.Stats.MethodDefinitions))

	if len(out.RequiredLibs) > 0 {
		r.Println("")
		r.Header(2, "Required libraries")
		if r.EffectiveMode() == output.ModeMarkdown {
			r.Println(output.FormatList(out.RequiredLibs))
		} else {
			for _, lib := range out.RequiredLibs {
				r.Println("  " + lib)
			}
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
