// Package output renders command results for terminals, scripts and
// machines.
//
// Every command supports three effective modes: styled text for a
// terminal, Markdown when output is piped (agent and script friendly) and
// JSON. Auto picks text or Markdown from whether stdout is a TTY.
package output

import "strings"

// OutputMode selects how results are rendered.
type OutputMode string //nolint:revive // output.OutputMode reads fine at call sites

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode parses an output flag value. Unknown and empty values mean auto.
func Mode(s string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ModeText
	case "markdown", "md":
		return ModeMarkdown
	case "json":
		return ModeJSON
	default:
		return ModeAuto
	}
}
