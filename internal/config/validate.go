package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// OutputModes lists the accepted values of output.
var OutputModes = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Snapshot == "" {
		return fmt.Errorf("snapshot is required")
	}
	if c.Output != "" && !slices.Contains(OutputModes, c.Output) {
		return fmt.Errorf("invalid output %q: must be one of %s", c.Output, strings.Join(OutputModes, ", "))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Check.Concurrency < 0 {
		return fmt.Errorf("check.concurrency must not be negative")
	}
	return nil
}

// ParseLevel parses a log_level value. An empty string means warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", s)
}

// Level returns the effective log level. Verbose forces debug.
func (c *Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return level
}
