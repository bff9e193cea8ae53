package config

import "time"

// Default configuration values.
const (
	DefaultSnapshot        = "defs_database.json"
	DefaultStateFile       = ".defsdb/index.db"
	DefaultOutput          = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogLevel        = "warn"
	DefaultServerAddr      = "127.0.0.1:8766"
	DefaultReadTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Config file names searched for, in order.
const (
	ConfigFileName    = "defsdb.yaml"
	ConfigFileNameAlt = "defsdb.yml"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "DEFSDB_"

func defaults() map[string]any {
	return map[string]any{
		"snapshot":                DefaultSnapshot,
		"state_path":              DefaultStateFile,
		"output":                  DefaultOutput,
		"verbose":                 false,
		"log_level":               DefaultLogLevel,
		"server.addr":             DefaultServerAddr,
		"server.read_timeout":     DefaultReadTimeout.String(),
		"server.shutdown_timeout": DefaultShutdownTimeout.String(),
		"check.concurrency":       0,
	}
}

// Default returns a Config holding only the built-in defaults.
func Default() *Config {
	return &Config{
		Snapshot:  DefaultSnapshot,
		StatePath: DefaultStateFile,
		Output:    DefaultOutput,
		LogLevel:  DefaultLogLevel,
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ReadTimeout:     DefaultReadTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}
}
