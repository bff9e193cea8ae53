// Package config loads defsdb configuration.
//
// Values are layered with koanf, lowest to highest precedence: built-in
// defaults, a defsdb.yaml found by searching upward from the working
// directory, DEFSDB_ environment variables, and explicitly set flags.
package config

import "time"

// Config holds all configuration options.
type Config struct {
	// Snapshot is the snapshot file to load.
	Snapshot  string       `koanf:"snapshot"`
	StatePath string       `koanf:"state_path"`
	Output    string       `koanf:"output"`
	Verbose   bool         `koanf:"verbose"`
	LogLevel  string       `koanf:"log_level"`
	Server    ServerConfig `koanf:"server"`
	Check     CheckConfig  `koanf:"check"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the config file that was read, if any.
	ConfigFile string `koanf:"-"`
}

// ServerConfig holds configuration for the HTTP query server.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// CheckConfig holds configuration for the check command.
type CheckConfig struct {
	// Snapshots are checked in addition to the main snapshot.
	Snapshots []string `koanf:"snapshots"`
	// Concurrency bounds how many snapshots load at once. Zero means one
	// per CPU.
	Concurrency int `koanf:"concurrency"`
}
