package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// configExistsIn returns the config file in dir, or "" if there is none.
func configExistsIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// FindProjectRoot searches upward from startDir for a directory holding a
// defsdb config file. Returns empty string if not found within
// maxUpwardSearchLevels.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// envKey maps an environment variable to a config key:
// DEFSDB_STATE_PATH -> state_path, DEFSDB_SERVER_ADDR -> server.addr.
// DEFSDB_DATABASE_NAME is the name snapshot producers use for their output
// file, so it maps to snapshot.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "database_name" {
		return "snapshot"
	}
	for _, section := range []string{"server", "check"} {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// flagKey maps a flag name to a config key. Only explicitly set flags are
// loaded so unset flags never mask env vars or the config file.
func flagKey(flags *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if !f.Changed {
			return "", nil
		}
		// Transform kebab-case to snake_case for config keys
		key := strings.ReplaceAll(f.Name, "-", "_")

		// The CLI uses --state for brevity, the config key is state_path
		if key == "state" {
			key = "state_path"
		}
		return key, posflag.FlagVal(flags, f)
	}
}

// Load loads configuration for the current working directory.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return LoadFrom(cwd, cfgFile, flags)
}

// LoadFrom loads configuration as if the working directory were workDir.
// An explicit cfgFile skips the upward search; its directory becomes the
// project root.
func LoadFrom(workDir, cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	projectRoot := workDir
	if cfgFile != "" {
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}
		projectRoot = filepath.Dir(cfgFile)
	} else if root := FindProjectRoot(workDir); root != "" {
		projectRoot = root
		cfgFile = configExistsIn(root)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Paths given as flags are relative to the working directory, not the
	// project root; remember them before they are merged.
	var flagSnapshot, flagState string
	if flags != nil {
		if f := flags.Lookup("snapshot"); f != nil && f.Changed {
			flagSnapshot = resolvePathRelativeTo(f.Value.String(), workDir)
		}
		if f := flags.Lookup("state"); f != nil && f.Changed {
			flagState = resolvePathRelativeTo(f.Value.String(), workDir)
		}

		// 4. Flags
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := unmarshal(k, &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ProjectRoot = projectRoot
	cfg.ConfigFile = cfgFile

	if flagSnapshot != "" {
		cfg.Snapshot = flagSnapshot
	} else {
		cfg.Snapshot = resolvePathRelativeTo(cfg.Snapshot, projectRoot)
	}
	if flagState != "" {
		cfg.StatePath = flagState
	} else if cfg.StatePath != ":memory:" {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}
	for i, p := range cfg.Check.Snapshots {
		cfg.Check.Snapshots[i] = resolvePathRelativeTo(p, projectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// unmarshal decodes k into cfg. Durations may be written as "5s" and
// lists as comma separated strings, which is how env vars carry them.
func unmarshal(k *koanf.Koanf, cfg *Config) error {
	return k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           cfg,
			WeaklyTypedInput: true,
		},
	})
}
