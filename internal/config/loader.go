package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DirName is the project-level configuration and output directory.
const DirName = ".mvicfg"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (MVICFG_*)
// 2. Config file (.mvicfg/config.yml or .mvicfg/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(l.rootDir, DirName))

	// MVICFG_DIFF_WORKERS -> diff.workers
	v.SetEnvPrefix("MVICFG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"diff.deletes_first",
		"diff.max_coordinates",
		"diff.workers",
		"merge.heuristic_threshold",
		"merge.match_cache_size",
		"graph.external_file",
		"graph.external_function",
		"output.dir",
		"output.dot",
		"logging.level",
		"logging.format",
	} {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("diff.deletes_first", defaults.Diff.DeletesFirst)
	v.SetDefault("diff.max_coordinates", defaults.Diff.MaxCoordinates)
	v.SetDefault("diff.ignore", defaults.Diff.Ignore)
	v.SetDefault("diff.workers", defaults.Diff.Workers)

	v.SetDefault("merge.heuristic_threshold", defaults.Merge.HeuristicThreshold)
	v.SetDefault("merge.match_cache_size", defaults.Merge.MatchCacheSize)

	v.SetDefault("graph.whitelist", defaults.Graph.Whitelist)
	v.SetDefault("graph.external_file", defaults.Graph.ExternalFile)
	v.SetDefault("graph.external_function", defaults.Graph.ExternalFunction)

	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("output.dot", defaults.Output.DOT)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
