// Package config provides configuration loading for mvicfg.
//
// Configuration is read from .mvicfg/config.yml (or .yaml) in the project
// root. Priority, highest to lowest:
//  1. Environment variables (MVICFG_*, nested keys joined with underscores)
//  2. Config file
//  3. Built-in defaults
package config

import (
	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/merge"
)

// Config represents the complete mvicfg configuration.
type Config struct {
	Diff    DiffConfig    `yaml:"diff" mapstructure:"diff"`
	Merge   MergeConfig   `yaml:"merge" mapstructure:"merge"`
	Graph   GraphConfig   `yaml:"graph" mapstructure:"graph"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// DiffConfig controls line diffing between versions.
type DiffConfig struct {
	DeletesFirst   bool     `yaml:"deletes_first" mapstructure:"deletes_first"`     // emit deletes before adds within a change
	MaxCoordinates int      `yaml:"max_coordinates" mapstructure:"max_coordinates"` // search ceiling per file pair
	Ignore         []string `yaml:"ignore" mapstructure:"ignore"`                   // glob patterns of files not diffed
	Workers        int      `yaml:"workers" mapstructure:"workers"`                 // file pairs diffed in parallel
}

// MergeConfig controls line correspondence during merges.
type MergeConfig struct {
	HeuristicThreshold int `yaml:"heuristic_threshold" mapstructure:"heuristic_threshold"`
	MatchCacheSize     int `yaml:"match_cache_size" mapstructure:"match_cache_size"`
}

// GraphConfig controls single-version graph construction.
type GraphConfig struct {
	Whitelist        []string `yaml:"whitelist" mapstructure:"whitelist"` // callees that get no call edges
	ExternalFile     string   `yaml:"external_file" mapstructure:"external_file"`
	ExternalFunction string   `yaml:"external_function" mapstructure:"external_function"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"` // snapshot and database directory
	DOT bool   `yaml:"dot" mapstructure:"dot"` // also write mvicfg.dot after a build
}

// LoggingConfig controls diagnostics output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	g := graph.DefaultConfig()
	return &Config{
		Diff: DiffConfig{
			DeletesFirst:   false,
			MaxCoordinates: diff.DefaultMaxCoordinates,
			Ignore:         []string{},
			Workers:        4,
		},
		Merge: MergeConfig{
			HeuristicThreshold: merge.DefaultHeuristicThreshold,
			MatchCacheSize:     merge.DefaultCacheSize,
		},
		Graph: GraphConfig{
			Whitelist:        g.Whitelist,
			ExternalFile:     g.ExternalFile,
			ExternalFunction: g.ExternalFunction,
		},
		Output: OutputConfig{
			Dir: ".mvicfg",
			DOT: false,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// GraphSettings converts the graph section for the builder.
func (c *Config) GraphSettings() graph.Config {
	return graph.Config{
		Whitelist:        c.Graph.Whitelist,
		ExternalFile:     c.Graph.ExternalFile,
		ExternalFunction: c.Graph.ExternalFunction,
	}
}

// FileOptions converts the diff section for diff.MapFiles.
func (c *Config) FileOptions() diff.FileOptions {
	return diff.FileOptions{
		Ignore:  c.Diff.Ignore,
		Workers: c.Diff.Workers,
		Diff: []diff.Option{
			diff.WithDeletesFirst(c.Diff.DeletesFirst),
			diff.WithMaxCoordinates(c.Diff.MaxCoordinates),
		},
	}
}

// MergeOptions converts the merge section for merge.New.
func (c *Config) MergeOptions() []merge.Option {
	return []merge.Option{
		merge.WithHeuristicThreshold(c.Merge.HeuristicThreshold),
		merge.WithCacheSize(c.Merge.MatchCacheSize),
	}
}
