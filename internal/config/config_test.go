package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/merge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Config System:
// - Default() returns valid configuration with all expected defaults
// - Load uses defaults when no config file exists
// - Load reads .mvicfg/config.yml and .mvicfg/config.yaml
// - A partial config file merges with defaults
// - Environment variables override config file values and defaults
// - Load returns errors for malformed YAML and invalid values
// - Validate rejects each invalid field with its sentinel error
// - Validate reports several invalid fields at once, each matchable
// - Conversions feed the builder, differ and merger
// - NewLogger honours level and format

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, DirName)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	return root
}

func TestDefault_ReturnsValidConfiguration(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NotNil(t, cfg)

	assert.False(t, cfg.Diff.DeletesFirst)
	assert.Equal(t, diff.DefaultMaxCoordinates, cfg.Diff.MaxCoordinates)
	assert.Equal(t, 4, cfg.Diff.Workers)
	assert.Empty(t, cfg.Diff.Ignore)

	assert.Equal(t, 2, cfg.Merge.HeuristicThreshold)
	assert.Equal(t, merge.DefaultCacheSize, cfg.Merge.MatchCacheSize)

	assert.Equal(t, graph.DefaultConfig().Whitelist, cfg.Graph.Whitelist)
	assert.Equal(t, "External_Node_File", cfg.Graph.ExternalFile)
	assert.Equal(t, "External_Node_Func", cfg.Graph.ExternalFunction)

	assert.Equal(t, ".mvicfg", cfg.Output.Dir)
	assert.Equal(t, "warn", cfg.Logging.Level)

	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig_UsesDefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)

	expected := Default()
	assert.Equal(t, expected.Diff.Workers, cfg.Diff.Workers)
	assert.Equal(t, expected.Diff.MaxCoordinates, cfg.Diff.MaxCoordinates)
	assert.Empty(t, cfg.Diff.Ignore)
	assert.Equal(t, expected.Merge, cfg.Merge)
	assert.Equal(t, expected.Graph, cfg.Graph)
	assert.Equal(t, expected.Output, cfg.Output)
	assert.Equal(t, expected.Logging, cfg.Logging)
}

func TestLoadConfig_LoadsFromConfigYml(t *testing.T) {
	t.Parallel()

	root := writeConfig(t, "config.yml", `
diff:
  deletes_first: true
  max_coordinates: 5000
  ignore: ["**/gen/**", "*.h"]
  workers: 8
merge:
  heuristic_threshold: 4
  match_cache_size: 100
graph:
  whitelist: [printf]
  external_file: ext.c
  external_function: ext
output:
  dir: out
  dot: true
logging:
  level: debug
  format: json
`)

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.True(t, cfg.Diff.DeletesFirst)
	assert.Equal(t, 5000, cfg.Diff.MaxCoordinates)
	assert.Equal(t, []string{"**/gen/**", "*.h"}, cfg.Diff.Ignore)
	assert.Equal(t, 8, cfg.Diff.Workers)
	assert.Equal(t, 4, cfg.Merge.HeuristicThreshold)
	assert.Equal(t, 100, cfg.Merge.MatchCacheSize)
	assert.Equal(t, []string{"printf"}, cfg.Graph.Whitelist)
	assert.Equal(t, "ext", cfg.Graph.ExternalFunction)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.True(t, cfg.Output.DOT)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_LoadsFromConfigYaml(t *testing.T) {
	t.Parallel()

	root := writeConfig(t, "config.yaml", "merge:\n  heuristic_threshold: 7\n")
	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Merge.HeuristicThreshold)
}

func TestLoadConfig_MergesConfigWithDefaults(t *testing.T) {
	t.Parallel()

	root := writeConfig(t, "config.yml", "diff:\n  workers: 2\n")
	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Diff.Workers)
	assert.Equal(t, diff.DefaultMaxCoordinates, cfg.Diff.MaxCoordinates)
	assert.Equal(t, Default().Graph, cfg.Graph)
}

func TestLoadConfig_EnvironmentVariablesOverrideConfigFile(t *testing.T) {
	// Note: Cannot use t.Parallel() with t.Setenv()
	root := writeConfig(t, "config.yml", "diff:\n  workers: 2\nlogging:\n  level: info\n")

	t.Setenv("MVICFG_DIFF_WORKERS", "16")
	t.Setenv("MVICFG_MERGE_HEURISTIC_THRESHOLD", "5")

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Diff.Workers)
	assert.Equal(t, 5, cfg.Merge.HeuristicThreshold)
	// not overridden
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_EnvironmentVariablesOverrideDefaults(t *testing.T) {
	// Note: Cannot use t.Parallel() with t.Setenv()
	t.Setenv("MVICFG_OUTPUT_DIR", "elsewhere")
	t.Setenv("MVICFG_DIFF_DELETES_FIRST", "true")

	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, "elsewhere", cfg.Output.Dir)
	assert.True(t, cfg.Diff.DeletesFirst)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	malformed := writeConfig(t, "config.yml", "diff: [workers: :\n")
	_, err := NewLoader(malformed).Load()
	assert.Error(t, err)

	invalid := writeConfig(t, "config.yml", "diff:\n  workers: 0\n")
	_, err = NewLoader(invalid).Load()
	assert.ErrorIs(t, err, ErrInvalidWorkers)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"workers", func(c *Config) { c.Diff.Workers = -1 }, ErrInvalidWorkers},
		{"coordinates", func(c *Config) { c.Diff.MaxCoordinates = 0 }, ErrInvalidLimit},
		{"pattern", func(c *Config) { c.Diff.Ignore = []string{"[oops"} }, ErrInvalidPattern},
		{"threshold", func(c *Config) { c.Merge.HeuristicThreshold = -1 }, ErrInvalidThreshold},
		{"cache", func(c *Config) { c.Merge.MatchCacheSize = 0 }, ErrInvalidCacheSize},
		{"external file", func(c *Config) { c.Graph.ExternalFile = " " }, ErrEmptyExternal},
		{"external function", func(c *Config) { c.Graph.ExternalFunction = "" }, ErrEmptyExternal},
		{"output", func(c *Config) { c.Output.Dir = "" }, ErrEmptyOutputDir},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, ErrInvalidLogLevel},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.wantErr)
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Diff.Workers = 0
	cfg.Merge.MatchCacheSize = -5
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.ErrorIs(t, err, ErrInvalidWorkers)
	assert.ErrorIs(t, err, ErrInvalidCacheSize)
	assert.ErrorIs(t, err, ErrInvalidLogFormat)
}

func TestConversions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Diff.Ignore = []string{"*.h"}
	cfg.Graph.Whitelist = []string{"puts"}

	g := cfg.GraphSettings()
	assert.True(t, g.IsWhitelisted("puts"))
	assert.False(t, g.IsWhitelisted("printf"))

	fo := cfg.FileOptions()
	assert.Equal(t, []string{"*.h"}, fo.Ignore)
	assert.Equal(t, 4, fo.Workers)
	assert.Len(t, fo.Diff, 2)

	assert.Len(t, cfg.MergeOptions(), 2)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "line", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"line":3`)

	buf.Reset()
	LoggingConfig{Level: "debug", Format: "text"}.NewLogger(&buf).Debug("detail")
	assert.Contains(t, buf.String(), "msg=detail")
}
