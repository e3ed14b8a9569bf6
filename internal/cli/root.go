package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mvp-joe/mvicfg/internal/config"
	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/icfg"
	"github.com/mvp-joe/mvicfg/internal/pipeline"
	"github.com/mvp-joe/mvicfg/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitBadInput      = 2
	ExitResourceLimit = 3
)

// DBFileName is the graph database inside the output directory.
const DBFileName = "mvicfg.db"

// errUsage marks command-line mistakes.
var errUsage = errors.New("usage error")

var (
	rootDir   string
	quietFlag bool

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mvicfg",
	Short: "Multi-version interprocedural control flow graphs",
	Long: `mvicfg builds one control flow graph covering several versions of a program.

Each version is extracted to an IR document. Versions are diffed line by line
and merged in order, so every line records its number in each version and every
edge records the versions it exists in.

Configuration is read from .mvicfg/config.yml and MVICFG_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "dir", "", "project root holding .mvicfg/ (default is the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "disable progress bars and non-error output")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")

	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
}

// loadConfig loads the project configuration and sets up logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	dir := rootDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}

	loaded, err := config.LoadConfigFromDir(dir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if level := viper.GetString("logging.level"); level != "" {
		loaded.Logging.Level = level
	}
	if format := viper.GetString("logging.format"); format != "" {
		loaded.Logging.Format = format
	}
	if err := config.Validate(loaded); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if !filepath.IsAbs(loaded.Output.Dir) {
		loaded.Output.Dir = filepath.Join(dir, loaded.Output.Dir)
	}

	cfg = loaded
	logger = cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return nil
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, diff.ErrCoordinateLimit):
		return ExitResourceLimit
	case errors.Is(err, errUsage),
		errors.Is(err, icfg.ErrInvalidInput),
		errors.Is(err, pipeline.ErrNoVersions),
		errors.Is(err, pipeline.ErrInputMismatch),
		errors.Is(err, diff.ErrDuplicateFile),
		errors.Is(err, storage.ErrNoGraph),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, config.ErrInvalidWorkers),
		errors.Is(err, config.ErrInvalidLimit),
		errors.Is(err, config.ErrInvalidPattern),
		errors.Is(err, config.ErrInvalidThreshold),
		errors.Is(err, config.ErrInvalidCacheSize),
		errors.Is(err, config.ErrEmptyExternal),
		errors.Is(err, config.ErrEmptyOutputDir),
		errors.Is(err, config.ErrInvalidLogLevel),
		errors.Is(err, config.ErrInvalidLogFormat):
		return ExitBadInput
	default:
		return ExitFailure
	}
}

// usageArgs wraps a cobra argument validator so its errors map to ExitBadInput.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return nil
	}
}

// dbPath returns the graph database path in the configured output directory.
func dbPath() string {
	return filepath.Join(cfg.Output.Dir, DBFileName)
}

// printf writes to stdout unless --quiet is set.
func printf(format string, args ...any) {
	if !quietFlag {
		fmt.Printf(format, args...)
	}
}
