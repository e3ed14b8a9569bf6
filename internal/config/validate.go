package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidWorkers indicates a non-positive diff fan-out
	ErrInvalidWorkers = errors.New("invalid diff workers")

	// ErrInvalidLimit indicates a non-positive coordinate ceiling
	ErrInvalidLimit = errors.New("invalid coordinate limit")

	// ErrInvalidPattern indicates an ignore glob that does not compile
	ErrInvalidPattern = errors.New("invalid ignore pattern")

	// ErrInvalidThreshold indicates a negative heuristic threshold
	ErrInvalidThreshold = errors.New("invalid heuristic threshold")

	// ErrInvalidCacheSize indicates a non-positive match cache size
	ErrInvalidCacheSize = errors.New("invalid match cache size")

	// ErrEmptyExternal indicates a missing external node name
	ErrEmptyExternal = errors.New("empty external node name")

	// ErrEmptyOutputDir indicates a missing output directory
	ErrEmptyOutputDir = errors.New("empty output directory")

	// ErrInvalidLogLevel indicates an unknown log level
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat indicates an unknown log format
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateDiff(&cfg.Diff); err != nil {
		errs = append(errs, err)
	}
	if err := validateMerge(&cfg.Merge); err != nil {
		errs = append(errs, err)
	}
	if err := validateGraph(&cfg.Graph); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		errs = append(errs, fmt.Errorf("%w: output.dir is required", ErrEmptyOutputDir))
	}
	if err := validateLogging(&cfg.Logging); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func validateDiff(cfg *DiffConfig) error {
	var errs []error

	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidWorkers, cfg.Workers))
	}
	if cfg.MaxCoordinates <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_coordinates must be positive, got %d", ErrInvalidLimit, cfg.MaxCoordinates))
	}
	for _, p := range cfg.Ignore {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err))
		}
	}

	return joinErrors(errs)
}

func validateMerge(cfg *MergeConfig) error {
	var errs []error

	if cfg.HeuristicThreshold < 0 {
		errs = append(errs, fmt.Errorf("%w: heuristic_threshold cannot be negative, got %d", ErrInvalidThreshold, cfg.HeuristicThreshold))
	}
	if cfg.MatchCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: match_cache_size must be positive, got %d", ErrInvalidCacheSize, cfg.MatchCacheSize))
	}

	return joinErrors(errs)
}

func validateGraph(cfg *GraphConfig) error {
	var errs []error

	// An empty whitelist is allowed: every callee then gets call edges
	if strings.TrimSpace(cfg.ExternalFile) == "" {
		errs = append(errs, fmt.Errorf("%w: external_file is required", ErrEmptyExternal))
	}
	if strings.TrimSpace(cfg.ExternalFunction) == "" {
		errs = append(errs, fmt.Errorf("%w: external_function is required", ErrEmptyExternal))
	}

	return joinErrors(errs)
}

func validateLogging(cfg *LoggingConfig) error {
	var errs []error

	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: must be debug, info, warn or error, got '%s'", ErrInvalidLogLevel, cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: must be 'text' or 'json', got '%s'", ErrInvalidLogFormat, cfg.Format))
	}

	return joinErrors(errs)
}

// validationError lists several problems while keeping each one matchable with errors.Is.
type validationError struct {
	errs []error
}

func (e *validationError) Error() string {
	var msgs []string
	for _, err := range e.errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func (e *validationError) Unwrap() []error {
	return e.errs
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &validationError{errs: errs}
	}
}
