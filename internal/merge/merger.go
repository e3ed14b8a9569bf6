// Package merge folds single-version graphs into an accumulated multi-version graph.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maypok86/otter"
	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/graph"
)

// ErrVersionOrder is returned when the fresh graph is not newer than the accumulated one.
var ErrVersionOrder = errors.New("fresh graph must be newer than accumulated graph")

const (
	// DefaultHeuristicThreshold is the number of unexplained opcode tokens above
	// which a heuristic line match is reported as low confidence.
	DefaultHeuristicThreshold = 2

	// DefaultCacheSize bounds the opcode-string cache.
	DefaultCacheSize = 10_000
)

// Merger runs merge steps. A Merger may be reused across steps but not concurrently.
type Merger struct {
	logger    *slog.Logger
	threshold int
	cacheSize int
	opcodes   otter.Cache[lineKey, string]
}

// lineKey identifies a line across the two graphs of a step.
type lineKey struct {
	g    *graph.Graph
	line graph.ID
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger for merge diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithHeuristicThreshold sets the low-confidence threshold for heuristic matches.
func WithHeuristicThreshold(n int) Option {
	return func(m *Merger) {
		m.threshold = n
	}
}

// WithCacheSize sets the capacity of the opcode-string cache.
func WithCacheSize(n int) Option {
	return func(m *Merger) {
		if n > 0 {
			m.cacheSize = n
		}
	}
}

// New creates a Merger.
func New(opts ...Option) (*Merger, error) {
	m := &Merger{
		logger:    slog.Default(),
		threshold: DefaultHeuristicThreshold,
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(m)
	}

	cache, err := otter.MustBuilder[lineKey, string](m.cacheSize).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create opcode cache: %w", err)
	}
	m.opcodes = cache
	return m, nil
}

// Close releases the cache.
func (m *Merger) Close() {
	m.opcodes.Close()
}

// LinePair is a line of the accumulated graph and its counterpart in the fresh graph.
type LinePair struct {
	Accumulated *graph.Line
	Fresh       *graph.Line
}

// Result describes one merge step.
type Result struct {
	Version graph.Version

	// Added holds the accumulated-graph lines created in this step.
	Added []*graph.Line

	// Deleted holds the accumulated-graph lines that no longer exist in Version.
	Deleted []*graph.Line

	// Matched holds unchanged lines paired with their fresh counterparts.
	Matched []LinePair

	// Diagnostics counts the non-fatal lookup misses and low-confidence matches.
	Diagnostics int
}

// Merge folds fresh into acc and advances acc to fresh's version. acc is
// modified in place; fresh is only read. One mapping is expected per file
// shared by or unique to either version.
//
// The passes run in a fixed order: add, delete and match per file, then edge
// import for every added line, then version stamping of everything untouched.
func (m *Merger) Merge(ctx context.Context, acc, fresh *graph.Graph, mappings []*diff.Mapping) (*Result, error) {
	from, to := acc.Version(), fresh.Version()
	if to <= from {
		return nil, fmt.Errorf("%w: %d -> %d", ErrVersionOrder, from, to)
	}

	s := &step{
		Merger:   m,
		acc:      acc,
		fresh:    fresh,
		from:     from,
		to:       to,
		mappings: make(map[string]*diff.Mapping, len(mappings)),
		added:    make(map[graph.ID]bool),
		deleted:  make(map[graph.ID]bool),
		result:   &Result{Version: to},
	}
	for _, mp := range mappings {
		s.mappings[mp.File] = mp
	}
	// Keys hold graph pointers; drop entries of earlier steps.
	m.opcodes.Clear()

	for _, mp := range mappings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.addPass(mp)
		s.deletePass(mp)
		s.matchPass(mp)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.importEdges()
	s.stampVersion()

	if err := acc.SetVersion(to); err != nil {
		return nil, err
	}

	m.logger.Debug("merged version",
		"version", to,
		"added", len(s.result.Added),
		"deleted", len(s.result.Deleted),
		"matched", len(s.result.Matched),
		"diagnostics", s.result.Diagnostics)
	return s.result, nil
}

// step is the state of one merge from version from to version to.
type step struct {
	*Merger

	acc, fresh *graph.Graph
	from, to   graph.Version
	mappings   map[string]*diff.Mapping

	// added and deleted hold accumulated-graph line IDs touched by this step.
	added   map[graph.ID]bool
	deleted map[graph.ID]bool

	// importLines are the accumulated lines whose fresh edges get imported.
	importLines []*graph.Line

	result *Result
}

func (s *step) warn(msg string, args ...any) {
	s.result.Diagnostics++
	s.logger.Warn(msg, append(args, "version", s.to)...)
}

// mappingFor returns the mapping for a source file, or nil.
func (s *step) mappingFor(file string) *diff.Mapping {
	for name, mp := range s.mappings {
		if graph.SameFile(name, file) {
			return mp
		}
	}
	return nil
}
