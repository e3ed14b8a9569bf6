// Package pipeline drives a multi-version run: build the first version, then
// diff, build and merge every following version strictly in order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/icfg"
	"github.com/mvp-joe/mvicfg/internal/merge"
)

// Options configures a run. Zero values select defaults.
type Options struct {
	Graph    graph.Config
	Diff     diff.FileOptions
	Merge    []merge.Option
	Logger   *slog.Logger
	Progress ProgressReporter
}

// Outcome is the product of a run.
type Outcome struct {
	Graph *graph.Graph
	Steps []*merge.Result
	Stats *Stats
}

// Run builds the multi-version graph for the manifest's versions, numbered
// from 1 in manifest order.
func Run(ctx context.Context, m *Manifest, opts Options) (*Outcome, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = &NoOpProgressReporter{}
	}
	if len(opts.Graph.Whitelist) == 0 && opts.Graph.ExternalFunction == "" {
		opts.Graph = graph.DefaultConfig()
	}

	start := time.Now()
	opts.Progress.OnRunStart(len(m.Versions))

	acc, err := buildVersion(m.Versions[0], 1, opts)
	if err != nil {
		return nil, err
	}

	merger, err := merge.New(append([]merge.Option{merge.WithLogger(opts.Logger)}, opts.Merge...)...)
	if err != nil {
		return nil, err
	}
	defer merger.Close()

	out := &Outcome{Graph: acc}
	for i := 1; i < len(m.Versions); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prev, next := m.Versions[i-1], m.Versions[i]
		v := graph.Version(i + 1)

		mappings, err := diff.MapFiles(ctx, prev.Files, next.Files, opts.Diff)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", v, err)
		}
		fresh, err := buildVersion(next, v, opts)
		if err != nil {
			return nil, err
		}

		res, err := merger.Merge(ctx, acc, fresh, mappings)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", v, err)
		}
		out.Steps = append(out.Steps, res)
		opts.Progress.OnVersionMerged(res)
	}

	instructions, edges := acc.Counts()
	out.Stats = &Stats{
		Versions:     len(m.Versions),
		Instructions: instructions,
		Edges:        edges,
		Duration:     time.Since(start),
	}
	for _, res := range out.Steps {
		out.Stats.Added += len(res.Added)
		out.Stats.Deleted += len(res.Deleted)
		out.Stats.Diagnostics += res.Diagnostics
	}
	opts.Logger.Info("multi-version graph built",
		"versions", out.Stats.Versions,
		"instructions", instructions,
		"edges", edges,
		"duration", out.Stats.Duration)
	opts.Progress.OnComplete(out.Stats)
	return out, nil
}

func buildVersion(in VersionInput, v graph.Version, opts Options) (*graph.Graph, error) {
	doc, err := icfg.Load(in.IR)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", v, err)
	}
	g, err := icfg.Build(doc, v, opts.Graph, icfg.WithLogger(opts.Logger))
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", v, err)
	}
	instructions, edges := g.Counts()
	opts.Progress.OnVersionBuilt(v, instructions, edges)
	return g, nil
}
