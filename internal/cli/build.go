package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mvp-joe/mvicfg/internal/config"
	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/pipeline"
	"github.com/mvp-joe/mvicfg/internal/storage"
	"github.com/spf13/cobra"
)

// DOTFileName is the rendering written next to the snapshot when output.dot is set.
const DOTFileName = "mvicfg.dot"

var (
	manifestFlag string
	dotFlag      bool
	noDBFlag     bool
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build [ir1 ir2 ... :: files-of-v1 ... :: files-of-v2 ...]",
	Short: "Build the multi-version graph from a series of program versions",
	Long: `Build reads one extracted-IR document per program version, diffs the source
files of consecutive versions and merges every version into one graph.

Versions are given either in a manifest file or positionally: all IR documents
first, then one group of source files per version, each group introduced by '::'.

Results are written to the output directory (default .mvicfg/):
  - mvicfg.json  JSON snapshot
  - mvicfg.db    SQLite database, one run per build
  - mvicfg.dot   Graphviz rendering (with --dot or output.dot)

Examples:
  # Build from a manifest
  mvicfg build --manifest versions.yml

  # Build two versions positionally
  mvicfg build v1.ir.yml v2.ir.yml :: v1/main.c :: v2/main.c`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "YAML manifest listing the versions")
	buildCmd.Flags().BoolVar(&dotFlag, "dot", false, "also write "+DOTFileName)
	buildCmd.Flags().BoolVar(&noDBFlag, "no-db", false, "skip writing the SQLite database")
}

func runBuild(cmd *cobra.Command, args []string) error {
	var m *pipeline.Manifest
	var err error
	switch {
	case manifestFlag != "" && len(args) > 0:
		return fmt.Errorf("%w: --manifest and positional arguments are mutually exclusive", errUsage)
	case manifestFlag != "":
		m, err = pipeline.LoadManifest(manifestFlag)
	default:
		m, err = pipeline.ParseArgs(args)
	}
	if err != nil {
		return err
	}

	result, err := executeBuild(cmd.Context(), cfg, m, buildOutputs{
		DOT:      dotFlag || cfg.Output.DOT,
		Database: !noDBFlag,
	}, NewCLIProgressReporter(quietFlag))
	if err != nil {
		return err
	}

	instructions, edges := result.Outcome.Graph.Counts()
	printf("Nodes: %d\nEdges: %d\n", instructions, edges)
	printf("Snapshot: %s\n", result.SnapshotPath)
	if result.RunID != "" {
		printf("Database: %s (run %s)\n", result.DBPath, result.RunID)
	}
	if result.DOTPath != "" {
		printf("DOT: %s\n", result.DOTPath)
	}
	return nil
}

// buildOutputs selects the optional outputs of a build.
type buildOutputs struct {
	DOT      bool
	Database bool
}

// buildResult records what a build produced.
type buildResult struct {
	Outcome      *pipeline.Outcome
	SnapshotPath string
	DBPath       string
	RunID        string
	DOTPath      string
}

// executeBuild runs the pipeline and writes its outputs to cfg.Output.Dir.
func executeBuild(ctx context.Context, cfg *config.Config, m *pipeline.Manifest, outputs buildOutputs, progress pipeline.ProgressReporter) (*buildResult, error) {
	if err := m.Check(); err != nil {
		return nil, err
	}

	outcome, err := pipeline.Run(ctx, m, pipeline.Options{
		Graph:    cfg.GraphSettings(),
		Diff:     cfg.FileOptions(),
		Merge:    cfg.MergeOptions(),
		Logger:   logger,
		Progress: progress,
	})
	if err != nil {
		return nil, err
	}
	result := &buildResult{Outcome: outcome}

	store, err := graph.NewStorage(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	if err := store.Save(outcome.Graph); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	result.SnapshotPath = store.Path()

	if outputs.Database {
		result.DBPath = filepath.Join(cfg.Output.Dir, DBFileName)
		w, err := storage.NewGraphWriter(result.DBPath)
		if err != nil {
			return nil, err
		}
		defer w.Close()
		if result.RunID, err = w.WriteGraph(outcome.Graph); err != nil {
			return nil, fmt.Errorf("failed to write database: %w", err)
		}
	}

	if outputs.DOT {
		result.DOTPath = filepath.Join(cfg.Output.Dir, DOTFileName)
		if err := writeDOTFile(result.DOTPath, outcome.Graph, 0); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// writeDOTFile renders the whole graph, or the projection of v when v is non-zero.
func writeDOTFile(path string, g *graph.Graph, v graph.Version) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if v == 0 {
		err = g.WriteDOT(f)
	} else {
		err = g.WriteVersionDOT(f, v)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
