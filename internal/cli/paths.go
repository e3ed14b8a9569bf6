package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mvp-joe/mvicfg/internal/config"
	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/mcp"
	"github.com/mvp-joe/mvicfg/internal/merge"
	"github.com/mvp-joe/mvicfg/internal/storage"
	"github.com/spf13/cobra"
)

var (
	fromFlag     int
	toFlag       int
	runFlag      string
	snapshotFlag bool
)

// pathsCmd represents the paths command
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Count paths through added and deleted lines",
	Long: `Paths loads the latest build and, for each pair of versions, counts the
distinct paths through the lines added in the newer version and through the
lines deleted from the older one.

Without --from/--to every consecutive pair is reported.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), cfg, runFlag, snapshotFlag)
		if err != nil {
			return err
		}
		return executePaths(os.Stdout, g, graph.Version(fromFlag), graph.Version(toFlag))
	},
}

func init() {
	rootCmd.AddCommand(pathsCmd)
	pathsCmd.Flags().IntVar(&fromFlag, "from", 0, "older version (default: every consecutive pair)")
	pathsCmd.Flags().IntVar(&toFlag, "to", 0, "newer version (default: from+1)")
	addGraphSourceFlags(pathsCmd)
}

// addGraphSourceFlags registers the flags selecting which stored graph to load.
func addGraphSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runFlag, "run", "", "database run ID (default: latest)")
	cmd.Flags().BoolVar(&snapshotFlag, "snapshot", false, "read the JSON snapshot instead of the database")
}

// loadGraph reads a stored graph: the JSON snapshot, a specific database run
// or the newest run.
func loadGraph(ctx context.Context, cfg *config.Config, runID string, fromSnapshot bool) (*graph.Graph, error) {
	if fromSnapshot {
		if runID != "" {
			return nil, fmt.Errorf("%w: --run and --snapshot are mutually exclusive", errUsage)
		}
		src, err := mcp.NewSnapshotSource(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		return src.Load(ctx)
	}
	if runID == "" {
		return mcp.NewSQLiteSource(dbPath()).Load(ctx)
	}

	if _, err := os.Stat(dbPath()); err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrNoGraph, dbPath())
	}
	r, err := storage.NewGraphReader(dbPath())
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadGraph(runID)
}

// executePaths reports path counts between from and to, or between every
// consecutive pair when from is zero.
func executePaths(out io.Writer, g *graph.Graph, from, to graph.Version) error {
	latest := g.Version()
	if from == 0 && to != 0 {
		return fmt.Errorf("%w: --to requires --from", errUsage)
	}
	if from != 0 {
		if to == 0 {
			to = from + 1
		}
		if from >= to || to > latest {
			return fmt.Errorf("%w: need 0 < from < to <= %d, got %d and %d", errUsage, latest, from, to)
		}
		writePathReports(out, g, from, to)
		return nil
	}

	if latest < 2 {
		fmt.Fprintf(out, "graph holds %d version; nothing to compare\n", latest)
		return nil
	}
	for v := graph.Version(1); v < latest; v++ {
		writePathReports(out, g, v, v+1)
	}
	return nil
}

func writePathReports(out io.Writer, g *graph.Graph, from, to graph.Version) {
	added := merge.AddedPaths(g, from, to)
	deleted := merge.DeletedPaths(g, from, to)
	fmt.Fprintf(out, "v%d -> v%d\n", from, to)
	fmt.Fprintf(out, "  added:   %d lines, %d paths", len(added.Lines), added.Paths)
	if n := len(added.Unreachable); n > 0 {
		fmt.Fprintf(out, " (%d unreachable)", n)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  deleted: %d lines, %d paths", len(deleted.Lines), deleted.Paths)
	if n := len(deleted.Unreachable); n > 0 {
		fmt.Fprintf(out, " (%d unreachable)", n)
	}
	fmt.Fprintln(out)
}
