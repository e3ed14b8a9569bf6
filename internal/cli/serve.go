package cli

import (
	"context"

	"github.com/mvp-joe/mvicfg/internal/config"
	"github.com/mvp-joe/mvicfg/internal/mcp"
	"github.com/spf13/cobra"
)

var (
	watchFlag         bool
	serveSnapshotFlag bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stored graph over MCP (stdio)",
	Long: `Serve starts a Model Context Protocol server on stdin/stdout exposing the
mvicfg_query tool: functions, lines by source number, edges, successors,
predecessors, reachability and path counts, all per version.

The latest database run is served unless --snapshot is given. With --watch the
graph is reloaded whenever a build rewrites it.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newServer(cmd.Context(), cfg, serveSnapshotFlag, watchFlag)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&watchFlag, "watch", true, "reload the graph when it changes on disk")
	serveCmd.Flags().BoolVar(&serveSnapshotFlag, "snapshot", false, "serve the JSON snapshot instead of the database")
}

// newServer builds an MCP server over the configured output directory.
func newServer(ctx context.Context, cfg *config.Config, fromSnapshot, watch bool) (*mcp.MCPServer, error) {
	var source mcp.Source = mcp.NewSQLiteSource(dbPath())
	if fromSnapshot {
		snapshot, err := mcp.NewSnapshotSource(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		source = snapshot
	}
	return mcp.NewMCPServer(ctx, &mcp.ServerConfig{
		Source: source,
		Watch:  watch,
		Logger: logger,
	})
}
