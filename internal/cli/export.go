package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/spf13/cobra"
)

var (
	outputFlag  string
	versionFlag int
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render the stored graph as Graphviz DOT",
	Long: `Export writes the latest build in DOT format. Edge labels list the versions
each edge exists in. With --version only that version's graph is rendered.

Examples:
  mvicfg export -o mvicfg.dot
  mvicfg export --version 2 | dot -Tsvg > v2.svg`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), cfg, runFlag, snapshotFlag)
		if err != nil {
			return err
		}
		if versionFlag < 0 || graph.Version(versionFlag) > g.Version() {
			return fmt.Errorf("%w: --version must be between 1 and %d", errUsage, g.Version())
		}
		if outputFlag != "" {
			if err := writeDOTFile(outputFlag, g, graph.Version(versionFlag)); err != nil {
				return err
			}
			printf("Wrote %s\n", outputFlag)
			return nil
		}
		return executeExport(os.Stdout, g, graph.Version(versionFlag))
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().IntVar(&versionFlag, "version", 0, "render only this version")
	addGraphSourceFlags(exportCmd)
}

// executeExport writes the DOT rendering of g, or of version v when non-zero.
func executeExport(out io.Writer, g *graph.Graph, v graph.Version) error {
	if v == 0 {
		return g.WriteDOT(out)
	}
	return g.WriteVersionDOT(out, v)
}
