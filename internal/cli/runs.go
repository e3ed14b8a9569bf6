package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mvp-joe/mvicfg/internal/storage"
	"github.com/spf13/cobra"
)

var deleteRunFlag string

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the builds stored in the database",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(dbPath()); err != nil {
			return fmt.Errorf("%w: %s", storage.ErrNoGraph, dbPath())
		}
		if deleteRunFlag != "" {
			w, err := storage.NewGraphWriter(dbPath())
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.DeleteRun(deleteRunFlag); err != nil {
				return err
			}
			printf("Deleted run %s\n", deleteRunFlag)
			return nil
		}

		r, err := storage.NewGraphReader(dbPath())
		if err != nil {
			return err
		}
		defer r.Close()
		return executeRuns(os.Stdout, r)
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().StringVar(&deleteRunFlag, "delete", "", "delete the run with this ID")
}

// executeRuns lists stored runs, newest first.
func executeRuns(out io.Writer, r *storage.GraphReader) error {
	runs, err := r.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tVERSIONS\tNODES\tEDGES\tCREATED")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			run.ID, run.Version,
			formatNumber(run.InstructionCount), formatNumber(run.EdgeCount),
			run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
