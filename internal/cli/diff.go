package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mvp-joe/mvicfg/internal/config"
	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/spf13/cobra"
)

var mappingFlag bool

// diffCmd represents the diff command
var diffCmd = &cobra.Command{
	Use:   "diff OLD NEW",
	Short: "Print the shortest edit script between two files",
	Long: `Diff compares two files line by line and prints the shortest edit script,
one line per operation:

  - 3     deleted line 3 of OLD
    4 5   line 4 of OLD is line 5 of NEW
  + 6     added line 6 of NEW

With --mapping only the line correspondence used by the merge is printed.`,
	Args: usageArgs(cobra.ExactArgs(2)),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeDiff(os.Stdout, cfg, args[0], args[1], mappingFlag)
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().BoolVar(&mappingFlag, "mapping", false, "print matched, added and deleted line numbers")
}

// executeDiff writes the edit script of before and after to out.
func executeDiff(out io.Writer, cfg *config.Config, before, after string, mapping bool) error {
	a, err := diff.ReadLines(before)
	if err != nil {
		return err
	}
	b, err := diff.ReadLines(after)
	if err != nil {
		return err
	}

	script, err := diff.Compose(a, b, cfg.FileOptions().Diff...)
	if err != nil {
		return fmt.Errorf("%s -> %s: %w", before, after, err)
	}

	if mapping {
		writeMapping(out, diff.NewMapping(filepath.Base(after), script))
	} else {
		for _, op := range script.Ops {
			switch op.Type {
			case diff.Delete:
				fmt.Fprintf(out, "- %-5d %s\n", op.BeforeIdx, op.Elem)
			case diff.Add:
				fmt.Fprintf(out, "+ %-5d %s\n", op.AfterIdx, op.Elem)
			default:
				fmt.Fprintf(out, "  %d %d %s\n", op.BeforeIdx, op.AfterIdx, op.Elem)
			}
		}
	}
	fmt.Fprintf(out, "edit distance: %d\n", script.EditDistance())
	return nil
}

func writeMapping(out io.Writer, m *diff.Mapping) {
	fmt.Fprintf(out, "file: %s\n", m.File)
	for _, p := range m.Matched() {
		fmt.Fprintf(out, "= %d -> %d\n", p.Before, p.After)
	}
	for _, n := range m.Deleted {
		fmt.Fprintf(out, "- %d\n", n)
	}
	for _, n := range m.Added {
		fmt.Fprintf(out, "+ %d\n", n)
	}
}
