package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/merge"
	"github.com/mvp-joe/mvicfg/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

// CLIProgressReporter implements pipeline.ProgressReporter with a progress bar.
type CLIProgressReporter struct {
	quiet    bool
	out      io.Writer
	bar      *progressbar.ProgressBar
	versions int
}

// NewCLIProgressReporter creates a new CLI progress reporter writing to stderr.
func NewCLIProgressReporter(quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{quiet: quiet, out: os.Stderr}
}

func (c *CLIProgressReporter) OnRunStart(versions int) {
	if c.quiet {
		return
	}
	c.versions = versions
	c.bar = progressbar.NewOptions(versions,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Merging versions"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("versions/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) OnVersionBuilt(v graph.Version, instructions, edges int) {
	if c.quiet || c.bar == nil {
		return
	}
	c.bar.Describe(fmt.Sprintf("Version %d: %s nodes", v, formatNumber(instructions)))
	// The first version has nothing to merge into
	if v == 1 {
		c.bar.Add(1)
	}
}

func (c *CLIProgressReporter) OnVersionMerged(res *merge.Result) {
	if c.quiet || c.bar == nil {
		return
	}
	c.bar.Add(1)
}

func (c *CLIProgressReporter) OnComplete(stats *pipeline.Stats) {
	if c.quiet {
		return
	}
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}

	fmt.Fprintf(c.out, "✓ Merged %d versions in %.1fs\n", stats.Versions, stats.Duration.Seconds())
	fmt.Fprintf(c.out, "  Nodes:       %s\n", formatNumber(stats.Instructions))
	fmt.Fprintf(c.out, "  Edges:       %s\n", formatNumber(stats.Edges))
	fmt.Fprintf(c.out, "  Added:       %s lines\n", formatNumber(stats.Added))
	fmt.Fprintf(c.out, "  Deleted:     %s lines\n", formatNumber(stats.Deleted))
	if stats.Diagnostics > 0 {
		fmt.Fprintf(c.out, "  Diagnostics: %s (see log)\n", formatNumber(stats.Diagnostics))
	}
}

// formatNumber formats n with thousands separators.
func formatNumber(n int) string {
	str := fmt.Sprintf("%d", n)
	if n < 1000 && n > -1000 {
		return str
	}

	var result []byte
	digits := str
	if n < 0 {
		result = append(result, '-')
		digits = str[1:]
	}
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, digits[i])
	}
	return string(result)
}
