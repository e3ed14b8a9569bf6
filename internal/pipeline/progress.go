package pipeline

import (
	"time"

	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/merge"
)

// ProgressReporter provides callbacks for reporting run progress.
// Implementations can display progress bars, log messages, or remain silent.
type ProgressReporter interface {
	// OnRunStart is called once the manifest is accepted.
	OnRunStart(versions int)

	// OnVersionBuilt is called after a version's single-version graph is built.
	OnVersionBuilt(v graph.Version, instructions, edges int)

	// OnVersionMerged is called after a version is folded into the accumulated graph.
	OnVersionMerged(res *merge.Result)

	// OnComplete is called when the run finishes successfully.
	OnComplete(stats *Stats)
}

// NoOpProgressReporter is a progress reporter that does nothing.
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnRunStart(versions int)                                 {}
func (n *NoOpProgressReporter) OnVersionBuilt(v graph.Version, instructions, edges int) {}
func (n *NoOpProgressReporter) OnVersionMerged(res *merge.Result)                       {}
func (n *NoOpProgressReporter) OnComplete(stats *Stats)                                 {}

// Stats summarises a run.
type Stats struct {
	Versions     int
	Instructions int
	Edges        int
	Added        int
	Deleted      int
	Diagnostics  int
	Duration     time.Duration
}
