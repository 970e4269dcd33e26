package pipeline

import (
	"time"

	"github.com/dshills/ruleminer/pkg/types"
)

// Summary describes one pipeline invocation
type Summary struct {
	Runs     []*RunSummary
	Skipped  []SkippedCodebase
	Duration time.Duration
}

// RunSummary is the outcome of one project's run
type RunSummary struct {
	ProjectID   string
	ProjectName string
	RunID       string
	Revision    string // HEAD commit when the source is a git working tree
	Status      types.RunStatus
	Error       string

	FilesDiscovered int
	FilesIndexed    int
	IndexFailures   int
	FilesAnalyzed   int
	FilesFailed     int
	RulesStored     int

	ReportPath string
}

// SkippedCodebase is a codebase dropped during discovery
type SkippedCodebase struct {
	ID     string
	Reason string
}

// Completed counts runs that reached COMPLETED
func (s *Summary) Completed() int {
	n := 0
	for _, r := range s.Runs {
		if r.Status == types.RunCompleted {
			n++
		}
	}
	return n
}
