package types

// RunStatus is the lifecycle state of an analysis run
type RunStatus string

const (
	RunInProgress RunStatus = "IN_PROGRESS"
	RunAnalyzing  RunStatus = "ANALYZING"
	RunReporting  RunStatus = "REPORTING"
	RunCompleted  RunStatus = "COMPLETED"
	RunFailed     RunStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Valid reports whether s is a known status
func (s RunStatus) Valid() bool {
	switch s {
	case RunInProgress, RunAnalyzing, RunReporting, RunCompleted, RunFailed:
		return true
	}
	return false
}

// CanTransition reports whether a run may move from s to next.
// IN_PROGRESS -> ANALYZING -> REPORTING -> COMPLETED, and any
// non-terminal state may move to FAILED.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == RunFailed {
		return true
	}
	switch s {
	case RunInProgress:
		return next == RunAnalyzing
	case RunAnalyzing:
		return next == RunReporting
	case RunReporting:
		return next == RunCompleted
	}
	return false
}
