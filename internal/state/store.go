// Package state tracks pipeline run history in SQLite: runs, per-stage
// results, and the data-quality warnings a run surfaced.
package state

import "time"

// RunStatus is the lifecycle status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StageStatus is the lifecycle status of one stage within a run.
type StageStatus string

const (
	StageStatusPending StageStatus = "pending"
	StageStatusRunning StageStatus = "running"
	StageStatusSuccess StageStatus = "success"
	StageStatusFailed  StageStatus = "failed"
	StageStatusSkipped StageStatus = "skipped"
)

// Run is one execution of the pipeline.
type Run struct {
	ID          string
	Status      RunStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// StageRun is the recorded result of one stage within a run.
type StageRun struct {
	ID         string
	RunID      string
	StageID    string
	Kind       string
	Status     StageStatus
	RowsIn     int
	RowsOut    int
	DurationMS int64
	Error      string
}

// Warning is one recorded data-quality warning (e.g. a degenerate
// standardization group).
type Warning struct {
	RunID   string
	StageID string
	Message string
}
