package models

import "time"

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFatalError RunStatus = "fatal_error"
)

// TableResult is the tagged outcome of syncing one table within a run.
type TableResult struct {
	Table  string     `json:"table"`
	Status SyncStatus `json:"status"`
	Rows   int        `json:"rows"`
	Error  string     `json:"error,omitempty"`
}

// RunSummary is returned to the scheduler or CLI caller for every run that did not crash.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Attempts   int           `json:"attempts"`
	Tables     []TableResult `json:"tables"`
	TotalRows  int           `json:"total_rows"`
	Error      string        `json:"error,omitempty"`
}

// Failed returns the tables that ended in error.
func (s *RunSummary) Failed() []TableResult {
	var failed []TableResult
	for _, t := range s.Tables {
		if t.Status == SyncStatusError {
			failed = append(failed, t)
		}
	}
	return failed
}
