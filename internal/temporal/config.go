package temporal

import "time"

// DefaultTaskQueue is the task queue sync and analytics workflows run on when none is configured.
const DefaultTaskQueue = "GOAL_SYNC"

// Workflow type names, registered explicitly so schedules can refer to them by name.
const (
	SyncWorkflowName      = "SyncWorkflow"
	AnalyticsWorkflowName = "AnalyticsWorkflow"
)

// Schedule and workflow ID prefixes.
const (
	ScheduleIDPrefix   = "goal-sync-schedule-"
	WorkflowIDPrefix   = "goal-sync-"
	SyncJobName        = "sync"
	RunInProgressError = "RunInProgress"
	SyncRunFatalError  = "SyncRunFatal"
)

// SyncActivityTimeout bounds one sync run including the orchestrator's own retries.
const SyncActivityTimeout = time.Hour

// AnalyticsActivityTimeout bounds one metric computation.
const AnalyticsActivityTimeout = 15 * time.Minute

// HeartbeatTimeout is how long a running activity may go without heartbeating.
const HeartbeatTimeout = time.Minute

// HeartbeatInterval is how often long-running activities heartbeat.
const HeartbeatInterval = 10 * time.Second

// ManualSyncWorkflowID is the workflow ID of API-triggered sync runs. At most one is open at a
// time.
const ManualSyncWorkflowID = WorkflowIDPrefix + SyncJobName + "-manual"

// ScheduleID returns the schedule ID of a job ("sync" or an analytics job).
func ScheduleID(job string) string {
	return ScheduleIDPrefix + job
}

// WorkflowID returns the workflow ID scheduled runs of a job start with.
func WorkflowID(job string) string {
	return WorkflowIDPrefix + job
}
