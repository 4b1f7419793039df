package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	gtemporal "github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal/activities"
)

// SyncWorkflow runs one sync. The orchestrator retries connection failures itself, so the
// activity is attempted once; a run that ends fatally fails the workflow.
func SyncWorkflow(ctx workflow.Context) (*models.RunSummary, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: gtemporal.SyncActivityTimeout,
		HeartbeatTimeout:    gtemporal.HeartbeatTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting sync workflow")

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	var summary models.RunSummary
	if err := workflow.ExecuteActivity(ctx, a.SyncTablesActivity).Get(ctx, &summary); err != nil {
		logger.Error("Sync activity failed.", "error", err)
		return nil, err
	}
	if summary.Status == models.RunStatusFatalError {
		logger.Error("Sync run ended fatally.", "RunID", summary.RunID, "Attempts", summary.Attempts)
		return &summary, temporal.NewNonRetryableApplicationError(summary.Error, gtemporal.SyncRunFatalError, nil, summary.RunID)
	}

	logger.Info("Sync workflow completed.", "RunID", summary.RunID, "TotalRows", summary.TotalRows, "FailedTables", len(summary.Failed()))
	return &summary, nil
}

// AnalyticsWorkflow runs one metric computation with a few retries and records a notification
// when it still fails.
func AnalyticsWorkflow(ctx workflow.Context, job models.AnalyticsJob) (*models.AnalyticsResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: gtemporal.AnalyticsActivityTimeout,
		HeartbeatTimeout:    gtemporal.HeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{"UnknownJob"},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting analytics workflow", "Job", job)

	var a *activities.Activities

	var result models.AnalyticsResult
	err := workflow.ExecuteActivity(ctx, a.ComputeAnalyticsActivity, job).Get(ctx, &result)
	if err != nil {
		logger.Error("Analytics computation failed.", "Job", job, "error", err)
		notifyCtx, _ := workflow.NewDisconnectedContext(ctx)
		notifyCtx = workflow.WithActivityOptions(notifyCtx, workflow.ActivityOptions{
			StartToCloseTimeout: time.Minute,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
		})
		if nerr := workflow.ExecuteActivity(notifyCtx, a.NotifyAnalyticsFailedActivity, job, err.Error()).Get(notifyCtx, nil); nerr != nil {
			logger.Error("Failed to record analytics failure.", "Job", job, "error", nerr)
		}
		return nil, err
	}

	logger.Info("Analytics workflow completed.", "Job", job, "UsersUpdated", result.UsersUpdated)
	return &result, nil
}
