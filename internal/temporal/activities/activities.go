package activities

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/SomaOhm/Goal-Tracking-App/internal/analytics"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	"github.com/SomaOhm/Goal-Tracking-App/internal/pipeline"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
)

// SyncRunner performs one sync run.
type SyncRunner interface {
	Run(ctx context.Context) (*models.RunSummary, error)
}

type AnalyticsNotifier interface {
	NotifyAnalyticsFailed(ctx context.Context, job models.AnalyticsJob, reason string) error
}

// Activities holds the dependencies shared by every activity. Workflows reference its methods
// through a nil pointer; the worker registers a populated instance.
type Activities struct {
	Sync      SyncRunner
	Computers map[models.AnalyticsJob]analytics.Computer
	Notifier  AnalyticsNotifier

	HeartbeatInterval time.Duration
}

// SyncTablesActivity runs the orchestrator once. A fatal run is returned as a summary, not an
// error, so the workflow decides how to surface it.
func (a *Activities) SyncTablesActivity(ctx context.Context) (*models.RunSummary, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Starting sync run")

	stop := a.heartbeat(ctx)
	defer stop()

	summary, err := a.Sync.Run(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return nil, sdktemporal.NewNonRetryableApplicationError(err.Error(), temporal.RunInProgressError, err)
		}
		logger.Error("Sync run failed", "error", err)
		return nil, err
	}
	logger.Info("Sync run finished", "RunID", summary.RunID, "Status", summary.Status, "TotalRows", summary.TotalRows)
	return summary, nil
}

// ComputeAnalyticsActivity runs one metric computation.
func (a *Activities) ComputeAnalyticsActivity(ctx context.Context, job models.AnalyticsJob) (*models.AnalyticsResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Computing analytics", "Job", job)

	c, ok := a.Computers[job]
	if !ok {
		return nil, sdktemporal.NewNonRetryableApplicationError("unknown analytics job "+string(job), "UnknownJob", nil)
	}

	stop := a.heartbeat(ctx)
	defer stop()

	res, err := c.Compute(ctx)
	if err != nil {
		logger.Error("Analytics computation failed", "Job", job, "error", err)
		return nil, err
	}
	return res, nil
}

func (a *Activities) NotifyAnalyticsFailedActivity(ctx context.Context, job models.AnalyticsJob, reason string) error {
	if a.Notifier == nil {
		return nil
	}
	return errors.Wrap(a.Notifier.NotifyAnalyticsFailed(ctx, job, reason), "notify analytics failure")
}

// heartbeat records heartbeats in the background until the returned function is called.
func (a *Activities) heartbeat(ctx context.Context) func() {
	interval := a.HeartbeatInterval
	if interval <= 0 {
		interval = temporal.HeartbeatInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
