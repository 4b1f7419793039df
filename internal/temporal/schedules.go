package temporal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/SomaOhm/Goal-Tracking-App/internal/config"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

// ScheduleClient is the part of client.ScheduleClient schedule management needs.
type ScheduleClient interface {
	Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error)
	GetHandle(ctx context.Context, scheduleID string) client.ScheduleHandle
}

// ScheduledJob is one schedule derived from configuration.
type ScheduledJob struct {
	Job      string
	Schedule config.ScheduleConfig
	Workflow string
	Args     []interface{}
}

// ScheduledJobs lists the sync schedule followed by one schedule per analytics job.
func ScheduledJobs(cfg config.SchedulesConfig) []ScheduledJob {
	jobs := []ScheduledJob{{Job: SyncJobName, Schedule: cfg.Sync, Workflow: SyncWorkflowName}}
	byJob := map[models.AnalyticsJob]config.ScheduleConfig{
		models.AnalyticsJobAdherence: cfg.Adherence,
		models.AnalyticsJobRisk:      cfg.Risk,
		models.AnalyticsJobStreak:    cfg.Streak,
	}
	for _, job := range models.AnalyticsJobs {
		jobs = append(jobs, ScheduledJob{
			Job:      string(job),
			Schedule: byJob[job],
			Workflow: AnalyticsWorkflowName,
			Args:     []interface{}{job},
		})
	}
	return jobs
}

func scheduleSpec(sc config.ScheduleConfig) client.ScheduleSpec {
	if sc.Every > 0 {
		return client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: sc.Every}}}
	}
	return client.ScheduleSpec{CronExpressions: []string{sc.Cron}}
}

func scheduleAction(job ScheduledJob, taskQueue string) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        WorkflowID(job.Job),
		Workflow:  job.Workflow,
		Args:      job.Args,
		TaskQueue: taskQueue,
	}
}

// ApplySchedules creates or updates one Temporal schedule per job. Overlapping runs are
// skipped, so at most one run of a job is in flight.
func ApplySchedules(ctx context.Context, sc ScheduleClient, cfg config.SchedulesConfig, taskQueue string, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "schedules").Logger()
	for _, job := range ScheduledJobs(cfg) {
		id := ScheduleID(job.Job)
		spec := scheduleSpec(job.Schedule)
		action := scheduleAction(job, taskQueue)

		_, err := sc.Create(ctx, client.ScheduleOptions{
			ID:            id,
			Spec:          spec,
			Action:        action,
			Overlap:       enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
			CatchupWindow: time.Minute,
			Paused:        job.Schedule.Paused,
		})
		if err == nil {
			logger.Info().Str("schedule_id", id).Msg("schedule created")
			continue
		}
		if !errors.Is(err, sdktemporal.ErrScheduleAlreadyRunning) {
			return errors.Wrapf(err, "create schedule %s", id)
		}

		paused := job.Schedule.Paused
		err = sc.GetHandle(ctx, id).Update(ctx, client.ScheduleUpdateOptions{
			DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
				s := in.Description.Schedule
				s.Spec = &spec
				s.Action = action
				if s.Policy == nil {
					s.Policy = &client.SchedulePolicies{}
				}
				s.Policy.Overlap = enumspb.SCHEDULE_OVERLAP_POLICY_SKIP
				if s.State == nil {
					s.State = &client.ScheduleState{}
				}
				s.State.Paused = paused
				return &client.ScheduleUpdate{Schedule: &s}, nil
			},
		})
		if err != nil {
			return errors.Wrapf(err, "update schedule %s", id)
		}
		logger.Info().Str("schedule_id", id).Msg("schedule updated")
	}
	return nil
}
