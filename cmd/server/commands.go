package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	"github.com/SomaOhm/Goal-Tracking-App/internal/pipeline"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSyncCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync of every enabled table and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := newApplication(ctx, *cfgFile, true)
			if err != nil {
				return err
			}
			defer app.close()

			progress := func(r models.TableResult) {
				evt := app.logger.Info()
				if r.Status == models.SyncStatusError {
					evt = app.logger.Warn().Str("error", r.Error)
				}
				evt.Str("table", r.Table).Str("status", string(r.Status)).Int("rows", r.Rows).Msg("table done")
			}
			summary, err := app.orchestrator(pipeline.WithProgress(progress)).Run(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, summary); err != nil {
				return err
			}
			if summary.Status == models.RunStatusFatalError {
				return errors.Errorf("sync run %s failed: %s", summary.RunID, summary.Error)
			}
			return nil
		},
	}
}

func newComputeCmd(cfgFile *string) *cobra.Command {
	valid := []string{"all"}
	for _, job := range models.AnalyticsJobs {
		valid = append(valid, string(job))
	}
	return &cobra.Command{
		Use:       "compute {adherence|risk|streak|all}",
		Short:     "Compute per-user metrics in the warehouse",
		ValidArgs: valid,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := newApplication(ctx, *cfgFile, true)
			if err != nil {
				return err
			}
			defer app.close()

			jobs := models.AnalyticsJobs
			if args[0] != "all" {
				jobs = []models.AnalyticsJob{models.AnalyticsJob(args[0])}
			}
			computers := app.computers()
			results := make([]*models.AnalyticsResult, 0, len(jobs))
			for _, job := range jobs {
				res, err := computers[job].Compute(ctx)
				if err != nil {
					if nerr := app.notifications.NotifyAnalyticsFailed(ctx, job, err.Error()); nerr != nil {
						app.logger.Warn().Err(nerr).Msg("failed to record analytics failure")
					}
					return err
				}
				results = append(results, res)
			}
			return printJSON(cmd, results)
		},
	}
}

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and create the warehouse metrics tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := newApplication(ctx, *cfgFile, true)
			if err != nil {
				return err
			}
			defer app.close()
			return app.migrate(ctx)
		},
	}
}

func newSchedulesCmd(cfgFile *string) *cobra.Command {
	schedules := &cobra.Command{
		Use:   "schedules",
		Short: "Manage the Temporal schedules that trigger sync and analytics",
	}
	schedules.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Create or update every schedule from configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := newApplication(ctx, *cfgFile, false)
			if err != nil {
				return err
			}
			defer app.close()

			c, err := app.dialTemporal()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := temporal.ApplySchedules(ctx, c.ScheduleClient(), app.config.Schedules, app.config.Temporal.TaskQueue, app.logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d schedules\n", len(temporal.ScheduledJobs(app.config.Schedules)))
			return nil
		},
	})
	return schedules
}
