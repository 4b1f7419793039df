package main

import (
	"context"
	"net/http"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	tc "go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"

	"github.com/SomaOhm/Goal-Tracking-App/internal/handlers"
	"github.com/SomaOhm/Goal-Tracking-App/internal/middleware"
	"github.com/SomaOhm/Goal-Tracking-App/internal/repository"
	"github.com/SomaOhm/Goal-Tracking-App/internal/routes"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal/activities"
	"github.com/SomaOhm/Goal-Tracking-App/internal/worker"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	var applySchedules bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the Temporal worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := newApplication(ctx, *cfgFile, true)
			if err != nil {
				return err
			}
			defer app.close()
			return app.serve(ctx, applySchedules)
		},
	}
	cmd.Flags().BoolVar(&applySchedules, "apply-schedules", true, "create or update Temporal schedules on startup")
	return cmd
}

func (app *application) serve(ctx context.Context, applySchedules bool) error {
	logger := app.logger

	if err := app.migrate(ctx); err != nil {
		return err
	}

	temporalClient, err := app.dialTemporal()
	if err != nil {
		return err
	}
	defer temporalClient.Close()

	if applySchedules {
		if err := temporal.ApplySchedules(ctx, temporalClient.ScheduleClient(), app.config.Schedules, app.config.Temporal.TaskQueue, logger); err != nil {
			return err
		}
	}

	// Scheduled and API-triggered runs both execute as SyncWorkflow on this worker.
	temporalWorker := worker.New(temporalClient, app.config.Temporal.TaskQueue, &activities.Activities{
		Sync:      app.orchestrator(),
		Computers: app.computers(),
		Notifier:  app.notifications,
	})

	router := routes.NewRouter(routes.Deps{
		JWTSecret: app.config.JWTSecret,
		Health: handlers.Health(map[string]handlers.HealthCheck{
			"postgres":  app.db.PingContext,
			"warehouse": app.warehouse.Ping,
			"temporal": func(ctx context.Context) error {
				_, err := temporalClient.CheckHealth(ctx, &tc.CheckHealthRequest{})
				return err
			},
		}),
		Metrics:       promhttp.Handler(),
		Sync:          handlers.NewSyncHandler(repository.NewWatermarkRepository(app.db), temporalClient, app.config.Temporal.TaskQueue, logger),
		UserMetrics:   handlers.NewMetricsHandler(app.metricsRepository(), logger),
		Notifications: handlers.NewNotificationHandler(app.notifications, logger),
	})
	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(app.config.CORSOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("task_queue", app.config.Temporal.TaskQueue).Msg("Starting Temporal worker...")
		if err := temporalWorker.Start(); err != nil {
			return errors.Wrap(err, "start temporal worker")
		}
		<-gctx.Done()
		logger.Info().Msg("Stopping Temporal worker...")
		temporalWorker.Stop()
		logger.Info().Msg("Temporal worker stopped.")
		return nil
	})
	g.Go(func() error {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
			return err
		}
		logger.Info().Msg("HTTP server shutdown complete.")
		return nil
	})

	err = g.Wait()
	logger.Info().Msg("Application terminated.")
	return err
}
