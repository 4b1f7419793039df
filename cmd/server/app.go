package main

import (
	"context"
	"database/sql"
	"io"
	"log"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"

	"github.com/SomaOhm/Goal-Tracking-App/internal/analytics"
	"github.com/SomaOhm/Goal-Tracking-App/internal/config"
	"github.com/SomaOhm/Goal-Tracking-App/internal/logging"
	"github.com/SomaOhm/Goal-Tracking-App/internal/migration"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	"github.com/SomaOhm/Goal-Tracking-App/internal/notification"
	"github.com/SomaOhm/Goal-Tracking-App/internal/pipeline"
	"github.com/SomaOhm/Goal-Tracking-App/internal/repository"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
	"github.com/SomaOhm/Goal-Tracking-App/internal/warehouse"
)

type application struct {
	config        *config.Config
	logger        zerolog.Logger
	logCloser     io.Closer
	db            *sql.DB
	warehouse     *warehouse.DB
	notifications notification.Service
}

// newApplication loads configuration, sets up logging and opens the operational database. The
// warehouse is opened only when withWarehouse is set.
func newApplication(ctx context.Context, cfgFile string, withWarehouse bool) (*application, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	logger, closer := logging.New(cfg.Log)
	log.SetFlags(0)
	log.SetOutput(logger)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		_ = closer.Close()
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = closer.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	app := &application{
		config:    cfg,
		logger:    logger,
		logCloser: closer,
		db:        db,
		notifications: notification.NewService(
			repository.NewNotificationRepository(db),
			logger,
			notification.NewLogNotifier(logger),
		),
	}

	if withWarehouse {
		app.warehouse, err = warehouse.Open(ctx, cfg.Warehouse, logger)
		if err != nil {
			app.close()
			return nil, err
		}
		if err := app.warehouse.EnsureSchema(ctx); err != nil {
			app.close()
			return nil, err
		}
	}
	return app, nil
}

func (app *application) close() {
	if app.warehouse != nil {
		if err := app.warehouse.Close(); err != nil {
			app.logger.Warn().Err(err).Msg("failed to close warehouse")
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn().Err(err).Msg("failed to close database")
	}
	_ = app.logCloser.Close()
}

func (app *application) migrate(ctx context.Context) error {
	return migration.RunMigrations(ctx, app.db, app.logger)
}

func (app *application) orchestrator(opts ...pipeline.Option) *pipeline.Orchestrator {
	sc := app.config.Sync
	opts = append([]pipeline.Option{
		pipeline.WithLogger(app.logger),
		pipeline.WithNotifier(app.notifications),
		pipeline.WithRetryPolicy(pipeline.RetryPolicy{
			MaxRetries: sc.MaxRetries,
			BaseDelay:  sc.RetryBaseDelay,
			MaxDelay:   sc.RetryMaxDelay,
		}),
	}, opts...)
	return pipeline.New(
		repository.NewWatermarkRepository(app.db),
		repository.NewSourceRepository(app.db),
		pipeline.FromWarehouse(app.warehouse),
		sc.EnabledTables(),
		opts...,
	)
}

func (app *application) metricsRepository() warehouse.MetricsRepository {
	return warehouse.NewMetricsRepository(app.warehouse, app.config.Analytics)
}

func (app *application) computers() map[models.AnalyticsJob]analytics.Computer {
	return analytics.NewComputers(app.metricsRepository(), analytics.WithLogger(app.logger))
}

func (app *application) dialTemporal() (tc.Client, error) {
	c, err := tc.Dial(tc.Options{
		HostPort:  app.config.Temporal.HostPort,
		Namespace: app.config.Temporal.Namespace,
		Logger:    temporal.NewLogger(app.logger),
	})
	if err != nil {
		return nil, errors.Wrap(err, "dial temporal")
	}
	return c, nil
}
