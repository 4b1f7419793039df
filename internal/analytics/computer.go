// Package analytics derives per-user adherence, risk and streak metrics from the check-in facts
// landed in the warehouse.
package analytics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/SomaOhm/Goal-Tracking-App/internal/metrics"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

const tracerName = "github.com/SomaOhm/Goal-Tracking-App/internal/analytics"

// AdherenceWindows are the trailing windows, in days, adherence is computed for.
var AdherenceWindows = []int{7, 30, 90}

type AdherenceStore interface {
	CheckinTotals(ctx context.Context, since time.Time) ([]models.CheckinTotals, error)
	UpsertAdherence(ctx context.Context, metricDate time.Time, window int, rows []models.AdherenceMetric) error
}

type RiskStore interface {
	RiskInputs(ctx context.Context, since3d, since7d time.Time) ([]models.RiskInput, error)
	UpsertRisk(ctx context.Context, rows []models.RiskMetric) error
}

type StreakStore interface {
	CheckinHistories(ctx context.Context) ([]models.CheckinHistory, error)
	UpsertStreaks(ctx context.Context, rows []models.StreakMetric) error
}

// Store is everything the three computations need.
type Store interface {
	AdherenceStore
	RiskStore
	StreakStore
}

// Computer runs one analytics job.
type Computer interface {
	Job() models.AnalyticsJob
	Compute(ctx context.Context) (*models.AnalyticsResult, error)
}

type Option func(*base)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *base) { b.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

type base struct {
	job    models.AnalyticsJob
	logger zerolog.Logger
	now    func() time.Time
}

func newBase(job models.AnalyticsJob, opts []Option) base {
	b := base{job: job, logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With().Str("component", "analytics").Str("job", string(job)).Logger()
	return b
}

func (b base) Job() models.AnalyticsJob { return b.job }

// run wraps a computation with a span, timing metrics and logging.
func (b base) run(ctx context.Context, fn func(ctx context.Context, now time.Time) (int, error)) (*models.AnalyticsResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics."+string(b.job))
	defer span.End()

	now := b.now().UTC()
	started := time.Now()
	b.logger.Info().Msg("computing metrics")

	users, err := fn(ctx, now)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute failed")
		b.logger.Error().Err(err).Msg("metric computation failed")
	}
	metrics.AnalyticsDuration.WithLabelValues(string(b.job), status).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, errors.Wrapf(err, "compute %s", b.job)
	}

	metrics.AnalyticsUsersUpdated.WithLabelValues(string(b.job)).Add(float64(users))
	span.SetAttributes(attribute.Int("users", users))
	b.logger.Info().Int("users", users).Dur("took", time.Since(started)).Msg("metrics computed")
	return &models.AnalyticsResult{Job: b.job, UsersUpdated: users, ComputedAt: now}, nil
}

// NewComputers returns one computer per analytics job over store.
func NewComputers(store Store, opts ...Option) map[models.AnalyticsJob]Computer {
	return map[models.AnalyticsJob]Computer{
		models.AnalyticsJobAdherence: NewAdherenceComputer(store, opts...),
		models.AnalyticsJobRisk:      NewRiskComputer(store, opts...),
		models.AnalyticsJobStreak:    NewStreakComputer(store, opts...),
	}
}

type AdherenceComputer struct {
	base
	store AdherenceStore
}

func NewAdherenceComputer(store AdherenceStore, opts ...Option) *AdherenceComputer {
	return &AdherenceComputer{base: newBase(models.AnalyticsJobAdherence, opts), store: store}
}

// Compute writes 7, 30 and 90 day adherence for every user on today's metric row. UsersUpdated
// counts distinct users.
func (c *AdherenceComputer) Compute(ctx context.Context) (*models.AnalyticsResult, error) {
	return c.run(ctx, func(ctx context.Context, now time.Time) (int, error) {
		users := make(map[string]struct{})
		for _, window := range AdherenceWindows {
			totals, err := c.store.CheckinTotals(ctx, now.AddDate(0, 0, -window))
			if err != nil {
				return 0, errors.Wrapf(err, "%d-day totals", window)
			}
			rows := make([]models.AdherenceMetric, 0, len(totals))
			for _, t := range totals {
				rows = append(rows, models.AdherenceMetric{
					UserID:     t.UserID,
					Percentage: AdherencePct(t.Completed, t.Total),
					Completed:  t.Completed,
					Total:      t.Total,
				})
				users[t.UserID] = struct{}{}
			}
			if err := c.store.UpsertAdherence(ctx, now, window, rows); err != nil {
				return 0, errors.Wrapf(err, "%d-day adherence", window)
			}
		}
		return len(users), nil
	})
}

type RiskComputer struct {
	base
	store RiskStore
}

func NewRiskComputer(store RiskStore, opts ...Option) *RiskComputer {
	return &RiskComputer{base: newBase(models.AnalyticsJobRisk, opts), store: store}
}

func (c *RiskComputer) Compute(ctx context.Context) (*models.AnalyticsResult, error) {
	return c.run(ctx, func(ctx context.Context, now time.Time) (int, error) {
		inputs, err := c.store.RiskInputs(ctx, now.AddDate(0, 0, -3), now.AddDate(0, 0, -7))
		if err != nil {
			return 0, err
		}
		rows := make([]models.RiskMetric, 0, len(inputs))
		for _, in := range inputs {
			rows = append(rows, AssessRisk(in, now))
		}
		if err := c.store.UpsertRisk(ctx, rows); err != nil {
			return 0, err
		}
		return len(rows), nil
	})
}

// AssessRisk scores one user as of now.
func AssessRisk(in models.RiskInput, now time.Time) models.RiskMetric {
	var daysSince *int
	stored := UnknownDaysSince
	if in.LastCheckinAt != nil {
		d := DaysBetween(*in.LastCheckinAt, now)
		daysSince, stored = &d, d
	}
	level, score := ScoreRisk(in.Missed7d, daysSince)
	return models.RiskMetric{
		UserID:             in.UserID,
		Level:              level,
		Score:              score,
		Missed3d:           in.Missed3d,
		Missed7d:           in.Missed7d,
		LastCheckinDaysAgo: stored,
		EvaluatedAt:        now,
	}
}

type StreakComputer struct {
	base
	store StreakStore
}

func NewStreakComputer(store StreakStore, opts ...Option) *StreakComputer {
	return &StreakComputer{base: newBase(models.AnalyticsJobStreak, opts), store: store}
}

func (c *StreakComputer) Compute(ctx context.Context) (*models.AnalyticsResult, error) {
	return c.run(ctx, func(ctx context.Context, now time.Time) (int, error) {
		histories, err := c.store.CheckinHistories(ctx)
		if err != nil {
			return 0, err
		}
		rows := make([]models.StreakMetric, 0, len(histories))
		for _, h := range histories {
			current, longest := Streak(h.Completed)
			rows = append(rows, models.StreakMetric{
				UserID:         h.UserID,
				CurrentStreak:  current,
				LongestStreak:  longest,
				LastCompletion: h.LastCompletion,
				UpdatedAt:      now,
			})
		}
		if err := c.store.UpsertStreaks(ctx, rows); err != nil {
			return 0, err
		}
		return len(rows), nil
	})
}
