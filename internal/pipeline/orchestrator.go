// Package pipeline runs watermark-based incremental sync from the operational store into the
// warehouse.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SomaOhm/Goal-Tracking-App/internal/metrics"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	"github.com/SomaOhm/Goal-Tracking-App/internal/repository"
	"github.com/SomaOhm/Goal-Tracking-App/internal/serializer"
)

const tracerName = "github.com/SomaOhm/Goal-Tracking-App/internal/pipeline"

// WatermarkStore persists per-table sync progress.
type WatermarkStore interface {
	Get(ctx context.Context, table string) (time.Time, error)
	Set(ctx context.Context, update models.WatermarkUpdate) error
}

// ChangeExtractor reads rows changed since a watermark from the operational store.
type ChangeExtractor interface {
	FetchChanged(ctx context.Context, table models.TableConfig, since time.Time) ([]models.Row, error)
	Ping(ctx context.Context) error
}

// Session is a pinned warehouse connection that can merge batches.
type Session interface {
	Upsert(ctx context.Context, target string, rows []models.Row, pk []string) error
	Close() error
}

// Warehouse hands out sessions.
type Warehouse interface {
	Session(ctx context.Context) (Session, error)
}

// Notifier is told about failures worth surfacing beyond the logs.
type Notifier interface {
	NotifyTableSyncFailed(ctx context.Context, table, message string) error
	NotifySyncRunFatal(ctx context.Context, runID, message string) error
}

// RetryPolicy bounds run-level retries. Delays start at BaseDelay and double per retry up to
// MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries five times starting at 30 seconds.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 5, BaseDelay: 30 * time.Second, MaxDelay: 15 * time.Minute}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.WithMaxRetries(uint64(maxRetries), b)
}

type Option func(*Orchestrator)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger.With().Str("component", "sync_orchestrator").Logger() }
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithProgress registers a callback invoked after every table of a run.
func WithProgress(fn func(models.TableResult)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator syncs the configured tables one after another.
type Orchestrator struct {
	store     WatermarkStore
	source    ChangeExtractor
	warehouse Warehouse
	tables    []models.TableConfig

	retry    RetryPolicy
	logger   zerolog.Logger
	notifier Notifier
	progress func(models.TableResult)
	now      func() time.Time
	tracer   trace.Tracer
	running  atomic.Bool
}

// New returns an orchestrator over the enabled tables, in the order given.
func New(store WatermarkStore, source ChangeExtractor, wh Warehouse, tables []models.TableConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		source:    source,
		warehouse: wh,
		tables:    tables,
		retry:     DefaultRetryPolicy,
		logger:    zerolog.Nop(),
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run performs one sync run. Per-table failures are recorded in the summary and never abort
// the run. Failures to reach either store are retried with backoff; once retries are exhausted
// the summary is returned with status fatal_error. The returned error is non-nil only when
// another run is already in progress.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunSummary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	summary := &models.RunSummary{
		RunID:     ulid.Make().String(),
		StartedAt: o.now().UTC(),
	}
	logger := o.logger.With().Str("run_id", summary.RunID).Logger()
	ctx, span := o.tracer.Start(ctx, "sync.run", trace.WithAttributes(attribute.String("run_id", summary.RunID)))
	defer span.End()

	logger.Info().Int("tables", len(o.tables)).Msg("sync run started")

	merged := make(map[string]models.TableResult, len(o.tables))
	err := retry.Do(ctx, o.retry.backoff(), func(ctx context.Context) error {
		summary.Attempts++
		results, err := o.runOnce(ctx, logger)
		for _, res := range results {
			merged[res.Table] = mergeResult(merged[res.Table], res)
		}
		if err != nil {
			if IsConnectionError(err) {
				metrics.SyncRunRetries.Inc()
				logger.Warn().Err(err).Int("attempt", summary.Attempts).Msg("sync run failed to reach a store, will retry")
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})

	summary.FinishedAt = o.now().UTC()
	for _, table := range o.tables {
		if res, ok := merged[table.Source]; ok {
			summary.Tables = append(summary.Tables, res)
			summary.TotalRows += res.Rows
		}
	}
	if err != nil {
		summary.Status = models.RunStatusFatalError
		summary.Error = repository.TruncateError(err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "fatal")
		logger.Error().Err(err).Int("attempts", summary.Attempts).Msg("sync run ended fatally")
		if o.notifier != nil {
			if nerr := o.notifier.NotifySyncRunFatal(ctx, summary.RunID, summary.Error); nerr != nil {
				logger.Warn().Err(nerr).Msg("failed to publish fatal run notification")
			}
		}
	} else {
		summary.Status = models.RunStatusCompleted
		logger.Info().
			Int("total_rows", summary.TotalRows).
			Int("failed_tables", len(summary.Failed())).
			Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
			Msg("sync run completed")
	}
	metrics.SyncRunDuration.WithLabelValues(string(summary.Status)).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	return summary, nil
}

// mergeResult folds the result of a later attempt into the one recorded earlier in the same
// run. Rows committed by any attempt are counted; an idle table that already moved rows stays ok.
func mergeResult(prev, next models.TableResult) models.TableResult {
	if prev.Table == "" {
		return next
	}
	next.Rows += prev.Rows
	if next.Status == models.SyncStatusIdle && prev.Status == models.SyncStatusOK {
		next.Status = models.SyncStatusOK
	}
	return next
}

// runOnce acquires both stores, syncs every table and releases the warehouse session on return.
// When an attempt is cut short the results of the tables it got through are still returned.
func (o *Orchestrator) runOnce(ctx context.Context, logger zerolog.Logger) ([]models.TableResult, error) {
	if err := o.checkSource(ctx); err != nil {
		return nil, err
	}
	sess, err := o.warehouse.Session(ctx)
	if err != nil {
		return nil, connectionFailure("acquire warehouse session", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to release warehouse session")
		}
	}()

	results := make([]models.TableResult, 0, len(o.tables))
	for _, table := range o.tables {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, cause := o.syncTable(ctx, sess, table, logger)
		results = append(results, res)
		// A table that failed because a store went away fails the whole attempt, provided the
		// store is still unreachable.
		if cause != nil && IsConnectionError(cause) {
			if err := o.checkSource(ctx); err != nil {
				return results, err
			}
		}
		if o.progress != nil {
			o.progress(res)
		}
	}
	return results, nil
}

func (o *Orchestrator) checkSource(ctx context.Context) error {
	if err := o.source.Ping(ctx); err != nil {
		return connectionFailure("reach operational store", err)
	}
	return nil
}

// syncTable moves one batch of table and returns its tagged result, plus the underlying error
// when the result is an error.
func (o *Orchestrator) syncTable(ctx context.Context, sess Session, table models.TableConfig, logger zerolog.Logger) (models.TableResult, error) {
	ctx, span := o.tracer.Start(ctx, "sync.table", trace.WithAttributes(
		attribute.String("table", table.Source),
		attribute.String("target", table.Target),
	))
	defer span.End()

	logger = logger.With().Str("table", table.Source).Logger()

	since, err := o.store.Get(ctx, table.Source)
	if err != nil {
		// Without the previous watermark there is nothing safe to write back.
		return o.fail(ctx, span, logger, table, nil, errors.Wrap(err, "read watermark")), err
	}

	rows, err := o.source.FetchChanged(ctx, table, since)
	if err != nil {
		return o.fail(ctx, span, logger, table, &since, err), err
	}

	if len(rows) == 0 {
		if err := o.store.Set(ctx, models.WatermarkUpdate{
			Table:     table.Source,
			Watermark: since,
			Status:    models.SyncStatusIdle,
		}); err != nil {
			return o.fail(ctx, span, logger, table, &since, err), err
		}
		o.observe(table, models.SyncStatusIdle, 0, since)
		logger.Debug().Time("watermark", since).Msg("no changes")
		return models.TableResult{Table: table.Source, Status: models.SyncStatusIdle}, nil
	}

	next, batch, err := prepareBatch(table, rows)
	if err != nil {
		return o.fail(ctx, span, logger, table, &since, err), err
	}
	if err := sess.Upsert(ctx, table.Target, batch, table.PK); err != nil {
		return o.fail(ctx, span, logger, table, &since, err), err
	}
	if err := o.store.Set(ctx, models.WatermarkUpdate{
		Table:         table.Source,
		Watermark:     next,
		RowsProcessed: len(batch),
		Status:        models.SyncStatusOK,
	}); err != nil {
		return o.fail(ctx, span, logger, table, &since, errors.Wrap(err, "batch merged but watermark not advanced")), err
	}

	o.observe(table, models.SyncStatusOK, len(batch), next)
	span.SetAttributes(attribute.Int("rows", len(batch)))
	logger.Info().Int("rows", len(batch)).Time("from", since).Time("to", next).Msg("table synced")
	return models.TableResult{Table: table.Source, Status: models.SyncStatusOK, Rows: len(batch)}, nil
}

// prepareBatch finds the new watermark and serializes every row.
func prepareBatch(table models.TableConfig, rows []models.Row) (time.Time, []models.Row, error) {
	var next time.Time
	batch := make([]models.Row, len(rows))
	for i, row := range rows {
		if !row.SameShape(rows[0]) {
			return time.Time{}, nil, errors.Errorf("row %d has a different column set", i)
		}
		wm, err := row.Time(table.WatermarkColumn)
		if err != nil {
			return time.Time{}, nil, err
		}
		if wm.After(next) {
			next = wm
		}
		if batch[i], err = serializer.Row(row); err != nil {
			return time.Time{}, nil, errors.Wrapf(err, "serialize row %d", i)
		}
	}
	return next.UTC(), batch, nil
}

// fail records a table error. The previous watermark is written back so the next run retries
// the same window; a failure of that write is logged and otherwise ignored.
func (o *Orchestrator) fail(ctx context.Context, span trace.Span, logger zerolog.Logger, table models.TableConfig, previous *time.Time, cause error) models.TableResult {
	msg := repository.TruncateError(cause.Error())
	span.RecordError(cause)
	span.SetStatus(codes.Error, "table sync failed")
	logger.Error().Err(cause).Msg("table sync failed")

	if previous != nil {
		if err := o.store.Set(ctx, models.WatermarkUpdate{
			Table:     table.Source,
			Watermark: *previous,
			Status:    models.SyncStatusError,
			Error:     msg,
		}); err != nil {
			logger.Warn().Err(err).Msg("failed to record table error")
		}
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyTableSyncFailed(ctx, table.Source, msg); err != nil {
			logger.Warn().Err(err).Msg("failed to publish table failure notification")
		}
	}
	metrics.SyncTableResults.WithLabelValues(table.Source, string(models.SyncStatusError)).Inc()
	return models.TableResult{Table: table.Source, Status: models.SyncStatusError, Error: msg}
}

func (o *Orchestrator) observe(table models.TableConfig, status models.SyncStatus, rows int, watermark time.Time) {
	metrics.SyncTableResults.WithLabelValues(table.Source, string(status)).Inc()
	if rows > 0 {
		metrics.SyncRowsTotal.WithLabelValues(table.Source).Add(float64(rows))
	}
	metrics.SyncWatermarkLag.WithLabelValues(table.Source).Set(o.now().Sub(watermark).Seconds())
}
