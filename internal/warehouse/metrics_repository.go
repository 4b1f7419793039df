package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/SomaOhm/Goal-Tracking-App/internal/config"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

const timestampParam = "2006-01-02 15:04:05.999999"

// adherenceColumns maps a trailing window in days to its metrics_adherence column.
var adherenceColumns = map[int]string{
	7:  "adherence_7d",
	30: "adherence_30d",
	90: "adherence_90d",
}

// MetricsRepository reads check-in facts and writes per-user metrics. The fact table is
// whatever sync lands, so every fact column is cast at read time.
type MetricsRepository interface {
	CheckinTotals(ctx context.Context, since time.Time) ([]models.CheckinTotals, error)
	UpsertAdherence(ctx context.Context, metricDate time.Time, window int, rows []models.AdherenceMetric) error
	RiskInputs(ctx context.Context, since3d, since7d time.Time) ([]models.RiskInput, error)
	UpsertRisk(ctx context.Context, rows []models.RiskMetric) error
	CheckinHistories(ctx context.Context) ([]models.CheckinHistory, error)
	UpsertStreaks(ctx context.Context, rows []models.StreakMetric) error
	UserMetrics(ctx context.Context, userID string) (*models.UserMetrics, error)
	UsersAtRisk(ctx context.Context, level string, limit int) ([]models.RiskMetric, error)
}

type metricsRepository struct {
	db *sql.DB

	table     string
	user      string
	completed string
	timestamp string
}

func NewMetricsRepository(w *DB, cfg config.AnalyticsConfig) MetricsRepository {
	return &metricsRepository{
		db:        w.db,
		table:     quoteQualified(cfg.CheckinsTable),
		user:      pq.QuoteIdentifier(cfg.UserColumn),
		completed: pq.QuoteIdentifier(cfg.CompletedColumn),
		timestamp: pq.QuoteIdentifier(cfg.TimestampColumn),
	}
}

func (r *metricsRepository) completedExpr() string {
	return fmt.Sprintf("COALESCE(TRY_CAST(%s AS BOOLEAN), false)", r.completed)
}

func (r *metricsRepository) timestampExpr() string {
	return fmt.Sprintf("TRY_CAST(%s AS TIMESTAMP)", r.timestamp)
}

// CheckinTotals returns, for every user in the fact table, total and completed check-ins at or
// after since. Users with nothing in the window are reported with zero counts.
func (r *metricsRepository) CheckinTotals(ctx context.Context, since time.Time) ([]models.CheckinTotals, error) {
	query := fmt.Sprintf(`
		WITH users AS (
			SELECT DISTINCT CAST(%[1]s AS VARCHAR) AS user_id FROM %[2]s WHERE %[1]s IS NOT NULL
		), windowed AS (
			SELECT CAST(%[1]s AS VARCHAR) AS user_id,
			       COUNT(*) AS total,
			       COUNT(*) FILTER (WHERE %[3]s) AS completed
			FROM %[2]s
			WHERE %[4]s >= CAST(? AS TIMESTAMP)
			GROUP BY 1
		)
		SELECT users.user_id, COALESCE(windowed.total, 0), COALESCE(windowed.completed, 0)
		FROM users LEFT JOIN windowed USING (user_id)
		ORDER BY users.user_id`,
		r.user, r.table, r.completedExpr(), r.timestampExpr())

	rows, err := r.db.QueryContext(ctx, query, since.UTC().Format(timestampParam))
	if err != nil {
		return nil, errors.Wrap(err, "query check-in totals")
	}
	defer rows.Close()

	var out []models.CheckinTotals
	for rows.Next() {
		var t models.CheckinTotals
		if err := rows.Scan(&t.UserID, &t.Total, &t.Completed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertAdherence writes one window column for each user on metricDate. Other window columns of
// an existing row are left as they are.
func (r *metricsRepository) UpsertAdherence(ctx context.Context, metricDate time.Time, window int, rows []models.AdherenceMetric) error {
	column, ok := adherenceColumns[window]
	if !ok {
		return errors.Errorf("no adherence column for %d-day window", window)
	}

	var query string
	if window == 7 {
		query = `
			INSERT INTO metrics_adherence (user_id, metric_date, adherence_7d, checkins_completed_7d, checkins_total_7d, created_at)
			VALUES (?, CAST(? AS DATE), ?, ?, ?, CAST(? AS TIMESTAMP))
			ON CONFLICT (user_id, metric_date) DO UPDATE SET
				adherence_7d = EXCLUDED.adherence_7d,
				checkins_completed_7d = EXCLUDED.checkins_completed_7d,
				checkins_total_7d = EXCLUDED.checkins_total_7d`
	} else {
		query = fmt.Sprintf(`
			INSERT INTO metrics_adherence (user_id, metric_date, %[1]s, created_at)
			VALUES (?, CAST(? AS DATE), ?, CAST(? AS TIMESTAMP))
			ON CONFLICT (user_id, metric_date) DO UPDATE SET %[1]s = EXCLUDED.%[1]s`, column)
	}

	date := metricDate.UTC().Format("2006-01-02")
	created := time.Now().UTC().Format(timestampParam)
	return r.inTx(ctx, query, len(rows), func(i int) []any {
		m := rows[i]
		if window == 7 {
			return []any{m.UserID, date, m.Percentage, m.Completed, m.Total, created}
		}
		return []any{m.UserID, date, m.Percentage, created}
	})
}

// RiskInputs returns per-user missed counts since each cutoff and the latest check-in time.
func (r *metricsRepository) RiskInputs(ctx context.Context, since3d, since7d time.Time) ([]models.RiskInput, error) {
	query := fmt.Sprintf(`
		SELECT CAST(%[1]s AS VARCHAR) AS user_id,
		       COUNT(*) FILTER (WHERE NOT %[3]s AND %[4]s >= CAST(? AS TIMESTAMP)) AS missed_3d,
		       COUNT(*) FILTER (WHERE NOT %[3]s AND %[4]s >= CAST(? AS TIMESTAMP)) AS missed_7d,
		       MAX(%[4]s) AS last_checkin
		FROM %[2]s
		WHERE %[1]s IS NOT NULL
		GROUP BY 1
		ORDER BY 1`,
		r.user, r.table, r.completedExpr(), r.timestampExpr())

	rows, err := r.db.QueryContext(ctx, query,
		since3d.UTC().Format(timestampParam), since7d.UTC().Format(timestampParam))
	if err != nil {
		return nil, errors.Wrap(err, "query risk inputs")
	}
	defer rows.Close()

	var out []models.RiskInput
	for rows.Next() {
		var (
			in   models.RiskInput
			last sql.NullTime
		)
		if err := rows.Scan(&in.UserID, &in.Missed3d, &in.Missed7d, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			t := last.Time.UTC()
			in.LastCheckinAt = &t
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *metricsRepository) UpsertRisk(ctx context.Context, rows []models.RiskMetric) error {
	const query = `
		INSERT INTO metrics_risk (user_id, risk_level, risk_score, missed_count_3d, missed_count_7d, last_checkin_days_ago, last_evaluated)
		VALUES (?, ?, ?, ?, ?, ?, CAST(? AS TIMESTAMP))
		ON CONFLICT (user_id) DO UPDATE SET
			risk_level = EXCLUDED.risk_level,
			risk_score = EXCLUDED.risk_score,
			missed_count_3d = EXCLUDED.missed_count_3d,
			missed_count_7d = EXCLUDED.missed_count_7d,
			last_checkin_days_ago = EXCLUDED.last_checkin_days_ago,
			last_evaluated = EXCLUDED.last_evaluated`

	return r.inTx(ctx, query, len(rows), func(i int) []any {
		m := rows[i]
		return []any{m.UserID, m.Level, m.Score, m.Missed3d, m.Missed7d, m.LastCheckinDaysAgo,
			m.EvaluatedAt.UTC().Format(timestampParam)}
	})
}

// CheckinHistories returns every user's check-in outcomes, newest first.
func (r *metricsRepository) CheckinHistories(ctx context.Context) ([]models.CheckinHistory, error) {
	query := fmt.Sprintf(`
		SELECT CAST(%[1]s AS VARCHAR) AS user_id, %[3]s AS completed, %[4]s AS ts
		FROM %[2]s
		WHERE %[1]s IS NOT NULL
		ORDER BY 1, 3 DESC NULLS LAST`,
		r.user, r.table, r.completedExpr(), r.timestampExpr())

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query check-in history")
	}
	defer rows.Close()

	var out []models.CheckinHistory
	for rows.Next() {
		var (
			userID    string
			completed bool
			ts        sql.NullTime
		)
		if err := rows.Scan(&userID, &completed, &ts); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].UserID != userID {
			out = append(out, models.CheckinHistory{UserID: userID})
		}
		h := &out[len(out)-1]
		h.Completed = append(h.Completed, completed)
		if completed && h.LastCompletion == nil && ts.Valid {
			t := ts.Time.UTC()
			h.LastCompletion = &t
		}
	}
	return out, rows.Err()
}

func (r *metricsRepository) UpsertStreaks(ctx context.Context, rows []models.StreakMetric) error {
	const query = `
		INSERT INTO metrics_streak (user_id, current_streak, longest_streak, last_completion, last_updated)
		VALUES (?, ?, ?, CAST(? AS TIMESTAMP), CAST(? AS TIMESTAMP))
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_completion = EXCLUDED.last_completion,
			last_updated = EXCLUDED.last_updated`

	return r.inTx(ctx, query, len(rows), func(i int) []any {
		m := rows[i]
		var last any
		if m.LastCompletion != nil {
			last = m.LastCompletion.UTC().Format(timestampParam)
		}
		return []any{m.UserID, m.CurrentStreak, m.LongestStreak, last, m.UpdatedAt.UTC().Format(timestampParam)}
	})
}

// UserMetrics returns the latest adherence row plus the streak and risk rows of userID. Families
// that have not been computed yet are nil.
func (r *metricsRepository) UserMetrics(ctx context.Context, userID string) (*models.UserMetrics, error) {
	out := &models.UserMetrics{UserID: userID}

	const adherenceQuery = `
		SELECT metric_date, adherence_7d, adherence_30d, adherence_90d
		FROM metrics_adherence WHERE user_id = ?
		ORDER BY metric_date DESC LIMIT 1`
	var (
		snap         models.AdherenceSnapshot
		a7, a30, a90 sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, adherenceQuery, userID).Scan(&snap.MetricDate, &a7, &a30, &a90)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "read adherence")
	default:
		snap.Adherence7d, snap.Adherence30d, snap.Adherence90d = nullFloat(a7), nullFloat(a30), nullFloat(a90)
		out.Adherence = &snap
	}

	const streakQuery = `
		SELECT user_id, current_streak, longest_streak, last_completion, last_updated
		FROM metrics_streak WHERE user_id = ?`
	var (
		streak models.StreakMetric
		last   sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, streakQuery, userID).Scan(&streak.UserID, &streak.CurrentStreak, &streak.LongestStreak, &last, &streak.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "read streak")
	default:
		if last.Valid {
			t := last.Time
			streak.LastCompletion = &t
		}
		out.Streak = &streak
	}

	risk, err := scanRisk(r.db.QueryRowContext(ctx, riskSelect+` WHERE user_id = ?`, userID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "read risk")
	default:
		out.Risk = &risk
	}
	return out, nil
}

const riskSelect = `
	SELECT user_id, risk_level, risk_score, missed_count_3d, missed_count_7d, last_checkin_days_ago, last_evaluated
	FROM metrics_risk`

// UsersAtRisk lists users at level, highest score first.
func (r *metricsRepository) UsersAtRisk(ctx context.Context, level string, limit int) ([]models.RiskMetric, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, riskSelect+` WHERE risk_level = ? ORDER BY risk_score DESC, user_id LIMIT ?`, level, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query users at risk")
	}
	defer rows.Close()

	var out []models.RiskMetric
	for rows.Next() {
		m, err := scanRisk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanRisk(scanner interface {
	Scan(dest ...interface{}) error
}) (models.RiskMetric, error) {
	var m models.RiskMetric
	err := scanner.Scan(&m.UserID, &m.Level, &m.Score, &m.Missed3d, &m.Missed7d, &m.LastCheckinDaysAgo, &m.EvaluatedAt)
	return m, err
}

// inTx executes query once per row inside a single transaction.
func (r *metricsRepository) inTx(ctx context.Context, query string, n int, args func(i int) []any) (err error) {
	if n == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin metrics transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return errors.Wrap(err, "prepare metrics upsert")
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err = stmt.ExecContext(ctx, args(i)...); err != nil {
			return errors.Wrap(err, "upsert metrics row")
		}
	}
	return tx.Commit()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
