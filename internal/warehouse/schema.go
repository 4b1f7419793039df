package warehouse

import (
	"context"

	"github.com/pkg/errors"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS metrics_adherence (
		user_id               VARCHAR NOT NULL,
		metric_date           DATE NOT NULL,
		adherence_7d          DOUBLE,
		adherence_30d         DOUBLE,
		adherence_90d         DOUBLE,
		checkins_completed_7d INTEGER,
		checkins_total_7d     INTEGER,
		created_at            TIMESTAMP,
		PRIMARY KEY (user_id, metric_date)
	)`,
	`CREATE TABLE IF NOT EXISTS metrics_streak (
		user_id         VARCHAR PRIMARY KEY,
		current_streak  INTEGER NOT NULL,
		longest_streak  INTEGER NOT NULL,
		last_completion TIMESTAMP,
		last_updated    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS metrics_risk (
		user_id               VARCHAR PRIMARY KEY,
		risk_level            VARCHAR NOT NULL,
		risk_score            DOUBLE NOT NULL,
		missed_count_3d       INTEGER NOT NULL,
		missed_count_7d       INTEGER NOT NULL,
		last_checkin_days_ago INTEGER NOT NULL,
		last_evaluated        TIMESTAMP NOT NULL
	)`,
}

// EnsureSchema creates the metrics tables analytics computations write to.
func (w *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create warehouse schema")
		}
	}
	w.logger.Debug().Int("tables", len(schemaStatements)).Msg("warehouse schema ready")
	return nil
}
