package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

// MaxErrorLength bounds the error text stored with a watermark.
const MaxErrorLength = 2000

type WatermarkRepository interface {
	Get(ctx context.Context, table string) (time.Time, error)
	Set(ctx context.Context, update models.WatermarkUpdate) error
	List(ctx context.Context) ([]models.SyncWatermark, error)
}

type watermarkRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewWatermarkRepository(db *sql.DB) WatermarkRepository {
	return &watermarkRepository{db: db, now: time.Now}
}

// Get returns the stored watermark of table in UTC, or models.Epoch when the table has never
// been synced.
func (r *watermarkRepository) Get(ctx context.Context, table string) (time.Time, error) {
	const query = `SELECT last_watermark FROM sync_watermarks WHERE source_table = $1`

	var raw any
	err := r.db.QueryRowContext(ctx, query, table).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Epoch, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "read watermark for %s", table)
	}
	return ParseWatermark(raw)
}

// Set upserts the watermark row for update.Table. The stored watermark never moves backwards,
// so a late write from an overlapping run cannot undo a newer one.
func (r *watermarkRepository) Set(ctx context.Context, update models.WatermarkUpdate) error {
	const query = `
		INSERT INTO sync_watermarks (source_table, last_watermark, last_run, rows_synced, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_table) DO UPDATE SET
			last_watermark = GREATEST(sync_watermarks.last_watermark, EXCLUDED.last_watermark),
			last_run       = EXCLUDED.last_run,
			rows_synced    = EXCLUDED.rows_synced,
			status         = EXCLUDED.status,
			error_message  = EXCLUDED.error_message
	`

	var errMsg sql.NullString
	if update.Error != "" {
		errMsg = sql.NullString{String: TruncateError(update.Error), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		update.Table,
		update.Watermark.UTC(),
		r.now().UTC(),
		update.RowsProcessed,
		string(update.Status),
		errMsg,
	)
	if err != nil {
		return errors.Wrapf(err, "write watermark for %s", update.Table)
	}
	return nil
}

func (r *watermarkRepository) List(ctx context.Context) ([]models.SyncWatermark, error) {
	const query = `
		SELECT source_table, last_watermark, last_run, rows_synced, status, error_message
		FROM sync_watermarks
		ORDER BY source_table
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list watermarks")
	}
	defer rows.Close()

	var out []models.SyncWatermark
	for rows.Next() {
		var (
			wm      models.SyncWatermark
			status  string
			errText sql.NullString
		)
		if err := rows.Scan(&wm.SourceTable, &wm.LastWatermark, &wm.LastRun, &wm.RowsProcessed, &status, &errText); err != nil {
			return nil, err
		}
		wm.LastWatermark = wm.LastWatermark.UTC()
		wm.LastRun = wm.LastRun.UTC()
		wm.Status = models.SyncStatus(status)
		if errText.Valid {
			msg := errText.String
			wm.LastError = &msg
		}
		out = append(out, wm)
	}
	return out, rows.Err()
}

// ParseWatermark coerces a stored watermark to UTC. Values without zone information, whether
// scanned as times or strings, are taken to be UTC already.
func ParseWatermark(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case []byte:
		return parseWatermarkString(string(v))
	case string:
		return parseWatermarkString(v)
	case nil:
		return models.Epoch, nil
	}
	return time.Time{}, errors.Errorf("unexpected watermark type %T", raw)
}

var watermarkLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseWatermarkString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range watermarkLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unparseable watermark %q", s)
}

// TruncateError shortens msg to MaxErrorLength characters.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLength {
		return msg
	}
	runes := []rune(msg)
	if len(runes) <= MaxErrorLength {
		return msg
	}
	return string(runes[:MaxErrorLength])
}
