package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

// ErrTieGroupTooLarge is returned when more rows share one watermark value than the table's
// tie group limit allows. Those rows cannot be split across batches without skipping some.
var ErrTieGroupTooLarge = errors.New("too many rows share one watermark value")

// SourceRepository reads changed rows from the operational store.
type SourceRepository interface {
	FetchChanged(ctx context.Context, table models.TableConfig, since time.Time) ([]models.Row, error)
	Ping(ctx context.Context) error
}

type sourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) SourceRepository {
	return &sourceRepository{db: db}
}

func (r *sourceRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FetchChanged returns up to table.BatchSize rows whose watermark column is strictly after
// since, ascending by watermark and then primary key. When the batch is full, every row sharing
// the last watermark value is included so the next run, which starts strictly after that value,
// cannot skip any of them. The batch may therefore exceed BatchSize by the size of that group,
// which is bounded by the table's TieGroupLimit.
func (r *sourceRepository) FetchChanged(ctx context.Context, table models.TableConfig, since time.Time) ([]models.Row, error) {
	limit := table.BatchSize
	if limit <= 0 {
		return nil, errors.Errorf("table %s: batch size must be positive", table.Source)
	}

	rows, err := r.query(ctx, changedRowsQuery(table), since.UTC(), limit)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch changed rows from %s", table.Source)
	}
	if len(rows) < limit {
		return rows, nil
	}

	boundary, err := rows[len(rows)-1].Time(table.WatermarkColumn)
	if err != nil {
		return nil, err
	}
	cut := len(rows)
	for cut > 0 {
		wm, err := rows[cut-1].Time(table.WatermarkColumn)
		if err != nil {
			return nil, err
		}
		if !wm.Equal(boundary) {
			break
		}
		cut--
	}

	maxGroup := table.TieGroupLimit()
	group, err := r.query(ctx, boundaryRowsQuery(table), boundary, maxGroup+1)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch boundary rows from %s", table.Source)
	}
	if len(group) > maxGroup {
		return nil, errors.Wrapf(ErrTieGroupTooLarge, "table %s: more than %d rows have %s = %s; raise max_tie_group",
			table.Source, maxGroup, table.WatermarkColumn, boundary.UTC().Format(time.RFC3339Nano))
	}
	return append(rows[:cut], group...), nil
}

func (r *sourceRepository) query(ctx context.Context, query string, args ...any) ([]models.Row, error) {
	rs, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rs.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []models.Row
	for rs.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeScanned(types[i].DatabaseTypeName(), v)
		}
		out = append(out, models.Row{Columns: cols, Values: values})
	}
	return out, rs.Err()
}

// normalizeScanned turns the driver's text representation of identifier and document columns
// into typed values the serializer understands.
func normalizeScanned(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	dbType = strings.ToUpper(dbType)
	if elem, ok := strings.CutPrefix(dbType, "_"); ok {
		if arr, err := scanArray(elem, b); err == nil {
			return arr
		}
		return string(b)
	}
	switch dbType {
	case "UUID":
		if id, err := uuid.ParseBytes(b); err == nil {
			return id
		}
		return string(b)
	case "JSON", "JSONB":
		return json.RawMessage(append([]byte(nil), b...))
	case "BYTEA":
		return append([]byte(nil), b...)
	}
	return string(b)
}

// scanArray parses a one-dimensional Postgres array literal into a slice whose elements are
// typed by elem, the array's element type name. NULL elements become nil.
func scanArray(elem string, b []byte) ([]any, error) {
	var texts []sql.NullString
	if err := (pq.GenericArray{A: &texts}).Scan(b); err != nil {
		return nil, err
	}
	out := make([]any, len(texts))
	for i, t := range texts {
		if !t.Valid {
			continue
		}
		v, err := arrayElement(elem, t.String)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d of %s[]", i, strings.ToLower(elem))
		}
		out[i] = v
	}
	return out, nil
}

func arrayElement(elem, text string) (any, error) {
	switch elem {
	case "INT2", "INT4", "INT8", "OID":
		return strconv.ParseInt(text, 10, 64)
	case "FLOAT4", "FLOAT8", "NUMERIC":
		return strconv.ParseFloat(text, 64)
	case "BOOL":
		return strconv.ParseBool(text)
	case "JSON", "JSONB":
		return json.RawMessage(text), nil
	}
	return text, nil
}

func changedRowsQuery(table models.TableConfig) string {
	wm := pq.QuoteIdentifier(table.WatermarkColumn)
	return fmt.Sprintf(
		"SELECT * FROM %s WHERE %s > $1 ORDER BY %s ASC, %s LIMIT $2",
		QuoteQualified(table.Source), wm, wm, orderByKeys(table.PK),
	)
}

func boundaryRowsQuery(table models.TableConfig) string {
	return fmt.Sprintf(
		"SELECT * FROM %s WHERE %s = $1 ORDER BY %s LIMIT $2",
		QuoteQualified(table.Source), pq.QuoteIdentifier(table.WatermarkColumn), orderByKeys(table.PK),
	)
}

func orderByKeys(pk []string) string {
	parts := make([]string, len(pk))
	for i, col := range pk {
		parts[i] = pq.QuoteIdentifier(col) + " ASC"
	}
	return strings.Join(parts, ", ")
}

// QuoteQualified quotes a possibly schema-qualified table name.
func QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
