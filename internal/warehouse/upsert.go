package warehouse

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

var (
	// ErrMissingKey is returned when a batch row lacks a primary key column or value.
	ErrMissingKey = errors.New("row is missing a primary key value")
	// ErrMixedColumns is returned when rows of one batch do not share a column set.
	ErrMixedColumns = errors.New("batch rows have differing columns")
)

// maxInsertParams caps bind parameters per staging INSERT statement.
const maxInsertParams = 30000

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Upsert merges rows into target keyed on pk. The staging load and MERGE run in one
// transaction, so readers see either the whole batch or none of it. Applying the same batch
// twice leaves the target unchanged after the first application.
func (s *Session) Upsert(ctx context.Context, target string, rows []models.Row, pk []string) (err error) {
	if len(rows) == 0 {
		return nil
	}
	plan, err := planUpsert(target, rows, pk)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin warehouse transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, plan.createStaging); err != nil {
		return errors.Wrapf(err, "create staging table for %s", target)
	}
	for _, chunk := range plan.inserts {
		if _, err = tx.ExecContext(ctx, chunk.query, chunk.args...); err != nil {
			return errors.Wrapf(err, "load staging table for %s", target)
		}
	}
	if _, err = tx.ExecContext(ctx, plan.createTarget); err != nil {
		return errors.Wrapf(err, "create target table %s", target)
	}
	if _, err = tx.ExecContext(ctx, plan.merge); err != nil {
		return errors.Wrapf(err, "merge into %s", target)
	}
	if _, err = tx.ExecContext(ctx, plan.dropStaging); err != nil {
		return errors.Wrapf(err, "drop staging table for %s", target)
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit merge into %s", target)
	}

	s.logger.Debug().Str("target", target).Int("rows", len(rows)).Msg("batch merged")
	return nil
}

type statement struct {
	query string
	args  []any
}

type upsertPlan struct {
	createStaging string
	inserts       []statement
	createTarget  string
	merge         string
	dropStaging   string
}

func planUpsert(target string, rows []models.Row, pk []string) (*upsertPlan, error) {
	if len(pk) == 0 {
		return nil, errors.Wrapf(ErrMissingKey, "no primary key configured for %s", target)
	}
	cols := rows[0].Columns
	if len(cols) == 0 {
		return nil, errors.Errorf("rows for %s have no columns", target)
	}

	keyIdx := make([]int, len(pk))
	for i, k := range pk {
		keyIdx[i] = indexOf(cols, k)
		if keyIdx[i] < 0 {
			return nil, errors.Wrapf(ErrMissingKey, "column %s absent from %s batch", k, target)
		}
	}
	for n, r := range rows {
		if !r.SameShape(rows[0]) {
			return nil, errors.Wrapf(ErrMixedColumns, "row %d of %s batch", n, target)
		}
		for i, idx := range keyIdx {
			if r.Values[idx] == nil {
				return nil, errors.Wrapf(ErrMissingKey, "row %d of %s batch has null %s", n, target, pk[i])
			}
		}
	}

	staging := pq.QuoteIdentifier(stagingName(target))
	quotedTarget := quoteQualified(target)
	quotedCols := make([]string, len(cols))
	for i, c := range cols {
		quotedCols[i] = pq.QuoteIdentifier(c)
	}

	plan := &upsertPlan{
		createStaging: fmt.Sprintf("CREATE OR REPLACE TEMPORARY TABLE %s (%s)", staging, columnDefs(quotedCols, nil)),
		createTarget:  fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quotedTarget, columnDefs(quotedCols, pk)),
		merge:         mergeStatement(quotedTarget, staging, cols, pk),
		dropStaging:   fmt.Sprintf("DROP TABLE IF EXISTS %s", staging),
	}

	perStatement := maxInsertParams / len(cols)
	if perStatement < 1 {
		perStatement = 1
	}
	for start := 0; start < len(rows); start += perStatement {
		end := start + perStatement
		if end > len(rows) {
			end = len(rows)
		}
		plan.inserts = append(plan.inserts, insertStatement(staging, quotedCols, rows[start:end]))
	}
	return plan, nil
}

func columnDefs(quotedCols []string, pk []string) string {
	defs := make([]string, len(quotedCols), len(quotedCols)+1)
	for i, c := range quotedCols {
		defs[i] = c + " VARCHAR"
	}
	if len(pk) > 0 {
		keys := make([]string, len(pk))
		for i, k := range pk {
			keys[i] = pq.QuoteIdentifier(k)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return strings.Join(defs, ", ")
}

func insertStatement(staging string, quotedCols []string, rows []models.Row) statement {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(quotedCols)), ", ") + ")"
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(quotedCols))
	for i, r := range rows {
		tuples[i] = placeholder
		for _, v := range r.Values {
			args = append(args, stagingValue(v))
		}
	}
	return statement{
		query: fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", staging, strings.Join(quotedCols, ", "), strings.Join(tuples, ", ")),
		args:  args,
	}
}

func mergeStatement(target, staging string, cols, pk []string) string {
	on := make([]string, len(pk))
	for i, k := range pk {
		q := pq.QuoteIdentifier(k)
		on[i] = fmt.Sprintf("t.%s = s.%s", q, q)
	}

	var sets, insertCols, insertVals []string
	for _, c := range cols {
		q := pq.QuoteIdentifier(c)
		insertCols = append(insertCols, q)
		insertVals = append(insertVals, "s."+q)
		if indexOf(pk, c) < 0 {
			sets = append(sets, fmt.Sprintf("%s = s.%s", q, q))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s AS t USING %s AS s ON (%s)", target, staging, strings.Join(on, " AND "))
	if len(sets) > 0 {
		fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)", strings.Join(insertCols, ", "), strings.Join(insertVals, ", "))
	return b.String()
}

// stagingValue renders a serialized value for a VARCHAR staging column.
func stagingValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.UTC().Format("2006-01-02T15:04:05.999999")
	}
	return fmt.Sprint(v)
}

func stagingName(target string) string {
	return "staging_" + strings.Trim(nonIdent.ReplaceAllString(target, "_"), "_")
}

func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func indexOf(values []string, want string) int {
	for i, v := range values {
		if v == want {
			return i
		}
	}
	return -1
}
