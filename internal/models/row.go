package models

import (
	"time"

	"github.com/pkg/errors"
)

// Row is one extracted source row. Columns keeps the order returned by the source query and
// Values is aligned with it.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// SameShape reports whether both rows carry the same columns in the same order.
func (r Row) SameShape(other Row) bool {
	if len(r.Columns) != len(other.Columns) {
		return false
	}
	for i := range r.Columns {
		if r.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// Time returns the named column as a time. Watermark columns must scan as timestamps.
func (r Row) Time(column string) (time.Time, error) {
	v, ok := r.Get(column)
	if !ok {
		return time.Time{}, errors.Errorf("column %q not in row", column)
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	}
	return time.Time{}, errors.Errorf("column %q holds %T, not a timestamp", column, v)
}
