// Package serializer converts values read from the operational store into scalars the
// warehouse can stage as text.
package serializer

import (
	"encoding"
	"reflect"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

// ErrUnsupportedType is returned for values with no warehouse representation.
var ErrUnsupportedType = errors.New("unsupported value type")

const (
	timestampLayout      = "2006-01-02T15:04:05"
	timestampMicroLayout = "2006-01-02T15:04:05.000000"
)

// Value returns the warehouse-safe form of v.
func Value(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, nil
	case uuid.UUID:
		return val.String(), nil
	case *uuid.UUID:
		if val == nil {
			return nil, nil
		}
		return val.String(), nil
	case uuid.NullUUID:
		if !val.Valid {
			return nil, nil
		}
		return val.UUID.String(), nil
	case time.Time:
		return Timestamp(val), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return Timestamp(*val), nil
	case json.RawMessage:
		return compactJSON(val)
	case []byte:
		return nil, errors.Wrapf(ErrUnsupportedType, "raw bytes (%d)", len(val))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %T as json", v)
		}
		return string(b), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return Value(rv.Elem().Interface())
	}
	if tm, ok := v.(encoding.TextMarshaler); ok {
		b, err := tm.MarshalText()
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %T as text", v)
		}
		return string(b), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "%T", v)
}

// Timestamp renders t in UTC without an offset suffix. Sub-second precision is kept to the
// microsecond so that every rendered value sorts lexically in time order.
func Timestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format(timestampLayout)
	}
	return t.Truncate(time.Microsecond).Format(timestampMicroLayout)
}

// Row serializes every value of row, keeping column order.
func Row(row models.Row) (models.Row, error) {
	out := models.Row{
		Columns: row.Columns,
		Values:  make([]any, len(row.Values)),
	}
	for i, v := range row.Values {
		sv, err := Value(v)
		if err != nil {
			return models.Row{}, errors.Wrapf(err, "column %s", row.Columns[i])
		}
		out.Values[i] = sv
	}
	return out, nil
}

func compactJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "invalid json value")
	}
	b, err := json.Marshal(parsed)
	if err != nil {
		return nil, errors.Wrap(err, "re-encode json value")
	}
	return string(b), nil
}
