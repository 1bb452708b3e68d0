package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is one materialized record keyed by column name. Values are string,
// int64, float64, time.Time or nil for nullable columns.
type Row map[string]any

// String returns the text value of col, or "" when missing.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the integer value of col, truncating floats.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Float returns the numeric value of col.
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	default:
		return 0
	}
}

// Time returns the time value of col or the zero time.
func (r Row) Time(col string) time.Time {
	if v, ok := r[col].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Values returns the row's values in d's column order.
func (r Row) Values(d *Descriptor) []any {
	out := make([]any, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = r[c.Name]
	}
	return out
}

// Normalize builds a Row from a provider record keyed by source field name,
// coercing each value to its column kind. Integer metrics may arrive as
// decimal strings ("12.0") and are rounded.
func Normalize(d *Descriptor, raw map[string]any) (Row, error) {
	row := make(Row, len(d.Columns))
	for _, c := range d.Columns {
		v, present := raw[c.Source]
		if !present || v == nil {
			if c.Nullable {
				row[c.Name] = zeroFor(c.Kind)
				continue
			}
			if c.Kind == KindInt || c.Kind == KindFloat {
				row[c.Name] = zeroFor(c.Kind)
				continue
			}
			return nil, fmt.Errorf("%s: missing field %q", d.Name, c.Source)
		}
		coerced, err := Coerce(c.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("%s: field %q: %w", d.Name, c.Source, err)
		}
		row[c.Name] = coerced
	}
	return row, nil
}

func zeroFor(k ColumnKind) any {
	switch k {
	case KindInt:
		return int64(0)
	case KindFloat:
		return float64(0)
	case KindTime:
		return nil
	default:
		return ""
	}
}

// Coerce converts a decoded provider value into the Go type of kind.
func Coerce(kind ColumnKind, v any) (any, error) {
	switch kind {
	case KindText:
		switch t := v.(type) {
		case string:
			return t, nil
		case json.Number:
			return t.String(), nil
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), nil
		default:
			return fmt.Sprint(t), nil
		}
	case KindInt:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return int64(math.Round(f)), nil
	case KindFloat:
		return toFloat(v)
	case KindTime:
		return toTime(v)
	default:
		return nil, fmt.Errorf("unknown column kind %d", kind)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse number %q: %w", t, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected numeric value %T", v)
	}
}

// Graph API timestamps use "+0000" offsets rather than RFC 3339.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05-0700", "2006-01-02"}

func toTime(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return nil, fmt.Errorf("parse time %q", t)
	default:
		return nil, fmt.Errorf("unexpected time value %T", v)
	}
}
