package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Record is a single row as an opaque record map keyed by column name. JSON
// columns arrive decoded; vector columns arrive as pgvector.Vector.
type Record = map[string]any

// String extracts a text column, tolerating absent and NULL values.
func String(rec Record, col string) string {
	if v, ok := rec[col].(string); ok {
		return v
	}
	return ""
}

// Int64 extracts an integer column across the widths pgx may produce.
func Int64(rec Record, col string) int64 {
	switch v := rec[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Float64 extracts a numeric column.
func Float64(rec Record, col string) float64 {
	switch v := rec[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool extracts a boolean column.
func Bool(rec Record, col string) bool {
	if v, ok := rec[col].(bool); ok {
		return v
	}
	return false
}

// Time extracts a timestamp column.
func Time(rec Record, col string) time.Time {
	if v, ok := rec[col].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Vector extracts an embedding column as a float32 slice, or nil.
func Vector(rec Record, col string) []float32 {
	switch v := rec[col].(type) {
	case pgvector.Vector:
		return v.Slice()
	case []float32:
		return v
	}
	return nil
}

// JSONMap extracts a JSON object column. pgx usually hands JSON back already
// decoded; the []byte and string arms cover drivers and fakes that do not.
// This is the single place JSON columns are parsed.
func JSONMap(rec Record, col string) (map[string]any, error) {
	switch v := rec[col].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case []byte:
		var out map[string]any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("failed to parse json column %s: %w", col, err)
		}
		return out, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("failed to parse json column %s: %w", col, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type %T for json column %s", v, col)
	}
}

// StringMap extracts a JSON object column whose values are strings, such as
// the multilingual name and description fields.
func StringMap(rec Record, col string) (map[string]string, error) {
	raw, err := JSONMap(rec, col)
	if err != nil || raw == nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
