// Package types provides core data types shared by partwise components.
package types

import (
	"encoding/json"
	"math"
)

// Row is one tuple being routed, keyed by column name. Values are literals as
// produced by JSON decoding or the SQL parser (int64, float64, string, bool, nil).
type Row map[string]interface{}

// Get returns the value of column and whether the column is present.
func (r Row) Get(column string) (interface{}, bool) {
	v, ok := r[column]
	return v, ok
}

// NormalizeJSONNumbers converts decoded JSON numbers into int64 when they hold
// an integer that fits, and float64 otherwise. Decoders should use UseNumber
// so that integers beyond 2^53 arrive as json.Number and keep every digit.
func (r Row) NormalizeJSONNumbers() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = NormalizeJSONNumber(v)
	}
	return out
}

// NormalizeJSONNumber is NormalizeJSONNumbers for a single value.
func NormalizeJSONNumber(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return NormalizeJSONNumber(f)
	case float64:
		if x == math.Trunc(x) && FloatFitsInt64(x) {
			return int64(x)
		}
	}
	return v
}

// FloatFitsInt64 reports whether f lies within the int64 range. NaN does not.
func FloatFitsInt64(f float64) bool {
	return f >= math.MinInt64 && f < -math.MinInt64
}
