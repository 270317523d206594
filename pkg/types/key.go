package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// KeyKind names a partitioning key value domain.
type KeyKind string

const (
	KindInt       KeyKind = "int"
	KindFloat     KeyKind = "float"
	KindText      KeyKind = "text"
	KindTimestamp KeyKind = "timestamp"
)

// KeyType supplies the ordering and encoding of a partitioning key domain.
// Values handed to Compare, Encode, Successor and Format must already be
// coerced with Coerce.
type KeyType interface {
	Kind() KeyKind

	// Coerce converts a literal (int64, float64, string, time.Time, ...) into
	// the domain's canonical Go value.
	Coerce(v interface{}) (interface{}, error)

	// Compare returns -1, 0 or +1.
	Compare(a, b interface{}) int

	// Encode returns the canonical byte form used for hashing.
	Encode(v interface{}) []byte

	// Successor returns the smallest value greater than v, when the domain is
	// discrete.
	Successor(v interface{}) (interface{}, bool)

	// Parse and Format convert to and from the catalog's text form.
	Parse(s string) (interface{}, error)
	Format(v interface{}) string
}

// LookupKeyType returns the built-in KeyType for kind.
func LookupKeyType(kind KeyKind) (KeyType, error) {
	switch KeyKind(strings.ToLower(string(kind))) {
	case KindInt:
		return IntKey{}, nil
	case KindFloat:
		return FloatKey{}, nil
	case KindText:
		return TextKey{}, nil
	case KindTimestamp:
		return TimestampKey{}, nil
	default:
		return nil, fmt.Errorf("types: unsupported key kind %q", kind)
	}
}

// IntKey is the int64 key domain.
type IntKey struct{}

func (IntKey) Kind() KeyKind { return KindInt }

func (IntKey) Coerce(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, fmt.Errorf("types: %v is not an integer", x)
		}
		if !FloatFitsInt64(x) {
			return nil, fmt.Errorf("types: %v is out of the int64 range", x)
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("types: %q is not an integer", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("types: cannot use %T as int key", v)
	}
}

func (IntKey) Compare(a, b interface{}) int {
	x, y := a.(int64), b.(int64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func (IntKey) Encode(v interface{}) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v.(int64)))
	return b
}

func (IntKey) Successor(v interface{}) (interface{}, bool) {
	x := v.(int64)
	if x == math.MaxInt64 {
		return nil, false
	}
	return x + 1, true
}

func (k IntKey) Parse(s string) (interface{}, error) { return k.Coerce(s) }

func (IntKey) Format(v interface{}) string { return strconv.FormatInt(v.(int64), 10) }

// FloatKey is the float64 key domain. NaN is rejected.
type FloatKey struct{}

func (FloatKey) Kind() KeyKind { return KindFloat }

func (FloatKey) Coerce(v interface{}) (interface{}, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("types: %q is not a number", x)
		}
		f = p
	default:
		return nil, fmt.Errorf("types: cannot use %T as float key", v)
	}
	if math.IsNaN(f) {
		return nil, fmt.Errorf("types: NaN is not a valid key")
	}
	return f, nil
}

func (FloatKey) Compare(a, b interface{}) int {
	x, y := a.(float64), b.(float64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func (FloatKey) Encode(v interface{}) []byte {
	f := v.(float64)
	if f == 0 {
		f = 0 // -0 and +0 hash alike
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(f))
	return b
}

func (FloatKey) Successor(interface{}) (interface{}, bool) { return nil, false }

func (k FloatKey) Parse(s string) (interface{}, error) { return k.Coerce(s) }

func (FloatKey) Format(v interface{}) string {
	return strconv.FormatFloat(v.(float64), 'g', -1, 64)
}

// TextKey orders strings bytewise.
type TextKey struct{}

func (TextKey) Kind() KeyKind { return KindText }

func (TextKey) Coerce(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return nil, fmt.Errorf("types: cannot use %T as text key", v)
	}
}

func (TextKey) Compare(a, b interface{}) int {
	return strings.Compare(a.(string), b.(string))
}

func (TextKey) Encode(v interface{}) []byte { return []byte(v.(string)) }

func (TextKey) Successor(interface{}) (interface{}, bool) { return nil, false }

func (k TextKey) Parse(s string) (interface{}, error) { return s, nil }

func (TextKey) Format(v interface{}) string { return v.(string) }

// TimestampKey is the time.Time key domain, compared in UTC.
type TimestampKey struct{}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (TimestampKey) Kind() KeyKind { return KindTimestamp }

func (TimestampKey) Coerce(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case int64:
		// Unix seconds
		return time.Unix(x, 0).UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, fmt.Errorf("types: %q is not a timestamp", x)
	default:
		return nil, fmt.Errorf("types: cannot use %T as timestamp key", v)
	}
}

func (TimestampKey) Compare(a, b interface{}) int {
	return a.(time.Time).Compare(b.(time.Time))
}

func (TimestampKey) Encode(v interface{}) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v.(time.Time).UnixNano()))
	return b
}

func (TimestampKey) Successor(v interface{}) (interface{}, bool) {
	return v.(time.Time).Add(time.Nanosecond), true
}

func (k TimestampKey) Parse(s string) (interface{}, error) { return k.Coerce(s) }

func (TimestampKey) Format(v interface{}) string {
	return v.(time.Time).Format(time.RFC3339Nano)
}
