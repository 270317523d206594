package types

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLookupKeyType(t *testing.T) {
	for _, kind := range []KeyKind{KindInt, KindFloat, KindText, KindTimestamp, "INT"} {
		kt, err := LookupKeyType(kind)
		if err != nil {
			t.Errorf("LookupKeyType(%q): %v", kind, err)
			continue
		}
		if string(kt.Kind()) != string(kind) && kind != "INT" {
			t.Errorf("LookupKeyType(%q).Kind() = %q", kind, kt.Kind())
		}
	}
	if _, err := LookupKeyType("uuid"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestKeyType_Coerce(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		kind    KeyKind
		in      interface{}
		want    interface{}
		wantErr bool
	}{
		{KindInt, int64(5), int64(5), false},
		{KindInt, 7, int64(7), false},
		{KindInt, float64(3), int64(3), false},
		{KindInt, 3.5, nil, true},
		{KindInt, 1e19, nil, true},
		{KindInt, -1e19, nil, true},
		{KindInt, float64(1 << 63), nil, true},
		{KindInt, float64(math.MinInt64), int64(math.MinInt64), false},
		{KindInt, " 42 ", int64(42), false},
		{KindInt, "x", nil, true},
		{KindInt, true, nil, true},
		{KindFloat, int64(2), 2.0, false},
		{KindFloat, "1.25", 1.25, false},
		{KindFloat, math.NaN(), nil, true},
		{KindText, "abc", "abc", false},
		{KindText, []byte("ab"), "ab", false},
		{KindText, int64(12), "12", false},
		{KindText, 1.5, nil, true},
		{KindTimestamp, "2024-03-01", ts, false},
		{KindTimestamp, "2024-03-01 00:00:00", ts, false},
		{KindTimestamp, "2024-03-01T01:00:00+01:00", ts, false},
		{KindTimestamp, ts.Unix(), ts, false},
		{KindTimestamp, "yesterday", nil, true},
	}

	for _, tt := range tests {
		kt, _ := LookupKeyType(tt.kind)
		got, err := kt.Coerce(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Coerce(%v): err = %v, wantErr %v", tt.kind, tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if want, ok := tt.want.(time.Time); ok {
			if !got.(time.Time).Equal(want) {
				t.Errorf("%s.Coerce(%v) = %v, want %v", tt.kind, tt.in, got, want)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("%s.Coerce(%v) = %#v, want %#v", tt.kind, tt.in, got, tt.want)
		}
	}
}

func TestKeyType_Successor(t *testing.T) {
	if v, ok := (IntKey{}).Successor(int64(9)); !ok || v != int64(10) {
		t.Errorf("IntKey successor of 9 = %v, %v", v, ok)
	}
	if _, ok := (IntKey{}).Successor(int64(math.MaxInt64)); ok {
		t.Error("MaxInt64 has no successor")
	}
	if _, ok := (FloatKey{}).Successor(1.0); ok {
		t.Error("float domain is not discrete")
	}
	if _, ok := (TextKey{}).Successor("a"); ok {
		t.Error("text domain has no successor")
	}
	ts := time.Unix(0, 0).UTC()
	if v, ok := (TimestampKey{}).Successor(ts); !ok || !v.(time.Time).Equal(ts.Add(time.Nanosecond)) {
		t.Errorf("timestamp successor = %v, %v", v, ok)
	}
}

func TestFloatKey_EncodeSignedZero(t *testing.T) {
	if !bytes.Equal((FloatKey{}).Encode(math.Copysign(0, -1)), (FloatKey{}).Encode(0.0)) {
		t.Error("-0 and +0 must encode alike")
	}
}

func TestFormatParse(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	for _, tc := range []struct {
		kt KeyType
		v  interface{}
	}{
		{IntKey{}, int64(-17)},
		{FloatKey{}, 0.1},
		{TextKey{}, "héllo"},
		{TimestampKey{}, ts},
	} {
		back, err := tc.kt.Parse(tc.kt.Format(tc.v))
		if err != nil {
			t.Errorf("%s: Parse(Format(%v)): %v", tc.kt.Kind(), tc.v, err)
			continue
		}
		if tc.kt.Compare(back, tc.v) != 0 {
			t.Errorf("%s: %v formatted and parsed to %v", tc.kt.Kind(), tc.v, back)
		}
	}
}

// Property: IntKey comparison agrees with the big-endian encoding order of
// values of equal sign, and Compare is antisymmetric.
func TestIntKey_OrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	kt := IntKey{}

	properties.Property("Compare is antisymmetric", prop.ForAll(
		func(a, b int64) bool {
			return kt.Compare(a, b) == -kt.Compare(b, a)
		},
		gen.Int64(), gen.Int64(),
	))

	properties.Property("encoding preserves order for non-negative keys", prop.ForAll(
		func(a, b int64) bool {
			return kt.Compare(a, b) == bytes.Compare(kt.Encode(a), kt.Encode(b))
		},
		gen.Int64Range(0, math.MaxInt64), gen.Int64Range(0, math.MaxInt64),
	))

	properties.TestingRun(t)
}
