package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNormalizeJSONNumbers(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(
		`{"big": 9007199254740993, "whole": 3.0, "frac": 2.5, "huge": 1e19, "name": "x", "none": null}`))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := row.NormalizeJSONNumbers()
	want := Row{
		"big":   int64(9007199254740993),
		"whole": int64(3),
		"frac":  2.5,
		"huge":  1e19,
		"name":  "x",
		"none":  nil,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %#v, want %#v", k, got[k], v)
		}
	}
}

func TestNormalizeJSONNumber_Float64(t *testing.T) {
	if got := NormalizeJSONNumber(float64(42)); got != int64(42) {
		t.Errorf("42.0: got %#v", got)
	}
	if got := NormalizeJSONNumber(-1e19); got != -1e19 {
		t.Errorf("-1e19 must stay a float, got %#v", got)
	}
}
