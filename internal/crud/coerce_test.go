package crud

import (
	"encoding/json"
	"math"
	"testing"
)

func TestToInt64(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   int64
		wantOK bool
	}{
		{"int", 42, 42, true},
		{"int32", int32(-7), -7, true},
		{"whole float", float64(3), 3, true},
		{"fractional float", 3.5, 0, false},
		{"min int64 float", float64(math.MinInt64), math.MinInt64, true},
		{"float at 2^63", math.Pow(2, 63), 0, false},
		{"float beyond 2^63", 1e19, 0, false},
		{"float below -2^63", -1e19, 0, false},
		{"positive infinity", math.Inf(1), 0, false},
		{"nan", math.NaN(), 0, false},
		{"json number", json.Number("9001"), 9001, true},
		{"json fraction", json.Number("1.5"), 0, false},
		{"string", "12", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toInt64(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("toInt64(%v) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
