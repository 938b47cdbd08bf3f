package bytecode

import (
	"math"
	"testing"
)

func TestValueKinds(t *testing.T) {
	tests := []struct {
		v    Value
		kind ValueKind
		str  string
	}{
		{Int(-3), KindInt, "-3"},
		{Uint(3), KindUint, "3u"},
		{Float(2.5), KindFloat, "2.5"},
		{Null, KindNull, "null"},
		{Value{}, KindNull, "null"},
	}

	for _, tt := range tests {
		if got := tt.v.Kind(); got != tt.kind {
			t.Errorf("%v.Kind() = %v, want %v", tt.v, got, tt.kind)
		}
		if got := tt.v.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		if got := tt.v.IsNull(); got != (tt.kind == KindNull) {
			t.Errorf("%v.IsNull() = %v", tt.v, got)
		}
	}
}

func TestValueConversions(t *testing.T) {
	if got := Int(-1).AsUint(); got != math.MaxUint64 {
		t.Errorf("Int(-1).AsUint() = %d, want MaxUint64", got)
	}
	if got := Uint(math.MaxUint64).AsInt(); got != -1 {
		t.Errorf("Uint(MaxUint64).AsInt() = %d, want -1", got)
	}
	if got := Float(3.9).AsInt(); got != 3 {
		t.Errorf("Float(3.9).AsInt() = %d, want 3", got)
	}
	if got := Float(-3.9).AsInt(); got != -3 {
		t.Errorf("Float(-3.9).AsInt() = %d, want -3", got)
	}
	if got := Float(1e30).AsInt(); got != math.MaxInt64 {
		t.Errorf("Float(1e30).AsInt() = %d, want MaxInt64", got)
	}
	if got := Float(-1e30).AsInt(); got != math.MinInt64 {
		t.Errorf("Float(-1e30).AsInt() = %d, want MinInt64", got)
	}
	if got := Float(math.NaN()).AsInt(); got != 0 {
		t.Errorf("Float(NaN).AsInt() = %d, want 0", got)
	}
	if got := Float(-1.5).AsUint(); got != 0 {
		t.Errorf("Float(-1.5).AsUint() = %d, want 0", got)
	}
	if got := Float(1e30).AsUint(); got != math.MaxUint64 {
		t.Errorf("Float(1e30).AsUint() = %d, want MaxUint64", got)
	}
	if got := Uint(7).AsFloat(); got != 7 {
		t.Errorf("Uint(7).AsFloat() = %g, want 7", got)
	}
	if got := Null.AsInt(); got != 0 {
		t.Errorf("Null.AsInt() = %d, want 0", got)
	}
}

func TestValueCoerceTo(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		kind ValueKind
		want Value
	}{
		{"int to float", Int(7), KindFloat, Float(7)},
		{"float to int", Float(2.5), KindInt, Int(2)},
		{"int to uint", Int(5), KindUint, Uint(5)},
		{"uint to int", Uint(5), KindInt, Int(5)},
		{"same kind", Uint(9), KindUint, Uint(9)},
		{"null stays null", Null, KindInt, Null},
		{"to null", Int(1), KindNull, Null},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.CoerceTo(tt.kind); got != tt.want {
				t.Errorf("CoerceTo(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestValueEqual(t *testing.T) {
	negZero := math.Copysign(0, -1)

	tests := []struct {
		a, b Value
		want bool
	}{
		{Int(5), Int(5), true},
		{Int(5), Int(6), false},
		{Int(1), Uint(1), false},
		{Uint(1), Float(1), false},
		{Float(0), Float(negZero), true},
		{Float(math.NaN()), Float(math.NaN()), false},
		{Null, Null, true},
	}

	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%v.Equal(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestValueFromBits(t *testing.T) {
	if got := valueFromBits(KindNull, 42); got != Null {
		t.Errorf("valueFromBits(null, 42) = %v, want Null", got)
	}
	if got := valueFromBits(KindFloat, math.Float64bits(1.25)); got != Float(1.25) {
		t.Errorf("valueFromBits(float) = %v, want 1.25", got)
	}
}
