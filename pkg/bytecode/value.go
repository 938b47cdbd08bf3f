package bytecode

import (
	"fmt"
	"math"
)

// ValueKind identifies which representation a Value carries.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInt
	KindUint
	KindFloat
)

// String returns a human-readable name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is a tagged 64-bit operand. The zero Value is Null.
//
// The payload is stored as a raw bit pattern so that two Values compare
// equal with == exactly when their tags and bits match. Numeric equality
// (where 0.0 == -0.0) is provided by Equal.
type Value struct {
	kind ValueKind
	bits uint64
}

// Null is the absent operand. It never lives on the stack.
var Null = Value{}

// Int returns a signed integer Value.
func Int(i int64) Value { return Value{kind: KindInt, bits: uint64(i)} }

// Uint returns an unsigned integer Value.
func Uint(u uint64) Value { return Value{kind: KindUint, bits: u} }

// Float returns a 64-bit floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

// valueFromBits rebuilds a Value from its tag and raw payload.
func valueFromBits(kind ValueKind, bits uint64) Value {
	if kind == KindNull {
		return Null
	}
	return Value{kind: kind, bits: bits}
}

// Kind returns the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the absent operand.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bits returns the raw 64-bit payload.
func (v Value) Bits() uint64 { return v.bits }

// AsInt converts v to a signed integer. Floats truncate toward zero and
// saturate at the int64 bounds; NaN and Null convert to 0. Unsigned values
// are reinterpreted bit for bit.
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindInt, KindUint:
		return int64(v.bits)
	case KindFloat:
		f := math.Float64frombits(v.bits)
		switch {
		case math.IsNaN(f):
			return 0
		case f >= math.MaxInt64:
			return math.MaxInt64
		case f <= math.MinInt64:
			return math.MinInt64
		}
		return int64(f)
	default:
		return 0
	}
}

// AsUint converts v to an unsigned integer. Floats truncate toward zero and
// saturate to [0, MaxUint64]; NaN and Null convert to 0. Signed values are
// reinterpreted bit for bit.
func (v Value) AsUint() uint64 {
	switch v.kind {
	case KindInt, KindUint:
		return v.bits
	case KindFloat:
		f := math.Float64frombits(v.bits)
		switch {
		case math.IsNaN(f), f <= 0:
			return 0
		case f >= math.MaxUint64:
			return math.MaxUint64
		}
		return uint64(f)
	default:
		return 0
	}
}

// AsFloat converts v to a float64.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(int64(v.bits))
	case KindUint:
		return float64(v.bits)
	case KindFloat:
		return math.Float64frombits(v.bits)
	default:
		return 0
	}
}

// CoerceTo converts v into the representation of kind. Coercing Null, or
// coercing anything to KindNull, yields Null.
func (v Value) CoerceTo(kind ValueKind) Value {
	if v.kind == KindNull {
		return Null
	}
	switch kind {
	case KindInt:
		return Int(v.AsInt())
	case KindUint:
		return Uint(v.AsUint())
	case KindFloat:
		return Float(v.AsFloat())
	default:
		return Null
	}
}

// Equal reports whether v and other have the same tag and the same numeric
// value. Float comparison follows IEEE-754, so NaN is never equal to itself.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	if v.kind == KindFloat {
		return v.AsFloat() == other.AsFloat()
	}
	return v.bits == other.bits
}

// String renders the value for diagnostics and traces.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.AsInt())
	case KindUint:
		return fmt.Sprintf("%du", v.bits)
	case KindFloat:
		return fmt.Sprintf("%g", v.AsFloat())
	default:
		return "null"
	}
}
