package vm

import (
	"math"
	"testing"
)

func TestToBoolean(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Undefined(), false},
		{Null(), false},
		{BoolValue(true), true},
		{BoolValue(false), false},
		{NumberValue(0), false},
		{NumberValue(math.NaN()), false},
		{NumberValue(-2), true},
		{BorrowedString(""), false},
		{BorrowedString("0"), true},
		{ObjectValue(), true},
	}
	for _, tc := range tests {
		if got := ToBoolean(tc.v); got != tc.want {
			t.Errorf("ToBoolean(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestToDouble(t *testing.T) {
	tests := []struct {
		v    Value
		want float64
	}{
		{BoolValue(true), 1},
		{BoolValue(false), 0},
		{Null(), 0},
		{NumberValue(2.5), 2.5},
		{BorrowedString(""), 0},
		{BorrowedString("3.0"), 3},
		{BorrowedString(" 42 "), 42},
		{BorrowedString("0x10"), 16},
		{BorrowedString("-7"), -7},
		{BorrowedString("Infinity"), math.Inf(1)},
		{BorrowedString("-Infinity"), math.Inf(-1)},
	}
	for _, tc := range tests {
		if got := ToDouble(tc.v); got != tc.want {
			t.Errorf("ToDouble(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}

	for _, v := range []Value{Undefined(), BorrowedString("abc"), BorrowedString("3abc")} {
		if got := ToDouble(v); !math.IsNaN(got) {
			t.Errorf("ToDouble(%v) = %v, want NaN", v, got)
		}
	}
}

func TestNumberToString(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{-100, "-100"},
		{2.5, "2.5"},
		{1e21, "1e+21"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tc := range tests {
		if got := NumberToString(tc.f); got != tc.want {
			t.Errorf("NumberToString(%v) = %q, want %q", tc.f, got, tc.want)
		}
	}
}

func TestLooseEqual(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Undefined(), Null(), true},
		{Null(), Null(), true},
		{Null(), NumberValue(0), false},
		{Undefined(), BoolValue(false), false},
		{NumberValue(3), BorrowedString("3.0"), true},
		{BorrowedString("3.0"), NumberValue(3), true},
		{BoolValue(true), NumberValue(1), true},
		{BoolValue(true), BorrowedString("1"), true},
		{BorrowedString("a"), BorrowedString("a"), true},
		{BorrowedString("a"), BorrowedString("b"), false},
		{NumberValue(math.NaN()), NumberValue(math.NaN()), false},
	}
	for _, tc := range tests {
		if got := LooseEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("LooseEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestStrictEqual(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Undefined(), Undefined(), true},
		{Null(), Null(), true},
		{Undefined(), Null(), false},
		{NumberValue(3), BorrowedString("3"), false},
		{NumberValue(3), NumberValue(3), true},
		{BoolValue(true), BoolValue(true), true},
		{BorrowedString("x"), BorrowedString("x"), true},
	}
	for _, tc := range tests {
		if got := StrictEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("StrictEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{NumberValue(1), "number"},
		{BoolValue(false), "boolean"},
		{BorrowedString("s"), "string"},
		{Undefined(), "undefined"},
		{Null(), "object"},
		{FunctionValue(nil), "function"},
	}
	for _, tc := range tests {
		if got := tc.v.TypeOf(); got != tc.want {
			t.Errorf("TypeOf(%v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestToInt32(t *testing.T) {
	tests := []struct {
		f    float64
		want int32
	}{
		{1.9, 1},
		{-1.9, -1},
		{4294967296, 0},
		{4294967295, -1},
		{math.NaN(), 0},
	}
	for _, tc := range tests {
		if got := ToInt32(NumberValue(tc.f)); got != tc.want {
			t.Errorf("ToInt32(%v) = %d, want %d", tc.f, got, tc.want)
		}
	}
}
