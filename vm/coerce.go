package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/chazu/jsvm/compiler/numlit"
)

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------

// ToBoolean converts v to a boolean.
func ToBoolean(v Value) bool {
	switch v.kind {
	case KindBoolean:
		return v.Bool()
	case KindNumber:
		return !math.IsNaN(v.num) && v.num != 0
	case KindString:
		return v.Text() != ""
	case KindFunction, KindObject:
		return true
	}
	return false
}

// ToDouble converts v to a number. Strings go through the literal scanner;
// anything it cannot read is NaN.
func ToDouble(v Value) float64 {
	switch v.kind {
	case KindBoolean:
		if v.Bool() {
			return 1
		}
		return 0
	case KindNull:
		return 0
	case KindUndefined:
		return math.NaN()
	case KindNumber:
		return v.num
	case KindString:
		return stringToDouble(v.Text())
	}
	return 0
}

func stringToDouble(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if lit, ok := numlit.Parse(s); ok {
		return lit.Float64()
	}
	return math.NaN()
}

// ToString converts v to its string form.
func ToString(v Value) string {
	switch v.kind {
	case KindBoolean:
		if v.Bool() {
			return "true"
		}
		return "false"
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindNumber:
		return NumberToString(v.num)
	case KindString:
		return v.Text()
	case KindFunction:
		return "function"
	case KindObject:
		return "[object Object]"
	}
	return ""
}

// NumberToString formats f the way scripts print numbers.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ToInt32 applies the modular integer conversion used by bitwise operators.
func ToInt32(v Value) int32 {
	f := ToDouble(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Mod(math.Trunc(f), 1<<32)
	if f < 0 {
		f += 1 << 32
	}
	return int32(uint32(f))
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// StrictEqual implements ===.
func StrictEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindString:
		return a.Text() == b.Text()
	case KindNumber:
		return a.num == b.num
	case KindBoolean:
		return a.Bool() == b.Bool()
	case KindIdentifier:
		return a.id == b.id
	}
	return false
}

// LooseEqual implements ==. Null and undefined only equal each other;
// a number or boolean on either side compares numerically; otherwise a
// string on either side compares as text.
func LooseEqual(a, b Value) bool {
	an, bn := a.IsNullish(), b.IsNullish()
	if an || bn {
		return an && bn
	}
	if a.kind == b.kind {
		return StrictEqual(a, b)
	}
	if isNumeric(a) || isNumeric(b) {
		return ToDouble(a) == ToDouble(b)
	}
	if a.kind == KindString || b.kind == KindString {
		return ToString(a) == ToString(b)
	}
	return false
}

func isNumeric(v Value) bool {
	return v.kind == KindNumber || v.kind == KindBoolean
}
