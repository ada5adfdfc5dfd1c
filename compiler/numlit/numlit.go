// Package numlit scans numeric literals. It is shared by the lexer and by
// the VM's string-to-number coercion so both agree on what a number is.
package numlit

import (
	"math"
	"strconv"
	"strings"
)

// MaxDigits is the overflow guard: a literal stops after this many digits.
const MaxDigits = 63

// Kind classifies a decoded literal.
type Kind uint8

const (
	None     Kind = iota
	Signed        // had an explicit sign and fits in int32
	Unsigned      // no sign and fits in uint32
	Float         // fraction, exponent, or out of 32-bit range
)

func (k Kind) String() string {
	switch k {
	case Signed:
		return "signed"
	case Unsigned:
		return "unsigned"
	case Float:
		return "float"
	}
	return "none"
}

// Literal is a decoded number.
type Literal struct {
	Kind     Kind
	Signed   int32
	Unsigned uint32
	Float    float64
}

// Float64 returns the literal as a float64 regardless of kind.
func (l Literal) Float64() float64 {
	switch l.Kind {
	case Signed:
		return float64(l.Signed)
	case Unsigned:
		return float64(l.Unsigned)
	case Float:
		return l.Float
	}
	return math.NaN()
}

func isDigit(c byte, radix int) bool {
	switch radix {
	case 2:
		return c == '0' || c == '1'
	case 8:
		return c >= '0' && c <= '7'
	case 16:
		return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	}
	return c >= '0' && c <= '9'
}

func digitVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}

// Scan decodes the numeric literal at the start of s. It returns the
// literal and the number of bytes consumed; n is 0 when s does not start
// with a number.
func Scan(s string) (lit Literal, n int) {
	i := 0
	neg, signed := false, false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		signed = true
		i++
	}
	if i >= len(s) || !isDigit(s[i], 10) {
		return Literal{}, 0
	}

	radix := 10
	if s[i] == '0' && i+1 < len(s) {
		switch s[i+1] {
		case 'x', 'X':
			radix = 16
		case 'b', 'B':
			radix = 2
		case 'o', 'O':
			radix = 8
		}
		if radix != 10 {
			if i+2 >= len(s) || !isDigit(s[i+2], radix) {
				// "0x" with no digits: just the zero
				radix = 10
			} else {
				i += 2
			}
		}
	}

	var (
		u        uint64
		f        float64
		overflow bool
		digits   int
	)
	start := i
	for i < len(s) && isDigit(s[i], radix) && digits < MaxDigits {
		d := digitVal(s[i])
		if u > (math.MaxUint64-uint64(d))/uint64(radix) {
			overflow = true
		}
		u = u*uint64(radix) + uint64(d)
		f = f*float64(radix) + float64(d)
		digits++
		i++
	}

	isFloat := false
	if radix == 10 {
		if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1], 10) {
			isFloat = true
			i++
			for i < len(s) && isDigit(s[i], 10) && digits < MaxDigits {
				digits++
				i++
			}
		}
		if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
			j := i + 1
			if j < len(s) && (s[j] == '+' || s[j] == '-') {
				j++
			}
			if j < len(s) && isDigit(s[j], 10) {
				isFloat = true
				i = j
				for i < len(s) && isDigit(s[i], 10) {
					i++
				}
			}
		}
	}

	if isFloat {
		v, err := strconv.ParseFloat(strings.TrimPrefix(s[:i], "+"), 64)
		if err != nil && !math.IsInf(v, 0) {
			return Literal{}, 0
		}
		return Literal{Kind: Float, Float: v}, i
	}
	if i == start {
		return Literal{}, 0
	}

	switch {
	case signed && !overflow && ((neg && u <= 1<<31) || (!neg && u <= math.MaxInt32)):
		v := int64(u)
		if neg {
			v = -v
		}
		return Literal{Kind: Signed, Signed: int32(v)}, i
	case !signed && !overflow && u <= math.MaxUint32:
		return Literal{Kind: Unsigned, Unsigned: uint32(u)}, i
	}
	if neg {
		f = -f
	}
	return Literal{Kind: Float, Float: f}, i
}

// Parse decodes s only if the whole string is one numeric literal.
func Parse(s string) (Literal, bool) {
	lit, n := Scan(s)
	if n == 0 || n != len(s) {
		return Literal{}, false
	}
	return lit, true
}
