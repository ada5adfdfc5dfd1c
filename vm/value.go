package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: the dynamically typed script value
// ---------------------------------------------------------------------------

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindIdentifier
	KindFunction
	KindObject
)

var kindNames = [...]string{
	KindUndefined:  "undefined",
	KindNull:       "null",
	KindBoolean:    "boolean",
	KindNumber:     "number",
	KindString:     "string",
	KindIdentifier: "identifier",
	KindFunction:   "function",
	KindObject:     "object",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", k)
}

// NativeFunc is the host thunk carried by a function value.
type NativeFunc func(args []Value) Value

// Value is a small copyable tagged union. String values either hold a pool
// handle (runtime strings) or borrow text from the bytecode string buffer.
type Value struct {
	kind     ValueKind
	num      float64
	id       uint32
	str      *PoolString
	borrowed string
	fn       NativeFunc
}

// Undefined is the zero Value.
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	v := Value{kind: KindBoolean}
	if b {
		v.num = 1
	}
	return v
}

// NumberValue returns a numeric value.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// PooledString wraps a pool handle. The value takes over the handle's
// reference rather than adding one.
func PooledString(s *PoolString) Value { return Value{kind: KindString, str: s} }

// BorrowedString wraps text owned elsewhere (constant pool, host).
func BorrowedString(s string) Value { return Value{kind: KindString, borrowed: s} }

// IdentifierValue wraps an identifier hash.
func IdentifierValue(h uint32) Value { return Value{kind: KindIdentifier, id: h} }

// FunctionValue wraps a native thunk. The interpreter never calls it.
func FunctionValue(fn NativeFunc) Value { return Value{kind: KindFunction, fn: fn} }

// ObjectValue returns the object placeholder.
func ObjectValue() Value { return Value{kind: KindObject} }

func (v Value) Kind() ValueKind   { return v.kind }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }

// IsNullish reports whether v is null or undefined.
func (v Value) IsNullish() bool { return v.kind == KindUndefined || v.kind == KindNull }

// Bool returns the payload of a boolean value.
func (v Value) Bool() bool { return v.kind == KindBoolean && v.num != 0 }

// Num returns the payload of a number value.
func (v Value) Num() float64 { return v.num }

// Ident returns the payload of an identifier value.
func (v Value) Ident() uint32 { return v.id }

// Func returns the thunk of a function value.
func (v Value) Func() NativeFunc { return v.fn }

// Text returns the payload of a string value.
func (v Value) Text() string {
	if v.str != nil {
		return v.str.String()
	}
	return v.borrowed
}

// TypeOf returns the typeof name of v.
func (v Value) TypeOf() string {
	switch v.kind {
	case KindNull, KindObject:
		return "object"
	case KindIdentifier:
		return "undefined"
	}
	return v.kind.String()
}

// String renders v for display: strings are quoted.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.Text())
	case KindFunction:
		return "function"
	case KindObject:
		return "[object]"
	case KindIdentifier:
		return fmt.Sprintf("<ident %08x>", v.id)
	}
	return ToString(v)
}

// retain returns a copy of val that holds its own pool reference.
func retain(val Value) Value {
	if val.str != nil {
		val.str = val.str.Retain()
	}
	return val
}

// release drops the pool reference held by val, if any.
func release(val Value) {
	if val.str != nil {
		val.str.Release()
	}
}

// detach returns val without a pool reference, for values handed out of
// the VM.
func detach(val Value) Value {
	if val.str != nil {
		return BorrowedString(val.str.String())
	}
	return val
}
