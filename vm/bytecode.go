package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode selects the operation of an instruction.
type Opcode byte

// Arithmetic
const (
	OpBinaryAdd Opcode = 0x00 // a + b (string+string concatenates)
	OpBinarySub Opcode = 0x01 // a - b
	OpBinaryMul Opcode = 0x02 // a * b
	OpBinaryDiv Opcode = 0x03 // a / b, undefined when b is 0
	OpBinaryMod Opcode = 0x04 // a % b, undefined when b is 0
	OpBinaryPow Opcode = 0x05 // a ** b
)

// Comparison
const (
	OpCompareStrictEqual  Opcode = 0x10 // a === b
	OpCompareEqual        Opcode = 0x11 // a == b
	OpCompareLessThan     Opcode = 0x12 // a < b
	OpCompareGreaterThan  Opcode = 0x13 // a > b
	OpCompareNot          Opcode = 0x14 // !a (unary)
	OpCompareInstanceof   Opcode = 0x15 // a instanceof b
	OpCompareLessEqual    Opcode = 0x16 // a <= b
	OpCompareGreaterEqual Opcode = 0x17 // a >= b
)

// Variables
const (
	OpLoadVar    Opcode = 0x20 // pop identifier, push its value
	OpStoreVar   Opcode = 0x21 // pop identifier, pop value, assign
	OpInitialize Opcode = 0x22 // pop value, pop identifier, declare in innermost scope
)

// Constants
const (
	OpConstantDouble     Opcode = 0x30 // push numbers[imm] as float
	OpConstantI32        Opcode = 0x31 // push numbers[imm] as int32
	OpConstantU32        Opcode = 0x32 // push numbers[imm] as uint32
	OpPushBoolTrue       Opcode = 0x33
	OpPushBoolFalse      Opcode = 0x34
	OpPushUndefined      Opcode = 0x35
	OpPushNull           Opcode = 0x36
	OpConstantString     Opcode = 0x37 // push strings[imm]
	OpConstantIdentifier Opcode = 0x38 // push numbers[imm] as identifier hash
)

// Stack and scopes
const (
	OpDuplicateTop   Opcode = 0x40 // copy top of stack
	OpPushStackFrame Opcode = 0x41 // open a scope
	OpPopStackFrame  Opcode = 0x42 // close imm scopes
	OpPopValue       Opcode = 0x43 // discard top; imm 1 records it as the completion value
)

// Unary
const (
	OpTypeofValue Opcode = 0x50
	OpUnaryDelete Opcode = 0x51 // always true
	OpUnaryNegate Opcode = 0x52 // numeric negation, boolean negation otherwise
	OpUnaryPlus   Opcode = 0x53 // to number
	OpUnaryBitNot Opcode = 0x54 // ~a
)

// Bitwise
const (
	OpBinaryBitAnd Opcode = 0x58
	OpBinaryBitOr  Opcode = 0x59
	OpBinaryBitXor Opcode = 0x5A
	OpBinaryShl    Opcode = 0x5B
	OpBinaryShr    Opcode = 0x5C
	OpBinaryUshr   Opcode = 0x5D
)

// Control flow. Jump immediates are absolute instruction indices.
const (
	OpJumpIfFalse Opcode = 0x60
	OpJumpIfTrue  Opcode = 0x61
	OpJumpTo      Opcode = 0x62
	OpNoOperation Opcode = 0x63
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // disassembly name
	HasImmediate bool   // immediate is meaningful
	StackEffect  int    // net effect on the operand stack
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpBinaryAdd: {"binary_add", false, -1},
	OpBinarySub: {"binary_sub", false, -1},
	OpBinaryMul: {"binary_mul", false, -1},
	OpBinaryDiv: {"binary_div", false, -1},
	OpBinaryMod: {"binary_mod", false, -1},
	OpBinaryPow: {"binary_pow", false, -1},

	OpCompareStrictEqual:  {"compare_strict_equal", false, -1},
	OpCompareEqual:        {"compare_equal", false, -1},
	OpCompareLessThan:     {"compare_less_than", false, -1},
	OpCompareGreaterThan:  {"compare_greater_than", false, -1},
	OpCompareNot:          {"compare_not", false, 0},
	OpCompareInstanceof:   {"compare_instanceof", false, -1},
	OpCompareLessEqual:    {"compare_less_equal", false, -1},
	OpCompareGreaterEqual: {"compare_greater_equal", false, -1},

	OpLoadVar:    {"load_var", false, 0},
	OpStoreVar:   {"store_var", false, -2},
	OpInitialize: {"initialize", false, -2},

	OpConstantDouble:     {"constant_double", true, 1},
	OpConstantI32:        {"constant_i32", true, 1},
	OpConstantU32:        {"constant_u32", true, 1},
	OpPushBoolTrue:       {"push_bool_true", false, 1},
	OpPushBoolFalse:      {"push_bool_false", false, 1},
	OpPushUndefined:      {"push_undefined", false, 1},
	OpPushNull:           {"push_null", false, 1},
	OpConstantString:     {"constant_string", true, 1},
	OpConstantIdentifier: {"constant_identifier", true, 1},

	OpDuplicateTop:   {"duplicate_top", false, 1},
	OpPushStackFrame: {"push_stack_frame", false, 0},
	OpPopStackFrame:  {"pop_stack_frame", true, 0},
	OpPopValue:       {"pop_value", true, -1},

	OpTypeofValue: {"typeof_value", false, 0},
	OpUnaryDelete: {"unary_delete", false, 0},
	OpUnaryNegate: {"unary_negate", false, 0},
	OpUnaryPlus:   {"unary_plus", false, 0},
	OpUnaryBitNot: {"unary_bitnot", false, 0},

	OpBinaryBitAnd: {"binary_bitand", false, -1},
	OpBinaryBitOr:  {"binary_bitor", false, -1},
	OpBinaryBitXor: {"binary_bitxor", false, -1},
	OpBinaryShl:    {"binary_shl", false, -1},
	OpBinaryShr:    {"binary_shr", false, -1},
	OpBinaryUshr:   {"binary_ushr", false, -1},

	OpJumpIfFalse: {"jump_if_false", true, -1},
	OpJumpIfTrue:  {"jump_if_true", true, -1},
	OpJumpTo:      {"jump_to", true, 0},
	OpNoOperation: {"no_operation", false, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown_%02x", byte(op))}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// Instruction encoding
// ---------------------------------------------------------------------------

// MaxImmediate is the largest value an instruction immediate can hold.
const MaxImmediate = 1<<24 - 1

// Instruction packs an 8-bit opcode (low byte) and a 24-bit immediate.
type Instruction uint32

// MakeInstruction encodes op and imm, rejecting immediates that do not fit.
func MakeInstruction(op Opcode, imm int) (Instruction, error) {
	if imm < 0 || imm > MaxImmediate {
		return 0, fmt.Errorf("immediate %d out of range for %s", imm, op)
	}
	return Instruction(uint32(op) | uint32(imm)<<8), nil
}

// Op returns the opcode.
func (i Instruction) Op() Opcode { return Opcode(i & 0xFF) }

// Imm returns the 24-bit immediate.
func (i Instruction) Imm() int { return int(i >> 8) }

func (i Instruction) String() string {
	if i.Op().Info().HasImmediate {
		return fmt.Sprintf("%s %d", i.Op(), i.Imm())
	}
	return i.Op().String()
}

// ---------------------------------------------------------------------------
// Constant pools
// ---------------------------------------------------------------------------

// Number is a numeric constant-pool entry: raw bits read as a float64,
// int32, uint32, bool or identifier hash depending on the opcode.
type Number uint64

func NumberFromFloat(f float64) Number { return Number(math.Float64bits(f)) }
func NumberFromInt32(v int32) Number   { return Number(uint32(v)) }
func NumberFromUint32(v uint32) Number { return Number(v) }
func NumberFromIdent(h uint32) Number  { return Number(h) }

func (n Number) Float() float64 { return math.Float64frombits(uint64(n)) }
func (n Number) Int32() int32   { return int32(uint32(n)) }
func (n Number) Uint32() uint32 { return uint32(n) }
func (n Number) Ident() uint32  { return uint32(n) }
func (n Number) Bool() bool     { return n != 0 }

// StringConst locates a string constant in the shared buffer.
type StringConst struct {
	Hash   uint32
	Offset uint32
	Length uint32
}

// Bytecode is the immutable output of the emitter and the input of the VM.
type Bytecode struct {
	Instructions []Instruction
	Numbers      []Number
	Strings      []StringConst
	StringBuffer []byte
}

// StringAt returns the text of string constant i.
func (bc *Bytecode) StringAt(i int) (string, error) {
	if i < 0 || i >= len(bc.Strings) {
		return "", fmt.Errorf("string constant %d out of range", i)
	}
	sc := bc.Strings[i]
	end := uint64(sc.Offset) + uint64(sc.Length)
	if end > uint64(len(bc.StringBuffer)) {
		return "", fmt.Errorf("string constant %d overruns buffer", i)
	}
	return string(bc.StringBuffer[sc.Offset:end]), nil
}

// NumberAt returns numeric constant i.
func (bc *Bytecode) NumberAt(i int) (Number, error) {
	if i < 0 || i >= len(bc.Numbers) {
		return 0, fmt.Errorf("number constant %d out of range", i)
	}
	return bc.Numbers[i], nil
}

// IdentifierName finds the source name of an identifier hash by scanning
// the string pool. Returns "" when the name was not recorded.
func (bc *Bytecode) IdentifierName(h uint32) string {
	for i, sc := range bc.Strings {
		if sc.Hash != h {
			continue
		}
		if s, err := bc.StringAt(i); err == nil && Hash(s) == h {
			return s
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder accumulates instructions and constants. Constants are
// deduplicated; jumps are emitted with a placeholder and patched later.
type Builder struct {
	bc      Bytecode
	numbers map[Number]int
	strings map[string]int
	err     error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		numbers: make(map[Number]int),
		strings: make(map[string]int),
	}
}

// Count returns the number of instructions emitted so far.
func (b *Builder) Count() int {
	return len(b.bc.Instructions)
}

// Err returns the first encoding error, if any.
func (b *Builder) Err() error {
	return b.err
}

// Emit appends op with a zero immediate.
func (b *Builder) Emit(op Opcode) int {
	return b.EmitImm(op, 0)
}

// EmitImm appends op with an immediate and returns its index.
func (b *Builder) EmitImm(op Opcode, imm int) int {
	ins, err := MakeInstruction(op, imm)
	if err != nil && b.err == nil {
		b.err = err
	}
	b.bc.Instructions = append(b.bc.Instructions, ins)
	return len(b.bc.Instructions) - 1
}

// EmitJump appends a jump with a placeholder target and returns its index
// for PatchJump.
func (b *Builder) EmitJump(op Opcode) int {
	return b.EmitImm(op, 0)
}

// PatchJump points the jump at index to the next instruction to be emitted.
func (b *Builder) PatchJump(index int) {
	b.PatchJumpTo(index, b.Count())
}

// PatchJumpTo points the jump at index to target.
func (b *Builder) PatchJumpTo(index, target int) {
	op := b.bc.Instructions[index].Op()
	ins, err := MakeInstruction(op, target)
	if err != nil && b.err == nil {
		b.err = err
	}
	b.bc.Instructions[index] = ins
}

// AddNumber adds a numeric constant, returning its pool index.
func (b *Builder) AddNumber(n Number) int {
	if idx, ok := b.numbers[n]; ok {
		return idx
	}
	idx := len(b.bc.Numbers)
	b.bc.Numbers = append(b.bc.Numbers, n)
	b.numbers[n] = idx
	return idx
}

// AddString adds a string constant, returning its pool index.
func (b *Builder) AddString(s string) int {
	if idx, ok := b.strings[s]; ok {
		return idx
	}
	idx := len(b.bc.Strings)
	b.bc.Strings = append(b.bc.Strings, StringConst{
		Hash:   Hash(s),
		Offset: uint32(len(b.bc.StringBuffer)),
		Length: uint32(len(s)),
	})
	b.bc.StringBuffer = append(b.bc.StringBuffer, s...)
	b.strings[s] = idx
	return idx
}

// Build returns the finished bytecode.
func (b *Builder) Build() (*Bytecode, error) {
	if b.err != nil {
		return nil, b.err
	}
	bc := b.bc
	return &bc, nil
}
