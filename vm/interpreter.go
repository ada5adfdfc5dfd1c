package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// VM: stack interpreter
// ---------------------------------------------------------------------------

// Default capacities.
const (
	DefaultStackSize      = 24
	DefaultLocalsPerScope = 24
	DefaultMaxScopes      = 64
)

// cancelCheckInterval is how many instructions run between context checks.
const cancelCheckInterval = 1024

// VM executes Bytecode against an operand stack and a stack of scopes.
// A VM is single-threaded. Bindings in the outermost scope persist across
// Execute calls until Reset.
type VM struct {
	pool *StringPool

	stack []Value
	sp    int

	scopes         []*Scope
	maxScopes      int
	localsPerScope int

	completion Value
	names      map[uint32]string
	trace      io.Writer
}

// Option configures a VM.
type Option func(*VM)

// WithStackSize sets the operand stack capacity.
func WithStackSize(n int) Option {
	return func(v *VM) {
		if n > 0 {
			v.stack = make([]Value, n)
		}
	}
}

// WithLocalsPerScope sets the binding capacity of each scope.
func WithLocalsPerScope(n int) Option {
	return func(v *VM) {
		if n > 0 {
			v.localsPerScope = n
		}
	}
}

// WithMaxScopes sets the scope stack capacity.
func WithMaxScopes(n int) Option {
	return func(v *VM) {
		if n > 0 {
			v.maxScopes = n
		}
	}
}

// WithTrace writes one line per executed instruction to w.
func WithTrace(w io.Writer) Option {
	return func(v *VM) { v.trace = w }
}

// New creates a VM that allocates runtime strings from pool.
func New(pool *StringPool, opts ...Option) *VM {
	v := &VM{
		pool:           pool,
		stack:          make([]Value, DefaultStackSize),
		maxScopes:      DefaultMaxScopes,
		localsPerScope: DefaultLocalsPerScope,
		names:          make(map[uint32]string),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Pool returns the VM's string pool.
func (v *VM) Pool() *StringPool {
	return v.pool
}

// Completion returns the value of the last expression statement or return.
// It holds no pool reference.
func (v *VM) Completion() Value {
	return v.completion
}

// Depth returns the number of live scopes.
func (v *VM) Depth() int {
	return len(v.scopes)
}

// Lookup finds name from the innermost scope outward. The returned value
// holds no pool reference, so it stays readable after Reset.
func (v *VM) Lookup(name string) (Value, bool) {
	val, ok := v.lookupID(Hash(name))
	return detach(val), ok
}

// Globals returns a snapshot of the outermost scope's bindings by name.
// Like Lookup, the values hold no pool references.
func (v *VM) Globals() map[string]Value {
	out := make(map[string]Value)
	if len(v.scopes) == 0 {
		return out
	}
	for _, b := range v.scopes[0].bindings {
		out[v.nameOf(b.id)] = detach(b.value)
	}
	return out
}

// GlobalNames returns the sorted names of the outermost scope's bindings.
func (v *VM) GlobalNames() []string {
	g := v.Globals()
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *VM) nameOf(id uint32) string {
	if name, ok := v.names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%08x", id)
}

// Reset drops every binding and releases the runtime strings the VM holds.
func (v *VM) Reset() {
	v.clearStack()
	v.dropScopes(0)
	v.completion = Undefined()
}

// ---------------------------------------------------------------------------
// Stack helpers. Violations panic with vmFault and are turned into a
// RuntimeError by Execute.
// ---------------------------------------------------------------------------

type vmFault struct{ err error }

func (v *VM) fault(err error) {
	panic(vmFault{err})
}

// push moves val, and the pool reference it holds, onto the stack.
func (v *VM) push(val Value) {
	if v.sp >= len(v.stack) {
		release(val)
		v.fault(fmt.Errorf("%w: operand stack holds %d values", ErrCapacityExceeded, len(v.stack)))
	}
	v.stack[v.sp] = val
	v.sp++
}

func (v *VM) pop() Value {
	if v.sp <= 0 {
		v.fault(ErrStackUnderflow)
	}
	v.sp--
	val := v.stack[v.sp]
	v.stack[v.sp] = Value{}
	return val
}

func (v *VM) top() Value {
	if v.sp <= 0 {
		v.fault(ErrStackUnderflow)
	}
	return v.stack[v.sp-1]
}

// clearStack empties the operand stack.
func (v *VM) clearStack() {
	for v.sp > 0 {
		v.sp--
		release(v.stack[v.sp])
		v.stack[v.sp] = Value{}
	}
}

func (v *VM) popIdent() uint32 {
	val := v.pop()
	if val.kind != KindIdentifier {
		release(val)
		v.fault(fmt.Errorf("%w: expected identifier, got %s", ErrBadOperand, val.kind))
	}
	return val.id
}

func (v *VM) pushScope() {
	if len(v.scopes) >= v.maxScopes {
		v.fault(fmt.Errorf("%w: more than %d scopes", ErrCapacityExceeded, v.maxScopes))
	}
	v.scopes = append(v.scopes, newScope(v.localsPerScope))
}

func (v *VM) popScopes(n int) {
	if n > len(v.scopes)-1 {
		v.fault(fmt.Errorf("%w: cannot close %d scopes", ErrStackUnderflow, n))
	}
	v.dropScopes(len(v.scopes) - n)
}

// dropScopes closes every scope above depth and releases its bindings.
func (v *VM) dropScopes(depth int) {
	for len(v.scopes) > depth {
		top := len(v.scopes) - 1
		v.scopes[top].release()
		v.scopes[top] = nil
		v.scopes = v.scopes[:top]
	}
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

// Execute runs bc until its instruction stream is exhausted. Capacity
// overflows and malformed bytecode stop execution with a *RuntimeError;
// a cancelled ctx stops it with ctx.Err().
func (v *VM) Execute(ctx context.Context, bc *Bytecode) (err error) {
	if len(v.scopes) == 0 {
		v.scopes = append(v.scopes, newScope(v.localsPerScope))
	}
	base := len(v.scopes)
	v.clearStack()
	v.learnNames(bc)

	// one reference per string constant for the length of the run
	strs := make(map[int]Value)
	defer func() {
		for _, s := range strs {
			release(s)
		}
	}()

	pc := 0
	var op Opcode

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(vmFault)
			if !ok {
				panic(r)
			}
			err = &RuntimeError{PC: pc - 1, Op: op, Err: f.err}
			v.clearStack()
			v.dropScopes(base)
		}
	}()

	code := bc.Instructions
	for steps := 1; pc < len(code); steps++ {
		if steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				v.clearStack()
				v.dropScopes(base)
				return err
			}
		}

		ins := code[pc]
		pc++
		op = ins.Op()
		imm := ins.Imm()

		if v.trace != nil {
			fmt.Fprintf(v.trace, "%04d  %-28s sp=%d scopes=%d\n", pc-1, ins, v.sp, len(v.scopes))
		}

		switch op {
		// Constants
		case OpConstantDouble:
			v.push(NumberValue(v.number(bc, imm).Float()))
		case OpConstantI32:
			v.push(NumberValue(float64(v.number(bc, imm).Int32())))
		case OpConstantU32:
			v.push(NumberValue(float64(v.number(bc, imm).Uint32())))
		case OpConstantIdentifier:
			v.push(IdentifierValue(v.number(bc, imm).Ident()))
		case OpConstantString:
			s, ok := strs[imm]
			if !ok {
				text, err := bc.StringAt(imm)
				if err != nil {
					v.fault(fmt.Errorf("%w: %v", ErrBadOperand, err))
				}
				s = PooledString(v.pool.Intern(text))
				strs[imm] = s
			}
			v.push(retain(s))
		case OpPushBoolTrue:
			v.push(BoolValue(true))
		case OpPushBoolFalse:
			v.push(BoolValue(false))
		case OpPushUndefined:
			v.push(Undefined())
		case OpPushNull:
			v.push(Null())

		// Variables
		case OpLoadVar:
			id := v.popIdent()
			val, _ := v.lookupID(id)
			v.push(retain(val))
		case OpStoreVar:
			id := v.popIdent()
			val := v.pop()
			v.assign(id, val)
		case OpInitialize:
			val := v.pop()
			id := v.popIdent()
			if err := v.scopes[len(v.scopes)-1].declare(id, val); err != nil {
				v.fault(err)
			}

		// Stack and scopes
		case OpDuplicateTop:
			v.push(retain(v.top()))
		case OpPushStackFrame:
			v.pushScope()
		case OpPopStackFrame:
			v.popScopes(imm)
		case OpPopValue:
			val := v.pop()
			if imm != 0 {
				v.completion = detach(val)
			}
			release(val)

		// Arithmetic and comparison
		case OpBinaryAdd, OpBinarySub, OpBinaryMul, OpBinaryDiv, OpBinaryMod, OpBinaryPow,
			OpCompareStrictEqual, OpCompareEqual, OpCompareLessThan, OpCompareGreaterThan,
			OpCompareLessEqual, OpCompareGreaterEqual, OpCompareInstanceof,
			OpBinaryBitAnd, OpBinaryBitOr, OpBinaryBitXor, OpBinaryShl, OpBinaryShr, OpBinaryUshr:
			b := v.pop()
			a := v.pop()
			r := v.binary(op, a, b)
			release(a)
			release(b)
			v.push(r)

		// Unary
		case OpCompareNot, OpTypeofValue, OpUnaryDelete, OpUnaryNegate, OpUnaryPlus, OpUnaryBitNot:
			val := v.pop()
			r := unary(op, val)
			release(val)
			v.push(r)

		// Control flow
		case OpJumpIfFalse, OpJumpIfTrue:
			val := v.pop()
			cond := ToBoolean(val)
			release(val)
			if cond == (op == OpJumpIfTrue) {
				pc = v.target(code, imm)
			}
		case OpJumpTo:
			pc = v.target(code, imm)
		case OpNoOperation:

		default:
			v.fault(fmt.Errorf("%w: 0x%02x", ErrBadOpcode, byte(op)))
		}
	}
	return nil
}

func (v *VM) learnNames(bc *Bytecode) {
	for i := range bc.Strings {
		if s, err := bc.StringAt(i); err == nil {
			v.names[Hash(s)] = s
		}
	}
}

func (v *VM) number(bc *Bytecode, imm int) Number {
	n, err := bc.NumberAt(imm)
	if err != nil {
		v.fault(fmt.Errorf("%w: %v", ErrBadOperand, err))
	}
	return n
}

func (v *VM) target(code []Instruction, imm int) int {
	if imm > len(code) {
		v.fault(fmt.Errorf("%w: jump target %d beyond %d instructions", ErrBadOperand, imm, len(code)))
	}
	return imm
}

func (v *VM) lookupID(id uint32) (Value, bool) {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if j := v.scopes[i].find(id); j >= 0 {
			return v.scopes[i].bindings[j].value, true
		}
	}
	return Undefined(), false
}

// assign stores into the innermost scope that binds id, releasing the old
// value. An unbound name becomes a binding of the outermost scope.
func (v *VM) assign(id uint32, val Value) {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if j := v.scopes[i].find(id); j >= 0 {
			v.scopes[i].set(j, val)
			return
		}
	}
	if err := v.scopes[0].declare(id, val); err != nil {
		v.fault(err)
	}
}

func (v *VM) binary(op Opcode, a, b Value) Value {
	switch op {
	case OpBinaryAdd:
		if a.kind == KindString && b.kind == KindString {
			return PooledString(v.pool.Concat(a.Text(), b.Text()))
		}
		return NumberValue(ToDouble(a) + ToDouble(b))
	case OpBinarySub:
		return NumberValue(ToDouble(a) - ToDouble(b))
	case OpBinaryMul:
		return NumberValue(ToDouble(a) * ToDouble(b))
	case OpBinaryDiv:
		d := ToDouble(b)
		if d == 0 {
			return Undefined()
		}
		return NumberValue(ToDouble(a) / d)
	case OpBinaryMod:
		d := ToDouble(b)
		if d == 0 {
			return Undefined()
		}
		return NumberValue(math.Mod(ToDouble(a), d))
	case OpBinaryPow:
		return NumberValue(math.Pow(ToDouble(a), ToDouble(b)))

	case OpCompareStrictEqual:
		return BoolValue(StrictEqual(a, b))
	case OpCompareEqual:
		return BoolValue(LooseEqual(a, b))
	case OpCompareLessThan:
		return BoolValue(ToDouble(a) < ToDouble(b))
	case OpCompareGreaterThan:
		return BoolValue(ToDouble(a) > ToDouble(b))
	case OpCompareLessEqual:
		return BoolValue(ToDouble(a) <= ToDouble(b))
	case OpCompareGreaterEqual:
		return BoolValue(ToDouble(a) >= ToDouble(b))
	case OpCompareInstanceof:
		// no object model yet: nothing is an instance of anything
		return BoolValue(false)

	case OpBinaryBitAnd:
		return NumberValue(float64(ToInt32(a) & ToInt32(b)))
	case OpBinaryBitOr:
		return NumberValue(float64(ToInt32(a) | ToInt32(b)))
	case OpBinaryBitXor:
		return NumberValue(float64(ToInt32(a) ^ ToInt32(b)))
	case OpBinaryShl:
		return NumberValue(float64(ToInt32(a) << (uint32(ToInt32(b)) & 31)))
	case OpBinaryShr:
		return NumberValue(float64(ToInt32(a) >> (uint32(ToInt32(b)) & 31)))
	case OpBinaryUshr:
		return NumberValue(float64(uint32(ToInt32(a)) >> (uint32(ToInt32(b)) & 31)))
	}
	v.fault(fmt.Errorf("%w: %s is not binary", ErrBadOpcode, op))
	return Value{}
}

func unary(op Opcode, val Value) Value {
	switch op {
	case OpCompareNot:
		return BoolValue(!ToBoolean(val))
	case OpTypeofValue:
		return BorrowedString(val.TypeOf())
	case OpUnaryDelete:
		return BoolValue(true)
	case OpUnaryNegate:
		if val.kind == KindNumber {
			return NumberValue(-val.num)
		}
		return BoolValue(!ToBoolean(val))
	case OpUnaryPlus:
		return NumberValue(ToDouble(val))
	}
	return NumberValue(float64(^ToInt32(val)))
}
