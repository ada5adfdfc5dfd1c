package vm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

// asm is a tiny assembler for hand-built test programs.
type asm struct {
	*Builder
}

func newAsm() *asm { return &asm{NewBuilder()} }

func (a *asm) ident(name string) *asm {
	a.AddString(name)
	a.EmitImm(OpConstantIdentifier, a.AddNumber(NumberFromIdent(Hash(name))))
	return a
}

func (a *asm) i32(v int32) *asm {
	a.EmitImm(OpConstantI32, a.AddNumber(NumberFromInt32(v)))
	return a
}

func (a *asm) f64(v float64) *asm {
	a.EmitImm(OpConstantDouble, a.AddNumber(NumberFromFloat(v)))
	return a
}

func (a *asm) str(s string) *asm {
	a.EmitImm(OpConstantString, a.AddString(s))
	return a
}

func (a *asm) op(ops ...Opcode) *asm {
	for _, op := range ops {
		a.Emit(op)
	}
	return a
}

func (a *asm) run(t *testing.T, opts ...Option) *VM {
	t.Helper()
	bc, err := a.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	v := New(NewStringPool(), opts...)
	if err := v.Execute(context.Background(), bc); err != nil {
		t.Fatalf("Execute: %v\n%s", err, Disassemble(bc))
	}
	return v
}

func mustLookup(t *testing.T, v *VM, name string) Value {
	t.Helper()
	val, ok := v.Lookup(name)
	if !ok {
		t.Fatalf("variable %s not bound", name)
	}
	return val
}

func TestExecuteInitialize(t *testing.T) {
	v := newAsm().ident("var1").i32(2).i32(2).op(OpBinaryAdd, OpInitialize).run(t)
	if got := mustLookup(t, v, "var1"); got.Num() != 4 {
		t.Errorf("var1 = %v, want 4", got)
	}
}

func TestExecuteBinaryOperandOrder(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b float64
		want float64
	}{
		{OpBinarySub, 10, 4, 6},
		{OpBinaryDiv, 9, 3, 3},
		{OpBinaryMod, 7, 3, 1},
		{OpBinaryPow, 2, 10, 1024},
		{OpBinaryShl, 1, 4, 16},
		{OpBinaryShr, -16, 2, -4},
		{OpBinaryUshr, -1, 28, 15},
		{OpBinaryBitAnd, 6, 3, 2},
		{OpBinaryBitOr, 6, 3, 7},
		{OpBinaryBitXor, 6, 3, 5},
	}
	for _, tc := range tests {
		v := newAsm().ident("r").f64(tc.a).f64(tc.b).op(tc.op, OpInitialize).run(t)
		if got := mustLookup(t, v, "r").Num(); got != tc.want {
			t.Errorf("%v %s %v = %v, want %v", tc.a, tc.op, tc.b, got, tc.want)
		}
	}
}

func TestExecuteDivideByZeroIsUndefined(t *testing.T) {
	for _, op := range []Opcode{OpBinaryDiv, OpBinaryMod} {
		v := newAsm().ident("r").f64(1).f64(0).op(op, OpInitialize).run(t)
		if got := mustLookup(t, v, "r"); !got.IsUndefined() {
			t.Errorf("1 %s 0 = %v, want undefined", op, got)
		}
	}
}

func TestExecuteStringConcat(t *testing.T) {
	a := newAsm().ident("s").str("foo").str("bar").op(OpBinaryAdd, OpInitialize)
	a.ident("n").str("1").f64(2).op(OpBinaryAdd, OpInitialize)
	v := a.run(t)

	if got := mustLookup(t, v, "s"); got.Kind() != KindString || got.Text() != "foobar" {
		t.Errorf("s = %v, want \"foobar\"", got)
	}
	if !v.Pool().Contains("foobar") {
		t.Error("concatenation should live in the string pool")
	}
	// mixed operands add numerically
	if got := mustLookup(t, v, "n"); got.Kind() != KindNumber || got.Num() != 3 {
		t.Errorf("n = %v, want 3", got)
	}

	v.Reset()
	if v.Pool().Len() != 0 {
		t.Errorf("pool holds %d entries after Reset, want 0", v.Pool().Len())
	}
}

func TestExecuteReleasesStrings(t *testing.T) {
	a := newAsm().ident("s").str("x").op(OpInitialize)
	for i := 0; i < 3; i++ {
		// s = "a" + "b" as an expression statement
		a.str("a").str("b").op(OpBinaryAdd, OpDuplicateTop)
		a.ident("s").op(OpStoreVar)
		a.EmitImm(OpPopValue, 1)
	}
	a.str("t").op(OpDuplicateTop, OpCompareNot)
	a.EmitImm(OpPopValue, 0)
	a.EmitImm(OpPopValue, 0)
	v := a.run(t)

	pool := v.Pool()
	if got := pool.Refs("ab"); got != 1 {
		t.Errorf("Refs(ab) = %d, want 1", got)
	}
	if pool.Len() != 1 {
		t.Errorf("pool holds %d entries, want only the bound string", pool.Len())
	}
	if got := v.Completion(); got.Text() != "ab" {
		t.Errorf("Completion = %v, want \"ab\"", got)
	}

	v.Reset()
	if pool.Len() != 0 {
		t.Errorf("pool holds %d entries after Reset, want 0", pool.Len())
	}
	if got := v.Completion(); !got.IsUndefined() {
		t.Errorf("Completion = %v after Reset, want undefined", got)
	}
}

func TestExecuteErrorReleasesStack(t *testing.T) {
	pool := NewStringPool()
	v := New(pool)
	a := newAsm().ident("kept").str("k").op(OpInitialize)
	a.str("left").str("over").op(OpPushStackFrame)
	a.ident("inner").str("scoped").op(OpInitialize)
	a.EmitImm(OpPopStackFrame, 5)
	bc, _ := a.Build()

	if err := v.Execute(context.Background(), bc); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
	for _, text := range []string{"left", "over", "scoped"} {
		if pool.Contains(text) {
			t.Errorf("pool still holds %q after a runtime error", text)
		}
	}
	if pool.Refs("k") != 1 {
		t.Errorf("Refs(k) = %d, want 1", pool.Refs("k"))
	}
}

func TestExecuteTypeof(t *testing.T) {
	a := newAsm()
	a.ident("t1").f64(1).op(OpTypeofValue, OpInitialize)
	a.ident("t2").op(OpPushBoolTrue, OpTypeofValue, OpInitialize)
	a.ident("t3").str("x").op(OpTypeofValue, OpInitialize)
	a.ident("t4").op(OpPushUndefined, OpTypeofValue, OpInitialize)
	v := a.run(t)

	want := map[string]string{"t1": "number", "t2": "boolean", "t3": "string", "t4": "undefined"}
	for name, w := range want {
		if got := mustLookup(t, v, name).Text(); got != w {
			t.Errorf("%s = %q, want %q", name, got, w)
		}
	}
}

func TestExecuteUnary(t *testing.T) {
	a := newAsm()
	a.ident("neg").f64(5).op(OpUnaryNegate, OpInitialize)
	a.ident("negb").op(OpPushBoolTrue, OpUnaryNegate, OpInitialize)
	a.ident("not").f64(0).op(OpCompareNot, OpInitialize)
	a.ident("del").f64(0).op(OpUnaryDelete, OpInitialize)
	a.ident("plus").str("12").op(OpUnaryPlus, OpInitialize)
	a.ident("inv").f64(5).op(OpUnaryBitNot, OpInitialize)
	v := a.run(t)

	if got := mustLookup(t, v, "neg").Num(); got != -5 {
		t.Errorf("neg = %v, want -5", got)
	}
	if got := mustLookup(t, v, "negb"); got.Kind() != KindBoolean || got.Bool() {
		t.Errorf("negb = %v, want false", got)
	}
	if got := mustLookup(t, v, "not"); !got.Bool() {
		t.Errorf("not = %v, want true", got)
	}
	if got := mustLookup(t, v, "del"); !got.Bool() {
		t.Errorf("del = %v, want true", got)
	}
	if got := mustLookup(t, v, "plus").Num(); got != 12 {
		t.Errorf("plus = %v, want 12", got)
	}
	if got := mustLookup(t, v, "inv").Num(); got != -6 {
		t.Errorf("inv = %v, want -6", got)
	}
}

func TestExecuteScopes(t *testing.T) {
	a := newAsm()
	a.ident("x").f64(1).op(OpInitialize)
	a.op(OpPushStackFrame)
	a.ident("x").f64(2).op(OpInitialize) // shadows
	a.ident("inner").ident("x").op(OpLoadVar, OpInitialize)
	a.f64(9).ident("x").op(OpStoreVar) // assigns the shadow
	a.EmitImm(OpPopStackFrame, 1)
	a.ident("outer").ident("x").op(OpLoadVar, OpInitialize)
	v := a.run(t)

	if got := mustLookup(t, v, "outer").Num(); got != 1 {
		t.Errorf("outer = %v, want 1", got)
	}
	if _, ok := v.Lookup("inner"); ok {
		t.Error("inner should be gone with its scope")
	}
	if v.Depth() != 1 {
		t.Errorf("Depth() = %d, want 1", v.Depth())
	}
}

func TestExecuteLoadMissIsUndefined(t *testing.T) {
	v := newAsm().ident("r").ident("nope").op(OpLoadVar, OpInitialize).run(t)
	if got := mustLookup(t, v, "r"); !got.IsUndefined() {
		t.Errorf("r = %v, want undefined", got)
	}
}

func TestExecuteStoreUnboundCreatesGlobal(t *testing.T) {
	a := newAsm().op(OpPushStackFrame)
	a.f64(3).ident("g").op(OpStoreVar)
	a.EmitImm(OpPopStackFrame, 1)
	v := a.run(t)
	if got := mustLookup(t, v, "g").Num(); got != 3 {
		t.Errorf("g = %v, want 3", got)
	}
}

func TestExecuteJumps(t *testing.T) {
	// r = false ? 1 : 2
	a := newAsm()
	a.ident("r")
	a.op(OpPushBoolFalse)
	jf := a.EmitJump(OpJumpIfFalse)
	a.f64(1)
	j := a.EmitJump(OpJumpTo)
	a.PatchJump(jf)
	a.f64(2)
	a.PatchJump(j)
	a.op(OpInitialize)
	v := a.run(t)

	if got := mustLookup(t, v, "r").Num(); got != 2 {
		t.Errorf("r = %v, want 2", got)
	}
}

func TestExecuteCompletion(t *testing.T) {
	a := newAsm().f64(7)
	a.EmitImm(OpPopValue, 1)
	a.f64(8)
	a.EmitImm(OpPopValue, 0)
	v := a.run(t)
	if got := v.Completion().Num(); got != 7 {
		t.Errorf("Completion() = %v, want 7", got)
	}
}

func TestExecuteCapacityExceeded(t *testing.T) {
	t.Run("operand stack", func(t *testing.T) {
		a := newAsm()
		for i := 0; i < 5; i++ {
			a.op(OpPushNull)
		}
		bc, _ := a.Build()
		err := New(NewStringPool(), WithStackSize(4)).Execute(context.Background(), bc)
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Errorf("err = %v, want ErrCapacityExceeded", err)
		}
		var rt *RuntimeError
		if !errors.As(err, &rt) || rt.PC != 4 {
			t.Errorf("err = %#v, want RuntimeError at pc 4", err)
		}
	})

	t.Run("locals", func(t *testing.T) {
		a := newAsm()
		for _, name := range []string{"a", "b", "c"} {
			a.ident(name).op(OpPushNull, OpInitialize)
		}
		bc, _ := a.Build()
		err := New(NewStringPool(), WithLocalsPerScope(2)).Execute(context.Background(), bc)
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Errorf("err = %v, want ErrCapacityExceeded", err)
		}
	})

	t.Run("scopes", func(t *testing.T) {
		a := newAsm().op(OpPushStackFrame, OpPushStackFrame, OpPushStackFrame)
		bc, _ := a.Build()
		v := New(NewStringPool(), WithMaxScopes(3))
		err := v.Execute(context.Background(), bc)
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Errorf("err = %v, want ErrCapacityExceeded", err)
		}
		if v.Depth() != 1 {
			t.Errorf("Depth() = %d after failure, want 1", v.Depth())
		}
	})
}

func TestExecuteMalformed(t *testing.T) {
	tests := []struct {
		name string
		bc   *Bytecode
		want error
	}{
		{"underflow", &Bytecode{Instructions: []Instruction{Instruction(OpBinaryAdd)}}, ErrStackUnderflow},
		{"bad opcode", &Bytecode{Instructions: []Instruction{0xEE}}, ErrBadOpcode},
		{"bad constant", &Bytecode{Instructions: []Instruction{Instruction(OpConstantDouble) | 5<<8}}, ErrBadOperand},
		{"bad jump", &Bytecode{Instructions: []Instruction{Instruction(OpJumpTo) | 9<<8}}, ErrBadOperand},
		{"pop global scope", &Bytecode{Instructions: []Instruction{Instruction(OpPopStackFrame) | 1<<8}}, ErrStackUnderflow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := New(NewStringPool()).Execute(context.Background(), tc.bc)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestExecuteCancelled(t *testing.T) {
	// jump_to 0 forever
	bc := &Bytecode{Instructions: []Instruction{Instruction(OpJumpTo)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(NewStringPool()).Execute(ctx, bc); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExecuteTrace(t *testing.T) {
	var buf bytes.Buffer
	newAsm().op(OpPushNull).run(t, WithTrace(&buf))
	if !strings.Contains(buf.String(), "push_null") {
		t.Errorf("trace = %q", buf.String())
	}
}

func TestGlobalsAndPersistence(t *testing.T) {
	pool := NewStringPool()
	v := New(pool)

	first, _ := newAsm().ident("a").f64(1).op(OpInitialize).Build()
	second, _ := newAsm().ident("b").ident("a").op(OpLoadVar).f64(1).op(OpBinaryAdd, OpInitialize).Build()

	for _, bc := range []*Bytecode{first, second} {
		if err := v.Execute(context.Background(), bc); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	names := v.GlobalNames()
	if strings.Join(names, ",") != "a,b" {
		t.Errorf("GlobalNames() = %v, want [a b]", names)
	}
	if got := v.Globals()["b"].Num(); got != 2 {
		t.Errorf("b = %v, want 2", got)
	}
}
