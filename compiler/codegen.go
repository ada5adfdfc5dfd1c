package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/jsvm/vm"
)

// ---------------------------------------------------------------------------
// Codegen: lower the AST to bytecode
// ---------------------------------------------------------------------------

// Codegen lowers a Program to vm.Bytecode in a single tree walk. Forward
// jumps are emitted with a placeholder target and patched once the target
// is known.
type Codegen struct {
	b        *vm.Builder
	warnings []string
	errors   []string

	// scopes opened by blocks enclosing the current node
	frames int
	// enclosing loops and labelled statements, innermost last
	targets []*jumpTarget
	// top-level returns, patched to the end of the program
	returns []int
}

// jumpTarget collects the break and continue jumps aimed at one loop or
// labelled statement.
type jumpTarget struct {
	labels    []string
	loop      bool
	frames    int
	breaks    []int
	continues []int
}

// NewCodegen creates a code generator.
func NewCodegen() *Codegen {
	return &Codegen{}
}

// Warnings returns notes about constructs that were accepted but not
// lowered, from the last Compile.
func (c *Codegen) Warnings() []string {
	return c.warnings
}

// Errors returns accumulated compilation errors.
func (c *Codegen) Errors() []string {
	return c.errors
}

func (c *Codegen) errorf(n Node, format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf("%s: %s", n.Span().Start, fmt.Sprintf(format, args...)))
}

func (c *Codegen) warnf(n Node, format string, args ...interface{}) {
	c.warnings = append(c.warnings, fmt.Sprintf("%s: %s", n.Span().Start, fmt.Sprintf(format, args...)))
}

// Compile lowers prog.
func (c *Codegen) Compile(prog *Program) (*vm.Bytecode, error) {
	c.b = vm.NewBuilder()
	c.warnings = nil
	c.errors = nil
	c.frames = 0
	c.targets = nil
	c.returns = nil

	for _, stmt := range prog.Body {
		c.statement(stmt)
	}
	for _, j := range c.returns {
		c.b.PatchJump(j)
	}

	if len(c.errors) > 0 {
		return nil, errors.New("compile: " + strings.Join(c.errors, "; "))
	}
	bc, err := c.b.Build()
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return bc, nil
}

// Compile parses and lowers source. The syntax tree is released before
// returning. Warnings list constructs that parse but do not execute.
func Compile(source string, pool *vm.StringPool, opts ...ParserOption) (*vm.Bytecode, []string, error) {
	prog, err := Parse(source, pool, opts...)
	defer prog.Release()
	if err != nil {
		return nil, nil, err
	}
	gen := NewCodegen()
	bc, err := gen.Compile(prog)
	return bc, gen.Warnings(), err
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Codegen) statement(n Node) {
	switch n := n.(type) {
	case *ExpressionStatement:
		c.expression(n.Expression)
		c.b.EmitImm(vm.OpPopValue, 1)

	case *VariableDeclaration:
		c.declaration(n)

	case *AstNodeList:
		for _, item := range n.Items {
			c.statement(item)
		}

	case *BlockStatement:
		c.block(n)

	case *IfStatement:
		c.expression(n.Test)
		jf := c.b.EmitJump(vm.OpJumpIfFalse)
		c.statement(n.Consequent)
		if n.Alternate == nil {
			c.b.PatchJump(jf)
			return
		}
		end := c.b.EmitJump(vm.OpJumpTo)
		c.b.PatchJump(jf)
		c.statement(n.Alternate)
		c.b.PatchJump(end)

	case *ForLoopStatement:
		c.forLoop(n, nil)

	case *WhileStatement:
		c.whileLoop(n, nil)

	case *LabelledStatement:
		c.labelled(n)

	case *BreakStatement:
		c.breakStatement(n)

	case *ContinueStatement:
		c.continueStatement(n)

	case *ReturnStatement:
		if n.Argument != nil {
			c.expression(n.Argument)
		} else {
			c.b.Emit(vm.OpPushUndefined)
		}
		c.b.EmitImm(vm.OpPopValue, 1)
		if c.frames > 0 {
			c.b.EmitImm(vm.OpPopStackFrame, c.frames)
		}
		c.returns = append(c.returns, c.b.EmitJump(vm.OpJumpTo))

	case *FunctionDeclaration:
		c.warnf(n, "function %s is declared but functions are not executed", n.Name.Text())

	case *EmptyStatement:

	default:
		c.errorf(n, "cannot compile %s as a statement", n.Kind())
	}
}

func (c *Codegen) block(n *BlockStatement) {
	c.b.Emit(vm.OpPushStackFrame)
	c.frames++
	for _, stmt := range n.Body.Items {
		c.statement(stmt)
	}
	c.frames--
	c.b.EmitImm(vm.OpPopStackFrame, 1)
}

func (c *Codegen) declaration(n *VariableDeclaration) {
	c.target(n.Target)
	if n.Init != nil {
		c.expression(n.Init)
	} else {
		c.b.Emit(vm.OpPushUndefined)
	}
	c.b.Emit(vm.OpInitialize)
}

// ---------------------------------------------------------------------------
// Loops and jumps
// ---------------------------------------------------------------------------

func (c *Codegen) pushTarget(labels []string, loop bool) *jumpTarget {
	t := &jumpTarget{labels: labels, loop: loop, frames: c.frames}
	c.targets = append(c.targets, t)
	return t
}

func (c *Codegen) popTarget(t *jumpTarget, continueAt int) {
	c.targets = c.targets[:len(c.targets)-1]
	for _, j := range t.continues {
		c.b.PatchJumpTo(j, continueAt)
	}
	for _, j := range t.breaks {
		c.b.PatchJump(j)
	}
}

// forLoop emits: init; test: cond; jump_if_false exit; body; update;
// jump_to test; exit.
func (c *Codegen) forLoop(n *ForLoopStatement, labels []string) {
	switch init := n.Init.(type) {
	case nil:
	case *VariableDeclaration, *AstNodeList:
		c.statement(init)
	default:
		c.expression(init)
		c.b.EmitImm(vm.OpPopValue, 0)
	}

	test := c.b.Count()
	if n.Test != nil {
		c.expression(n.Test)
	} else {
		c.b.Emit(vm.OpPushBoolTrue)
	}
	exit := c.b.EmitJump(vm.OpJumpIfFalse)

	t := c.pushTarget(labels, true)
	c.statement(n.Body)
	update := c.b.Count()
	if n.Update != nil {
		c.expression(n.Update)
		c.b.EmitImm(vm.OpPopValue, 0)
	}
	c.b.EmitImm(vm.OpJumpTo, test)
	c.b.PatchJump(exit)
	c.popTarget(t, update)
}

func (c *Codegen) whileLoop(n *WhileStatement, labels []string) {
	test := c.b.Count()
	c.expression(n.Test)
	exit := c.b.EmitJump(vm.OpJumpIfFalse)

	t := c.pushTarget(labels, true)
	c.statement(n.Body)
	c.b.EmitImm(vm.OpJumpTo, test)
	c.b.PatchJump(exit)
	c.popTarget(t, test)
}

// labelled gathers a run of labels. A labelled loop takes them as its own
// so continue can name it; any other statement only accepts break.
func (c *Codegen) labelled(n *LabelledStatement) {
	labels := []string{n.Label.Text()}
	body := n.Body
	for {
		inner, ok := body.(*LabelledStatement)
		if !ok {
			break
		}
		labels = append(labels, inner.Label.Text())
		body = inner.Body
	}

	switch body := body.(type) {
	case *ForLoopStatement:
		c.forLoop(body, labels)
	case *WhileStatement:
		c.whileLoop(body, labels)
	default:
		t := c.pushTarget(labels, false)
		c.statement(body)
		c.popTarget(t, -1)
	}
}

// findTarget returns the innermost loop, or the statement carrying label.
func (c *Codegen) findTarget(label *Identifier) *jumpTarget {
	for i := len(c.targets) - 1; i >= 0; i-- {
		t := c.targets[i]
		if label == nil {
			if t.loop {
				return t
			}
			continue
		}
		for _, l := range t.labels {
			if l == label.Text() {
				return t
			}
		}
	}
	return nil
}

// exitFrames closes the scopes opened inside t before jumping to it.
func (c *Codegen) exitFrames(t *jumpTarget) {
	if n := c.frames - t.frames; n > 0 {
		c.b.EmitImm(vm.OpPopStackFrame, n)
	}
}

func (c *Codegen) breakStatement(n *BreakStatement) {
	t := c.findTarget(n.Label)
	if t == nil {
		if n.Label != nil {
			c.errorf(n, "undefined label %s", n.Label.Text())
		} else {
			c.errorf(n, "break outside of a loop")
		}
		return
	}
	c.exitFrames(t)
	t.breaks = append(t.breaks, c.b.EmitJump(vm.OpJumpTo))
}

func (c *Codegen) continueStatement(n *ContinueStatement) {
	t := c.findTarget(n.Label)
	switch {
	case t == nil && n.Label != nil:
		c.errorf(n, "undefined label %s", n.Label.Text())
		return
	case t == nil:
		c.errorf(n, "continue outside of a loop")
		return
	case !t.loop:
		c.errorf(n, "continue target %s is not a loop", n.Label.Text())
		return
	}
	c.exitFrames(t)
	t.continues = append(t.continues, c.b.EmitJump(vm.OpJumpTo))
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// binaryOps maps operators with a one-instruction lowering.
var binaryOps = map[TokenType]vm.Opcode{
	TokenPlus:           vm.OpBinaryAdd,
	TokenMinus:          vm.OpBinarySub,
	TokenStar:           vm.OpBinaryMul,
	TokenSlash:          vm.OpBinaryDiv,
	TokenPercent:        vm.OpBinaryMod,
	TokenExponent:       vm.OpBinaryPow,
	TokenStrictEqual:    vm.OpCompareStrictEqual,
	TokenEqual:          vm.OpCompareEqual,
	TokenLess:           vm.OpCompareLessThan,
	TokenGreater:        vm.OpCompareGreaterThan,
	TokenLessEqual:      vm.OpCompareLessEqual,
	TokenGreaterEqual:   vm.OpCompareGreaterEqual,
	TokenInstanceof:     vm.OpCompareInstanceof,
	TokenBitAnd:         vm.OpBinaryBitAnd,
	TokenBitOr:          vm.OpBinaryBitOr,
	TokenBitXor:         vm.OpBinaryBitXor,
	TokenShiftLeft:      vm.OpBinaryShl,
	TokenShiftRight:     vm.OpBinaryShr,
	TokenShiftRightZero: vm.OpBinaryUshr,
}

// compoundOps maps compound assignment to the operator it applies.
var compoundOps = map[TokenType]vm.Opcode{
	TokenPlusAssign:        vm.OpBinaryAdd,
	TokenMinusAssign:       vm.OpBinarySub,
	TokenStarAssign:        vm.OpBinaryMul,
	TokenExponentAssign:    vm.OpBinaryPow,
	TokenSlashAssign:       vm.OpBinaryDiv,
	TokenPercentAssign:     vm.OpBinaryMod,
	TokenShiftLeftAssign:   vm.OpBinaryShl,
	TokenShiftRightAssign:  vm.OpBinaryShr,
	TokenShiftRightZAssign: vm.OpBinaryUshr,
	TokenBitAndAssign:      vm.OpBinaryBitAnd,
	TokenBitOrAssign:       vm.OpBinaryBitOr,
	TokenBitXorAssign:      vm.OpBinaryBitXor,
}

var unaryOps = map[TokenType]vm.Opcode{
	TokenMinus:  vm.OpUnaryNegate,
	TokenPlus:   vm.OpUnaryPlus,
	TokenNot:    vm.OpCompareNot,
	TokenBitNot: vm.OpUnaryBitNot,
	TokenTypeof: vm.OpTypeofValue,
	TokenDelete: vm.OpUnaryDelete,
}

// expression emits n so that exactly one value is left on the stack.
func (c *Codegen) expression(n Node) {
	switch n := n.(type) {
	case *Identifier:
		c.target(n)
		c.b.Emit(vm.OpLoadVar)

	case *Literal:
		c.literal(n)

	case *BinaryExpression:
		c.binary(n)

	case *UnaryExpression:
		c.expression(n.Operand)
		if n.Op == TokenVoid {
			c.b.EmitImm(vm.OpPopValue, 0)
			c.b.Emit(vm.OpPushUndefined)
			return
		}
		c.b.Emit(unaryOps[n.Op])

	case *TernaryExpression:
		c.expression(n.Test)
		jf := c.b.EmitJump(vm.OpJumpIfFalse)
		c.expression(n.Consequent)
		end := c.b.EmitJump(vm.OpJumpTo)
		c.b.PatchJump(jf)
		c.expression(n.Alternate)
		c.b.PatchJump(end)

	case *SequenceExpression:
		for i, e := range n.Expressions {
			c.expression(e)
			if i < len(n.Expressions)-1 {
				c.b.EmitImm(vm.OpPopValue, 0)
			}
		}

	case *CallExpression, *NewExpression, *MemberExpression, *ObjectExpression,
		*ArrayLiteral, *FunctionExpression, *ThisExpression, *MetaProperty:
		c.unsupported(n)

	default:
		c.errorf(n, "cannot compile %s as an expression", n.Kind())
		c.b.Emit(vm.OpPushUndefined)
	}
}

func (c *Codegen) unsupported(n Node) {
	c.warnf(n, "%s is not executed; it evaluates to undefined", n.Kind())
	c.b.Emit(vm.OpPushUndefined)
}

// target emits an identifier as a handle for store_var and initialize.
// The name goes into the string pool so tools can print it.
func (c *Codegen) target(id *Identifier) {
	name := id.Text()
	c.b.AddString(name)
	c.b.EmitImm(vm.OpConstantIdentifier, c.b.AddNumber(vm.NumberFromIdent(vm.Hash(name))))
}

func (c *Codegen) literal(n *Literal) {
	switch v := n.Value.(type) {
	case LitString:
		c.b.EmitImm(vm.OpConstantString, c.b.AddString(v.Value.String()))
	case LitInteger:
		c.b.EmitImm(vm.OpConstantI32, c.b.AddNumber(vm.NumberFromInt32(int32(v))))
	case LitUnsigned:
		c.b.EmitImm(vm.OpConstantU32, c.b.AddNumber(vm.NumberFromUint32(uint32(v))))
	case LitFloat:
		c.b.EmitImm(vm.OpConstantDouble, c.b.AddNumber(vm.NumberFromFloat(float64(v))))
	case LitBoolean:
		if v {
			c.b.Emit(vm.OpPushBoolTrue)
		} else {
			c.b.Emit(vm.OpPushBoolFalse)
		}
	case LitNull:
		c.b.Emit(vm.OpPushNull)
	case LitUndefined:
		c.b.Emit(vm.OpPushUndefined)
	}
}

func (c *Codegen) binary(n *BinaryExpression) {
	if IsAssignment(n.Op) {
		c.assignment(n)
		return
	}

	switch n.Op {
	case TokenLogicalAnd, TokenLogicalOr:
		// keep the left value if it decides the result
		c.expression(n.Left)
		c.b.Emit(vm.OpDuplicateTop)
		op := vm.OpJumpIfFalse
		if n.Op == TokenLogicalOr {
			op = vm.OpJumpIfTrue
		}
		end := c.b.EmitJump(op)
		c.b.EmitImm(vm.OpPopValue, 0)
		c.expression(n.Right)
		c.b.PatchJump(end)
		return

	case TokenNullish:
		c.expression(n.Left)
		c.b.Emit(vm.OpDuplicateTop)
		c.b.Emit(vm.OpPushNull)
		c.b.Emit(vm.OpCompareEqual)
		end := c.b.EmitJump(vm.OpJumpIfFalse)
		c.b.EmitImm(vm.OpPopValue, 0)
		c.expression(n.Right)
		c.b.PatchJump(end)
		return

	case TokenIn:
		c.unsupported(n)
		return
	}

	c.expression(n.Left)
	c.expression(n.Right)
	switch n.Op {
	case TokenNotEqual:
		c.b.Emit(vm.OpCompareEqual)
		c.b.Emit(vm.OpCompareNot)
	case TokenStrictNotEqual:
		c.b.Emit(vm.OpCompareStrictEqual)
		c.b.Emit(vm.OpCompareNot)
	default:
		op, ok := binaryOps[n.Op]
		if !ok {
			c.errorf(n, "unknown binary operator %s", n.Op)
			return
		}
		c.b.Emit(op)
	}
}

// assignment leaves the assigned value on the stack:
//
//	x = v    v, dup, x, store_var
//	x op= v  load x, v, op, dup, x, store_var
func (c *Codegen) assignment(n *BinaryExpression) {
	id, ok := n.Left.(*Identifier)
	if !ok {
		c.warnf(n, "assignment to %s is not executed", n.Left.Kind())
		c.expression(n.Right)
		return
	}

	if n.Op == TokenAssign {
		c.expression(n.Right)
	} else {
		c.expression(id)
		c.expression(n.Right)
		c.b.Emit(compoundOps[n.Op])
	}
	c.b.Emit(vm.OpDuplicateTop)
	c.target(id)
	c.b.Emit(vm.OpStoreVar)
}
