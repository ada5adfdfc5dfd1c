package compiler

import (
	"fmt"

	"github.com/chazu/jsvm/vm"
)

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// NodeKind tags each node type.
type NodeKind int

const (
	KindIdentifier NodeKind = iota
	KindLiteral
	KindArrayLiteral
	KindObjectExpression
	KindProperty
	KindGetter
	KindSetter
	KindBinaryExpression
	KindUnaryExpression
	KindTernaryExpression
	KindMemberExpression
	KindCallExpression
	KindNewExpression
	KindMetaProperty
	KindThisExpression
	KindSequenceExpression
	KindFunctionExpression
	KindBlockStatement
	KindIfStatement
	KindForLoopStatement
	KindWhileStatement
	KindVariableDeclaration
	KindReturnStatement
	KindBreakStatement
	KindContinueStatement
	KindLabelledStatement
	KindFunctionDeclaration
	KindExpressionStatement
	KindEmptyStatement
	KindAstNodeList
	KindProgram
)

var nodeKindNames = [...]string{
	KindIdentifier:          "Identifier",
	KindLiteral:             "Literal",
	KindArrayLiteral:        "ArrayLiteral",
	KindObjectExpression:    "ObjectExpression",
	KindProperty:            "Property",
	KindGetter:              "Getter",
	KindSetter:              "Setter",
	KindBinaryExpression:    "BinaryExpression",
	KindUnaryExpression:     "UnaryExpression",
	KindTernaryExpression:   "TernaryExpression",
	KindMemberExpression:    "MemberExpression",
	KindCallExpression:      "CallExpression",
	KindNewExpression:       "NewExpression",
	KindMetaProperty:        "MetaProperty",
	KindThisExpression:      "ThisExpression",
	KindSequenceExpression:  "SequenceExpression",
	KindFunctionExpression:  "FunctionExpression",
	KindBlockStatement:      "BlockStatement",
	KindIfStatement:         "IfStatement",
	KindForLoopStatement:    "ForLoopStatement",
	KindWhileStatement:      "WhileStatement",
	KindVariableDeclaration: "VariableDeclaration",
	KindReturnStatement:     "ReturnStatement",
	KindBreakStatement:      "BreakStatement",
	KindContinueStatement:   "ContinueStatement",
	KindLabelledStatement:   "LabelledStatement",
	KindFunctionDeclaration: "FunctionDeclaration",
	KindExpressionStatement: "ExpressionStatement",
	KindEmptyStatement:      "EmptyStatement",
	KindAstNodeList:         "AstNodeList",
	KindProgram:             "Program",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	Kind() NodeKind
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Identifier is a name reference. The name is interned.
type Identifier struct {
	SpanVal Span
	Name    *vm.PoolString
}

func (n *Identifier) Span() Span     { return n.SpanVal }
func (n *Identifier) Kind() NodeKind { return KindIdentifier }
func (n *Identifier) node()          {}

// Text returns the identifier's name.
func (n *Identifier) Text() string { return n.Name.String() }

// LiteralValue is the closed set of literal payloads.
type LiteralValue interface {
	literal()
}

type (
	LitString    struct{ Value *vm.PoolString }
	LitInteger   int32
	LitUnsigned  uint32
	LitFloat     float64
	LitBoolean   bool
	LitNull      struct{}
	LitUndefined struct{}
)

func (LitString) literal()    {}
func (LitInteger) literal()   {}
func (LitUnsigned) literal()  {}
func (LitFloat) literal()     {}
func (LitBoolean) literal()   {}
func (LitNull) literal()      {}
func (LitUndefined) literal() {}

// Literal is a constant value.
type Literal struct {
	SpanVal Span
	Value   LiteralValue
}

func (n *Literal) Span() Span     { return n.SpanVal }
func (n *Literal) Kind() NodeKind { return KindLiteral }
func (n *Literal) node()          {}

// ArrayLiteral is [a, b, ...].
type ArrayLiteral struct {
	SpanVal  Span
	Elements *AstNodeList
}

func (n *ArrayLiteral) Span() Span     { return n.SpanVal }
func (n *ArrayLiteral) Kind() NodeKind { return KindArrayLiteral }
func (n *ArrayLiteral) node()          {}

// ObjectExpression is { key: value, get k() {}, set k(v) {} }.
type ObjectExpression struct {
	SpanVal    Span
	Properties *AstNodeList // *Property, *Getter or *Setter
}

func (n *ObjectExpression) Span() Span     { return n.SpanVal }
func (n *ObjectExpression) Kind() NodeKind { return KindObjectExpression }
func (n *ObjectExpression) node()          {}

// Property is one key/value entry of an object literal.
type Property struct {
	SpanVal  Span
	Key      Node
	Value    Node
	Computed bool // [key]: value
}

func (n *Property) Span() Span     { return n.SpanVal }
func (n *Property) Kind() NodeKind { return KindProperty }
func (n *Property) node()          {}

// Getter is get key() { ... } inside an object literal.
type Getter struct {
	SpanVal Span
	Key     Node
	Body    *BlockStatement
}

func (n *Getter) Span() Span     { return n.SpanVal }
func (n *Getter) Kind() NodeKind { return KindGetter }
func (n *Getter) node()          {}

// Setter is set key(param) { ... } inside an object literal.
type Setter struct {
	SpanVal Span
	Key     Node
	Param   *Identifier
	Body    *BlockStatement
}

func (n *Setter) Span() Span     { return n.SpanVal }
func (n *Setter) Kind() NodeKind { return KindSetter }
func (n *Setter) node()          {}

// BinaryExpression covers arithmetic, comparison, logical and assignment
// operators. Op is the operator token.
type BinaryExpression struct {
	SpanVal Span
	Op      TokenType
	Left    Node
	Right   Node
}

func (n *BinaryExpression) Span() Span     { return n.SpanVal }
func (n *BinaryExpression) Kind() NodeKind { return KindBinaryExpression }
func (n *BinaryExpression) node()          {}

// UnaryExpression is a prefix operator applied to one operand.
type UnaryExpression struct {
	SpanVal Span
	Op      TokenType
	Operand Node
}

func (n *UnaryExpression) Span() Span     { return n.SpanVal }
func (n *UnaryExpression) Kind() NodeKind { return KindUnaryExpression }
func (n *UnaryExpression) node()          {}

// TernaryExpression is test ? consequent : alternate.
type TernaryExpression struct {
	SpanVal    Span
	Test       Node
	Consequent Node
	Alternate  Node
}

func (n *TernaryExpression) Span() Span     { return n.SpanVal }
func (n *TernaryExpression) Kind() NodeKind { return KindTernaryExpression }
func (n *TernaryExpression) node()          {}

// MemberExpression is object.property, object[property] or object?.property.
type MemberExpression struct {
	SpanVal  Span
	Object   Node
	Property Node
	Computed bool
	Optional bool
}

func (n *MemberExpression) Span() Span     { return n.SpanVal }
func (n *MemberExpression) Kind() NodeKind { return KindMemberExpression }
func (n *MemberExpression) node()          {}

// CallExpression is callee(arguments).
type CallExpression struct {
	SpanVal   Span
	Callee    Node
	Arguments *AstNodeList
}

func (n *CallExpression) Span() Span     { return n.SpanVal }
func (n *CallExpression) Kind() NodeKind { return KindCallExpression }
func (n *CallExpression) node()          {}

// NewExpression is new callee(arguments).
type NewExpression struct {
	SpanVal   Span
	Callee    Node
	Arguments *AstNodeList
}

func (n *NewExpression) Span() Span     { return n.SpanVal }
func (n *NewExpression) Kind() NodeKind { return KindNewExpression }
func (n *NewExpression) node()          {}

// MetaProperty is new.target.
type MetaProperty struct {
	SpanVal  Span
	Meta     string
	Property string
}

func (n *MetaProperty) Span() Span     { return n.SpanVal }
func (n *MetaProperty) Kind() NodeKind { return KindMetaProperty }
func (n *MetaProperty) node()          {}

// ThisExpression is this.
type ThisExpression struct {
	SpanVal Span
}

func (n *ThisExpression) Span() Span     { return n.SpanVal }
func (n *ThisExpression) Kind() NodeKind { return KindThisExpression }
func (n *ThisExpression) node()          {}

// SequenceExpression is a, b, c; its value is the last expression.
type SequenceExpression struct {
	SpanVal     Span
	Expressions []Node
}

func (n *SequenceExpression) Span() Span     { return n.SpanVal }
func (n *SequenceExpression) Kind() NodeKind { return KindSequenceExpression }
func (n *SequenceExpression) node()          {}

// FunctionExpression is function [name](params) { body } in value position.
type FunctionExpression struct {
	SpanVal   Span
	Name      *Identifier // nil when anonymous
	Params    *AstNodeList
	Body      *BlockStatement
	Generator bool
}

func (n *FunctionExpression) Span() Span     { return n.SpanVal }
func (n *FunctionExpression) Kind() NodeKind { return KindFunctionExpression }
func (n *FunctionExpression) node()          {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// BlockStatement is { ... } and opens a scope.
type BlockStatement struct {
	SpanVal Span
	Body    *AstNodeList
}

func (n *BlockStatement) Span() Span     { return n.SpanVal }
func (n *BlockStatement) Kind() NodeKind { return KindBlockStatement }
func (n *BlockStatement) node()          {}

// IfStatement is if (test) consequent [else alternate].
type IfStatement struct {
	SpanVal    Span
	Test       Node
	Consequent Node
	Alternate  Node // nil without else
}

func (n *IfStatement) Span() Span     { return n.SpanVal }
func (n *IfStatement) Kind() NodeKind { return KindIfStatement }
func (n *IfStatement) node()          {}

// ForLoopStatement is for (init; test; update) body. Any of init, test and
// update may be nil.
type ForLoopStatement struct {
	SpanVal Span
	Init    Node
	Test    Node
	Update  Node
	Body    Node
}

func (n *ForLoopStatement) Span() Span     { return n.SpanVal }
func (n *ForLoopStatement) Kind() NodeKind { return KindForLoopStatement }
func (n *ForLoopStatement) node()          {}

// WhileStatement is while (test) body.
type WhileStatement struct {
	SpanVal Span
	Test    Node
	Body    Node
}

func (n *WhileStatement) Span() Span     { return n.SpanVal }
func (n *WhileStatement) Kind() NodeKind { return KindWhileStatement }
func (n *WhileStatement) node()          {}

// VariableDeclaration declares one name. DeclKind is TokenVar, TokenLet
// or TokenConst.
type VariableDeclaration struct {
	SpanVal  Span
	DeclKind TokenType
	Target   *Identifier
	Init     Node // nil without an initializer
}

func (n *VariableDeclaration) Span() Span     { return n.SpanVal }
func (n *VariableDeclaration) Kind() NodeKind { return KindVariableDeclaration }
func (n *VariableDeclaration) node()          {}

// ReturnStatement is return [argument].
type ReturnStatement struct {
	SpanVal  Span
	Argument Node
}

func (n *ReturnStatement) Span() Span     { return n.SpanVal }
func (n *ReturnStatement) Kind() NodeKind { return KindReturnStatement }
func (n *ReturnStatement) node()          {}

// BreakStatement is break [label].
type BreakStatement struct {
	SpanVal Span
	Label   *Identifier
}

func (n *BreakStatement) Span() Span     { return n.SpanVal }
func (n *BreakStatement) Kind() NodeKind { return KindBreakStatement }
func (n *BreakStatement) node()          {}

// ContinueStatement is continue [label].
type ContinueStatement struct {
	SpanVal Span
	Label   *Identifier
}

func (n *ContinueStatement) Span() Span     { return n.SpanVal }
func (n *ContinueStatement) Kind() NodeKind { return KindContinueStatement }
func (n *ContinueStatement) node()          {}

// LabelledStatement is label: body.
type LabelledStatement struct {
	SpanVal Span
	Label   *Identifier
	Body    Node
}

func (n *LabelledStatement) Span() Span     { return n.SpanVal }
func (n *LabelledStatement) Kind() NodeKind { return KindLabelledStatement }
func (n *LabelledStatement) node()          {}

// FunctionDeclaration is a named function statement.
type FunctionDeclaration struct {
	SpanVal   Span
	Name      *Identifier
	Params    *AstNodeList
	Body      *BlockStatement
	Generator bool
}

func (n *FunctionDeclaration) Span() Span     { return n.SpanVal }
func (n *FunctionDeclaration) Kind() NodeKind { return KindFunctionDeclaration }
func (n *FunctionDeclaration) node()          {}

// ExpressionStatement is an expression used as a statement.
type ExpressionStatement struct {
	SpanVal    Span
	Expression Node
}

func (n *ExpressionStatement) Span() Span     { return n.SpanVal }
func (n *ExpressionStatement) Kind() NodeKind { return KindExpressionStatement }
func (n *ExpressionStatement) node()          {}

// EmptyStatement is a lone semicolon.
type EmptyStatement struct {
	SpanVal Span
}

func (n *EmptyStatement) Span() Span     { return n.SpanVal }
func (n *EmptyStatement) Kind() NodeKind { return KindEmptyStatement }
func (n *EmptyStatement) node()          {}

// AstNodeList is an ordered list of nodes: block bodies, parameters,
// arguments, literal elements and multi-name declarations.
type AstNodeList struct {
	SpanVal Span
	Items   []Node
}

func (n *AstNodeList) Span() Span     { return n.SpanVal }
func (n *AstNodeList) Kind() NodeKind { return KindAstNodeList }
func (n *AstNodeList) node()          {}

// Len returns the number of items; a nil list is empty.
func (n *AstNodeList) Len() int {
	if n == nil {
		return 0
	}
	return len(n.Items)
}

// ---------------------------------------------------------------------------
// Top-level structure
// ---------------------------------------------------------------------------

// Program is a parsed script. It owns every pooled string the parser
// interned for it, including those of subtrees dropped on error.
type Program struct {
	SpanVal Span
	Body    []Node
	handles []*vm.PoolString
}

func (n *Program) Span() Span     { return n.SpanVal }
func (n *Program) Kind() NodeKind { return KindProgram }
func (n *Program) node()          {}

// Release drops the program's references into the string pool. The tree
// must not be used afterwards. Calling Release twice is a no-op.
func (n *Program) Release() {
	if n == nil {
		return
	}
	for _, h := range n.handles {
		h.Release()
	}
	n.handles = nil
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

// Walk visits node and its descendants in source order. Children are
// skipped when fn returns false. Nil children are not visited.
func Walk(node Node, fn func(Node) bool) {
	if isNil(node) || !fn(node) {
		return
	}
	for _, child := range Children(node) {
		Walk(child, fn)
	}
}

// Children returns the direct children of node in source order.
func Children(node Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, n := range nodes {
			if !isNil(n) {
				out = append(out, n)
			}
		}
	}
	switch n := node.(type) {
	case *ArrayLiteral:
		add(n.Elements)
	case *ObjectExpression:
		add(n.Properties)
	case *Property:
		add(n.Key, n.Value)
	case *Getter:
		add(n.Key, n.Body)
	case *Setter:
		add(n.Key, n.Param, n.Body)
	case *BinaryExpression:
		add(n.Left, n.Right)
	case *UnaryExpression:
		add(n.Operand)
	case *TernaryExpression:
		add(n.Test, n.Consequent, n.Alternate)
	case *MemberExpression:
		add(n.Object, n.Property)
	case *CallExpression:
		add(n.Callee, n.Arguments)
	case *NewExpression:
		add(n.Callee, n.Arguments)
	case *SequenceExpression:
		add(n.Expressions...)
	case *FunctionExpression:
		add(n.Name, n.Params, n.Body)
	case *BlockStatement:
		add(n.Body)
	case *IfStatement:
		add(n.Test, n.Consequent, n.Alternate)
	case *ForLoopStatement:
		add(n.Init, n.Test, n.Update, n.Body)
	case *WhileStatement:
		add(n.Test, n.Body)
	case *VariableDeclaration:
		add(n.Target, n.Init)
	case *ReturnStatement:
		add(n.Argument)
	case *BreakStatement:
		add(n.Label)
	case *ContinueStatement:
		add(n.Label)
	case *LabelledStatement:
		add(n.Label, n.Body)
	case *FunctionDeclaration:
		add(n.Name, n.Params, n.Body)
	case *ExpressionStatement:
		add(n.Expression)
	case *AstNodeList:
		add(n.Items...)
	case *Program:
		add(n.Body...)
	}
	return out
}

// isNil catches typed nil pointers stored in a Node interface.
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	switch n := n.(type) {
	case *Identifier:
		return n == nil
	case *BlockStatement:
		return n == nil
	case *AstNodeList:
		return n == nil
	}
	return false
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}
