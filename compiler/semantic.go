package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: pre-codegen checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer walks a parsed program and reports likely mistakes:
// reads of names that are never declared, writes to constants, names
// declared twice in one block and statements that can never run.
//
// Declarations are block scoped for every kind, matching how the VM
// initializes them into the innermost frame.
type SemanticAnalyzer struct {
	findings []Finding

	// Names the host defines before the program runs
	knownGlobals map[string]bool

	// Innermost scope last
	scopes []scopeFrame
}

// Finding is one analysis result.
type Finding struct {
	Pos     Position
	Message string
	Warning bool
}

func (f Finding) String() string {
	if f.Warning {
		return fmt.Sprintf("warning: %s: %s", f.Pos, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Pos, f.Message)
}

// scopeFrame is one block's declarations.
type scopeFrame struct {
	names map[string]TokenType // name -> declaration kind
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{
		knownGlobals: defaultKnownGlobals(),
	}
}

// defaultKnownGlobals returns the set of always-defined global names.
func defaultKnownGlobals() map[string]bool {
	return map[string]bool{
		"undefined":  true,
		"NaN":        true,
		"Infinity":   true,
		"globalThis": true,
	}
}

// AddKnownGlobal adds a global to the known globals set.
func (s *SemanticAnalyzer) AddKnownGlobal(name string) {
	s.knownGlobals[name] = true
}

// Findings returns accumulated analysis errors and warnings in the order
// they were found.
func (s *SemanticAnalyzer) Findings() []Finding {
	return s.findings
}

// Errors returns accumulated analysis errors and warnings as text.
func (s *SemanticAnalyzer) Errors() []string {
	var out []string
	for _, f := range s.findings {
		out = append(out, f.String())
	}
	return out
}

func (s *SemanticAnalyzer) errorAt(node Node, format string, args ...interface{}) {
	s.findings = append(s.findings, Finding{Pos: node.Span().Start, Message: fmt.Sprintf(format, args...)})
}

func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...interface{}) {
	s.findings = append(s.findings, Finding{Pos: node.Span().Start, Message: fmt.Sprintf(format, args...), Warning: true})
}

func (s *SemanticAnalyzer) push() {
	s.scopes = append(s.scopes, scopeFrame{names: make(map[string]TokenType)})
}

func (s *SemanticAnalyzer) pop() {
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// lookup finds the declaration kind of name, innermost scope first.
func (s *SemanticAnalyzer) lookup(name string) (TokenType, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if kind, ok := s.scopes[i].names[name]; ok {
			return kind, true
		}
	}
	return TokenEOF, false
}

// AnalyzeProgram performs semantic analysis on a whole program.
func (s *SemanticAnalyzer) AnalyzeProgram(prog *Program) {
	if prog == nil {
		return
	}
	s.scopes = nil
	s.push()
	s.analyzeStatements(prog.Body)
	s.checkUnreachableCode(prog.Body)
	s.pop()
}

func (s *SemanticAnalyzer) analyzeStatements(stmts []Node) {
	for _, stmt := range stmts {
		s.analyzeStmt(stmt)
	}
}

func (s *SemanticAnalyzer) analyzeStmt(stmt Node) {
	switch st := stmt.(type) {
	case nil:
	case *ExpressionStatement:
		s.analyzeExpr(st.Expression)
	case *VariableDeclaration:
		s.analyzeExpr(st.Init)
		s.declare(st)
	case *AstNodeList:
		s.analyzeStatements(st.Items)
	case *BlockStatement:
		s.analyzeBlock(st)
	case *IfStatement:
		s.analyzeExpr(st.Test)
		s.analyzeStmt(st.Consequent)
		s.analyzeStmt(st.Alternate)
	case *ForLoopStatement:
		switch init := st.Init.(type) {
		case *VariableDeclaration, *AstNodeList:
			s.analyzeStmt(init)
		default:
			s.analyzeExpr(init)
		}
		s.analyzeExpr(st.Test)
		s.analyzeExpr(st.Update)
		s.analyzeStmt(st.Body)
	case *WhileStatement:
		s.analyzeExpr(st.Test)
		s.analyzeStmt(st.Body)
	case *LabelledStatement:
		s.analyzeStmt(st.Body)
	case *ReturnStatement:
		s.analyzeExpr(st.Argument)
	case *FunctionDeclaration:
		s.scopes[len(s.scopes)-1].names[st.Name.Text()] = TokenFunction
		s.analyzeFunction(st.Params, st.Body)
	case *BreakStatement, *ContinueStatement, *EmptyStatement:
		// OK
	}
}

// declare records a declaration in the innermost scope.
func (s *SemanticAnalyzer) declare(decl *VariableDeclaration) {
	if decl.Target == nil {
		return
	}
	name := decl.Target.Text()
	scope := s.scopes[len(s.scopes)-1]
	if prev, ok := scope.names[name]; ok && (prev != TokenVar || decl.DeclKind != TokenVar) {
		s.warnAt(decl.Target, "'%s' is already declared in this block", name)
	}
	scope.names[name] = decl.DeclKind
}

func (s *SemanticAnalyzer) analyzeExpr(expr Node) {
	switch e := expr.(type) {
	case nil:
	case *Identifier:
		s.checkVariableDefined(e)
	case *BinaryExpression:
		if IsAssignment(e.Op) {
			s.analyzeExpr(e.Right)
			s.checkAssignmentTarget(e)
			return
		}
		s.analyzeExpr(e.Left)
		s.analyzeExpr(e.Right)
	case *UnaryExpression:
		// typeof is the usual way to probe for a missing name
		if _, ok := e.Operand.(*Identifier); ok && e.Op == TokenTypeof {
			return
		}
		s.analyzeExpr(e.Operand)
	case *TernaryExpression:
		s.analyzeExpr(e.Test)
		s.analyzeExpr(e.Consequent)
		s.analyzeExpr(e.Alternate)
	case *SequenceExpression:
		for _, sub := range e.Expressions {
			s.analyzeExpr(sub)
		}
	case *MemberExpression:
		s.analyzeExpr(e.Object)
		if e.Computed {
			s.analyzeExpr(e.Property)
		}
	case *CallExpression:
		s.analyzeExpr(e.Callee)
		s.analyzeList(e.Arguments)
	case *NewExpression:
		s.analyzeExpr(e.Callee)
		s.analyzeList(e.Arguments)
	case *ArrayLiteral:
		s.analyzeList(e.Elements)
	case *ObjectExpression:
		if e.Properties == nil {
			return
		}
		for _, member := range e.Properties.Items {
			s.analyzeMember(member)
		}
	case *FunctionExpression:
		s.push()
		if e.Name != nil {
			s.scopes[len(s.scopes)-1].names[e.Name.Text()] = TokenFunction
		}
		s.analyzeFunction(e.Params, e.Body)
		s.pop()
	case *Literal, *ThisExpression, *MetaProperty:
		// OK
	}
}

func (s *SemanticAnalyzer) analyzeList(list *AstNodeList) {
	if list == nil {
		return
	}
	for _, item := range list.Items {
		s.analyzeExpr(item)
	}
}

func (s *SemanticAnalyzer) analyzeMember(member Node) {
	switch m := member.(type) {
	case *Property:
		if m.Computed {
			s.analyzeExpr(m.Key)
		}
		s.analyzeExpr(m.Value)
	case *Getter:
		s.analyzeFunction(nil, m.Body)
	case *Setter:
		var params *AstNodeList
		if m.Param != nil {
			params = &AstNodeList{Items: []Node{m.Param}}
		}
		s.analyzeFunction(params, m.Body)
	}
}

// analyzeFunction checks a function body with its parameters in scope.
// Bodies are checked although the VM does not run them.
func (s *SemanticAnalyzer) analyzeFunction(params *AstNodeList, body *BlockStatement) {
	s.push()
	if params != nil {
		for _, p := range params.Items {
			if id, ok := p.(*Identifier); ok {
				s.scopes[len(s.scopes)-1].names[id.Text()] = TokenLet
			}
		}
	}
	if body != nil && body.Body != nil {
		s.analyzeStatements(body.Body.Items)
		s.checkUnreachableCode(body.Body.Items)
	}
	s.pop()
}

// checkVariableDefined warns on reads of names nothing declares. The read
// still runs and yields undefined, so this is a warning.
func (s *SemanticAnalyzer) checkVariableDefined(id *Identifier) {
	name := id.Text()
	if _, ok := s.lookup(name); ok {
		return
	}
	if s.knownGlobals[name] {
		return
	}
	s.warnAt(id, "variable '%s' may be undefined", name)
}

// checkAssignmentTarget rejects writes to constants. A write to an
// undeclared name creates a global, so later reads are fine.
func (s *SemanticAnalyzer) checkAssignmentTarget(a *BinaryExpression) {
	id, ok := a.Left.(*Identifier)
	if !ok {
		s.analyzeExpr(a.Left)
		return
	}
	name := id.Text()
	kind, declared := s.lookup(name)
	switch {
	case declared && kind == TokenConst:
		s.errorAt(a, "cannot assign to constant '%s'", name)
	case !declared && a.Op != TokenAssign:
		// compound assignment reads the old value first
		s.checkVariableDefined(id)
	case !declared:
		s.scopes[0].names[name] = TokenVar
	}
}

// analyzeBlock checks a block in a fresh scope.
func (s *SemanticAnalyzer) analyzeBlock(block *BlockStatement) {
	if block.Body == nil {
		return
	}
	s.push()
	s.analyzeStatements(block.Body.Items)
	s.checkUnreachableCode(block.Body.Items)
	s.pop()
}

// checkUnreachableCode warns once about the first statement that follows
// a return, break or continue in the same list.
func (s *SemanticAnalyzer) checkUnreachableCode(stmts []Node) {
	for i, stmt := range stmts {
		var what string
		switch stmt.(type) {
		case *ReturnStatement:
			what = "return"
		case *BreakStatement:
			what = "break"
		case *ContinueStatement:
			what = "continue"
		default:
			continue
		}
		for _, next := range stmts[i+1:] {
			switch next.(type) {
			case *EmptyStatement, *FunctionDeclaration:
				continue
			}
			s.warnAt(next, "unreachable code after %s", what)
			return
		}
		return
	}
}

// ---------------------------------------------------------------------------
// Integration with Compile function
// ---------------------------------------------------------------------------

// Analyze runs semantic analysis on a program and returns any errors and
// warnings. Globals lists names the host defines before the program runs.
func Analyze(prog *Program, globals []string) []string {
	analyzer := NewSemanticAnalyzer()
	for _, g := range globals {
		analyzer.AddKnownGlobal(g)
	}
	analyzer.AnalyzeProgram(prog)
	return analyzer.Errors()
}
