package compiler

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Node {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	switch p.curToken.Type {
	case TokenLBrace:
		if b := p.parseBlock(); b != nil {
			return b
		}
		return nil
	case TokenVar, TokenLet, TokenConst:
		decl := p.parseDeclarations()
		p.endStatement()
		return decl
	case TokenIf:
		return p.parseIf()
	case TokenFor:
		return p.parseFor()
	case TokenWhile:
		return p.parseWhile()
	case TokenReturn:
		return p.parseReturn()
	case TokenBreak, TokenContinue:
		return p.parseJump()
	case TokenFunction, TokenFunctionGenerator:
		return p.parseFunctionDeclaration()
	case TokenSemicolon:
		start := p.curToken.Pos
		p.nextToken()
		return &EmptyStatement{SpanVal: p.span(start)}
	case TokenIdentifier:
		if p.peekTokenIs(TokenColon) {
			return p.parseLabelled()
		}
	case TokenClass, TokenSwitch, TokenDo, TokenTry, TokenThrow, TokenWith,
		TokenImport, TokenExport, TokenDebugger:
		p.errorf("unsupported statement %q", p.curToken.Literal)
		p.nextToken()
		return nil
	}

	start := p.curToken.Pos
	expr := p.ParseExpression()
	if expr == nil {
		return nil
	}
	p.endStatement()
	return &ExpressionStatement{SpanVal: p.span(start), Expression: expr}
}

// endStatement consumes a semicolon. It may be omitted before '}', at end
// of input, or when a line break follows the statement.
func (p *Parser) endStatement() {
	if p.accept(TokenSemicolon) {
		return
	}
	if p.curTokenIs(TokenRBrace) || p.curTokenIs(TokenEOF) || p.curNewline || p.aborted {
		return
	}
	p.errorf("expected ;, got %s", describe(p.curToken))
}

func (p *Parser) parseBlock() *BlockStatement {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	start := p.curToken.Pos
	if !p.consume(TokenLBrace) {
		return nil
	}
	body := &AstNodeList{SpanVal: Span{Start: p.curToken.Pos}}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) && !p.aborted {
		before := p.curToken.Pos.Offset
		stmt := p.ParseStatement()
		if stmt != nil {
			body.Items = append(body.Items, stmt)
		} else if p.curToken.Pos.Offset == before {
			p.nextToken()
		}
	}
	body.SpanVal.End = p.curToken.Pos
	if !p.consume(TokenRBrace) {
		return nil
	}
	return &BlockStatement{SpanVal: p.span(start), Body: body}
}

// parseDeclarations parses var/let/const with one or more declarators. A
// single declarator is returned unwrapped; several come back as an
// AstNodeList. No terminating semicolon is consumed.
func (p *Parser) parseDeclarations() Node {
	start := p.curToken.Pos
	kind := p.curToken.Type
	p.nextToken()

	reported := len(p.diags)
	list := p.parseCommaSequence(func() Node {
		return p.parseDeclarator(kind)
	}, TokenSemicolon)
	switch list.Len() {
	case 0:
		if len(p.diags) == reported {
			p.errorf("expected identifier, got %s", describe(p.curToken))
		}
		return nil
	case 1:
		return list.Items[0]
	}
	list.SpanVal = p.span(start)
	return list
}

func (p *Parser) parseDeclarator(kind TokenType) Node {
	start := p.curToken.Pos
	if !p.expect(TokenIdentifier, true, false) {
		return nil
	}
	decl := &VariableDeclaration{DeclKind: kind, Target: p.newIdentifier(p.curToken)}
	p.nextToken()

	if p.accept(TokenAssign) {
		decl.Init = p.parseAssignment()
		if decl.Init == nil {
			return nil
		}
	} else if kind == TokenConst {
		p.errorf("missing initializer in const declaration")
	}
	decl.SpanVal = p.span(start)
	return decl
}

func (p *Parser) parseIf() Node {
	start := p.curToken.Pos
	p.nextToken()

	test := p.parseSequence(TokenLParen, TokenRParen, p.ParseExpression)
	if test == nil {
		return nil
	}
	cons := p.ParseStatement()
	if cons == nil {
		return nil
	}
	stmt := &IfStatement{Test: test, Consequent: cons}
	if p.accept(TokenElse) {
		if stmt.Alternate = p.ParseStatement(); stmt.Alternate == nil {
			return nil
		}
	}
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parseFor() Node {
	start := p.curToken.Pos
	p.nextToken()
	if !p.consume(TokenLParen) {
		return nil
	}

	loop := &ForLoopStatement{}
	switch {
	case p.curTokenIs(TokenSemicolon):
	case p.curTokenIs(TokenVar) || p.curTokenIs(TokenLet) || p.curTokenIs(TokenConst):
		loop.Init = p.parseDeclarations()
	default:
		loop.Init = p.ParseExpression()
	}
	if !p.consume(TokenSemicolon) {
		return nil
	}
	if !p.curTokenIs(TokenSemicolon) {
		if loop.Test = p.ParseExpression(); loop.Test == nil {
			return nil
		}
	}
	if !p.consume(TokenSemicolon) {
		return nil
	}
	if !p.curTokenIs(TokenRParen) {
		if loop.Update = p.ParseExpression(); loop.Update == nil {
			return nil
		}
	}
	if !p.consume(TokenRParen) {
		return nil
	}
	if loop.Body = p.ParseStatement(); loop.Body == nil {
		return nil
	}
	loop.SpanVal = p.span(start)
	return loop
}

func (p *Parser) parseWhile() Node {
	start := p.curToken.Pos
	p.nextToken()

	test := p.parseSequence(TokenLParen, TokenRParen, p.ParseExpression)
	if test == nil {
		return nil
	}
	body := p.ParseStatement()
	if body == nil {
		return nil
	}
	return &WhileStatement{SpanVal: p.span(start), Test: test, Body: body}
}

func (p *Parser) parseReturn() Node {
	start := p.curToken.Pos
	p.nextToken()

	stmt := &ReturnStatement{}
	if !p.curTokenIs(TokenSemicolon) && !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) && !p.curNewline {
		if stmt.Argument = p.ParseExpression(); stmt.Argument == nil {
			return nil
		}
	}
	p.endStatement()
	stmt.SpanVal = p.span(start)
	return stmt
}

// parseJump parses break and continue with an optional label.
func (p *Parser) parseJump() Node {
	start := p.curToken.Pos
	isBreak := p.curTokenIs(TokenBreak)
	p.nextToken()

	var label *Identifier
	if p.curTokenIs(TokenIdentifier) && !p.curNewline {
		label = p.newIdentifier(p.curToken)
		p.nextToken()
	}
	p.endStatement()
	if isBreak {
		return &BreakStatement{SpanVal: p.span(start), Label: label}
	}
	return &ContinueStatement{SpanVal: p.span(start), Label: label}
}

func (p *Parser) parseLabelled() Node {
	start := p.curToken.Pos
	label := p.newIdentifier(p.curToken)
	p.nextToken() // identifier
	p.nextToken() // ':'

	body := p.ParseStatement()
	if body == nil {
		return nil
	}
	return &LabelledStatement{SpanVal: p.span(start), Label: label, Body: body}
}

func (p *Parser) parseFunctionDeclaration() Node {
	start := p.curToken.Pos
	generator := p.curTokenIs(TokenFunctionGenerator)
	p.nextToken()

	if !p.expect(TokenIdentifier, true, false) {
		return nil
	}
	name := p.newIdentifier(p.curToken)
	p.nextToken()

	params, body := p.parseFunctionRest()
	if body == nil {
		return nil
	}
	return &FunctionDeclaration{
		SpanVal:   p.span(start),
		Name:      name,
		Params:    params,
		Body:      body,
		Generator: generator,
	}
}

// parseFunctionRest parses (params) { body }.
func (p *Parser) parseFunctionRest() (*AstNodeList, *BlockStatement) {
	params, _ := p.parseSequence(TokenLParen, TokenRParen, func() Node {
		return p.parseCommaSequence(p.parseParameter, TokenRParen)
	}).(*AstNodeList)
	if params == nil {
		return nil, nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil, nil
	}
	return params, body
}

func (p *Parser) parseParameter() Node {
	if !p.expect(TokenIdentifier, true, false) {
		return nil
	}
	id := p.newIdentifier(p.curToken)
	p.nextToken()
	return id
}
