package compiler

import "github.com/chazu/jsvm/compiler/numlit"

// ---------------------------------------------------------------------------
// Expressions, lowest precedence first
// ---------------------------------------------------------------------------

// assignmentOps are the right-associative assignment operators.
var assignmentOps = map[TokenType]bool{
	TokenAssign:            true,
	TokenPlusAssign:        true,
	TokenMinusAssign:       true,
	TokenStarAssign:        true,
	TokenExponentAssign:    true,
	TokenSlashAssign:       true,
	TokenPercentAssign:     true,
	TokenShiftLeftAssign:   true,
	TokenShiftRightAssign:  true,
	TokenShiftRightZAssign: true,
	TokenBitAndAssign:      true,
	TokenBitOrAssign:       true,
	TokenBitXorAssign:      true,
}

// IsAssignment reports whether op is an assignment operator.
func IsAssignment(op TokenType) bool {
	return assignmentOps[op]
}

// Binary precedence levels, loosest first.
const (
	precNone = iota
	precLogicalOr
	precLogicalAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precExponent
)

var binaryPrec = map[TokenType]int{
	TokenLogicalOr:      precLogicalOr,
	TokenNullish:        precLogicalOr,
	TokenLogicalAnd:     precLogicalAnd,
	TokenBitOr:          precBitOr,
	TokenBitXor:         precBitXor,
	TokenBitAnd:         precBitAnd,
	TokenEqual:          precEquality,
	TokenNotEqual:       precEquality,
	TokenStrictEqual:    precEquality,
	TokenStrictNotEqual: precEquality,
	TokenLess:           precRelational,
	TokenGreater:        precRelational,
	TokenLessEqual:      precRelational,
	TokenGreaterEqual:   precRelational,
	TokenInstanceof:     precRelational,
	TokenIn:             precRelational,
	TokenShiftLeft:      precShift,
	TokenShiftRight:     precShift,
	TokenShiftRightZero: precShift,
	TokenPlus:           precAdditive,
	TokenMinus:          precAdditive,
	TokenStar:           precMultiplicative,
	TokenSlash:          precMultiplicative,
	TokenPercent:        precMultiplicative,
	TokenExponent:       precExponent,
}

// ParseExpression parses a comma-separated expression.
func (p *Parser) ParseExpression() Node {
	start := p.curToken.Pos
	first := p.parseAssignment()
	if first == nil || !p.curTokenIs(TokenComma) {
		return first
	}
	seq := &SequenceExpression{Expressions: []Node{first}}
	for p.accept(TokenComma) {
		next := p.parseAssignment()
		if next == nil {
			return nil
		}
		seq.Expressions = append(seq.Expressions, next)
	}
	seq.SpanVal = p.span(start)
	return seq
}

// parseAssignment parses target op= value, right-associative.
func (p *Parser) parseAssignment() Node {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	start := p.curToken.Pos
	left := p.parseTernary()
	if left == nil || !assignmentOps[p.curToken.Type] {
		return left
	}
	op := p.curToken.Type
	if !p.checkTarget(left) {
		return nil
	}
	p.nextToken()

	right := p.parseAssignment()
	if right == nil {
		return nil
	}
	return &BinaryExpression{SpanVal: p.span(start), Op: op, Left: left, Right: right}
}

// checkTarget reports an error unless n can be assigned to.
func (p *Parser) checkTarget(n Node) bool {
	switch n.(type) {
	case *Identifier, *MemberExpression:
		return true
	}
	p.errorf("invalid assignment target %s", n.Kind())
	return false
}

func (p *Parser) parseTernary() Node {
	start := p.curToken.Pos
	test := p.parseBinary(precLogicalOr)
	if test == nil || !p.accept(TokenQuestion) {
		return test
	}
	cons := p.parseAssignment()
	if cons == nil || !p.consume(TokenColon) {
		return nil
	}
	alt := p.parseAssignment()
	if alt == nil {
		return nil
	}
	return &TernaryExpression{SpanVal: p.span(start), Test: test, Consequent: cons, Alternate: alt}
}

// parseBinary folds operators binding at least as tightly as minPrec into
// a left-deep tree. '**' associates to the right.
func (p *Parser) parseBinary(minPrec int) Node {
	start := p.curToken.Pos
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	for {
		op := p.curToken.Type
		prec := binaryPrec[op]
		if prec == precNone || prec < minPrec {
			return left
		}
		p.nextToken()

		next := prec + 1
		if op == TokenExponent {
			next = prec
		}
		right := p.parseBinary(next)
		if right == nil {
			return nil
		}
		left = &BinaryExpression{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() Node {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	start := p.curToken.Pos
	op := p.curToken.Type
	switch op {
	case TokenNot, TokenMinus, TokenPlus, TokenBitNot, TokenTypeof, TokenDelete, TokenVoid:
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &UnaryExpression{SpanVal: p.span(start), Op: op, Operand: operand}
	case TokenIncrement, TokenDecrement:
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil || !p.checkTarget(operand) {
			return nil
		}
		return p.desugarStep(start, op, operand)
	}
	return p.parsePostfix()
}

// parsePostfix handles x++ and x-- on the same line as x.
func (p *Parser) parsePostfix() Node {
	start := p.curToken.Pos
	expr := p.parseCallMember()
	if expr == nil {
		return nil
	}
	if (p.curTokenIs(TokenIncrement) || p.curTokenIs(TokenDecrement)) && !p.curNewline {
		op := p.curToken.Type
		if !p.checkTarget(expr) {
			return nil
		}
		p.nextToken()
		return p.desugarStep(start, op, expr)
	}
	return expr
}

// desugarStep rewrites ++x, x++ as x += 1 and --x, x-- as x += -1.
func (p *Parser) desugarStep(start Position, op TokenType, target Node) Node {
	var step LiteralValue = LitUnsigned(1)
	if op == TokenDecrement {
		step = LitInteger(-1)
	}
	sp := p.span(start)
	return &BinaryExpression{
		SpanVal: sp,
		Op:      TokenPlusAssign,
		Left:    target,
		Right:   &Literal{SpanVal: sp, Value: step},
	}
}

// parseCallMember parses new, member access and calls.
func (p *Parser) parseCallMember() Node {
	start := p.curToken.Pos
	var expr Node
	if p.curTokenIs(TokenNew) {
		expr = p.parseNew()
	} else {
		expr = p.parsePrimary()
	}
	if expr == nil {
		return nil
	}
	return p.parseSuffixes(start, expr, true)
}

// parseSuffixes applies .name, [expr], ?.name and, when calls is set,
// (args) to expr.
func (p *Parser) parseSuffixes(start Position, expr Node, calls bool) Node {
	for {
		switch {
		case p.curTokenIs(TokenDot), p.curTokenIs(TokenOptionalChain):
			optional := p.curTokenIs(TokenOptionalChain)
			p.nextToken()
			if optional && p.curTokenIs(TokenLParen) && calls {
				args := p.parseArguments()
				if args == nil {
					return nil
				}
				expr = &CallExpression{SpanVal: p.span(start), Callee: expr, Arguments: args}
				continue
			}
			if optional && p.curTokenIs(TokenLBracket) {
				prop := p.parseSequence(TokenLBracket, TokenRBracket, p.ParseExpression)
				if prop == nil {
					return nil
				}
				expr = &MemberExpression{SpanVal: p.span(start), Object: expr, Property: prop, Computed: true, Optional: true}
				continue
			}
			if !p.curTokenIs(TokenIdentifier) && !p.curToken.Flags.Has(FlagKeyword) {
				p.errorf("expected property name, got %s", describe(p.curToken))
				return nil
			}
			prop := p.newIdentifier(p.curToken)
			p.nextToken()
			expr = &MemberExpression{SpanVal: p.span(start), Object: expr, Property: prop, Optional: optional}
		case p.curTokenIs(TokenLBracket):
			prop := p.parseSequence(TokenLBracket, TokenRBracket, p.ParseExpression)
			if prop == nil {
				return nil
			}
			expr = &MemberExpression{SpanVal: p.span(start), Object: expr, Property: prop, Computed: true}
		case p.curTokenIs(TokenLParen) && calls:
			args := p.parseArguments()
			if args == nil {
				return nil
			}
			expr = &CallExpression{SpanVal: p.span(start), Callee: expr, Arguments: args}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArguments() *AstNodeList {
	args, _ := p.parseSequence(TokenLParen, TokenRParen, func() Node {
		return p.parseCommaSequence(p.parseAssignment, TokenRParen)
	}).(*AstNodeList)
	return args
}

// parseNew parses new.target and new callee[(args)].
func (p *Parser) parseNew() Node {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	start := p.curToken.Pos
	p.nextToken()

	if p.curTokenIs(TokenDot) {
		p.nextToken()
		if !p.curTokenIs(TokenIdentifier) || p.curToken.Literal != "target" {
			p.errorf("expected new.target, got %s", describe(p.curToken))
			return nil
		}
		p.nextToken()
		return &MetaProperty{SpanVal: p.span(start), Meta: "new", Property: "target"}
	}

	calleeStart := p.curToken.Pos
	var callee Node
	if p.curTokenIs(TokenNew) {
		callee = p.parseNew()
	} else {
		callee = p.parsePrimary()
	}
	if callee == nil {
		return nil
	}
	// the argument list belongs to new, not to a call
	if callee = p.parseSuffixes(calleeStart, callee, false); callee == nil {
		return nil
	}

	args := &AstNodeList{}
	if p.curTokenIs(TokenLParen) {
		if args = p.parseArguments(); args == nil {
			return nil
		}
	}
	return &NewExpression{SpanVal: p.span(start), Callee: callee, Arguments: args}
}

// ---------------------------------------------------------------------------
// Primary expressions
// ---------------------------------------------------------------------------

func (p *Parser) parsePrimary() Node {
	tok := p.curToken
	sp := Span{Start: tok.Pos, End: tok.End}

	switch tok.Type {
	case TokenIdentifier:
		p.nextToken()
		return p.newIdentifier(tok)
	case TokenSignedNumber, TokenUnsignedNumber, TokenFloatNumber:
		p.nextToken()
		return &Literal{SpanVal: sp, Value: numberLiteral(tok.Number)}
	case TokenString:
		p.nextToken()
		return &Literal{SpanVal: sp, Value: LitString{Value: p.intern(tok.Text)}}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &Literal{SpanVal: sp, Value: LitBoolean(tok.Type == TokenTrue)}
	case TokenNull:
		p.nextToken()
		return &Literal{SpanVal: sp, Value: LitNull{}}
	case TokenUndefined:
		p.nextToken()
		return &Literal{SpanVal: sp, Value: LitUndefined{}}
	case TokenThis:
		p.nextToken()
		return &ThisExpression{SpanVal: sp}
	case TokenLParen:
		return p.parseSequence(TokenLParen, TokenRParen, p.ParseExpression)
	case TokenLBracket:
		return p.parseArrayLiteral()
	case TokenLBrace:
		return p.parseObjectLiteral()
	case TokenFunction, TokenFunctionGenerator:
		return p.parseFunctionExpression()
	}

	// catch-all: report and skip one token
	p.errorf("unexpected %s", describe(tok))
	if !p.curTokenIs(TokenEOF) {
		p.nextToken()
	}
	return nil
}

func numberLiteral(n numlit.Literal) LiteralValue {
	switch n.Kind {
	case numlit.Signed:
		return LitInteger(n.Signed)
	case numlit.Unsigned:
		return LitUnsigned(n.Unsigned)
	}
	return LitFloat(n.Float64())
}

func (p *Parser) parseArrayLiteral() Node {
	start := p.curToken.Pos
	elems, _ := p.parseSequence(TokenLBracket, TokenRBracket, func() Node {
		return p.parseCommaSequence(p.parseAssignment, TokenRBracket)
	}).(*AstNodeList)
	if elems == nil {
		return nil
	}
	return &ArrayLiteral{SpanVal: p.span(start), Elements: elems}
}

func (p *Parser) parseObjectLiteral() Node {
	start := p.curToken.Pos
	props, _ := p.parseSequence(TokenLBrace, TokenRBrace, func() Node {
		return p.parseCommaSequence(p.parseObjectMember, TokenRBrace)
	}).(*AstNodeList)
	if props == nil {
		return nil
	}
	return &ObjectExpression{SpanVal: p.span(start), Properties: props}
}

// parseObjectMember parses key: value, shorthand key, key(params) {...},
// get key() {...} and set key(v) {...}.
func (p *Parser) parseObjectMember() Node {
	start := p.curToken.Pos

	if p.curTokenIs(TokenIdentifier) && (p.curToken.Literal == "get" || p.curToken.Literal == "set") {
		switch p.peekToken.Type {
		case TokenColon, TokenComma, TokenLParen, TokenRBrace:
			// a property named get or set
		default:
			return p.parseAccessor(start, p.curToken.Literal == "get")
		}
	}

	key, computed := p.parsePropertyKey()
	if key == nil {
		return nil
	}
	prop := &Property{Key: key, Computed: computed}
	switch {
	case p.accept(TokenColon):
		if prop.Value = p.parseAssignment(); prop.Value == nil {
			return nil
		}
	case p.curTokenIs(TokenLParen):
		fnStart := p.curToken.Pos
		params, body := p.parseFunctionRest()
		if body == nil {
			return nil
		}
		prop.Value = &FunctionExpression{SpanVal: p.span(fnStart), Params: params, Body: body}
	default:
		id, ok := key.(*Identifier)
		if !ok || computed {
			p.errorf("expected :, got %s", describe(p.curToken))
			return nil
		}
		// shorthand {a} holds its own reference to the name
		prop.Value = &Identifier{SpanVal: id.SpanVal, Name: p.retain(id.Name)}
	}
	prop.SpanVal = p.span(start)
	return prop
}

// parsePropertyKey parses an identifier, keyword, string, number or
// [computed] key.
func (p *Parser) parsePropertyKey() (Node, bool) {
	tok := p.curToken
	switch {
	case tok.Type == TokenLBracket:
		key := p.parseSequence(TokenLBracket, TokenRBracket, p.parseAssignment)
		return key, true
	case tok.Type == TokenIdentifier || tok.Flags.Has(FlagKeyword):
		p.nextToken()
		return p.newIdentifier(tok), false
	case tok.Type == TokenString || tok.IsNumber():
		return p.parsePrimary(), false
	}
	p.errorf("expected property name, got %s", describe(tok))
	return nil, false
}

func (p *Parser) parseAccessor(start Position, getter bool) Node {
	p.nextToken() // get / set
	key, _ := p.parsePropertyKey()
	if key == nil {
		return nil
	}
	paramsPos := p.curToken.Pos
	params, body := p.parseFunctionRest()
	if body == nil {
		return nil
	}

	if getter {
		if params.Len() != 0 {
			p.diags = append(p.diags, Diagnostic{Pos: paramsPos, End: paramsPos, Message: "getter must not have parameters"})
		}
		return &Getter{SpanVal: p.span(start), Key: key, Body: body}
	}
	if params.Len() != 1 {
		p.diags = append(p.diags, Diagnostic{Pos: paramsPos, End: paramsPos, Message: "setter must have exactly one parameter"})
		return &Setter{SpanVal: p.span(start), Key: key, Body: body}
	}
	return &Setter{SpanVal: p.span(start), Key: key, Param: params.Items[0].(*Identifier), Body: body}
}

func (p *Parser) parseFunctionExpression() Node {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	start := p.curToken.Pos
	generator := p.curTokenIs(TokenFunctionGenerator)
	p.nextToken()

	var name *Identifier
	if p.curTokenIs(TokenIdentifier) {
		name = p.newIdentifier(p.curToken)
		p.nextToken()
	}
	params, body := p.parseFunctionRest()
	if body == nil {
		return nil
	}
	return &FunctionExpression{
		SpanVal:   p.span(start),
		Name:      name,
		Params:    params,
		Body:      body,
		Generator: generator,
	}
}
