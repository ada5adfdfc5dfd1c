package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/jsvm/vm"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent with precedence climbing
// ---------------------------------------------------------------------------

// DefaultMaxDepth bounds rule nesting. Exceeding it fails the parse.
const DefaultMaxDepth = 64

// Diagnostic is one parse error.
type Diagnostic struct {
	Pos     Position
	End     Position
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d, column %d: %s", d.Pos.Line, d.Pos.Column, d.Message)
}

// SyntaxError is returned by Parse when the source has errors.
type SyntaxError struct {
	Diagnostics []Diagnostic
}

func (e *SyntaxError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.String()
	}
	return "syntax error: " + strings.Join(msgs, "; ")
}

// Parser parses source text into an AST. Identifiers and string literals
// are interned in the parser's pool.
type Parser struct {
	lexer *Lexer
	pool  *vm.StringPool

	curToken  Token
	peekToken Token
	// a line terminator precedes the token
	curNewline  bool
	peekNewline bool
	prevEnd     Position

	diags []Diagnostic
	// every pool reference taken, released with the program
	handles []*vm.PoolString

	depth    int
	maxDepth int
	aborted  bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMaxDepth sets the nesting limit.
func WithMaxDepth(n int) ParserOption {
	return func(p *Parser) {
		if n > 0 {
			p.maxDepth = n
		}
	}
}

// NewParser creates a new parser for the given input.
func NewParser(input string, pool *vm.StringPool, opts ...ParserOption) *Parser {
	p := &Parser{
		lexer:    NewLexer(input),
		pool:     pool,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole program. On syntax errors it returns the partial
// program together with a *SyntaxError.
func Parse(input string, pool *vm.StringPool, opts ...ParserOption) (*Program, error) {
	p := NewParser(input, pool, opts...)
	prog := p.ParseProgram()
	if len(p.diags) > 0 {
		return prog, &SyntaxError{Diagnostics: p.Diagnostics()}
	}
	return prog, nil
}

// nextToken advances to the next significant token.
func (p *Parser) nextToken() {
	p.prevEnd = p.curToken.End
	p.curToken = p.peekToken
	p.curNewline = p.peekNewline

	p.peekNewline = false
	for {
		tok := p.lexer.Next()
		switch {
		case tok.Type == TokenLineTerminator:
			p.peekNewline = true
			continue
		case tok.Type == TokenComment:
			if strings.ContainsAny(tok.Literal, "\r\n") {
				p.peekNewline = true
			}
			continue
		case tok.IsTrivia():
			continue
		case tok.Type == TokenError:
			p.diags = append(p.diags, Diagnostic{Pos: tok.Pos, End: tok.End, Message: tok.Text})
			continue
		}
		p.peekToken = tok
		return
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect compares the current token with t. On a match it advances when
// advance is set; on a mismatch it records an error when report is set.
func (p *Parser) expect(t TokenType, report, advance bool) bool {
	if p.curTokenIs(t) {
		if advance {
			p.nextToken()
		}
		return true
	}
	if report {
		p.errorf("expected %s, got %s", t, describe(p.curToken))
	}
	return false
}

// consume advances past t or reports its absence.
func (p *Parser) consume(t TokenType) bool {
	return p.expect(t, true, true)
}

// accept advances past t if present.
func (p *Parser) accept(t TokenType) bool {
	return p.expect(t, false, true)
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.diags = append(p.diags, Diagnostic{
		Pos:     p.curToken.Pos,
		End:     p.curToken.End,
		Message: fmt.Sprintf(format, args...),
	})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	out := make([]string, len(p.diags))
	for i, d := range p.diags {
		out[i] = d.String()
	}
	return out
}

// Diagnostics returns accumulated parse errors with positions.
func (p *Parser) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), p.diags...)
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenIdentifier:
		return fmt.Sprintf("identifier %q", tok.Literal)
	}
	if tok.IsNumber() {
		return fmt.Sprintf("number %s", tok.Literal)
	}
	return fmt.Sprintf("%q", tok.Literal)
}

// ---------------------------------------------------------------------------
// Depth bound
// ---------------------------------------------------------------------------

// enter is called on entry to every recursive rule. Once the depth limit
// is hit the parse is abandoned and every rule returns nil.
func (p *Parser) enter() bool {
	if p.aborted {
		return false
	}
	if p.depth >= p.maxDepth {
		p.errorf("maximum parse depth exceeded")
		p.aborted = true
		return false
	}
	p.depth++
	return true
}

func (p *Parser) leave() {
	p.depth--
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// parseSequence parses open, inner, close.
func (p *Parser) parseSequence(open, close TokenType, inner func() Node) Node {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	if !p.consume(open) {
		return nil
	}
	n := inner()
	if !p.consume(close) {
		return nil
	}
	return n
}

// parseCommaSequence parses inner repeatedly, separated by commas, until a
// comma is missing. An empty list or a trailing comma before close is
// allowed.
func (p *Parser) parseCommaSequence(inner func() Node, close TokenType) *AstNodeList {
	list := &AstNodeList{SpanVal: Span{Start: p.curToken.Pos}}
	for !p.curTokenIs(close) && !p.curTokenIs(TokenEOF) && !p.aborted {
		n := inner()
		if n == nil {
			break
		}
		list.Items = append(list.Items, n)
		if !p.accept(TokenComma) {
			break
		}
	}
	list.SpanVal.End = p.prevEnd
	return list
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevEnd}
}

func (p *Parser) newIdentifier(tok Token) *Identifier {
	return &Identifier{
		SpanVal: Span{Start: tok.Pos, End: tok.End},
		Name:    p.intern(tok.Literal),
	}
}

func (p *Parser) intern(text string) *vm.PoolString {
	h := p.pool.Intern(text)
	p.handles = append(p.handles, h)
	return h
}

func (p *Parser) retain(h *vm.PoolString) *vm.PoolString {
	p.handles = append(p.handles, h.Retain())
	return h
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses statements until end of input.
func (p *Parser) ParseProgram() *Program {
	prog := &Program{SpanVal: Span{Start: p.curToken.Pos}}
	for !p.curTokenIs(TokenEOF) && !p.aborted {
		before := p.curToken.Pos.Offset
		stmt := p.ParseStatement()
		if stmt != nil {
			prog.Body = append(prog.Body, stmt)
		} else if p.curToken.Pos.Offset == before && !p.curTokenIs(TokenEOF) {
			// no progress: skip the offending token
			p.nextToken()
		}
	}
	prog.SpanVal.End = p.curToken.End
	prog.handles = p.handles
	p.handles = nil
	return prog
}
