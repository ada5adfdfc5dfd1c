package compiler

import (
	"strings"
	"unicode/utf8"

	"github.com/chazu/jsvm/compiler/numlit"
)

// ---------------------------------------------------------------------------
// Lexer: table-driven tokenizer
// ---------------------------------------------------------------------------

// Lexer tokenizes source text. Trivia (whitespace, line terminators and
// comments) is returned like any other token; the parser filters it.
type Lexer struct {
	input string
	pos   Position

	// last non-trivia token type, used to tell a signed number from a
	// binary operator
	prev TokenType
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		pos:   Position{Line: 1, Column: 1},
		prev:  TokenEOF,
	}
}

// Position returns the position of the next unread character.
func (l *Lexer) Position() Position {
	return l.pos
}

// From returns the source text between two positions.
func (l *Lexer) From(start, end Position) string {
	if start.Offset < 0 || end.Offset > len(l.input) || start.Offset > end.Offset {
		return ""
	}
	return l.input[start.Offset:end.Offset]
}

// Peek returns the next unread character, or 0 at end of input.
func (l *Lexer) Peek() rune {
	return l.PeekN(0)
}

// PeekN returns the character n positions past the next unread one, or 0
// when that is past the end of input.
func (l *Lexer) PeekN(n int) rune {
	off := l.pos.Offset
	for ; n >= 0; n-- {
		if off >= len(l.input) {
			return 0
		}
		r, size := utf8.DecodeRuneInString(l.input[off:])
		if n == 0 {
			return r
		}
		off += size
	}
	return 0
}

// Eat advances past n characters, tracking line and column.
func (l *Lexer) Eat(n int) {
	for ; n > 0 && l.pos.Offset < len(l.input); n-- {
		r, size := utf8.DecodeRuneInString(l.input[l.pos.Offset:])
		l.pos.Offset += size
		switch r {
		case '\n':
			l.pos.Line++
			l.pos.Column = 1
		case '\r':
			// "\r\n" counts once, on the '\n'
			if l.pos.Offset < len(l.input) && l.input[l.pos.Offset] == '\n' {
				continue
			}
			l.pos.Line++
			l.pos.Column = 1
		case '\t':
			l.pos.Column += 4
		default:
			l.pos.Column++
		}
	}
}

// eatBytes advances past n bytes of ASCII-or-UTF-8 text.
func (l *Lexer) eatBytes(n int) {
	end := l.pos.Offset + n
	for l.pos.Offset < end && l.pos.Offset < len(l.input) {
		l.Eat(1)
	}
}

func (l *Lexer) rest() string {
	return l.input[l.pos.Offset:]
}

func (l *Lexer) token(typ TokenType, start Position, flags TokenFlags) Token {
	return Token{
		Type:    typ,
		Literal: l.From(start, l.pos),
		Pos:     start,
		End:     l.pos,
		Flags:   flags,
	}
}

// Next returns the next token. At end of input it returns TokenEOF, and
// keeps doing so on further calls.
func (l *Lexer) Next() Token {
	tok := l.next()
	if !tok.IsTrivia() {
		l.prev = tok.Type
	}
	return tok
}

func (l *Lexer) next() Token {
	start := l.pos
	s := l.rest()
	if s == "" {
		return Token{Type: TokenEOF, Pos: start, End: start}
	}

	switch c := s[0]; {
	case c == ' ' || c == '\t':
		n := 0
		for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
			n++
		}
		l.eatBytes(n)
		return l.token(TokenWhitespace, start, 0)
	case c == '\n':
		l.eatBytes(1)
		return l.token(TokenLineTerminator, start, 0)
	case c == '\r':
		if strings.HasPrefix(s, "\r\n") {
			l.eatBytes(2)
		} else {
			l.eatBytes(1)
		}
		return l.token(TokenLineTerminator, start, 0)
	case strings.HasPrefix(s, "//"), start.Offset == 0 && strings.HasPrefix(s, "#!"):
		end := strings.IndexAny(s, "\r\n")
		if end < 0 {
			end = len(s)
		}
		l.eatBytes(end)
		return l.token(TokenComment, start, 0)
	case strings.HasPrefix(s, "/*"):
		end := strings.Index(s[2:], "*/")
		if end < 0 {
			l.eatBytes(len(s))
			tok := l.token(TokenError, start, 0)
			tok.Text = "unterminated comment"
			return tok
		}
		l.eatBytes(end + 4)
		return l.token(TokenComment, start, 0)
	case c == '"' || c == '\'':
		return l.readString(start, c)
	case isDigitByte(c), (c == '+' || c == '-') && len(s) > 1 && isDigitByte(s[1]) && !endsOperand(l.prev):
		if lit, n := numlit.Scan(s); n > 0 {
			l.eatBytes(n)
			tok := l.token(numberTokenType(lit.Kind), start, FlagLiteral)
			tok.Number = lit
			return tok
		}
	}

	if e, ok := matchTable(s); ok {
		l.eatBytes(len(e.text))
		return l.token(e.typ, start, e.flags)
	}
	return l.readIdentifier(start)
}

// readIdentifier is the fallback when no table entry matches. Identifier
// characters are consumed as a run. Anything else is consumed until a
// table entry, whitespace or identifier character begins.
func (l *Lexer) readIdentifier(start Position) Token {
	s := l.rest()
	n := 0
	if isIdentByte(s[0]) {
		for n < len(s) && isIdentByte(s[n]) {
			n++
		}
	} else {
		_, size := utf8.DecodeRuneInString(s)
		n = size
		for n < len(s) {
			c := s[n]
			if isIdentByte(c) || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '"' || c == '\'' {
				break
			}
			if _, ok := matchTable(s[n:]); ok {
				break
			}
			_, size := utf8.DecodeRuneInString(s[n:])
			n += size
		}
	}
	l.eatBytes(n)
	return l.token(TokenIdentifier, start, 0)
}

func (l *Lexer) readString(start Position, quote byte) Token {
	s := l.rest()
	var sb strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch {
		case c == quote:
			l.eatBytes(i + 1)
			tok := l.token(TokenString, start, FlagLiteral)
			tok.Text = sb.String()
			return tok
		case c == '\n' || c == '\r':
			i = len(s) // unterminated
		case c == '\\' && i+1 < len(s):
			sb.WriteString(unescape(s[i+1]))
			i += 2
		default:
			sb.WriteByte(c)
			i++
		}
	}
	end := strings.IndexAny(s, "\r\n")
	if end < 0 {
		end = len(s)
	}
	l.eatBytes(end)
	tok := l.token(TokenError, start, 0)
	tok.Text = "unterminated string"
	return tok
}

func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case 'b':
		return "\b"
	case 'f':
		return "\f"
	case 'v':
		return "\v"
	case '0':
		return "\x00"
	case '\n':
		return "" // line continuation
	}
	return string([]byte{c})
}

func numberTokenType(k numlit.Kind) TokenType {
	switch k {
	case numlit.Signed:
		return TokenSignedNumber
	case numlit.Unsigned:
		return TokenUnsignedNumber
	}
	return TokenFloatNumber
}

// endsOperand reports whether a token of type t can be the last token of
// an operand, in which case a following sign is a binary operator.
func endsOperand(t TokenType) bool {
	switch t {
	case TokenIdentifier, TokenString, TokenSignedNumber, TokenUnsignedNumber, TokenFloatNumber,
		TokenTrue, TokenFalse, TokenNull, TokenUndefined, TokenThis,
		TokenRParen, TokenRBracket, TokenRBrace, TokenIncrement, TokenDecrement:
		return true
	}
	return false
}

// Tokenize returns every token of input, trivia included, ending with
// TokenEOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}
