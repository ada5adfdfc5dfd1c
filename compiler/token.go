package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/jsvm/compiler/numlit"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Trivia, returned by the lexer and dropped by the parser
	TokenWhitespace
	TokenLineTerminator
	TokenComment

	// Literals
	TokenIdentifier
	TokenString
	TokenSignedNumber   // -5, +0x10
	TokenUnsignedNumber // 42, 0b101
	TokenFloatNumber    // 3.14, 1e9, 4294967296

	// Keywords
	TokenNew
	TokenDelete
	TokenTypeof
	TokenVoid
	TokenIn
	TokenInstanceof
	TokenTrue
	TokenFalse
	TokenUndefined
	TokenNull
	TokenThis
	TokenIf
	TokenElse
	TokenDo
	TokenFor
	TokenWhile
	TokenContinue
	TokenBreak
	TokenReturn
	TokenVar
	TokenLet
	TokenConst
	TokenFunction
	TokenFunctionGenerator
	TokenClass
	TokenSwitch
	TokenCase
	TokenDefault
	TokenThrow
	TokenTry
	TokenCatch
	TokenFinally
	TokenDebugger
	TokenWith
	TokenImport
	TokenExport

	// Operators
	TokenAssign            // =
	TokenArrow             // =>
	TokenEqual             // ==
	TokenStrictEqual       // ===
	TokenNotEqual          // !=
	TokenStrictNotEqual    // !==
	TokenGreater           // >
	TokenGreaterEqual      // >=
	TokenLess              // <
	TokenLessEqual         // <=
	TokenIncrement         // ++
	TokenPlus              // +
	TokenDecrement         // --
	TokenMinus             // -
	TokenExponent          // **
	TokenStar              // *
	TokenSlash             // /
	TokenPercent           // %
	TokenBitAnd            // &
	TokenBitOr             // |
	TokenBitXor            // ^
	TokenBitNot            // ~
	TokenShiftLeft         // <<
	TokenShiftRight        // >>
	TokenShiftRightZero    // >>>
	TokenLogicalAnd        // &&
	TokenLogicalOr         // ||
	TokenNot               // !
	TokenNullish           // ??
	TokenPlusAssign        // +=
	TokenMinusAssign       // -=
	TokenStarAssign        // *=
	TokenExponentAssign    // **=
	TokenSlashAssign       // /=
	TokenPercentAssign     // %=
	TokenShiftLeftAssign   // <<=
	TokenShiftRightAssign  // >>=
	TokenShiftRightZAssign // >>>=
	TokenBitAndAssign      // &=
	TokenBitOrAssign       // |=
	TokenBitXorAssign      // ^=
	TokenQuestion          // ?
	TokenOptionalChain     // ?.

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenSemicolon // ;
	TokenComma     // ,
	TokenColon     // :
	TokenDot       // .
	TokenEllipsis  // ...
)

var tokenNames = map[TokenType]string{
	TokenEOF:            "EOF",
	TokenError:          "ERROR",
	TokenWhitespace:     "whitespace",
	TokenLineTerminator: "line terminator",
	TokenComment:        "comment",
	TokenIdentifier:     "identifier",
	TokenString:         "string",
	TokenSignedNumber:   "signed number",
	TokenUnsignedNumber: "unsigned number",
	TokenFloatNumber:    "float number",
}

func init() {
	for _, e := range tokenTable {
		if _, ok := tokenNames[e.typ]; !ok {
			tokenNames[e.typ] = e.text
		}
	}
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// TokenFlags classify a token beyond its type.
type TokenFlags uint8

const (
	FlagLiteral TokenFlags = 1 << iota
	FlagKeyword
	FlagPunctuator
)

// Has reports whether all bits of f2 are set in f.
func (f TokenFlags) Has(f2 TokenFlags) bool { return f&f2 == f2 }

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string     // the raw text
	Pos     Position   // start position
	End     Position   // position just past the token
	Flags   TokenFlags
	Number  numlit.Literal
	Text    string // decoded contents of a string literal
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// IsTrivia reports whether the parser skips this token.
func (t Token) IsTrivia() bool {
	return t.Type == TokenWhitespace || t.Type == TokenLineTerminator || t.Type == TokenComment
}

// IsNumber reports whether the token is a numeric literal of any kind.
func (t Token) IsNumber() bool {
	return t.Type == TokenSignedNumber || t.Type == TokenUnsignedNumber || t.Type == TokenFloatNumber
}

// ---------------------------------------------------------------------------
// Token table
// ---------------------------------------------------------------------------

// matchFunc decides whether an entry whose text matched at the start of
// rest (the input following the match) should be accepted.
type matchFunc func(rest string) bool

func matchAny(string) bool { return true }

// matchNot accepts when the next character is none of chars.
func matchNot(chars string) matchFunc {
	return func(rest string) bool {
		return rest == "" || !strings.ContainsRune(chars, rune(rest[0]))
	}
}

// matchNotAlnum ends a keyword: the next character must not continue an
// identifier.
func matchNotAlnum(rest string) bool {
	return rest == "" || !isIdentByte(rest[0])
}

// matchTernary accepts '?' unless it starts '??' or an optional chain.
// "a?.5:b" is a ternary with a fractional operand.
func matchTernary(rest string) bool {
	if rest == "" {
		return true
	}
	switch rest[0] {
	case '?':
		return false
	case '.':
		return len(rest) > 1 && isDigitByte(rest[1])
	}
	return true
}

func matchNotDigit(rest string) bool {
	return rest == "" || !isDigitByte(rest[0])
}

type tokenEntry struct {
	text  string
	match matchFunc
	typ   TokenType
	flags TokenFlags
}

// tokenTable is scanned in order and the first accepted entry wins. A
// shorter operator precedes its extensions and uses its predicate to step
// aside for them.
var tokenTable = []tokenEntry{
	// keywords
	{"new", matchNotAlnum, TokenNew, FlagKeyword},
	{"delete", matchNotAlnum, TokenDelete, FlagKeyword},
	{"typeof", matchNotAlnum, TokenTypeof, FlagKeyword},
	{"void", matchNotAlnum, TokenVoid, FlagKeyword},
	{"instanceof", matchNotAlnum, TokenInstanceof, FlagKeyword},
	{"in", matchNotAlnum, TokenIn, FlagKeyword},
	{"true", matchNotAlnum, TokenTrue, FlagKeyword | FlagLiteral},
	{"false", matchNotAlnum, TokenFalse, FlagKeyword | FlagLiteral},
	{"undefined", matchNotAlnum, TokenUndefined, FlagKeyword | FlagLiteral},
	{"null", matchNotAlnum, TokenNull, FlagKeyword | FlagLiteral},
	{"this", matchNotAlnum, TokenThis, FlagKeyword},
	{"if", matchNotAlnum, TokenIf, FlagKeyword},
	{"else", matchNotAlnum, TokenElse, FlagKeyword},
	{"do", matchNotAlnum, TokenDo, FlagKeyword},
	{"for", matchNotAlnum, TokenFor, FlagKeyword},
	{"while", matchNotAlnum, TokenWhile, FlagKeyword},
	{"continue", matchNotAlnum, TokenContinue, FlagKeyword},
	{"break", matchNotAlnum, TokenBreak, FlagKeyword},
	{"return", matchNotAlnum, TokenReturn, FlagKeyword},
	{"var", matchNotAlnum, TokenVar, FlagKeyword},
	{"let", matchNotAlnum, TokenLet, FlagKeyword},
	{"const", matchNotAlnum, TokenConst, FlagKeyword},
	{"function*", matchAny, TokenFunctionGenerator, FlagKeyword},
	{"function", matchNotAlnum, TokenFunction, FlagKeyword},
	{"class", matchNotAlnum, TokenClass, FlagKeyword},
	{"switch", matchNotAlnum, TokenSwitch, FlagKeyword},
	{"case", matchNotAlnum, TokenCase, FlagKeyword},
	{"default", matchNotAlnum, TokenDefault, FlagKeyword},
	{"throw", matchNotAlnum, TokenThrow, FlagKeyword},
	{"try", matchNotAlnum, TokenTry, FlagKeyword},
	{"catch", matchNotAlnum, TokenCatch, FlagKeyword},
	{"finally", matchNotAlnum, TokenFinally, FlagKeyword},
	{"debugger", matchNotAlnum, TokenDebugger, FlagKeyword},
	{"with", matchNotAlnum, TokenWith, FlagKeyword},
	{"import", matchNotAlnum, TokenImport, FlagKeyword},
	{"export", matchNotAlnum, TokenExport, FlagKeyword},

	// operators
	{"=", matchNot("=>"), TokenAssign, FlagPunctuator},
	{"=>", matchAny, TokenArrow, FlagPunctuator},
	{"==", matchNot("="), TokenEqual, FlagPunctuator},
	{"===", matchAny, TokenStrictEqual, FlagPunctuator},
	{"!", matchNot("="), TokenNot, FlagPunctuator},
	{"!=", matchNot("="), TokenNotEqual, FlagPunctuator},
	{"!==", matchAny, TokenStrictNotEqual, FlagPunctuator},
	{">", matchNot("=>"), TokenGreater, FlagPunctuator},
	{">=", matchAny, TokenGreaterEqual, FlagPunctuator},
	{">>", matchNot(">="), TokenShiftRight, FlagPunctuator},
	{">>=", matchAny, TokenShiftRightAssign, FlagPunctuator},
	{">>>", matchNot("="), TokenShiftRightZero, FlagPunctuator},
	{">>>=", matchAny, TokenShiftRightZAssign, FlagPunctuator},
	{"<", matchNot("=<"), TokenLess, FlagPunctuator},
	{"<=", matchAny, TokenLessEqual, FlagPunctuator},
	{"<<", matchNot("="), TokenShiftLeft, FlagPunctuator},
	{"<<=", matchAny, TokenShiftLeftAssign, FlagPunctuator},
	{"+", matchNot("+="), TokenPlus, FlagPunctuator},
	{"++", matchAny, TokenIncrement, FlagPunctuator},
	{"+=", matchAny, TokenPlusAssign, FlagPunctuator},
	{"-", matchNot("-="), TokenMinus, FlagPunctuator},
	{"--", matchAny, TokenDecrement, FlagPunctuator},
	{"-=", matchAny, TokenMinusAssign, FlagPunctuator},
	{"*", matchNot("*="), TokenStar, FlagPunctuator},
	{"**", matchNot("="), TokenExponent, FlagPunctuator},
	{"**=", matchAny, TokenExponentAssign, FlagPunctuator},
	{"*=", matchAny, TokenStarAssign, FlagPunctuator},
	{"/", matchNot("="), TokenSlash, FlagPunctuator},
	{"/=", matchAny, TokenSlashAssign, FlagPunctuator},
	{"%", matchNot("="), TokenPercent, FlagPunctuator},
	{"%=", matchAny, TokenPercentAssign, FlagPunctuator},
	{"&", matchNot("&="), TokenBitAnd, FlagPunctuator},
	{"&&", matchAny, TokenLogicalAnd, FlagPunctuator},
	{"&=", matchAny, TokenBitAndAssign, FlagPunctuator},
	{"|", matchNot("|="), TokenBitOr, FlagPunctuator},
	{"||", matchAny, TokenLogicalOr, FlagPunctuator},
	{"|=", matchAny, TokenBitOrAssign, FlagPunctuator},
	{"^", matchNot("="), TokenBitXor, FlagPunctuator},
	{"^=", matchAny, TokenBitXorAssign, FlagPunctuator},
	{"~", matchAny, TokenBitNot, FlagPunctuator},
	{"?", matchTernary, TokenQuestion, FlagPunctuator},
	{"??", matchAny, TokenNullish, FlagPunctuator},
	{"?.", matchNotDigit, TokenOptionalChain, FlagPunctuator},

	// delimiters
	{"(", matchAny, TokenLParen, FlagPunctuator},
	{")", matchAny, TokenRParen, FlagPunctuator},
	{"{", matchAny, TokenLBrace, FlagPunctuator},
	{"}", matchAny, TokenRBrace, FlagPunctuator},
	{"[", matchAny, TokenLBracket, FlagPunctuator},
	{"]", matchAny, TokenRBracket, FlagPunctuator},
	{";", matchAny, TokenSemicolon, FlagPunctuator},
	{",", matchAny, TokenComma, FlagPunctuator},
	{":", matchAny, TokenColon, FlagPunctuator},
	{".", matchNot("."), TokenDot, FlagPunctuator},
	{"...", matchAny, TokenEllipsis, FlagPunctuator},
}

// matchTable returns the first table entry accepted at the start of s.
func matchTable(s string) (tokenEntry, bool) {
	for _, e := range tokenTable {
		if strings.HasPrefix(s, e.text) && e.match(s[len(e.text):]) {
			return e, true
		}
	}
	return tokenEntry{}, false
}

// Keywords returns the keyword spellings in table order.
func Keywords() []string {
	var out []string
	for _, e := range tokenTable {
		if e.flags.Has(FlagKeyword) && e.typ != TokenFunctionGenerator {
			out = append(out, e.text)
		}
	}
	return out
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || isDigitByte(c) ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}
