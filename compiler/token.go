// Package compiler implements the single-pass lexer/Pratt-parser/emitter:
// source text goes in, and Compile pushes the compiled top-level function as
// frame 0 of a *vm.Instance and runs it; it does not return an Instance that
// is still waiting to run. There is no intermediate AST; every grammar production emits
// bytecode directly into the function currently under construction.
package compiler

// TokenKind discriminates the token categories the lexer produces, mirroring
// the shape of the original source's TokenKind/OpKind/AtomKind split but
// flattened into one enum, which is closer to how the teacher repo's own
// asm package tokenizes (a single scanner.Token kind driving a type switch).
type TokenKind uint8

const (
	TokEOF TokenKind = iota

	// punctuation
	TokSemicolon
	TokOpenBrace
	TokCloseBrace
	TokOpenParen
	TokCloseParen
	TokOpenBracket
	TokCloseBracket
	TokComma

	// operators
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokEqual
	TokEqualEqual
	TokBangEqual
	TokGreater
	TokGreaterEqual
	TokLess
	TokLessEqual
	TokBang
	TokAndAnd
	TokOrOr

	// literals / identifiers
	TokIdent
	TokNumber
	TokString

	// keywords
	TokElse
	TokFn
	TokFalse
	TokFor
	TokIf
	TokIn
	TokLet
	TokNull
	TokReturn
	TokTrue
	TokWhile
)

var keywords = map[string]TokenKind{
	"else":   TokElse,
	"fn":     TokFn,
	"false":  TokFalse,
	"for":    TokFor,
	"if":     TokIf,
	"in":     TokIn,
	"let":    TokLet,
	"null":   TokNull,
	"return": TokReturn,
	"true":   TokTrue,
	"while":  TokWhile,
}

// Token is a transient view into the source string: start/end are byte
// offsets, so the lexeme is cheaply recovered as source[Start:End] without
// the lexer itself retaining a copy.
type Token struct {
	Kind  TokenKind
	Line  int
	Start int
	End   int
}
