package compiler

import (
	"math"
	"strconv"

	"github.com/Banzobotic/dymaxilang/compiler/natives"
	"github.com/Banzobotic/dymaxilang/vm"
)

// uninitializedDepth marks a local whose initializer has not yet completed;
// referencing it is a compile error (self-referential initializer).
const uninitializedDepth = -1

// maxLocals mirrors the original's 256-local cap (locals are addressed by
// an 8-bit frame-relative offset).
const maxLocals = 256

// maxGlobals mirrors the 8-bit global slot index.
const maxGlobals = 256

type local struct {
	name  string
	depth int
}

// compilingFunction is the compile-time record for one function under
// construction (spec.md §3 "Compiling-function frame"). current/peak track
// the stack-effect accounting described in §4.2; both start at
// baseStackEffect rather than zero, matching the original source's
// CompilingFunction::new, to cover expression-temporaries the local-slot
// counter never sees.
type compilingFunction struct {
	fn         *vm.FunctionObj
	locals     []local
	scopeDepth int
	curEffect  int
	peakEffect int
	isFunction bool
}

// baseStackEffect is the headroom reserved beyond tracked locals for
// transient expression-evaluation temporaries.
const baseStackEffect = 10

func newCompilingFunction(name string, isFunction bool) *compilingFunction {
	return &compilingFunction{
		fn:         vm.NewFunction(name),
		isFunction: isFunction,
		curEffect:  baseStackEffect,
		peakEffect: baseStackEffect,
	}
}

// Compiler is the single-pass parser/emitter: lexing, Pratt expression
// parsing, locals/scope resolution and bytecode emission fused into one
// forward pass over the token stream, with no intermediate AST.
type Compiler struct {
	lex      *Lexer
	previous Token
	current  Token

	instance *vm.Instance
	funcs    []*compilingFunction

	errs      ErrorList
	panicking bool
}

// LineStarts exposes the byte offset of each source line, for internal/diag
// to render a caret under a reported error.
func (c *Compiler) LineStarts() []int { return c.lex.LineStarts() }

// New returns a Compiler ready to compile src into a fresh *vm.Instance,
// configured with opts (e.g. vm.Trace, vm.DebugGC).
func New(src string, opts ...vm.Option) *Compiler {
	c := &Compiler{
		lex:      NewLexer(src),
		instance: vm.New(opts...),
	}
	c.funcs = []*compilingFunction{newCompilingFunction("", false)}
	c.current = c.lex.Next()
	return c
}

// Compile runs the whole pipeline: installs natives, parses every top-level
// statement, seals the top-level function, pushes it as frame 0 and runs it
// to completion via Instance.Start. The returned Instance has already
// finished executing. A non-nil error is either an ErrorList (compile
// errors; nothing was run) or a *vm.RuntimeError from execution; in both
// cases the caller should report diagnostics and exit 101 (spec.md §6/§7).
func (c *Compiler) Compile() (*vm.Instance, error) {
	natives.Install(c.instance)

	for !c.check(TokEOF) {
		c.statement()
	}

	c.emitOp(vm.OpNull)
	c.emitOp(vm.OpReturn)

	errs := append(ErrorList{}, c.lex.Errors()...)
	errs = append(errs, c.errs...)
	if len(errs) > 0 {
		return nil, errs
	}

	top := c.funcs[0].fn
	top.StackEffect = c.funcs[0].peakEffect

	if err := c.instance.Start(top); err != nil {
		return nil, err
	}
	return c.instance, nil
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	c.current = c.lex.Next()
}

func (c *Compiler) check(kind TokenKind) bool {
	return c.current.Kind == kind
}

func (c *Compiler) match(kind TokenKind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind TokenKind, msg string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) {
	c.errorAt(c.current, msg)
}

func (c *Compiler) errorAtPrevious(msg string) {
	c.errorAt(c.previous, msg)
}

func (c *Compiler) errorAt(t Token, msg string) {
	if c.panicking {
		return
	}
	c.panicking = true
	if len(c.errs) >= maxErrors {
		return
	}
	col := 1
	for _, ls := range c.lex.lineStarts {
		if ls <= t.Start {
			col = t.Start - ls + 1
		}
	}
	c.errs = append(c.errs, CompileError{Line: t.Line, Col: col, Msg: msg})
}

// synchronize discards tokens until a likely statement boundary, so one bad
// token doesn't cascade into a wall of spurious diagnostics (spec.md §7).
func (c *Compiler) synchronize() {
	c.panicking = false
	for !c.check(TokEOF) {
		if c.previous.Kind == TokSemicolon || c.previous.Kind == TokCloseBrace {
			return
		}
		switch c.current.Kind {
		case TokFor, TokFn, TokIf, TokLet, TokReturn, TokWhile:
			return
		}
		c.advance()
	}
}

// --- chunk helpers ------------------------------------------------------

func (c *Compiler) cur() *compilingFunction { return c.funcs[len(c.funcs)-1] }

func (c *Compiler) chunk() *vm.Chunk { return c.cur().fn.Chunk }

func (c *Compiler) line() int { return c.previous.Line }

func (c *Compiler) emitOp(op vm.OpCode) {
	c.chunk().WriteOp(op, c.line())
}

func (c *Compiler) emitByte(b byte) {
	c.chunk().WriteByte(b, c.line())
}

func (c *Compiler) emitOpByte(op vm.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitConstant(v vm.Value) {
	idx := c.chunk().AddConstant(v)
	c.chunk().WriteConstant(idx, c.line())
}

func (c *Compiler) emitJump(op vm.OpCode) int {
	return c.chunk().WriteJump(op, c.line())
}

func (c *Compiler) patchJump(idx int) {
	c.chunk().PatchJump(idx)
}

func (c *Compiler) jumpTarget() int { return c.chunk().Len() }

func (c *Compiler) emitLoop(target int) {
	c.chunk().WriteLoop(target, c.line())
}

func (c *Compiler) addStackEffect(n int) {
	f := c.cur()
	f.curEffect += n
	if f.curEffect > f.peakEffect {
		f.peakEffect = f.curEffect
	}
}

func (c *Compiler) removeStackEffect(n int) {
	c.cur().curEffect -= n
}

// --- scopes & locals -----------------------------------------------------

func (c *Compiler) beginScope() {
	c.cur().scopeDepth++
}

// endScope pops every local declared at the scope being left, emitting one
// Pop per local (spec.md §8 property 5: "Pop count at end equals locals
// declared inside").
func (c *Compiler) endScope() {
	f := c.cur()
	f.scopeDepth--
	for len(f.locals) > 0 && f.locals[len(f.locals)-1].depth > f.scopeDepth {
		c.emitOp(vm.OpPop)
		f.locals = f.locals[:len(f.locals)-1]
		c.removeStackEffect(1)
	}
}

// scopedBlock runs body inside its own lexical scope, with the scoped
// map-write overlay active for its whole duration (spec.md §4.2/§9; the
// default, always-bracketed form of the "optional" discipline it describes,
// which trades the original's dead-code elision when a scope does no map
// writes for the simplicity of never needing to splice bytecode after the
// fact — see DESIGN.md).
func (c *Compiler) scopedBlock(body func()) {
	c.beginScope()
	c.emitOp(vm.OpPushMap)
	body()
	c.emitOp(vm.OpPopMap)
	c.endScope()
}

func (c *Compiler) resolveLocal(name string) (idx int, found bool) {
	locals := c.cur().locals
	for i := len(locals) - 1; i >= 0; i-- {
		if locals[i].name == name {
			if locals[i].depth == uninitializedDepth {
				c.errorAtPrevious("can't reference a local variable in its own initialiser")
				return 0, true
			}
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) addLocal(name string) {
	f := c.cur()
	if len(f.locals) >= maxLocals {
		c.errorAtPrevious("too many local variables in this function")
		return
	}
	f.locals = append(f.locals, local{name: name, depth: uninitializedDepth})
}

func (c *Compiler) declareVariable(name string) {
	f := c.cur()
	if f.scopeDepth == 0 {
		return
	}
	for i := len(f.locals) - 1; i >= 0; i-- {
		if f.locals[i].depth != uninitializedDepth && f.locals[i].depth < f.scopeDepth {
			break
		}
		if f.locals[i].name == name {
			c.errorAtPrevious("a variable with this name already exists in this scope")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) globalIdx(name string) byte {
	if len(c.instance.Globals.Slots()) >= maxGlobals {
		c.errorAtPrevious("too many global variables")
	}
	return c.instance.Globals.Intern(name)
}

// parseVariable consumes an identifier, declares it (as a local if inside a
// scope), and returns the global slot index to use if it turns out to be a
// global (ignored by the caller otherwise).
func (c *Compiler) parseVariable(msg string) byte {
	c.consume(TokIdent, msg)
	name := c.lex.Lexeme(c.previous)
	c.declareVariable(name)
	if c.cur().scopeDepth > 0 {
		return 0
	}
	return c.globalIdx(name)
}

func (c *Compiler) markInitialised() {
	c.addStackEffect(1)
	c.cur().locals[len(c.cur().locals)-1].depth = c.cur().scopeDepth
}

func (c *Compiler) defineVariable(globalIdx byte) {
	if c.cur().scopeDepth > 0 {
		c.markInitialised()
		return
	}
	c.emitOpByte(vm.OpDefineGlobal, globalIdx)
}

// --- expressions (Pratt) --------------------------------------------------

// bindingPower returns the (left, right) binding powers for an infix/postfix
// operator token, per spec.md §4.2's table. ok is false for tokens that
// aren't infix/postfix operators.
func bindingPower(kind TokenKind) (left, right int, ok bool) {
	switch kind {
	case TokOrOr:
		return 3, 4, true
	case TokAndAnd:
		return 5, 6, true
	case TokEqualEqual, TokBangEqual:
		return 7, 8, true
	case TokGreater, TokGreaterEqual, TokLess, TokLessEqual:
		return 9, 10, true
	case TokPlus, TokMinus:
		return 11, 12, true
	case TokStar, TokSlash:
		return 13, 14, true
	case TokOpenParen, TokOpenBracket:
		return 17, 18, true
	}
	return 0, 0, false
}

func (c *Compiler) expression() {
	c.expressionBP(0)
}

func (c *Compiler) expressionBP(minBP int) {
	c.advance()
	switch c.previous.Kind {
	case TokNumber:
		c.number()
	case TokString:
		c.string()
	case TokIdent:
		c.identifier()
	case TokTrue:
		c.emitConstant(vm.True)
	case TokFalse:
		c.emitConstant(vm.False)
	case TokNull:
		c.emitOp(vm.OpNull)
	case TokFn:
		c.function()
	case TokOpenParen:
		c.expressionBP(0)
		c.consume(TokCloseParen, "expected ')' after expression")
	case TokBang:
		c.expressionBP(15)
		c.emitOp(vm.OpNot)
	case TokMinus:
		c.expressionBP(15)
		c.emitOp(vm.OpNegate)
	default:
		c.errorAtPrevious("expected an expression")
		return
	}

	for {
		left, right, ok := bindingPower(c.current.Kind)
		if !ok || left < minBP {
			return
		}
		op := c.current.Kind
		c.advance()

		switch op {
		case TokAndAnd:
			jump := c.emitJump(vm.OpJumpIfFalseNoPop)
			c.emitOp(vm.OpPop)
			c.expressionBP(right)
			c.patchJump(jump)
		case TokOrOr:
			jump := c.emitJump(vm.OpJumpIfTrueNoPop)
			c.emitOp(vm.OpPop)
			c.expressionBP(right)
			c.patchJump(jump)
		case TokOpenParen:
			c.call()
		case TokOpenBracket:
			c.index()
		default:
			c.expressionBP(right)
			switch op {
			case TokPlus:
				c.emitOp(vm.OpAdd)
			case TokMinus:
				c.emitOp(vm.OpSub)
			case TokStar:
				c.emitOp(vm.OpMul)
			case TokSlash:
				c.emitOp(vm.OpDiv)
			case TokEqualEqual:
				c.emitOp(vm.OpEqual)
			case TokBangEqual:
				c.emitOp(vm.OpNotEqual)
			case TokGreater:
				c.emitOp(vm.OpGreater)
			case TokGreaterEqual:
				c.emitOp(vm.OpGreaterEqual)
			case TokLess:
				c.emitOp(vm.OpLess)
			case TokLessEqual:
				c.emitOp(vm.OpLessEqual)
			}
		}
	}
}

func (c *Compiler) number() {
	lexeme := c.lex.Lexeme(c.previous)
	f, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		c.errorAtPrevious("invalid number literal")
		return
	}
	c.emitConstant(vm.Float(f))
}

// integer parses the previous token (already consumed) as a whole number,
// used by for-loop bounds, which spec.md §4.2 restricts to integer literals
// or identifiers.
func (c *Compiler) integer() float64 {
	lexeme := c.lex.Lexeme(c.previous)
	f, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		c.errorAtPrevious("invalid number literal")
		return 0
	}
	if f != math.Round(f) {
		c.errorAtPrevious("for-loop bound must be an integer")
	}
	return f
}

func (c *Compiler) string() {
	lexeme := c.lex.Lexeme(c.previous)
	// strip surrounding quotes
	raw := lexeme[1 : len(lexeme)-1]
	v := c.instance.Alloc(vm.NewString(unescape(raw)))
	c.emitConstant(v)
}

// unescape processes the conventional backslash escapes spec.md §6 promises
// ("String escapes follow conventional backslash rules").
func unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			out = append(out, s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '"':
			out = append(out, '"')
		case '\\':
			out = append(out, '\\')
		default:
			out = append(out, '\\', s[i])
		}
	}
	return string(out)
}

func (c *Compiler) identifier() {
	name := c.lex.Lexeme(c.previous)

	localIdx, isLocal := c.resolveLocal(name)
	var getOp, setOp vm.OpCode
	var idx byte
	if isLocal {
		getOp, setOp = vm.OpGetLocal, vm.OpSetLocal
		idx = byte(localIdx)
	} else {
		getOp, setOp = vm.OpGetGlobal, vm.OpSetGlobal
		idx = c.globalIdx(name)
	}

	if c.match(TokEqual) {
		c.expression()
		c.emitOpByte(setOp, idx)
	} else {
		c.emitOpByte(getOp, idx)
	}
}

// index compiles the trailing `[ expr ]` of a map-access expression
// (spec.md §4.2 "Map-access expressions"). The base ("map key") is already
// on the stack from the postfix chain in expressionBP; this compiles the
// inner key and then either GetMap or, if `=` follows, the RHS and SetMap.
func (c *Compiler) index() {
	c.expressionBP(0)
	c.consume(TokCloseBracket, "expected ']' after map index")

	if c.match(TokEqual) {
		c.expression()
		c.emitOp(vm.OpSetMap)
	} else {
		c.emitOp(vm.OpGetMap)
	}
}

func (c *Compiler) call() {
	argCount := 0
	if !c.check(TokCloseParen) {
		for {
			if argCount == 255 {
				c.errorAtCurrent("can't have more than 255 arguments")
			}
			argCount++
			c.expression()
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.consume(TokCloseParen, "expected ')' after arguments")
	c.emitOpByte(vm.OpCall, byte(argCount))
}

func (c *Compiler) function() {
	c.funcs = append(c.funcs, newCompilingFunction("", true))
	c.beginScope()

	c.consume(TokOpenParen, "expected '(' after fn")
	if !c.check(TokCloseParen) {
		for {
			c.cur().fn.Arity++
			if c.cur().fn.Arity > 255 {
				c.errorAtCurrent("can't have more than 255 parameters")
			}
			c.parseVariable("expected parameter name")
			c.markInitialised()
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.consume(TokCloseParen, "expected ')' after parameters")
	c.consume(TokOpenBrace, "expected '{' before function body")
	c.block()

	c.emitOp(vm.OpNull)
	c.emitOp(vm.OpReturn)

	f := c.funcs[len(c.funcs)-1]
	f.fn.StackEffect = f.peakEffect
	c.funcs = c.funcs[:len(c.funcs)-1]

	v := c.instance.Alloc(f.fn)
	c.emitConstant(v)
}

// --- statements ------------------------------------------------------

func (c *Compiler) statement() {
	switch {
	case c.match(TokWhile):
		c.whileStatement()
	case c.match(TokFor):
		c.forStatement()
	case c.match(TokIf):
		c.ifStatement()
	case c.match(TokLet):
		c.letStatement()
	case c.match(TokReturn):
		c.returnStatement()
	case c.match(TokOpenBrace):
		c.scopedBlock(c.block)
	default:
		c.expressionStatement()
	}

	if c.panicking {
		c.synchronize()
	}
}

func (c *Compiler) block() {
	for !c.check(TokCloseBrace) && !c.check(TokEOF) {
		c.statement()
	}
	c.consume(TokCloseBrace, "expected '}' after block")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(TokSemicolon, "expected ';' after expression")
	c.emitOp(vm.OpPop)
}

func (c *Compiler) letStatement() {
	idx := c.parseVariable("expected variable name")
	if c.match(TokEqual) {
		c.expression()
	} else {
		c.emitOp(vm.OpNull)
	}
	c.consume(TokSemicolon, "expected ';' after variable declaration")
	c.defineVariable(idx)
}

func (c *Compiler) returnStatement() {
	if !c.cur().isFunction {
		c.errorAtPrevious("can only return from inside a function")
	}
	if c.check(TokSemicolon) {
		c.emitOp(vm.OpNull)
	} else {
		c.expression()
	}
	c.consume(TokSemicolon, "expected ';' after return value")
	c.emitOp(vm.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.expression()
	c.consume(TokOpenBrace, "expected '{' after if condition")
	jump := c.emitJump(vm.OpJumpIfFalse)

	c.scopedBlock(c.block)

	if c.match(TokElse) {
		elseJump := c.emitJump(vm.OpJump)
		c.patchJump(jump)
		c.consume(TokOpenBrace, "expected '{' after else")
		c.scopedBlock(c.block)
		c.patchJump(elseJump)
	} else {
		c.patchJump(jump)
	}
}

func (c *Compiler) whileStatement() {
	start := c.jumpTarget()
	c.expression()
	jump := c.emitJump(vm.OpJumpIfFalse)
	c.consume(TokOpenBrace, "expected '{' after while condition")
	c.scopedBlock(c.block)
	c.emitLoop(start)
	c.patchJump(jump)
}

// forStatement desugars `for IDENT in A OP B { ... }` exactly as spec.md §9
// documents the original's actual (inverted) comparator: the flipped
// operator counts the loop variable *up* from A toward B, regardless of
// which of `>`/`>=` was written. This is deliberately not "fixed" (see
// DESIGN.md "for desugaring").
func (c *Compiler) forStatement() {
	c.beginScope()
	c.emitOp(vm.OpPushMap)

	c.consume(TokIdent, "expected loop variable name")
	name := c.lex.Lexeme(c.previous)
	c.declareVariable(name)

	c.consume(TokIn, "expected 'in' after loop variable")
	c.parseForBound() // pushes the start value
	c.markInitialised()

	header := c.jumpTarget()
	varIdx := byte(len(c.cur().locals) - 1)
	c.emitOpByte(vm.OpGetLocal, varIdx)

	var cmp vm.OpCode
	switch {
	case c.match(TokGreater):
		cmp = vm.OpLess
	case c.match(TokGreaterEqual):
		cmp = vm.OpLessEqual
	default:
		c.errorAtCurrent("for-loop range must use '>' or '>='")
		cmp = vm.OpLess
	}

	c.parseForBound() // pushes the end value
	c.emitOp(cmp)
	exitJump := c.emitJump(vm.OpJumpIfFalse)

	c.consume(TokOpenBrace, "expected '{' after for-loop range")
	c.block()

	c.emitOpByte(vm.OpGetLocal, varIdx)
	c.emitConstant(vm.Float(1))
	c.emitOp(vm.OpAdd)
	c.emitOpByte(vm.OpSetLocal, varIdx)
	c.emitOp(vm.OpPop)

	c.emitLoop(header)
	c.patchJump(exitJump)

	c.emitOp(vm.OpPopMap)
	c.endScope()
}

// parseForBound compiles one `for` range bound, which spec.md §4.2 restricts
// to an integer literal or an identifier, and emits the code that pushes its
// value: a float constant for a literal (validated as integral), or a
// Get{Local,Global} for an identifier.
func (c *Compiler) parseForBound() {
	if c.check(TokNumber) {
		c.advance()
		c.emitConstant(vm.Float(c.integer()))
		return
	}
	if c.check(TokIdent) {
		c.advance()
		c.loadVariable(c.lex.Lexeme(c.previous))
		return
	}
	c.errorAtCurrent("for-loop bound must be a number or identifier")
}

// loadVariable emits a bare read of name, without the assignment check
// identifier() performs — for-loop bounds are a `term`, not a full
// assignable expression (spec.md §4.2 grammar).
func (c *Compiler) loadVariable(name string) {
	if idx, ok := c.resolveLocal(name); ok {
		c.emitOpByte(vm.OpGetLocal, byte(idx))
		return
	}
	c.emitOpByte(vm.OpGetGlobal, c.globalIdx(name))
}
