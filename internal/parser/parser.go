// Package parser recognizes the GP-λ grammar (spec.md §4.2) and lowers it
// directly into the typed AST (spec.md §4.3) as it goes — the same way
// tawago's Parser builds AST nodes straight out of its recursive-descent
// functions, with no separate parse-tree stage.
//
// Unlike tawago (which pulls one token at a time from the lexer), this
// parser lexes the whole input up front into a token slice and walks it
// by index, the way tmazeika-lang's parser does. That buffering is what
// lets the parser look arbitrarily far ahead to tell a parenthesized
// lambda parameter list apart from a parenthesized expression
// (spec.md §4.2's lambda-disambiguation rule), which a single-token
// lookahead lexer cannot do cheaply.
package parser

import (
	"strconv"

	"github.com/coreos/pkg/capnslog"

	"github.com/ReinoutWW/gplambda/internal/ast"
	"github.com/ReinoutWW/gplambda/internal/diag"
	"github.com/ReinoutWW/gplambda/internal/lexer"
	"github.com/ReinoutWW/gplambda/internal/token"
)

var log = capnslog.NewPackageLogger("github.com/ReinoutWW/gplambda", "gplc/parser")

// Parser walks a buffered token stream by index.
type Parser struct {
	toks []token.Token
	i    int
}

// New lexes src via l and returns a Parser ready to parse it.
func New(l *lexer.Lexer) *Parser {
	return &Parser{toks: l.All()}
}

// Parse recognizes a whole program. On any syntax or builder-level error
// it returns the accumulated diagnostics (exactly one, since parsing
// bails at the first problem per spec.md §4.2's contract) and a nil
// program.
func Parse(l *lexer.Lexer) (prog *ast.Program, errs diag.List) {
	defer func() {
		if r := recover(); r != nil {
			d, ok := r.(diag.Diagnostic)
			if !ok {
				panic(r)
			}
			errs = diag.List{d}
			prog = nil
		}
	}()

	// l.All() (inside New) lexes the whole input eagerly, so a lex
	// error can panic here too — it must happen after the recover
	// above is armed, not before.
	p := New(l)
	prog = p.parseProgram()
	log.Debugf("parsed %d top-level declarations", len(prog.Decls))
	return prog, nil
}

func (p *Parser) peek() token.Token  { return p.toks[p.i] }
func (p *Parser) peekN(n int) token.Token {
	idx := p.i + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *Parser) advance() token.Token {
	t := p.peek()
	if t.Kind != token.EOF {
		p.i++
	}
	return t
}

func (p *Parser) check(k token.Kind) bool { return p.peek().Kind == k }

func (p *Parser) checkN(n int, k token.Kind) bool { return p.peekN(n).Kind == k }

func (p *Parser) match(ks ...token.Kind) bool {
	for _, k := range ks {
		if p.check(k) {
			return true
		}
	}
	return false
}

func (p *Parser) expect(k token.Kind) token.Token {
	t := p.peek()
	if t.Kind != k {
		panic(p.unexpected(k))
	}
	return p.advance()
}

func (p *Parser) unexpected(expected ...token.Kind) diag.Diagnostic {
	got := p.peek()
	if len(expected) == 1 {
		return diag.Syntaxf(got.Span.From, "unexpected %s, expected %s", got.Kind, expected[0])
	}
	msg := "unexpected " + got.Kind.String() + ", expected one of "
	for i, k := range expected {
		if i > 0 {
			msg += ", "
		}
		msg += k.String()
	}
	return diag.New(diag.Syntax, got.Span.From, msg)
}

// ---- Program / declarations ----

func (p *Parser) parseProgram() *ast.Program {
	start := p.peek().Span.From
	prog := ast.NewProgram(start)
	for !p.check(token.EOF) {
		prog.Decls = append(prog.Decls, p.parseDecl())
	}
	return prog
}

func (p *Parser) parseDecl() ast.Stmt {
	if p.check(token.FUNC) {
		return p.parseFuncDecl()
	}
	return p.parseStatement()
}

func (p *Parser) parseFuncDecl() *ast.FuncDecl {
	start := p.expect(token.FUNC).Span.From
	name := p.expect(token.IDENT).Literal

	p.expect(token.LPAREN)
	var params []ast.Param
	if !p.check(token.RPAREN) {
		params = append(params, p.parseParam())
		for p.check(token.COMMA) {
			p.advance()
			params = append(params, p.parseParam())
		}
	}
	p.expect(token.RPAREN)

	var retType ast.Type
	if p.check(token.ARROW) {
		p.advance()
		retType = p.parseType()
	}

	body := p.parseBlock()

	return ast.NewFuncDecl(start, name, params, retType, body)
}

func (p *Parser) parseParam() ast.Param {
	tok := p.expect(token.IDENT)
	p.expect(token.COLON)
	typ := p.parseType()
	return ast.Param{Name: tok.Literal, Type: typ, Position: tok.Span.From}
}

func (p *Parser) parseType() ast.Type {
	t := p.advance()
	switch t.Kind {
	case token.INT_TYPE:
		return ast.IntType
	case token.STRING_TYPE:
		return ast.StringType
	case token.BOOL_TYPE:
		return ast.BoolType
	case token.VOID_TYPE:
		return ast.VoidType
	case token.FUNC_TYPE:
		p.expect(token.LT)
		var types []ast.Type
		types = append(types, p.parseType())
		for p.check(token.COMMA) {
			p.advance()
			types = append(types, p.parseType())
		}
		p.expect(token.GT)
		if len(types) < 1 {
			panic(diag.Syntaxf(t.Span.From, "'Func<...>' requires at least a return type"))
		}
		ret := types[len(types)-1]
		params := types[:len(types)-1]
		return ast.Function{Params: params, Return: ret}
	default:
		panic(diag.Syntaxf(t.Span.From, "unexpected %s, expected a type", t.Kind))
	}
}

// ---- Statements ----

func (p *Parser) parseBlock() *ast.Block {
	start := p.expect(token.LBRACE).Span.From
	blk := ast.NewBlock(start)
	for !p.check(token.RBRACE) {
		blk.Stmts = append(blk.Stmts, p.parseStatement())
	}
	p.expect(token.RBRACE)
	return blk
}

func (p *Parser) parseStatement() ast.Stmt {
	switch {
	case p.check(token.LET):
		return p.parseVarDecl()
	case p.check(token.IF):
		return p.parseIf()
	case p.check(token.RETURN):
		return p.parseReturn()
	case p.check(token.ASSERT):
		return p.parseAssert()
	case p.check(token.LBRACE):
		return p.parseBlock()
	case p.check(token.IDENT) && p.checkN(1, token.ASSIGN):
		return p.parseAssign()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseVarDecl() *ast.VarDecl {
	start := p.expect(token.LET).Span.From
	name := p.expect(token.IDENT).Literal

	var declared ast.Type
	if p.check(token.COLON) {
		p.advance()
		declared = p.parseType()
	}

	var init ast.Expr
	if p.check(token.ASSIGN) {
		p.advance()
		init = p.parseExpr()
	}

	// A let with neither a type annotation nor an initializer is a
	// semantic error (spec.md §4.5), not a syntax one: the analyzer
	// reports it in analyzeVarDecl so it accumulates alongside the
	// rest of that source file's semantic/type errors instead of
	// short-circuiting the pass the way a parser panic would.
	p.expect(token.SEMI)
	return ast.NewVarDecl(start, name, declared, init)
}

func (p *Parser) parseAssign() *ast.Assign {
	nameTok := p.expect(token.IDENT)
	p.expect(token.ASSIGN)
	value := p.parseExpr()
	p.expect(token.SEMI)
	return ast.NewAssign(nameTok.Span.From, nameTok.Literal, value)
}

func (p *Parser) parseIf() *ast.If {
	start := p.expect(token.IF).Span.From
	p.expect(token.LPAREN)
	cond := p.parseExpr()
	p.expect(token.RPAREN)
	then := p.parseBlock()
	var els *ast.Block
	if p.check(token.ELSE) {
		p.advance()
		els = p.parseBlock()
	}
	return ast.NewIf(start, cond, then, els)
}

func (p *Parser) parseReturn() *ast.Return {
	start := p.expect(token.RETURN).Span.From
	var value ast.Expr
	if !p.check(token.SEMI) {
		value = p.parseExpr()
	}
	p.expect(token.SEMI)
	return ast.NewReturn(start, value)
}

func (p *Parser) parseAssert() *ast.Assert {
	start := p.expect(token.ASSERT).Span.From
	p.expect(token.LPAREN)
	cond := p.parseExpr()
	var msg *string
	if p.check(token.COMMA) {
		p.advance()
		tok := p.expect(token.STRING)
		s := unescape(tok.Literal)
		msg = &s
	}
	p.expect(token.RPAREN)
	p.expect(token.SEMI)
	return ast.NewAssert(start, cond, msg)
}

func (p *Parser) parseExprStmt() *ast.ExprStmt {
	start := p.peek().Span.From
	x := p.parseExpr()
	p.expect(token.SEMI)
	return ast.NewExprStmt(start, x)
}

// ---- Expressions: precedence ladder (spec.md §4.2) ----

func (p *Parser) parseExpr() ast.Expr { return p.parseOr() }

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.check(token.OR) {
		pos := p.advance().Span.From
		right := p.parseAnd()
		left = ast.NewBinary(pos, ast.Or, left, right)
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseEquality()
	for p.check(token.AND) {
		pos := p.advance().Span.From
		right := p.parseEquality()
		left = ast.NewBinary(pos, ast.And, left, right)
	}
	return left
}

func (p *Parser) parseEquality() ast.Expr {
	left := p.parseRelational()
	for p.match(token.EQ, token.NE) {
		t := p.advance()
		op := ast.Eq
		if t.Kind == token.NE {
			op = ast.Ne
		}
		right := p.parseRelational()
		left = ast.NewBinary(t.Span.From, op, left, right)
	}
	return left
}

func (p *Parser) parseRelational() ast.Expr {
	left := p.parseAdditive()
	for p.match(token.LT, token.GT, token.LE, token.GE) {
		t := p.advance()
		var op ast.BinOp
		switch t.Kind {
		case token.LT:
			op = ast.Lt
		case token.GT:
			op = ast.Gt
		case token.LE:
			op = ast.Le
		default:
			op = ast.Ge
		}
		right := p.parseAdditive()
		left = ast.NewBinary(t.Span.From, op, left, right)
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.match(token.PLUS, token.MINUS) {
		t := p.advance()
		op := ast.Add
		if t.Kind == token.MINUS {
			op = ast.Sub
		}
		right := p.parseMultiplicative()
		left = ast.NewBinary(t.Span.From, op, left, right)
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for p.match(token.STAR, token.SLASH, token.PERCENT) {
		t := p.advance()
		var op ast.BinOp
		switch t.Kind {
		case token.STAR:
			op = ast.Mul
		case token.SLASH:
			op = ast.Div
		default:
			op = ast.Mod
		}
		right := p.parseUnary()
		left = ast.NewBinary(t.Span.From, op, left, right)
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.match(token.MINUS, token.BANG) {
		t := p.advance()
		op := ast.Negate
		if t.Kind == token.BANG {
			op = ast.Not
		}
		operand := p.parseUnary()
		return ast.NewUnary(t.Span.From, op, operand)
	}
	return p.parsePostfix()
}

// parsePostfix handles call and method-call syntax. Method calls
// `e.m(args)` are rewritten here into a call named `m` with `e` prepended
// to the argument list — the sole lowering of dot-method syntax
// (spec.md §4.3); no separate method-call AST node exists.
//
// A call's callee must be a bare name token, never a parenthesized or
// otherwise derived expression (spec.md §4.3, §9): "(g)(1)" is rejected
// exactly like "f()(1)" even though `g` alone would be a legal callee.
// isBareIdent tracks whether expr is still the untouched identifier
// parsePrimary just produced; it is cleared the moment expr becomes
// anything else (a parenthesized expression, a call result, ...).
func (p *Parser) parsePostfix() ast.Expr {
	expr, isBareIdent := p.parsePrimary()
	for {
		switch {
		case p.check(token.LPAREN):
			if !isBareIdent {
				panic(diag.Semanticf(expr.Pos(), "higher-order function calls not yet supported"))
			}
			ident := expr.(*ast.Ident)
			p.advance()
			args := p.parseArgList()
			p.expect(token.RPAREN)
			expr = ast.NewCall(ident.Pos(), ident.Name, args)
			isBareIdent = false
		case p.check(token.DOT):
			p.advance()
			nameTok := p.expect(token.IDENT)
			args := []ast.Expr{expr}
			if p.check(token.LPAREN) {
				p.advance()
				args = append(args, p.parseArgList()...)
				p.expect(token.RPAREN)
			} else {
				panic(p.unexpected(token.LPAREN))
			}
			expr = ast.NewCall(nameTok.Span.From, nameTok.Literal, args)
			isBareIdent = false
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgList() []ast.Expr {
	var args []ast.Expr
	if p.check(token.RPAREN) {
		return args
	}
	args = append(args, p.parseExpr())
	for p.check(token.COMMA) {
		p.advance()
		args = append(args, p.parseExpr())
	}
	return args
}

// parsePrimary handles literals, identifiers, parenthesized expressions
// and lambdas. A parenthesized lambda parameter list is told apart from
// a parenthesized expression by scanning ahead to the matching ')' and
// checking whether '=>' follows (spec.md §4.2).
//
// The second return value is true only when the expression is a bare
// identifier token, never when it merely evaluates to one (e.g. a
// parenthesized identifier) — parsePostfix uses this to tell a legal
// call callee apart from a higher-order one (spec.md §4.3).
func (p *Parser) parsePrimary() (ast.Expr, bool) {
	t := p.peek()
	switch t.Kind {
	case token.INT:
		p.advance()
		v, err := strconv.ParseInt(t.Literal, 10, 64)
		if err != nil {
			panic(diag.Syntaxf(t.Span.From, "invalid integer literal %q", t.Literal))
		}
		return ast.NewIntLit(t.Span.From, int32(v)), false
	case token.STRING:
		p.advance()
		return ast.NewStringLit(t.Span.From, unescape(t.Literal)), false
	case token.TRUE:
		p.advance()
		return ast.NewBoolLit(t.Span.From, true), false
	case token.FALSE:
		p.advance()
		return ast.NewBoolLit(t.Span.From, false), false
	case token.IDENT:
		p.advance()
		return ast.NewIdent(t.Span.From, t.Literal), true
	case token.LPAREN:
		if p.looksLikeLambda() {
			return p.parseLambda(), false
		}
		p.advance()
		inner := p.parseExpr()
		p.expect(token.RPAREN)
		return inner, false
	default:
		panic(diag.Syntaxf(t.Span.From, "unexpected %s, expected an expression", t.Kind))
	}
}

// looksLikeLambda assumes the current token is '(' and scans forward,
// tracking paren depth, to the matching ')'. It reports whether the
// token after that ')' is '=>'.
func (p *Parser) looksLikeLambda() bool {
	depth := 0
	i := p.i
	for {
		t := p.toks[i]
		switch t.Kind {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
			if depth == 0 {
				next := i + 1
				if next >= len(p.toks) {
					return false
				}
				return p.toks[next].Kind == token.FATARROW
			}
		case token.EOF:
			return false
		}
		i++
	}
}

func (p *Parser) parseLambda() *ast.Lambda {
	start := p.expect(token.LPAREN).Span.From
	var params []ast.Param
	if !p.check(token.RPAREN) {
		params = append(params, p.parseParam())
		for p.check(token.COMMA) {
			p.advance()
			params = append(params, p.parseParam())
		}
	}
	p.expect(token.RPAREN)
	p.expect(token.FATARROW)

	var body ast.LambdaBody
	if p.check(token.LBRACE) {
		body.Block = p.parseBlock()
	} else {
		body.Expr = p.parseExpr()
	}
	return ast.NewLambda(start, params, body)
}
