package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinoutWW/gplambda/internal/ast"
	"github.com/ReinoutWW/gplambda/internal/diag"
	"github.com/ReinoutWW/gplambda/internal/lexer"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, errs := Parse(lexer.NewLexer(strings.NewReader(src)))
	require.Empty(t, errs, "unexpected parse errors for %q", src)
	require.NotNil(t, prog)
	return prog
}

func parseErr(t *testing.T, src string) diag.List {
	t.Helper()
	_, errs := Parse(lexer.NewLexer(strings.NewReader(src)))
	require.NotEmpty(t, errs)
	return errs
}

func TestParseEmptyProgram(t *testing.T) {
	prog := parse(t, "")
	assert.Empty(t, prog.Decls)
}

func TestParseFunctionDecl(t *testing.T) {
	prog := parse(t, `func add(x: Int, y: Int) -> Int { return x + y; }`)
	require.Len(t, prog.Decls, 1)
	fn, ok := prog.Decls[0].(*ast.FuncDecl)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "x", fn.Params[0].Name)
	assert.True(t, fn.ReturnType.Equal(ast.IntType))
	require.Len(t, fn.Body.Stmts, 1)
	ret, ok := fn.Body.Stmts[0].(*ast.Return)
	require.True(t, ok)
	bin, ok := ret.Value.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.Add, bin.Op)
}

func TestOperatorPrecedence(t *testing.T) {
	// 1 + 2 * 3 should parse as 1 + (2 * 3)
	prog := parse(t, `func f() { return 1 + 2 * 3; }`)
	fn := prog.Decls[0].(*ast.FuncDecl)
	ret := fn.Body.Stmts[0].(*ast.Return)
	top, ok := ret.Value.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.Add, top.Op)
	_, leftIsLit := top.Left.(*ast.IntLit)
	assert.True(t, leftIsLit)
	right, ok := top.Right.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.Mul, right.Op)
}

func TestLeftAssociativity(t *testing.T) {
	// 1 - 2 - 3 should parse as (1 - 2) - 3
	prog := parse(t, `func f() { return 1 - 2 - 3; }`)
	fn := prog.Decls[0].(*ast.FuncDecl)
	ret := fn.Body.Stmts[0].(*ast.Return)
	top := ret.Value.(*ast.Binary)
	assert.Equal(t, ast.Sub, top.Op)
	left, ok := top.Left.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.Sub, left.Op)
	_, rightIsLit := top.Right.(*ast.IntLit)
	assert.True(t, rightIsLit)
}

func TestParseLambdaVsParenExpr(t *testing.T) {
	prog := parse(t, `func f() { let d = (x: Int, y: Int) => x + y; let n = (1 + 2); }`)
	fn := prog.Decls[0].(*ast.FuncDecl)
	d := fn.Body.Stmts[0].(*ast.VarDecl)
	_, isLambda := d.Init.(*ast.Lambda)
	assert.True(t, isLambda)

	n := fn.Body.Stmts[1].(*ast.VarDecl)
	_, isBinary := n.Init.(*ast.Binary)
	assert.True(t, isBinary)
}

func TestParseNestedFuncType(t *testing.T) {
	prog := parse(t, `func apply(f: Func<Int, Func<Int, Int>>) -> Int { return 0; }`)
	fn := prog.Decls[0].(*ast.FuncDecl)
	ft, ok := fn.Params[0].Type.(ast.Function)
	require.True(t, ok)
	require.Len(t, ft.Params, 1)
	inner, ok := ft.Return.(ast.Function)
	require.True(t, ok)
	assert.True(t, inner.Return.Equal(ast.IntType))
}

func TestParseMethodCallRewrite(t *testing.T) {
	prog := parse(t, `func f() { println(toString(1).length()); }`)
	fn := prog.Decls[0].(*ast.FuncDecl)
	stmt := fn.Body.Stmts[0].(*ast.ExprStmt)
	call := stmt.X.(*ast.Call)
	assert.Equal(t, "println", call.Callee)
	inner := call.Args[0].(*ast.Call)
	assert.Equal(t, "length", inner.Callee)
	require.Len(t, inner.Args, 1)
	_, ok := inner.Args[0].(*ast.Call)
	assert.True(t, ok)
}

func TestParseHigherOrderCallRejected(t *testing.T) {
	errs := parseErr(t, `func f() { let g = (x: Int) => x; (g)(1); }`)
	require.Len(t, errs, 1)
	assert.Equal(t, diag.Semantic, errs[0].Category)
}

func TestParseVarDeclWithoutTypeOrInitIsNotAParseError(t *testing.T) {
	// internal/sema, not the parser, reports the missing-type-annotation-
	// or-initializer error (spec.md §4.5), so that it accumulates with any
	// other semantic/type error in the same file instead of short-circuiting
	// the analyzer the way a parser panic would.
	prog := parse(t, `func f() { let x; }`)
	fn := prog.Decls[0].(*ast.FuncDecl)
	decl := fn.Body.Stmts[0].(*ast.VarDecl)
	assert.Nil(t, decl.DeclaredType)
	assert.Nil(t, decl.Init)
}

func TestParseAssertWithMessage(t *testing.T) {
	prog := parse(t, `func f() { assert(1 == 1, "should hold"); }`)
	fn := prog.Decls[0].(*ast.FuncDecl)
	a := fn.Body.Stmts[0].(*ast.Assert)
	require.NotNil(t, a.Message)
	assert.Equal(t, "should hold", *a.Message)
}

func TestParseStringEscapes(t *testing.T) {
	prog := parse(t, `func f() { let s = "line1\nline2"; }`)
	fn := prog.Decls[0].(*ast.FuncDecl)
	v := fn.Body.Stmts[0].(*ast.VarDecl)
	lit := v.Init.(*ast.StringLit)
	assert.Equal(t, "line1\nline2", lit.Value)
}

func TestParseSyntaxErrorReportsPosition(t *testing.T) {
	errs := parseErr(t, "func f( { }")
	require.Len(t, errs, 1)
	assert.Equal(t, diag.Syntax, errs[0].Category)
	assert.GreaterOrEqual(t, errs[0].Pos.Line, 1)
}
