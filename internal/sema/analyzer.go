package sema

import (
	"github.com/coreos/pkg/capnslog"

	"github.com/ReinoutWW/gplambda/internal/ast"
	"github.com/ReinoutWW/gplambda/internal/diag"
)

var log = capnslog.NewPackageLogger("github.com/ReinoutWW/gplambda", "gplc/sema")

// isErrorType reports whether t is the sentinel ast.ErrorType value the
// analyzer substitutes for an expression whose real type could not be
// determined, so that the first diagnostic about a name does not breed
// a cascade of secondary ones (the same trick isaacev-Plaid's checker
// plays with its `Any` type in checkIdentExpr/checkBinaryExpr).
func isErrorType(t ast.Type) bool {
	return t == ast.ErrorType
}

// funcContext tracks the enclosing callable's return-type contract
// while the analyzer is inside its body. Lambdas infer their return
// type from the first return encountered (spec.md §4.5's Lambda
// paragraph); ordinary functions check every return against a type
// already fixed by the declaration.
type funcContext struct {
	declaredReturn  ast.Type
	isLambda        bool
	sawReturn       bool
	firstReturnType ast.Type
}

// analyzer is the combined analyzer's mutable state for one
// compilation: the scope/symbol table, the two diagnostic lists
// spec.md §4.5 requires, and the stack of enclosing callables needed
// to check `return` (spec.md §9: analyzer context is carried as
// explicit state, never stashed on AST nodes).
type analyzer struct {
	table    *Table
	semantic diag.List
	typ      diag.List
	funcs    []*funcContext
}

// Analyze performs the single traversal spec.md §4.5 describes: name
// resolution and type checking in one pass over the AST, accumulating
// a semantic-error list and a type-error list. Analyze never panics on
// malformed-but-parseable input; every problem becomes a diagnostic.
// Analyze also returns the global scope's symbol table, populated with
// every top-level function and variable the program defines, so a
// caller running with --verbose can dump it the way cmd/gplc does.
func Analyze(prog *ast.Program) (semanticErrs diag.List, typeErrs diag.List, global *Table) {
	log.Debugf("analyzing %d top-level declaration(s)", len(prog.Decls))
	a := &analyzer{table: NewTable()}
	for _, decl := range prog.Decls {
		a.analyzeDecl(decl)
	}
	if len(a.semantic) > 0 || len(a.typ) > 0 {
		log.Debugf("analysis found %d semantic error(s), %d type error(s)", len(a.semantic), len(a.typ))
	}
	return a.semantic, a.typ, a.table
}

func (a *analyzer) analyzeDecl(d ast.Stmt) {
	if fn, ok := d.(*ast.FuncDecl); ok {
		a.analyzeFuncDecl(fn)
		return
	}
	a.analyzeStmt(d)
}

// analyzeFuncDecl implements spec.md §4.5's "Function declarations"
// paragraph verbatim: the symbol is defined in the enclosing scope
// before the body is entered (so the function can call itself, and so
// later top-level declarations can call it back), but a textually
// earlier caller of a not-yet-declared function will not resolve it —
// this is a single forward pass, not a two-pass predeclaration.
func (a *analyzer) analyzeFuncDecl(fn *ast.FuncDecl) {
	if a.table.IsDefinedLocally(fn.Name) {
		a.semantic = append(a.semantic, diag.Semanticf(fn.Pos(), "Function '%s' is already defined", fn.Name))
		return
	}

	retType := fn.ReturnType
	if retType == nil {
		retType = ast.VoidType
	}
	paramTypes := make([]ast.Type, len(fn.Params))
	for i, p := range fn.Params {
		paramTypes[i] = p.Type
	}
	sym := &Symbol{
		Name:        fn.Name,
		Type:        ast.Function{Params: paramTypes, Return: retType},
		Pos:         fn.Pos(),
		Tag:         FunctionSymbol,
		Params:      fn.Params,
		Defined:     true,
		Initialized: true,
	}
	a.table.Define(sym)

	a.table.EnterScope(Function)
	for _, p := range fn.Params {
		if a.table.IsDefinedLocally(p.Name) {
			a.semantic = append(a.semantic, diag.Semanticf(p.Pos(), "'%s' is already defined in this scope", p.Name))
			continue
		}
		a.table.Define(&Symbol{Name: p.Name, Type: p.Type, Pos: p.Pos(), Tag: VariableSymbol, Initialized: true, Defined: true})
	}

	fc := &funcContext{declaredReturn: retType}
	a.funcs = append(a.funcs, fc)
	a.analyzeBlock(fn.Body)
	a.funcs = a.funcs[:len(a.funcs)-1]

	if !retType.Equal(ast.VoidType) && !definitelyReturns(fn.Body) {
		a.typ = append(a.typ, diag.Typef(fn.Pos(), "Function '%s' must return a value of type %s", fn.Name, retType))
	}
	a.table.ExitScope()
}

// analyzeBlock pushes a Block scope and pops on exit, even for a
// function or lambda body (spec.md §4.5: "the redundancy is harmless
// because names are looked up through the parent chain").
func (a *analyzer) analyzeBlock(b *ast.Block) {
	a.table.EnterScope(Block)
	for _, s := range b.Stmts {
		a.analyzeStmt(s)
	}
	a.table.ExitScope()
}

func (a *analyzer) analyzeStmt(s ast.Stmt) {
	switch v := s.(type) {
	case *ast.Block:
		a.analyzeBlock(v)
	case *ast.VarDecl:
		a.analyzeVarDecl(v)
	case *ast.Assign:
		a.analyzeAssign(v)
	case *ast.If:
		a.analyzeIf(v)
	case *ast.Return:
		a.analyzeReturn(v)
	case *ast.Assert:
		a.analyzeAssert(v)
	case *ast.ExprStmt:
		a.analyzeExpr(v.X)
	default:
		panic(diag.Internalf(s.Pos(), "unhandled statement node %T", s))
	}
}

func (a *analyzer) analyzeVarDecl(d *ast.VarDecl) {
	redefined := a.table.IsDefinedLocally(d.Name)
	if redefined {
		a.semantic = append(a.semantic, diag.Semanticf(d.Pos(), "'%s' is already defined in this scope", d.Name))
	}

	var initType ast.Type
	if d.Init != nil {
		initType = a.analyzeExpr(d.Init)
	}

	var varType ast.Type
	switch {
	case d.DeclaredType != nil && d.Init != nil:
		if !isErrorType(initType) && !d.DeclaredType.Equal(initType) {
			a.typ = append(a.typ, diag.Typef(d.Pos(),
				"Cannot initialize variable '%s' of type %s with value of type %s",
				d.Name, d.DeclaredType, initType))
		}
		varType = d.DeclaredType
	case d.DeclaredType != nil:
		varType = d.DeclaredType
	case d.Init != nil:
		varType = initType
	default:
		a.semantic = append(a.semantic, diag.Semanticf(d.Pos(), "'%s' must have a type annotation or initializer", d.Name))
		varType = ast.ErrorType
	}

	if !redefined {
		a.table.Define(&Symbol{
			Name:        d.Name,
			Type:        varType,
			Pos:         d.Pos(),
			Tag:         VariableSymbol,
			Initialized: d.Init != nil,
			Defined:     true,
		})
	}
}

func (a *analyzer) analyzeAssign(s *ast.Assign) {
	valType := a.analyzeExpr(s.Value)
	sym := a.table.Resolve(s.Name)
	switch {
	case sym == nil:
		a.semantic = append(a.semantic, diag.Semanticf(s.Pos(), "'%s' is not defined", s.Name))
	case sym.Tag != VariableSymbol:
		a.semantic = append(a.semantic, diag.Semanticf(s.Pos(), "'%s' is not a variable", s.Name))
	default:
		if !isErrorType(valType) && !sym.Type.Equal(valType) {
			a.typ = append(a.typ, diag.Typef(s.Pos(), "Cannot assign value of type %s to variable '%s' of type %s", valType, s.Name, sym.Type))
		}
		sym.Initialized = true
	}
}

func (a *analyzer) analyzeIf(s *ast.If) {
	a.checkBoolCondition(s.Cond)
	a.analyzeBlock(s.Then)
	if s.Else != nil {
		a.analyzeBlock(s.Else)
	}
}

func (a *analyzer) analyzeAssert(s *ast.Assert) {
	a.checkBoolCondition(s.Cond)
}

func (a *analyzer) checkBoolCondition(cond ast.Expr) {
	t := a.analyzeExpr(cond)
	if !isErrorType(t) && !t.Equal(ast.BoolType) {
		a.typ = append(a.typ, diag.Typef(cond.Pos(), "condition must have type Bool, got %s", t))
	}
}

func (a *analyzer) analyzeReturn(s *ast.Return) {
	if len(a.funcs) == 0 {
		a.typ = append(a.typ, diag.Typef(s.Pos(), "'return' used outside of a function"))
		if s.Value != nil {
			a.analyzeExpr(s.Value)
		}
		return
	}

	var valType ast.Type = ast.VoidType
	if s.Value != nil {
		valType = a.analyzeExpr(s.Value)
	}

	fc := a.funcs[len(a.funcs)-1]
	if fc.isLambda {
		if !fc.sawReturn {
			fc.sawReturn = true
			fc.firstReturnType = valType
		}
		return
	}

	if !isErrorType(valType) && !valType.Equal(fc.declaredReturn) {
		a.typ = append(a.typ, diag.Typef(s.Pos(), "Cannot return value of type %s from function declared to return %s", valType, fc.declaredReturn))
	}
}

func (a *analyzer) analyzeExpr(e ast.Expr) ast.Type {
	var t ast.Type
	switch v := e.(type) {
	case *ast.IntLit:
		t = ast.IntType
	case *ast.StringLit:
		t = ast.StringType
	case *ast.BoolLit:
		t = ast.BoolType
	case *ast.Ident:
		t = a.analyzeIdent(v)
	case *ast.Lambda:
		t = a.analyzeLambda(v)
	case *ast.Call:
		t = a.analyzeCall(v)
	case *ast.Binary:
		t = a.analyzeBinary(v)
	case *ast.Unary:
		t = a.analyzeUnary(v)
	default:
		panic(diag.Internalf(e.Pos(), "unhandled expression node %T", e))
	}
	e.SetResolvedType(t)
	return t
}

func (a *analyzer) analyzeIdent(id *ast.Ident) ast.Type {
	sym := a.table.Resolve(id.Name)
	if sym == nil {
		a.semantic = append(a.semantic, diag.Semanticf(id.Pos(), "'%s' is not defined", id.Name))
		return ast.ErrorType
	}
	if sym.Tag == VariableSymbol && !sym.Initialized {
		a.semantic = append(a.semantic, diag.Semanticf(id.Pos(), "Variable '%s' may not be initialized", id.Name))
	}
	sym.Used = true
	return sym.Type
}

func (a *analyzer) analyzeLambda(l *ast.Lambda) ast.Type {
	a.table.EnterScope(Lambda)
	for _, p := range l.Params {
		if a.table.IsDefinedLocally(p.Name) {
			a.semantic = append(a.semantic, diag.Semanticf(p.Pos(), "'%s' is already defined in this scope", p.Name))
			continue
		}
		a.table.Define(&Symbol{Name: p.Name, Type: p.Type, Pos: p.Pos(), Tag: VariableSymbol, Initialized: true, Defined: true})
	}

	fc := &funcContext{isLambda: true}
	a.funcs = append(a.funcs, fc)

	var bodyType ast.Type
	switch {
	case l.Body.Expr != nil:
		bodyType = a.analyzeExpr(l.Body.Expr)
	case l.Body.Block != nil:
		a.analyzeBlock(l.Body.Block)
		if fc.sawReturn {
			bodyType = fc.firstReturnType
		} else {
			bodyType = ast.VoidType
		}
	default:
		bodyType = ast.VoidType
	}

	a.funcs = a.funcs[:len(a.funcs)-1]
	a.table.ExitScope()

	paramTypes := make([]ast.Type, len(l.Params))
	for i, p := range l.Params {
		paramTypes[i] = p.Type
	}
	return ast.Function{Params: paramTypes, Return: bodyType}
}

func (a *analyzer) analyzeCall(c *ast.Call) ast.Type {
	sym := a.table.Resolve(c.Callee)
	var fnType ast.Function
	ok := false
	if sym != nil {
		if ft, isFn := sym.Type.(ast.Function); isFn {
			fnType = ft
			ok = true
		}
	}

	if !ok {
		a.semantic = append(a.semantic, diag.Semanticf(c.Pos(), "'%s' is not a function", c.Callee))
		for _, arg := range c.Args {
			a.analyzeExpr(arg)
		}
		return ast.ErrorType
	}
	if sym.Tag == VariableSymbol {
		sym.Used = true
	}

	if len(c.Args) != len(fnType.Params) {
		a.typ = append(a.typ, diag.Typef(c.Pos(), "Function '%s' expects %d argument(s), got %d", c.Callee, len(fnType.Params), len(c.Args)))
	}

	for i, arg := range c.Args {
		argType := a.analyzeExpr(arg)
		if i >= len(fnType.Params) || isErrorType(argType) {
			continue
		}
		if !argType.Equal(fnType.Params[i]) {
			a.typ = append(a.typ, diag.Typef(arg.Pos(), "Argument %d of '%s' has type %s, expected %s", i+1, c.Callee, argType, fnType.Params[i]))
		}
	}

	if fnType.Return == nil {
		return ast.VoidType
	}
	return fnType.Return
}

func (a *analyzer) analyzeBinary(b *ast.Binary) ast.Type {
	lt := a.analyzeExpr(b.Left)
	rt := a.analyzeExpr(b.Right)
	if isErrorType(lt) || isErrorType(rt) {
		return ast.ErrorType
	}

	switch b.Op {
	case ast.Add:
		if lt.Equal(ast.IntType) && rt.Equal(ast.IntType) {
			return ast.IntType
		}
		if lt.Equal(ast.StringType) || rt.Equal(ast.StringType) {
			return ast.StringType
		}
		a.typ = append(a.typ, diag.Typef(b.Pos(), "Operator '+' cannot be applied to operands of type %s and %s", lt, rt))
		return ast.ErrorType
	case ast.Sub, ast.Mul, ast.Div, ast.Mod:
		if lt.Equal(ast.IntType) && rt.Equal(ast.IntType) {
			return ast.IntType
		}
		a.typ = append(a.typ, diag.Typef(b.Pos(), "Operator '%s' requires Int operands, got %s and %s", b.Op, lt, rt))
		return ast.ErrorType
	case ast.Lt, ast.Gt, ast.Le, ast.Ge:
		if lt.Equal(ast.IntType) && rt.Equal(ast.IntType) {
			return ast.BoolType
		}
		a.typ = append(a.typ, diag.Typef(b.Pos(), "Operator '%s' requires Int operands, got %s and %s", b.Op, lt, rt))
		return ast.ErrorType
	case ast.Eq, ast.Ne:
		if lt.Equal(rt) {
			return ast.BoolType
		}
		a.typ = append(a.typ, diag.Typef(b.Pos(), "Operator '%s' requires operands of equal type, got %s and %s", b.Op, lt, rt))
		return ast.ErrorType
	case ast.And, ast.Or:
		if lt.Equal(ast.BoolType) && rt.Equal(ast.BoolType) {
			return ast.BoolType
		}
		a.typ = append(a.typ, diag.Typef(b.Pos(), "Operator '%s' requires Bool operands, got %s and %s", b.Op, lt, rt))
		return ast.ErrorType
	default:
		panic(diag.Internalf(b.Pos(), "unhandled binary operator %v", b.Op))
	}
}

func (a *analyzer) analyzeUnary(u *ast.Unary) ast.Type {
	ot := a.analyzeExpr(u.Operand)
	if isErrorType(ot) {
		return ast.ErrorType
	}
	switch u.Op {
	case ast.Negate:
		if ot.Equal(ast.IntType) {
			return ast.IntType
		}
		a.typ = append(a.typ, diag.Typef(u.Pos(), "Operator '-' requires an Int operand, got %s", ot))
		return ast.ErrorType
	case ast.Not:
		if ot.Equal(ast.BoolType) {
			return ast.BoolType
		}
		a.typ = append(a.typ, diag.Typef(u.Pos(), "Operator '!' requires a Bool operand, got %s", ot))
		return ast.ErrorType
	default:
		panic(diag.Internalf(u.Pos(), "unhandled unary operator %v", u.Op))
	}
}

// definitelyReturns implements spec.md §4.5's return analysis: a block
// definitely returns if any direct statement in it does.
func definitelyReturns(b *ast.Block) bool {
	for _, s := range b.Stmts {
		if stmtDefinitelyReturns(s) {
			return true
		}
	}
	return false
}

func stmtDefinitelyReturns(s ast.Stmt) bool {
	switch v := s.(type) {
	case *ast.Return:
		return true
	case *ast.If:
		return v.Else != nil && definitelyReturns(v.Then) && definitelyReturns(v.Else)
	case *ast.Block:
		return definitelyReturns(v)
	default:
		return false
	}
}
