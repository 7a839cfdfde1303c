package codegen

import (
	"github.com/coreos/pkg/capnslog"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ReinoutWW/gplambda/internal/ast"
	"github.com/ReinoutWW/gplambda/internal/diag"
	"github.com/ReinoutWW/gplambda/internal/sema"
	"github.com/ReinoutWW/gplambda/internal/token"
)

var log = capnslog.NewPackageLogger("github.com/ReinoutWW/gplambda", "gplc/codegen")

// Emit lowers a fully analyzed program to an LLVM module (spec.md §4.6).
// The caller must only invoke Emit once internal/sema.Analyze has
// reported zero errors; every helper below assumes that precondition
// and panics an Internal diagnostic if it is violated, mirroring
// tawago's codegen() which carries the same unchecked assumption.
//
// targetTriple, sourced from internal/config.Settings, is stamped onto
// the module so the external host toolchain (spec.md §6) links for the
// right platform; an empty string leaves it for that toolchain to pick
// its own default, same as leaving clang's -target flag unset.
func Emit(prog *ast.Program, targetTriple string) *ir.Module {
	log.Debugf("emitting %d top-level declaration(s), target triple %q", len(prog.Decls), targetTriple)
	m := ir.NewModule()
	m.TargetTriple = targetTriple
	rt := declareRuntime(m)
	builtinFns := defineBuiltins(m, rt)

	c := newCtx(m, rt)
	for name, fn := range builtinFns {
		c.define(name, binding{fn: fn, typ: sema.BuiltinSignatures[name]})
	}

	// Forward-declaration pass (SPEC_FULL.md's SUPPLEMENTED BEHAVIOR
	// section): every top-level function's signature is declared before
	// any body is emitted, so the emitter itself imposes no declaration
	// order. internal/sema's single sequential pass is what rejects a
	// call to a function declared later in the source; this is
	// deliberately two-pass because LLVM requires a callee to exist in
	// the module before a `call` instruction can reference it.
	var funcDecls []*ast.FuncDecl
	for _, decl := range prog.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			funcDecls = append(funcDecls, fn)
			declareTopLevelFunc(c, fn)
		}
	}

	for _, fn := range funcDecls {
		emitTopLevelFuncBody(c, fn)
	}

	if mainBind, ok := c.lookup("main"); ok && mainBind.fn != nil {
		entry := m.NewFunc("__gplambda_entry", types.Void)
		blk := entry.NewBlock("entry")
		blk.NewCall(mainBind.fn, constant.NewNull(types.NewPointer(types.I8)))
		blk.NewRet(nil)
	}

	attachTypeInfo(m, funcDecls)
	log.Debugf("emitted %d top-level function(s)", len(funcDecls))
	return m
}

func declareTopLevelFunc(c *ctx, fn *ast.FuncDecl) {
	retType := fn.ReturnType
	if retType == nil {
		retType = ast.VoidType
	}
	paramTypes := make([]ast.Type, len(fn.Params))
	for i, p := range fn.Params {
		paramTypes[i] = p.Type
	}
	sig := ast.Function{Params: paramTypes, Return: retType}

	// Every top-level function carries the same hidden leading `i8* env`
	// parameter a lambda's hoisted function does (codegen/lambda.go),
	// even though a top-level function never captures anything: this
	// keeps its real LLVM signature identical to rawFuncType(sig), so
	// wrapAsClosure's bitcast below is sound when the function is used
	// as a first-class value and later called indirectly through a
	// variable of Function type.
	llvmParams := make([]*ir.Param, 0, len(fn.Params)+1)
	llvmParams = append(llvmParams, ir.NewParam("env", types.NewPointer(types.I8)))
	for _, p := range fn.Params {
		llvmParams = append(llvmParams, ir.NewParam(p.Name, mapType(p.Type)))
	}
	llvmFn := c.module.NewFunc(fn.Name, mapType(retType), llvmParams...)
	c.define(fn.Name, binding{fn: llvmFn, typ: sig})
}

func emitTopLevelFuncBody(c *ctx, fn *ast.FuncDecl) {
	top, _ := c.lookup(fn.Name)
	llvmFn := top.fn
	sig := top.typ.(ast.Function)

	entry := llvmFn.NewBlock("entry")
	c.pushScope()
	for i, p := range fn.Params {
		ptr := entry.NewAlloca(mapType(p.Type))
		entry.NewStore(llvmFn.Params[i+1], ptr)
		c.define(p.Name, binding{ptr: ptr, typ: p.Type})
	}

	c.retStack = append(c.retStack, sig.Return)
	end, terminated := emitBlock(c, fn.Body, entry)
	c.retStack = c.retStack[:len(c.retStack)-1]
	c.popScope()

	if !terminated {
		if isVoidType(sig.Return) {
			end.NewRet(nil)
		} else {
			end.NewRet(zeroValue(sig.Return))
		}
	}
}

// zeroValue returns the zero representation of a GP-λ type. It is the
// starting value of a `let` without an initializer, and the return
// value on a path that falls off the end of a body without a `return`
// — which a lambda's block body can do, since internal/sema checks
// definite return only for named functions.
func zeroValue(t ast.Type) value.Value {
	switch v := t.(type) {
	case ast.Primitive:
		switch v.Kind {
		case ast.Int:
			return constant.NewInt(types.I32, 0)
		case ast.Bool:
			return constant.False
		case ast.String:
			return constant.NewNull(types.NewPointer(stringStruct))
		case ast.Void:
			return nil
		}
	case ast.Function:
		return constant.NewZeroInitializer(closureStruct)
	}
	panic(diag.Internalf(token.Position{}, "codegen: no zero value for type %s", t))
}

// emitBlock emits every statement of b starting at start, returning the
// block execution continues in and whether that block is already
// terminated (a return was emitted on every path reaching it).
func emitBlock(c *ctx, b *ast.Block, start *ir.Block) (*ir.Block, bool) {
	c.pushScope()
	cur := start
	terminated := false
	for _, s := range b.Stmts {
		if terminated {
			break
		}
		cur, terminated = emitStmt(c, s, cur)
	}
	c.popScope()
	return cur, terminated
}

func emitStmt(c *ctx, s ast.Stmt, b *ir.Block) (*ir.Block, bool) {
	switch v := s.(type) {
	case *ast.Block:
		return emitBlock(c, v, b)
	case *ast.VarDecl:
		return emitVarDecl(c, v, b)
	case *ast.Assign:
		return emitAssign(c, v, b)
	case *ast.If:
		return emitIf(c, v, b)
	case *ast.Return:
		return emitReturn(c, v, b)
	case *ast.Assert:
		return emitAssert(c, v, b)
	case *ast.ExprStmt:
		_, b = emitExpr(c, v.X, b)
		return b, false
	default:
		panic(diag.Internalf(s.Pos(), "codegen: unhandled statement node %T", s))
	}
}

func emitVarDecl(c *ctx, v *ast.VarDecl, b *ir.Block) (*ir.Block, bool) {
	varType := v.DeclaredType
	if varType == nil {
		varType = v.Init.ResolvedType()
	}

	var val value.Value
	if v.Init != nil {
		val, b = emitExpr(c, v.Init, b)
	} else {
		val = zeroValue(varType)
	}

	ptr := b.NewAlloca(mapType(varType))
	b.NewStore(val, ptr)
	c.define(v.Name, binding{ptr: ptr, typ: varType})
	return b, false
}

func emitAssign(c *ctx, s *ast.Assign, b *ir.Block) (*ir.Block, bool) {
	val, b := emitExpr(c, s.Value, b)
	bnd, _ := c.lookup(s.Name)
	b.NewStore(val, bnd.ptr)
	return b, false
}

func emitIf(c *ctx, s *ast.If, b *ir.Block) (*ir.Block, bool) {
	cond, b := emitExpr(c, s.Cond, b)
	fn := b.Parent

	thenBlk := fn.NewBlock("if.then")
	elseBlk := thenBlk // placeholder target when there is no else branch
	hasElse := s.Else != nil
	if hasElse {
		elseBlk = fn.NewBlock("if.else")
	}
	mergeBlk := fn.NewBlock("if.merge")
	if hasElse {
		b.NewCondBr(cond, thenBlk, elseBlk)
	} else {
		b.NewCondBr(cond, thenBlk, mergeBlk)
	}

	thenEnd, thenTerm := emitBlock(c, s.Then, thenBlk)
	if !thenTerm {
		thenEnd.NewBr(mergeBlk)
	}

	allTerm := false
	if hasElse {
		elseEnd, elseTerm := emitBlock(c, s.Else, elseBlk)
		if !elseTerm {
			elseEnd.NewBr(mergeBlk)
		}
		allTerm = thenTerm && elseTerm
	}

	if allTerm {
		mergeBlk.NewUnreachable()
		return mergeBlk, true
	}
	return mergeBlk, false
}

func emitReturn(c *ctx, s *ast.Return, b *ir.Block) (*ir.Block, bool) {
	retType := c.retStack[len(c.retStack)-1]
	if s.Value == nil {
		b.NewRet(nil)
		return b, true
	}
	val, b := emitExpr(c, s.Value, b)
	if isVoidType(retType) {
		b.NewRet(nil)
	} else {
		b.NewRet(val)
	}
	return b, true
}

// emitAssert lowers `assert` to an explicit conditional trap (spec.md
// §4.6, §9): never elided, regardless of build mode, because GP-λ has
// no notion of one.
func emitAssert(c *ctx, s *ast.Assert, b *ir.Block) (*ir.Block, bool) {
	cond, b := emitExpr(c, s.Cond, b)
	fn := b.Parent

	failBlk := fn.NewBlock("assert.fail")
	okBlk := fn.NewBlock("assert.ok")
	b.NewCondBr(cond, okBlk, failBlk)

	if s.Message != nil {
		msg := c.stringConstant(*s.Message)
		printlnBind, _ := c.lookup("println")
		failBlk.NewCall(printlnBind.fn, constant.NewNull(types.NewPointer(types.I8)), msg)
	}
	failBlk.NewCall(c.runtime.trap)
	failBlk.NewUnreachable()

	return okBlk, false
}

// emitExpr emits e's value, returning the block execution continues in
// — short-circuit operators and any future branching expression may
// hand back a different block than the one they were given.
func emitExpr(c *ctx, e ast.Expr, b *ir.Block) (value.Value, *ir.Block) {
	switch v := e.(type) {
	case *ast.IntLit:
		return constant.NewInt(types.I32, int64(v.Value)), b
	case *ast.BoolLit:
		if v.Value {
			return constant.True, b
		}
		return constant.False, b
	case *ast.StringLit:
		return c.stringConstant(v.Value), b
	case *ast.Ident:
		return emitIdent(c, v, b)
	case *ast.Lambda:
		return emitLambda(c, v, b)
	case *ast.Call:
		return emitCall(c, v, b)
	case *ast.Binary:
		return emitBinary(c, v, b)
	case *ast.Unary:
		return emitUnary(c, v, b)
	default:
		panic(diag.Internalf(e.Pos(), "codegen: unhandled expression node %T", e))
	}
}

func emitIdent(c *ctx, id *ast.Ident, b *ir.Block) (value.Value, *ir.Block) {
	bnd, ok := c.lookup(id.Name)
	if !ok {
		panic(diag.Internalf(id.Pos(), "codegen: unresolved identifier '%s' reached emission", id.Name))
	}
	if bnd.fn != nil {
		return wrapAsClosure(bnd.fn, b), b
	}
	return b.NewLoad(mapType(bnd.typ), bnd.ptr), b
}

// wrapAsClosure packs a direct top-level function (or builtin) into the
// two-word closure value every Function-typed GP-λ expression carries,
// with a null environment since a top-level function captures nothing.
func wrapAsClosure(fn *ir.Func, b *ir.Block) value.Value {
	fnPtr := b.NewBitCast(fn, types.NewPointer(types.I8))
	nullEnv := constant.NewNull(types.NewPointer(types.I8))
	undef := constant.NewUndef(closureStruct)
	withFn := b.NewInsertValue(undef, fnPtr, 0)
	return b.NewInsertValue(withFn, nullEnv, 1)
}

func emitCall(c *ctx, call *ast.Call, b *ir.Block) (value.Value, *ir.Block) {
	bnd, ok := c.lookup(call.Callee)
	if !ok {
		panic(diag.Internalf(call.Pos(), "codegen: unresolved call target '%s' reached emission", call.Callee))
	}

	if bnd.fn != nil {
		// Every direct callee (a user function or a builtin) carries the
		// same hidden leading env parameter its closure form would use;
		// a direct call always passes null since the call site, not the
		// callee, is what determines whether any environment exists.
		args := make([]value.Value, 0, len(call.Args)+1)
		args = append(args, constant.NewNull(types.NewPointer(types.I8)))
		for _, a := range call.Args {
			var av value.Value
			av, b = emitExpr(c, a, b)
			args = append(args, av)
		}
		return b.NewCall(bnd.fn, args...), b
	}

	// bnd names a variable of Function type: unpack the closure and
	// call through its function pointer, passing the captured
	// environment as the hidden first argument.
	closureVal := b.NewLoad(closureStruct, bnd.ptr)
	fnPtr := b.NewExtractValue(closureVal, 0)
	envPtr := b.NewExtractValue(closureVal, 1)
	sig := bnd.typ.(ast.Function)
	castedFn := b.NewBitCast(fnPtr, types.NewPointer(rawFuncType(sig)))

	args := make([]value.Value, 0, len(call.Args)+1)
	args = append(args, envPtr)
	for _, a := range call.Args {
		var av value.Value
		av, b = emitExpr(c, a, b)
		args = append(args, av)
	}
	return b.NewCall(castedFn, args...), b
}

func emitBinary(c *ctx, bin *ast.Binary, b *ir.Block) (value.Value, *ir.Block) {
	if bin.Op == ast.And || bin.Op == ast.Or {
		return emitShortCircuit(c, bin, b)
	}

	l, b := emitExpr(c, bin.Left, b)
	r, b := emitExpr(c, bin.Right, b)
	lt, rt := bin.Left.ResolvedType(), bin.Right.ResolvedType()

	switch bin.Op {
	case ast.Add:
		if isIntType(lt) && isIntType(rt) {
			return b.NewAdd(l, r), b
		}
		return emitStringConcat(c, b, l, lt, r, rt)
	case ast.Sub:
		return b.NewSub(l, r), b
	case ast.Mul:
		return b.NewMul(l, r), b
	case ast.Div:
		return b.NewSDiv(l, r), b
	case ast.Mod:
		return b.NewSRem(l, r), b
	case ast.Lt:
		return b.NewICmp(enum.IPredSLT, l, r), b
	case ast.Gt:
		return b.NewICmp(enum.IPredSGT, l, r), b
	case ast.Le:
		return b.NewICmp(enum.IPredSLE, l, r), b
	case ast.Ge:
		return b.NewICmp(enum.IPredSGE, l, r), b
	case ast.Eq:
		return emitEquals(c, b, l, r, lt)
	case ast.Ne:
		eqv, b := emitEquals(c, b, l, r, lt)
		return b.NewXor(eqv, constant.True), b
	default:
		panic(diag.Internalf(bin.Pos(), "codegen: unhandled binary operator %v", bin.Op))
	}
}

// emitShortCircuit implements && and || with real control flow rather
// than a bitwise and/or, since spec.md §4.6 guarantees the right
// operand is never evaluated once the left one decides the result.
func emitShortCircuit(c *ctx, bin *ast.Binary, b *ir.Block) (value.Value, *ir.Block) {
	lVal, b := emitExpr(c, bin.Left, b)
	fn := b.Parent

	rhsBlk := fn.NewBlock("logic.rhs")
	mergeBlk := fn.NewBlock("logic.merge")
	shortCircuitBlk := b
	if bin.Op == ast.And {
		b.NewCondBr(lVal, rhsBlk, mergeBlk)
	} else {
		b.NewCondBr(lVal, mergeBlk, rhsBlk)
	}

	rVal, rhsEnd := emitExpr(c, bin.Right, rhsBlk)
	rhsEnd.NewBr(mergeBlk)

	phi := mergeBlk.NewPhi(ir.NewIncoming(lVal, shortCircuitBlk), ir.NewIncoming(rVal, rhsEnd))
	return phi, mergeBlk
}

func emitEquals(c *ctx, b *ir.Block, l, r value.Value, t ast.Type) (value.Value, *ir.Block) {
	switch v := t.(type) {
	case ast.Primitive:
		if v.Kind == ast.String {
			return emitStringEquals(c, b, l, r)
		}
		return b.NewICmp(enum.IPredEQ, l, r), b
	case ast.Function:
		lf := b.NewExtractValue(l, 0)
		le := b.NewExtractValue(l, 1)
		rf := b.NewExtractValue(r, 0)
		re := b.NewExtractValue(r, 1)
		fnEq := b.NewICmp(enum.IPredEQ, lf, rf)
		envEq := b.NewICmp(enum.IPredEQ, le, re)
		return b.NewAnd(fnEq, envEq), b
	default:
		panic(diag.Internalf(token.Position{}, "codegen: unhandled equality operand type %s", t))
	}
}

func emitStringEquals(c *ctx, b *ir.Block, l, r value.Value) (value.Value, *ir.Block) {
	lLenPtr := b.NewGetElementPtr(stringStruct, l, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	lLen := b.NewLoad(types.I64, lLenPtr)
	rLenPtr := b.NewGetElementPtr(stringStruct, r, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	rLen := b.NewLoad(types.I64, rLenPtr)
	lenEq := b.NewICmp(enum.IPredEQ, lLen, rLen)

	fn := b.Parent
	cmpBlk := fn.NewBlock("streq.cmp")
	mergeBlk := fn.NewBlock("streq.merge")
	b.NewCondBr(lenEq, cmpBlk, mergeBlk)

	lDataPtr := cmpBlk.NewGetElementPtr(stringStruct, l, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	lData := cmpBlk.NewLoad(types.NewPointer(types.I8), lDataPtr)
	rDataPtr := cmpBlk.NewGetElementPtr(stringStruct, r, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	rData := cmpBlk.NewLoad(types.NewPointer(types.I8), rDataPtr)
	cmpRes := cmpBlk.NewCall(c.runtime.memcmp, lData, rData, lLen)
	isZero := cmpBlk.NewICmp(enum.IPredEQ, cmpRes, constant.NewInt(types.I32, 0))
	cmpBlk.NewBr(mergeBlk)

	phi := mergeBlk.NewPhi(ir.NewIncoming(constant.False, b), ir.NewIncoming(isZero, cmpBlk))
	return phi, mergeBlk
}

// emitStringConcat implements spec.md §4.6's "+ on any pair where at
// least one side is String yields String; the other side is accepted
// as-is" rule: the non-string operand is converted to its textual form
// first, then the two buffers are copied into a freshly malloc'd
// result.
func emitStringConcat(c *ctx, b *ir.Block, l value.Value, lt ast.Type, r value.Value, rt ast.Type) (value.Value, *ir.Block) {
	lStr, b := c.toStringValue(l, lt, b)
	rStr, b := c.toStringValue(r, rt, b)

	lLenPtr := b.NewGetElementPtr(stringStruct, lStr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	lLen := b.NewLoad(types.I64, lLenPtr)
	rLenPtr := b.NewGetElementPtr(stringStruct, rStr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	rLen := b.NewLoad(types.I64, rLenPtr)
	totalLen := b.NewAdd(lLen, rLen)

	newBuf := b.NewCall(c.runtime.malloc, totalLen)
	lDataPtr := b.NewGetElementPtr(stringStruct, lStr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	lData := b.NewLoad(types.NewPointer(types.I8), lDataPtr)
	rDataPtr := b.NewGetElementPtr(stringStruct, rStr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	rData := b.NewLoad(types.NewPointer(types.I8), rDataPtr)

	b.NewCall(c.runtime.memcpy, newBuf, lData, lLen)
	destOffset := b.NewGetElementPtr(types.I8, newBuf, lLen)
	b.NewCall(c.runtime.memcpy, destOffset, rData, rLen)

	resultRaw := b.NewCall(c.runtime.malloc, constant.NewInt(types.I64, 16))
	resultPtr := b.NewBitCast(resultRaw, types.NewPointer(stringStruct))
	lenField := b.NewGetElementPtr(stringStruct, resultPtr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	b.NewStore(totalLen, lenField)
	dataField := b.NewGetElementPtr(stringStruct, resultPtr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	b.NewStore(newBuf, dataField)

	return resultPtr, b
}

// toStringValue converts v of type t into a stringStruct pointer.
// Int goes through the toString builtin; Bool through a select between
// two interned literals. Any other operand (a Function value, or a Void
// call result, both legal per the permissive Add rule above) renders
// as the fixed placeholder "<function>".
func (c *ctx) toStringValue(v value.Value, t ast.Type, b *ir.Block) (value.Value, *ir.Block) {
	switch p := t.(type) {
	case ast.Primitive:
		switch p.Kind {
		case ast.String:
			return v, b
		case ast.Int:
			toStr, _ := c.lookup("toString")
			return b.NewCall(toStr.fn, constant.NewNull(types.NewPointer(types.I8)), v), b
		case ast.Bool:
			trueStr := c.stringConstant("true")
			falseStr := c.stringConstant("false")
			return b.NewSelect(v, trueStr, falseStr), b
		}
	}
	return c.stringConstant("<function>"), b
}

func isIntType(t ast.Type) bool {
	p, ok := t.(ast.Primitive)
	return ok && p.Kind == ast.Int
}

func emitUnary(c *ctx, u *ast.Unary, b *ir.Block) (value.Value, *ir.Block) {
	operand, b := emitExpr(c, u.Operand, b)
	switch u.Op {
	case ast.Negate:
		return b.NewSub(constant.NewInt(types.I32, 0), operand), b
	case ast.Not:
		return b.NewXor(operand, constant.True), b
	default:
		panic(diag.Internalf(u.Pos(), "codegen: unhandled unary operator %v", u.Op))
	}
}
