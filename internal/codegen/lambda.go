package codegen

import (
	"sort"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ReinoutWW/gplambda/internal/ast"
)

// capture is a free variable a lambda closes over: the name it is
// known by inside the lambda body, and the binding it resolved to in
// the enclosing scope at the point the lambda literal is evaluated.
type capture struct {
	name string
	b    binding
}

// emitLambda hoists l to a uniquely-named top-level function (spec.md
// §9: "LLVM IR has no native closures") and returns a closure value
// pointing at it. Free variables are captured by value into a
// malloc'd environment struct, following the {i8* fnptr, i8* env}
// convention codegen/types.go defines; the real function signature is
// `R (i8* env, P1, ..., Pn)`.
func emitLambda(c *ctx, l *ast.Lambda, b *ir.Block) (value.Value, *ir.Block) {
	sig := l.ResolvedType().(ast.Function)
	captures := collectCaptures(c, l)

	var envPtr value.Value = constant.NewNull(types.NewPointer(types.I8))
	var envStructType *types.StructType
	if len(captures) > 0 {
		fieldTypes := make([]types.Type, len(captures))
		for i, cap := range captures {
			fieldTypes[i] = mapType(cap.b.typ)
		}
		envStructType = types.NewStruct(fieldTypes...)

		envRaw := b.NewCall(c.runtime.malloc, sizeOfConst(envStructType))
		envTyped := b.NewBitCast(envRaw, types.NewPointer(envStructType))
		for i, cap := range captures {
			fieldPtr := b.NewGetElementPtr(envStructType, envTyped, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(i)))
			val := b.NewLoad(mapType(cap.b.typ), cap.b.ptr)
			b.NewStore(val, fieldPtr)
		}
		envPtr = b.NewBitCast(envTyped, types.NewPointer(types.I8))
	}

	fn := buildLambdaFunc(c, l, sig, captures, envStructType)

	fnPtr := b.NewBitCast(fn, types.NewPointer(types.I8))
	undef := constant.NewUndef(closureStruct)
	withFn := b.NewInsertValue(undef, fnPtr, 0)
	withEnv := b.NewInsertValue(withFn, envPtr, 1)
	return withEnv, b
}

// collectCaptures walks l's body for identifiers that resolve (via
// c.lookup, evaluated in the scope the lambda literal appears in) to a
// non-function local variable, i.e. one that needs an environment slot
// because it will not exist as a named symbol inside the hoisted
// function. Shadowing is handled conservatively: a name the lambda
// re-declares internally may still end up captured, which is harmless
// because the inner declaration's binding always shadows the captured
// one during the body's own emission. Captures are returned sorted by
// name, so the environment struct's field order is the same on every
// compile.
func collectCaptures(c *ctx, l *ast.Lambda) []capture {
	names := make(map[string]bool)
	collectIdentNames(l.Body, names)
	for _, p := range l.Params {
		delete(names, p.Name)
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var caps []capture
	for _, name := range sorted {
		bnd, ok := c.lookup(name)
		if ok && bnd.ptr != nil {
			caps = append(caps, capture{name: name, b: bnd})
		}
	}
	return caps
}

func collectIdentNames(body ast.LambdaBody, out map[string]bool) {
	if body.Expr != nil {
		collectExprIdents(body.Expr, out)
	}
	if body.Block != nil {
		collectBlockIdents(body.Block, out)
	}
}

func collectBlockIdents(b *ast.Block, out map[string]bool) {
	for _, s := range b.Stmts {
		collectStmtIdents(s, out)
	}
}

func collectStmtIdents(s ast.Stmt, out map[string]bool) {
	switch v := s.(type) {
	case *ast.Block:
		collectBlockIdents(v, out)
	case *ast.VarDecl:
		if v.Init != nil {
			collectExprIdents(v.Init, out)
		}
	case *ast.Assign:
		out[v.Name] = true
		collectExprIdents(v.Value, out)
	case *ast.If:
		collectExprIdents(v.Cond, out)
		collectBlockIdents(v.Then, out)
		if v.Else != nil {
			collectBlockIdents(v.Else, out)
		}
	case *ast.Return:
		if v.Value != nil {
			collectExprIdents(v.Value, out)
		}
	case *ast.Assert:
		collectExprIdents(v.Cond, out)
	case *ast.ExprStmt:
		collectExprIdents(v.X, out)
	}
}

func collectExprIdents(e ast.Expr, out map[string]bool) {
	switch v := e.(type) {
	case *ast.Ident:
		out[v.Name] = true
	case *ast.Lambda:
		collectIdentNames(v.Body, out)
	case *ast.Call:
		out[v.Callee] = true
		for _, a := range v.Args {
			collectExprIdents(a, out)
		}
	case *ast.Binary:
		collectExprIdents(v.Left, out)
		collectExprIdents(v.Right, out)
	case *ast.Unary:
		collectExprIdents(v.Operand, out)
	}
}

func buildLambdaFunc(c *ctx, l *ast.Lambda, sig ast.Function, captures []capture, envStructType *types.StructType) *ir.Func {
	name := c.nextLambdaName()
	retType := sig.Return
	if retType == nil {
		retType = ast.VoidType
	}

	llvmParams := make([]*ir.Param, 0, len(l.Params)+1)
	llvmParams = append(llvmParams, ir.NewParam("env", types.NewPointer(types.I8)))
	for _, p := range l.Params {
		llvmParams = append(llvmParams, ir.NewParam(p.Name, mapType(p.Type)))
	}
	fn := c.module.NewFunc(name, mapType(retType), llvmParams...)
	entry := fn.NewBlock("entry")

	c.pushScope()
	if len(captures) > 0 {
		envTyped := entry.NewBitCast(fn.Params[0], types.NewPointer(envStructType))
		for i, cap := range captures {
			fieldPtr := entry.NewGetElementPtr(envStructType, envTyped, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(i)))
			local := entry.NewAlloca(mapType(cap.b.typ))
			entry.NewStore(entry.NewLoad(mapType(cap.b.typ), fieldPtr), local)
			c.define(cap.name, binding{ptr: local, typ: cap.b.typ})
		}
	}
	for i, p := range l.Params {
		ptr := entry.NewAlloca(mapType(p.Type))
		entry.NewStore(fn.Params[i+1], ptr)
		c.define(p.Name, binding{ptr: ptr, typ: p.Type})
	}

	c.retStack = append(c.retStack, retType)
	var end *ir.Block
	var terminated bool
	switch {
	case l.Body.Expr != nil:
		var val value.Value
		val, end = emitExpr(c, l.Body.Expr, entry)
		if isVoidType(retType) {
			end.NewRet(nil)
		} else {
			end.NewRet(val)
		}
		terminated = true
	case l.Body.Block != nil:
		end, terminated = emitBlock(c, l.Body.Block, entry)
	default:
		end = entry
	}
	c.retStack = c.retStack[:len(c.retStack)-1]
	c.popScope()

	if !terminated {
		if isVoidType(retType) {
			end.NewRet(nil)
		} else {
			end.NewRet(zeroValue(retType))
		}
	}

	return fn
}
