package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

// runtimeFuncs are the handful of portable C library symbols GP-λ's
// built-ins are defined in terms of. tawago.addPrint instead emits a
// raw Linux/x86-64 `syscall` via inline asm — a shortcut that only
// runs on one platform. GP-λ declares these as ordinary extern C
// functions instead (spec.md's DOMAIN STACK note), so the emitted
// module links against whatever libc the external host toolchain
// (spec.md §6) provides.
type runtimeFuncs struct {
	putchar *ir.Func
	getchar *ir.Func
	malloc  *ir.Func
	realloc *ir.Func
	memcpy  *ir.Func
	memcmp  *ir.Func
	trap    *ir.Func
}

// declareRuntime declares the extern functions with no bodies
// attached, which is how llir/llvm represents a function declaration
// (as opposed to a definition) — the same technique tawago uses for
// every function it builds with m.NewFunc, just without ever adding a
// block.
func declareRuntime(m *ir.Module) runtimeFuncs {
	return runtimeFuncs{
		putchar: m.NewFunc("putchar", types.I32, ir.NewParam("c", types.I32)),
		getchar: m.NewFunc("getchar", types.I32),
		malloc:  m.NewFunc("malloc", types.NewPointer(types.I8), ir.NewParam("size", types.I64)),
		realloc: m.NewFunc("realloc", types.NewPointer(types.I8), ir.NewParam("ptr", types.NewPointer(types.I8)), ir.NewParam("size", types.I64)),
		memcpy:  m.NewFunc("memcpy", types.NewPointer(types.I8), ir.NewParam("dst", types.NewPointer(types.I8)), ir.NewParam("src", types.NewPointer(types.I8)), ir.NewParam("n", types.I64)),
		memcmp:  m.NewFunc("memcmp", types.I32, ir.NewParam("a", types.NewPointer(types.I8)), ir.NewParam("b", types.NewPointer(types.I8)), ir.NewParam("n", types.I64)),
		trap:    m.NewFunc("llvm.trap", types.Void),
	}
}

// defineBuiltins emits concrete bodies for println, readLine and
// toString (spec.md §4.6.1), the GP-λ analog of tawago.addBuiltins.
// Unlike addBuiltins' single print function, all three of GP-λ's
// built-ins get real bodies here because spec.md §3 pre-seeds all
// three into the global scope.
func defineBuiltins(m *ir.Module, rt runtimeFuncs) map[string]*ir.Func {
	return map[string]*ir.Func{
		"println":  defineNewline(m, rt),
		"readLine": defineReadLine(m, rt),
		"toString": defineToString(m, rt),
	}
}

func defineNewline(m *ir.Module, rt runtimeFuncs) *ir.Func {
	// The leading env parameter is unused but keeps println's raw
	// signature consistent with every other GP-λ function value's
	// R(i8* env, P1, ..., Pn) shape (types.go), so it can be wrapped
	// into a closure and called indirectly like any other.
	fn := m.NewFunc("println", types.Void, ir.NewParam("env", types.NewPointer(types.I8)), ir.NewParam("s", types.NewPointer(stringStruct)))
	entry := fn.NewBlock("entry")

	lenPtr := entry.NewGetElementPtr(stringStruct, fn.Params[1], constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	length := entry.NewLoad(types.I64, lenPtr)
	dataPtrPtr := entry.NewGetElementPtr(stringStruct, fn.Params[1], constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	data := entry.NewLoad(types.NewPointer(types.I8), dataPtrPtr)

	idxAlloca := entry.NewAlloca(types.I64)
	entry.NewStore(constant.NewInt(types.I64, 0), idxAlloca)

	loopCond := fn.NewBlock("loop.cond")
	loopBody := fn.NewBlock("loop.body")
	loopAfter := fn.NewBlock("loop.after")
	entry.NewBr(loopCond)

	idx := loopCond.NewLoad(types.I64, idxAlloca)
	cmp := loopCond.NewICmp(enum.IPredSLT, idx, length)
	loopCond.NewCondBr(cmp, loopBody, loopAfter)

	charPtr := loopBody.NewGetElementPtr(types.I8, data, idx)
	charVal := loopBody.NewLoad(types.I8, charPtr)
	charExt := loopBody.NewZExt(charVal, types.I32)
	loopBody.NewCall(rt.putchar, charExt)
	next := loopBody.NewAdd(idx, constant.NewInt(types.I64, 1))
	loopBody.NewStore(next, idxAlloca)
	loopBody.NewBr(loopCond)

	loopAfter.NewCall(rt.putchar, constant.NewInt(types.I32, 10))
	loopAfter.NewRet(nil)

	return fn
}

func defineReadLine(m *ir.Module, rt runtimeFuncs) *ir.Func {
	fn := m.NewFunc("readLine", types.NewPointer(stringStruct), ir.NewParam("env", types.NewPointer(types.I8)))
	entry := fn.NewBlock("entry")

	capAlloca := entry.NewAlloca(types.I64)
	entry.NewStore(constant.NewInt(types.I64, 16), capAlloca)
	lenAlloca := entry.NewAlloca(types.I64)
	entry.NewStore(constant.NewInt(types.I64, 0), lenAlloca)
	bufAlloca := entry.NewAlloca(types.NewPointer(types.I8))
	initBuf := entry.NewCall(rt.malloc, constant.NewInt(types.I64, 16))
	entry.NewStore(initBuf, bufAlloca)

	loopCond := fn.NewBlock("loop.cond")
	loopBody := fn.NewBlock("loop.body")
	growBlk := fn.NewBlock("loop.grow")
	storeBlk := fn.NewBlock("loop.store")
	doneBlk := fn.NewBlock("done")
	entry.NewBr(loopCond)

	c := loopCond.NewCall(rt.getchar)
	isEOF := loopCond.NewICmp(enum.IPredEQ, c, constant.NewInt(types.I32, -1))
	isNL := loopCond.NewICmp(enum.IPredEQ, c, constant.NewInt(types.I32, 10))
	stop := loopCond.NewOr(isEOF, isNL)
	loopCond.NewCondBr(stop, doneBlk, loopBody)

	lenv := loopBody.NewLoad(types.I64, lenAlloca)
	capv := loopBody.NewLoad(types.I64, capAlloca)
	needsGrow := loopBody.NewICmp(enum.IPredSGE, lenv, capv)
	loopBody.NewCondBr(needsGrow, growBlk, storeBlk)

	newCap := growBlk.NewMul(capv, constant.NewInt(types.I64, 2))
	oldBuf := growBlk.NewLoad(types.NewPointer(types.I8), bufAlloca)
	newBuf := growBlk.NewCall(rt.realloc, oldBuf, newCap)
	growBlk.NewStore(newBuf, bufAlloca)
	growBlk.NewStore(newCap, capAlloca)
	growBlk.NewBr(storeBlk)

	buf := storeBlk.NewLoad(types.NewPointer(types.I8), bufAlloca)
	lenv2 := storeBlk.NewLoad(types.I64, lenAlloca)
	slot := storeBlk.NewGetElementPtr(types.I8, buf, lenv2)
	byteVal := storeBlk.NewTrunc(c, types.I8)
	storeBlk.NewStore(byteVal, slot)
	newLen := storeBlk.NewAdd(lenv2, constant.NewInt(types.I64, 1))
	storeBlk.NewStore(newLen, lenAlloca)
	storeBlk.NewBr(loopCond)

	resultRaw := doneBlk.NewCall(rt.malloc, constant.NewInt(types.I64, 16))
	resultPtr := doneBlk.NewBitCast(resultRaw, types.NewPointer(stringStruct))
	finalLen := doneBlk.NewLoad(types.I64, lenAlloca)
	lenField := doneBlk.NewGetElementPtr(stringStruct, resultPtr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	doneBlk.NewStore(finalLen, lenField)
	finalBuf := doneBlk.NewLoad(types.NewPointer(types.I8), bufAlloca)
	dataField := doneBlk.NewGetElementPtr(stringStruct, resultPtr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	doneBlk.NewStore(finalBuf, dataField)
	doneBlk.NewRet(resultPtr)

	return fn
}

// defineToString hand-extracts decimal digits rather than calling a
// variadic C formatting function; see DESIGN.md for why snprintf was
// not wired in here.
func defineToString(m *ir.Module, rt runtimeFuncs) *ir.Func {
	fn := m.NewFunc("toString", types.NewPointer(stringStruct), ir.NewParam("env", types.NewPointer(types.I8)), ir.NewParam("v", types.I32))
	entry := fn.NewBlock("entry")

	buf := entry.NewCall(rt.malloc, constant.NewInt(types.I64, 12))
	isNeg := entry.NewICmp(enum.IPredSLT, fn.Params[1], constant.NewInt(types.I32, 0))

	negBlk := fn.NewBlock("neg")
	absMerge := fn.NewBlock("abs.merge")
	entry.NewCondBr(isNeg, negBlk, absMerge)

	negVal := negBlk.NewSub(constant.NewInt(types.I32, 0), fn.Params[1])
	negBlk.NewBr(absMerge)

	absVal := absMerge.NewPhi(ir.NewIncoming(negVal, negBlk), ir.NewIncoming(fn.Params[1], entry))
	absVal64 := absMerge.NewZExt(absVal, types.I64)

	posAlloca := absMerge.NewAlloca(types.I64)
	absMerge.NewStore(constant.NewInt(types.I64, 11), posAlloca)
	valAlloca := absMerge.NewAlloca(types.I64)
	absMerge.NewStore(absVal64, valAlloca)

	digitLoop := fn.NewBlock("digit.loop")
	absMerge.NewBr(digitLoop)

	v := digitLoop.NewLoad(types.I64, valAlloca)
	pos := digitLoop.NewLoad(types.I64, posAlloca)
	rem := digitLoop.NewURem(v, constant.NewInt(types.I64, 10))
	digitChar := digitLoop.NewAdd(digitLoop.NewTrunc(rem, types.I8), constant.NewInt(types.I8, 48))
	slot := digitLoop.NewGetElementPtr(types.I8, buf, pos)
	digitLoop.NewStore(digitChar, slot)
	newPos := digitLoop.NewSub(pos, constant.NewInt(types.I64, 1))
	digitLoop.NewStore(newPos, posAlloca)
	newV := digitLoop.NewUDiv(v, constant.NewInt(types.I64, 10))
	digitLoop.NewStore(newV, valAlloca)
	cont := digitLoop.NewICmp(enum.IPredNE, newV, constant.NewInt(types.I64, 0))

	signBlk := fn.NewBlock("sign")
	digitLoop.NewCondBr(cont, digitLoop, signBlk)

	negSignBlk := fn.NewBlock("sign.neg")
	doneBlk := fn.NewBlock("done")
	signBlk.NewCondBr(isNeg, negSignBlk, doneBlk)

	pos2 := negSignBlk.NewLoad(types.I64, posAlloca)
	slot2 := negSignBlk.NewGetElementPtr(types.I8, buf, pos2)
	negSignBlk.NewStore(constant.NewInt(types.I8, 45), slot2)
	newPos2 := negSignBlk.NewSub(pos2, constant.NewInt(types.I64, 1))
	negSignBlk.NewStore(newPos2, posAlloca)
	negSignBlk.NewBr(doneBlk)

	finalPos := doneBlk.NewLoad(types.I64, posAlloca)
	startIdx := doneBlk.NewAdd(finalPos, constant.NewInt(types.I64, 1))
	totalLen := doneBlk.NewSub(constant.NewInt(types.I64, 11), finalPos)
	startPtr := doneBlk.NewGetElementPtr(types.I8, buf, startIdx)

	resultRaw := doneBlk.NewCall(rt.malloc, constant.NewInt(types.I64, 16))
	resultPtr := doneBlk.NewBitCast(resultRaw, types.NewPointer(stringStruct))
	lenField := doneBlk.NewGetElementPtr(stringStruct, resultPtr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	doneBlk.NewStore(totalLen, lenField)
	dataField := doneBlk.NewGetElementPtr(stringStruct, resultPtr, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	doneBlk.NewStore(startPtr, dataField)
	doneBlk.NewRet(resultPtr)

	return fn
}
