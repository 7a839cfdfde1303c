package codegen

import (
	"github.com/llir/llvm/ir/types"

	"github.com/ReinoutWW/gplambda/internal/ast"
)

// stringStruct is GP-λ's String representation: a length-prefixed
// byte buffer, the same shape as tawago's String type in
// tawa_types.go/builtins.go ({ i64 length, i8* data }). GP-λ values of
// type String are a pointer to one of these.
var stringStruct = types.NewStruct(types.I64, types.NewPointer(types.I8))

// closureStruct is the two-word closure value every GP-λ function
// value — top-level function or lambda — is represented as, because
// LLVM IR itself has no closures (spec.md §9, SPEC_FULL.md's DOMAIN
// STACK section). fnptr's real signature is always
// `R (i8* env, P1, ..., Pn)`; env is null for a capture-free function.
var closureStruct = types.NewStruct(types.NewPointer(types.I8), types.NewPointer(types.I8))

// mapType converts a GP-λ type (spec.md §3) to its LLVM IR
// representation (spec.md §4.6's type-mapping table).
func mapType(t ast.Type) types.Type {
	switch v := t.(type) {
	case ast.Primitive:
		switch v.Kind {
		case ast.Int:
			return types.I32
		case ast.String:
			return types.NewPointer(stringStruct)
		case ast.Bool:
			return types.I1
		case ast.Void:
			return types.Void
		}
	case ast.Function:
		return closureStruct
	}
	panic("codegen: unmapped type " + t.String())
}

// rawFuncType builds the real (non-closure) LLVM function type behind
// a GP-λ function value: the captured-environment pointer is always
// parameter zero.
func rawFuncType(sig ast.Function) *types.FuncType {
	params := make([]types.Type, 0, len(sig.Params)+1)
	params = append(params, types.NewPointer(types.I8))
	for _, p := range sig.Params {
		params = append(params, mapType(p))
	}
	ret := types.Type(types.Void)
	if sig.Return != nil {
		ret = mapType(sig.Return)
	}
	return types.NewFunc(ret, params...)
}

// isVoidType reports whether t is the Void primitive.
func isVoidType(t ast.Type) bool {
	p, ok := t.(ast.Primitive)
	return ok && p.Kind == ast.Void
}
