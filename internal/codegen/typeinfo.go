package codegen

import (
	"bytes"
	"encoding/json"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"

	"github.com/ReinoutWW/gplambda/internal/ast"
)

// moduleTypeInfo mirrors tawago's typeinfo.go: a JSON side-channel
// embedded as a module constant, giving a downstream linker or FFI
// consumer each top-level function's GP-λ signature without needing to
// re-parse the source (SPEC_FULL.md's DOMAIN STACK section).
type moduleTypeInfo struct {
	Functions map[string]string `json:"functions"`
}

// attachTypeInfo embeds a __gplambda_typeinfo global holding the
// JSON-encoded signature of every top-level function, immutable like
// tawago's __tawa_types global.
func attachTypeInfo(m *ir.Module, decls []*ast.FuncDecl) {
	info := moduleTypeInfo{Functions: make(map[string]string, len(decls))}
	for _, fn := range decls {
		retType := fn.ReturnType
		if retType == nil {
			retType = ast.VoidType
		}
		paramTypes := make([]ast.Type, len(fn.Params))
		for i, p := range fn.Params {
			paramTypes[i] = p.Type
		}
		sig := ast.Function{Params: paramTypes, Return: retType}
		info.Functions[fn.Name] = sig.String()
	}

	// HTML escaping is off so each Func<...> signature is embedded as
	// written, instead of with '<' and '>' replaced by JSON unicode
	// escapes.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(info); err != nil {
		panic(err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	g := m.NewGlobalDef("__gplambda_typeinfo", constant.NewCharArray(append(data, 0)))
	g.Immutable = true
}
