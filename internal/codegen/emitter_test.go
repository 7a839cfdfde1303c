package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinoutWW/gplambda/internal/ast"
	"github.com/ReinoutWW/gplambda/internal/lexer"
	"github.com/ReinoutWW/gplambda/internal/parser"
	"github.com/ReinoutWW/gplambda/internal/sema"
)

func compileOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, parseErrs := parser.Parse(lexer.NewLexer(strings.NewReader(src)))
	require.Empty(t, parseErrs, "unexpected parse errors for %q", src)
	semErrs, typErrs, _ := sema.Analyze(prog)
	require.Empty(t, semErrs, "unexpected semantic errors for %q", src)
	require.Empty(t, typErrs, "unexpected type errors for %q", src)
	return prog
}

func TestEmitHelloWorldDefinesMainAndEntryShim(t *testing.T) {
	prog := compileOK(t, `func main() { println("Hello, World!"); }`)
	out := Emit(prog, "").String()
	assert.Contains(t, out, "define")
	assert.Contains(t, out, "@main(")
	assert.Contains(t, out, "@__gplambda_entry")
	assert.Contains(t, out, "@println(")
}

func TestEmitEmptyProgramHasNoUserFunctionsButKeepsBuiltins(t *testing.T) {
	prog := compileOK(t, ``)
	out := Emit(prog, "").String()
	assert.Contains(t, out, "@println(")
	assert.Contains(t, out, "@readLine(")
	assert.Contains(t, out, "@toString(")
	assert.NotContains(t, out, "__gplambda_entry")
}

func TestEmitProgramWithoutMainHasNoEntryShim(t *testing.T) {
	prog := compileOK(t, `func helper() -> Int { return 1; }`)
	out := Emit(prog, "").String()
	assert.Contains(t, out, "@helper(")
	assert.NotContains(t, out, "__gplambda_entry")
}

func TestEmitCallToEarlierDeclaredFunction(t *testing.T) {
	// The analyzer resolves top-level functions in source order, so
	// helper is declared before the main that calls it.
	prog := compileOK(t, `
		func helper() -> Int { return 42; }
		func main() { println(toString(helper())); }
	`)
	out := Emit(prog, "").String()
	assert.Contains(t, out, "@helper(")
	assert.Contains(t, out, "call")
}

func TestEmitAssertLowersToTrapNeverElided(t *testing.T) {
	prog := compileOK(t, `func main() { assert(1 == 1, "must hold"); }`)
	out := Emit(prog, "").String()
	assert.Contains(t, out, "llvm.trap")
}

func TestEmitLambdaWithCaptureHoistsTopLevelFunction(t *testing.T) {
	prog := compileOK(t, `
		func main() {
			let base = 10;
			let addBase = (x: Int) => x + base;
			println(toString(addBase(5)));
		}
	`)
	out := Emit(prog, "").String()
	assert.Contains(t, out, "__gplambda_lambda_1")
	assert.Contains(t, out, "malloc")
}

func TestEmitStringConcatenationUsesMemcpy(t *testing.T) {
	prog := compileOK(t, `func main() { println("n = " + toString(1)); }`)
	out := Emit(prog, "").String()
	assert.Contains(t, out, "@memcpy(")
}

func TestEmitDeterministicAcrossRepeatedCompiles(t *testing.T) {
	src := `func main() { println("same every time"); }`
	prog1 := compileOK(t, src)
	prog2 := compileOK(t, src)
	assert.Equal(t, Emit(prog1, "").String(), Emit(prog2, "").String())
}

func TestEmitTargetTripleIsStamped(t *testing.T) {
	prog := compileOK(t, `func main() { println("hi"); }`)
	out := Emit(prog, "x86_64-unknown-linux-gnu").String()
	assert.Contains(t, out, "x86_64-unknown-linux-gnu")
}

func TestEmitTypeInfoGlobalEmbedsSignatures(t *testing.T) {
	prog := compileOK(t, `func add(x: Int, y: Int) -> Int { return x + y; }`)
	out := Emit(prog, "").String()
	assert.Contains(t, out, "__gplambda_typeinfo")
	assert.Contains(t, out, "Func<Int, Int, Int>")
}
