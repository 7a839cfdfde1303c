package sema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinoutWW/gplambda/internal/lexer"
	"github.com/ReinoutWW/gplambda/internal/parser"
)

func analyze(t *testing.T, src string) (semanticErrs, typeErrs []string) {
	t.Helper()
	prog, parseErrs := parser.Parse(lexer.NewLexer(strings.NewReader(src)))
	require.Empty(t, parseErrs, "unexpected parse errors for %q", src)
	sem, typ, _ := Analyze(prog)
	for _, d := range sem {
		semanticErrs = append(semanticErrs, d.Message)
	}
	for _, d := range typ {
		typeErrs = append(typeErrs, d.Message)
	}
	return
}

func TestAnalyzeAcceptsWellTypedProgram(t *testing.T) {
	sem, typ := analyze(t, `
		func add(x: Int, y: Int) -> Int { return x + y; }
		func main() { println(toString(add(15, 25))); }
	`)
	assert.Empty(t, sem)
	assert.Empty(t, typ)
}

func TestAnalyzeUndefinedIdentifierIsSemanticError(t *testing.T) {
	sem, typ := analyze(t, `func f() { return y; }`)
	assert.Empty(t, typ)
	require.Len(t, sem, 1)
	assert.Contains(t, sem[0], "'y' is not defined")
}

func TestAnalyzeUseBeforeInitializationIsSemanticError(t *testing.T) {
	sem, _ := analyze(t, `func f() -> Int { let x: Int; return x; }`)
	require.Len(t, sem, 1)
	assert.Contains(t, sem[0], "may not be initialized")
}

func TestAnalyzeRedefinitionInSameScopeIsSemanticError(t *testing.T) {
	sem, _ := analyze(t, `func f() { let x = 1; let x = 2; }`)
	require.Len(t, sem, 1)
	assert.Contains(t, sem[0], "already defined")
}

func TestAnalyzeFunctionRedefinitionAtGlobalScope(t *testing.T) {
	sem, _ := analyze(t, `
		func f() -> Int { return 1; }
		func f() -> Int { return 2; }
	`)
	require.Len(t, sem, 1)
	assert.Contains(t, sem[0], "Function 'f' is already defined")
}

func TestAnalyzeShadowingDoesNotLeakOutOfBlock(t *testing.T) {
	sem, typ := analyze(t, `
		func f() -> Int {
			let x: Int = 1;
			{
				let x: String = "shadow";
			}
			return x;
		}
	`)
	assert.Empty(t, sem)
	assert.Empty(t, typ)
}

func TestAnalyzeVarDeclWithoutTypeOrInitIsSemanticError(t *testing.T) {
	sem, _ := analyze(t, `func f() { let x; }`)
	require.Len(t, sem, 1)
	assert.Contains(t, sem[0], "'x' must have a type annotation or initializer")
}

func TestAnalyzeVarDeclWithoutTypeOrInitMergesWithOtherErrors(t *testing.T) {
	// The missing-type-annotation-or-initializer error must accumulate
	// alongside other semantic/type errors in the same file rather than
	// short-circuit the analyzer.
	sem, typ := analyze(t, `
		func f() {
			let x;
			let y: Int = "oops";
			z;
		}
	`)
	require.Len(t, sem, 2)
	require.Len(t, typ, 1)
}

func TestAnalyzeDeclaredVsInitializerTypeMismatch(t *testing.T) {
	_, typ := analyze(t, `func f() { let x: Int = "hello"; }`)
	require.Len(t, typ, 1)
	assert.Contains(t, typ[0], "Cannot initialize variable 'x' of type Int with value of type String")
}

func TestAnalyzeMissingReturnInNonVoidFunction(t *testing.T) {
	_, typ := analyze(t, `
		func getValue(c: Bool) -> Int {
			if (c) { return 5; }
		}
	`)
	require.Len(t, typ, 1)
	assert.Contains(t, typ[0], "Function 'getValue' must return a value of type Int")
}

func TestAnalyzeIfElseBothReturningSatisfiesReturnCheck(t *testing.T) {
	_, typ := analyze(t, `
		func getValue(c: Bool) -> Int {
			if (c) { return 5; } else { return 6; }
		}
	`)
	assert.Empty(t, typ)
}

func TestAnalyzeConditionMustBeBool(t *testing.T) {
	_, typ := analyze(t, `func f() { if (1) { } }`)
	require.Len(t, typ, 1)
	assert.Contains(t, typ[0], "condition must have type Bool")
}

func TestAnalyzeArgumentCountMismatch(t *testing.T) {
	_, typ := analyze(t, `
		func add(x: Int, y: Int) -> Int { return x + y; }
		func main() { add(1); }
	`)
	require.Len(t, typ, 1)
	assert.Contains(t, typ[0], "expects 2 argument(s), got 1")
}

func TestAnalyzeArgumentTypeMismatch(t *testing.T) {
	_, typ := analyze(t, `
		func add(x: Int, y: Int) -> Int { return x + y; }
		func main() { add(1, "two"); }
	`)
	require.Len(t, typ, 1)
	assert.Contains(t, typ[0], "Argument 2 of 'add'")
}

func TestAnalyzeCallingNonFunctionIsSemanticError(t *testing.T) {
	sem, _ := analyze(t, `func f() { let x = 1; x(); }`)
	require.Len(t, sem, 1)
	assert.Contains(t, sem[0], "'x' is not a function")
}

func TestAnalyzeAssignToNonVariableIsSemanticError(t *testing.T) {
	sem, _ := analyze(t, `
		func g() { }
		func f() { g = 1; }
	`)
	require.Len(t, sem, 1)
	assert.Contains(t, sem[0], "'g' is not a variable")
}

func TestAnalyzeStringConcatenationWithInt(t *testing.T) {
	sem, typ := analyze(t, `func f() -> String { return "count: " + 3; }`)
	assert.Empty(t, sem)
	assert.Empty(t, typ)
}

func TestAnalyzeStringComparisonOperatorsRejected(t *testing.T) {
	_, typ := analyze(t, `func f() -> Bool { return "a" < "b"; }`)
	require.Len(t, typ, 1)
	assert.Contains(t, typ[0], "requires Int operands")
}

func TestAnalyzeStringEqualityAccepted(t *testing.T) {
	_, typ := analyze(t, `func f() -> Bool { return "a" == "b"; }`)
	assert.Empty(t, typ)
}

func TestAnalyzeLambdaInfersFunctionType(t *testing.T) {
	sem, typ := analyze(t, `
		func main() {
			let d = (x: Int, y: Int) => x + y;
			println(toString(d(7, 3)));
		}
	`)
	assert.Empty(t, sem)
	assert.Empty(t, typ)
}

func TestAnalyzeFunctionTypeEqualityIsStructural(t *testing.T) {
	_, typ := analyze(t, `
		func apply(f: Func<Int, Int>, v: Int) -> Int { return f(v); }
		func main() {
			let inc = (x: Int) => x + 1;
			println(toString(apply(inc, 1)));
		}
	`)
	assert.Empty(t, typ)
}

func TestAnalyzeReturnOutsideFunctionIsTypeError(t *testing.T) {
	// A bare top-level return statement is itself analyzed as a
	// statement outside any funcContext.
	prog, parseErrs := parser.Parse(lexer.NewLexer(strings.NewReader("return;")))
	require.Empty(t, parseErrs)
	_, typ, _ := Analyze(prog)
	require.Len(t, typ, 1)
	assert.Contains(t, typ[0].Message, "'return' used outside of a function")
}
