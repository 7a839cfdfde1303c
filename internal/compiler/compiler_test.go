package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinoutWW/gplambda/internal/diag"
)

func writeSource(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCompileHelloWorldWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "hello.gpl", `func main() { println("Hello, World!"); }`)

	result := Compile(Options{InputPath: src})
	require.Empty(t, result.Errors)
	assert.Equal(t, 0, result.ExitCode())
	assert.FileExists(t, result.OutputPath)
	assert.Equal(t, ".ll", filepath.Ext(result.OutputPath))
}

func TestCompileDeterministicOutputAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "hello.gpl", `func main() { println("Hello, World!"); }`)

	r1 := Compile(Options{InputPath: src, OutputPath: filepath.Join(dir, "out1.ll")})
	require.Empty(t, r1.Errors)
	r2 := Compile(Options{InputPath: src, OutputPath: filepath.Join(dir, "out2.ll")})
	require.Empty(t, r2.Errors)

	b1, err := os.ReadFile(r1.OutputPath)
	require.NoError(t, err)
	b2, err := os.ReadFile(r2.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestCompileTypeErrorWritesNoOutputFile(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "bad.gpl", `func main() { let x: Int = "hello"; }`)

	result := Compile(Options{InputPath: src})
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, 1, result.ExitCode())
	assert.Contains(t, result.Errors.Error(), "Cannot initialize variable 'x' of type Int with value of type String")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".ll", filepath.Ext(e.Name()), "no output file should be written on a failed compile")
	}
}

func TestCompileSyntaxErrorShortCircuitsAnalysis(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "bad.gpl", `func main() { let x = ; }`)

	result := Compile(Options{InputPath: src})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, diag.Syntax, result.Errors[0].Category)
}

func TestCompileMissingInputFileIsReported(t *testing.T) {
	result := Compile(Options{InputPath: "/nonexistent/path/does/not/exist.gpl"})
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, 1, result.ExitCode())
}

func TestCompileOutputPathDefaultsBesideInput(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "prog.gpl", `func main() { }`)

	result := Compile(Options{InputPath: src})
	require.Empty(t, result.Errors)
	assert.Equal(t, filepath.Join(dir, "prog.ll"), result.OutputPath)
}
