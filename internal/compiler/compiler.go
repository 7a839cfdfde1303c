// Package compiler is GP-λ's driver (spec.md §4.7): it wires the
// lexer, parser, analyzer and emitter into the single sequential batch
// pipeline spec.md §5 describes, and owns the "write nothing unless
// everything succeeded" atomicity guarantee spec.md §7 requires. The
// stage-by-stage recover-on-diag.Diagnostic control flow follows
// internal/parser.Parse and, at a larger scale, tawago's build command
// in main.go.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/pkg/capnslog"

	"github.com/ReinoutWW/gplambda/internal/ast"
	"github.com/ReinoutWW/gplambda/internal/codegen"
	"github.com/ReinoutWW/gplambda/internal/config"
	"github.com/ReinoutWW/gplambda/internal/diag"
	"github.com/ReinoutWW/gplambda/internal/lexer"
	"github.com/ReinoutWW/gplambda/internal/parser"
	"github.com/ReinoutWW/gplambda/internal/sema"
	"github.com/ReinoutWW/gplambda/internal/token"
)

var log = capnslog.NewPackageLogger("github.com/ReinoutWW/gplambda", "gplc/compiler")

// zeroPos is used for diagnostics that occur before any token has been
// read (a missing input file) or that describe the process as a whole
// rather than a source location (an I/O failure while writing output).
var zeroPos = token.Position{Line: 1, Column: 0}

// OutputExtension is the emitted host-language source file's suffix
// (spec.md §6). LLVM textual IR, not tawago's raw ".ll"-via-clang
// pipeline's binary artifact — GP-λ's driver stops at emitting IR and
// leaves invoking clang to the external "host toolchain" collaborator
// spec.md §6 carves out of scope.
const OutputExtension = ".ll"

// Options mirrors the CLI surface spec.md §6 defines.
type Options struct {
	InputPath  string
	OutputPath string // if empty, derived from InputPath
	Verbose    bool
	Settings   config.Settings
}

// Result carries everything the driver's caller needs to decide the
// process exit code and print diagnostics (spec.md §4.7). Program and
// GlobalScope are only populated once parsing succeeds and analysis has
// run, whether or not analysis reported errors; they
// exist so a --verbose caller can repr.Println them, not for any use
// inside this package.
type Result struct {
	OutputPath  string
	Errors      diag.List
	Program     *ast.Program
	GlobalScope *sema.Table
}

// ExitCode reports the exit code spec.md §6 assigns: 0 on success, 1
// if any diagnostic was produced.
func (r Result) ExitCode() int {
	if len(r.Errors) > 0 {
		return 1
	}
	return 0
}

// Compile runs the full pipeline over opts.InputPath. It returns
// whatever diagnostics were produced by whichever stage stopped
// first — parse errors short-circuit analysis, and analysis errors
// (of either category) short-circuit emission, per spec.md §7's
// propagation rule.
func Compile(opts Options) Result {
	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = deriveOutputPath(opts.InputPath, opts.Settings)
	}

	src, err := os.Open(opts.InputPath)
	if err != nil {
		return Result{Errors: diag.List{diag.Syntaxf(zeroPos, "cannot open input file: %s", err)}}
	}
	defer src.Close()

	if opts.Verbose {
		fmt.Println("gplc: lexing", opts.InputPath)
	}
	l := lexer.NewLexer(src)

	if opts.Verbose {
		fmt.Println("gplc: parsing")
	}
	prog, parseErrs := parser.Parse(l)
	if parseErrs.HasErrors() {
		log.Debugf("parse failed with %d error(s)", len(parseErrs))
		return Result{Errors: parseErrs}
	}

	if opts.Verbose {
		fmt.Println("gplc: analyzing")
	}
	semanticErrs, typeErrs, globalScope := sema.Analyze(prog)
	all := append(diag.List{}, semanticErrs...)
	all = append(all, typeErrs...)
	if all.HasErrors() {
		log.Debugf("analysis failed with %d error(s)", len(all))
		return Result{Errors: all, Program: prog, GlobalScope: globalScope}
	}

	if opts.Verbose {
		fmt.Println("gplc: emitting", outputPath)
	}
	module, emitErrs := emit(prog, opts.Settings.TargetTriple)
	if emitErrs.HasErrors() {
		return Result{Errors: emitErrs, Program: prog, GlobalScope: globalScope}
	}

	if err := writeAtomic(outputPath, module.String()); err != nil {
		return Result{Errors: diag.List{diag.Internalf(zeroPos, "cannot write output file: %s", err)}, Program: prog, GlobalScope: globalScope}
	}

	return Result{OutputPath: outputPath, Program: prog, GlobalScope: globalScope}
}

// emit recovers an Internal diagnostic from the emitter the same way
// internal/parser.Parse recovers a Syntax one, since codegen.Emit's
// unrecovered-invariant panics use the same diag.Diagnostic-typed
// panic convention throughout this compiler.
func emit(prog *ast.Program, targetTriple string) (mod moduleStringer, errs diag.List) {
	defer func() {
		if r := recover(); r != nil {
			d, ok := r.(diag.Diagnostic)
			if !ok {
				panic(r)
			}
			errs = diag.List{d}
		}
	}()
	return codegen.Emit(prog, targetTriple), nil
}

// moduleStringer is the sliver of *ir.Module's API the driver needs,
// kept as an interface so this package does not have to import
// llir/llvm just to name the return type of emit.
type moduleStringer interface {
	String() string
}

// writeAtomic implements spec.md §7's "never a partial output file"
// guarantee: the module text is written to a temp file in the target
// directory and renamed into place, so a crash or disk-full error
// mid-write never leaves a truncated file at outputPath.
func writeAtomic(outputPath, contents string) error {
	dir := filepath.Dir(outputPath)
	tmp, err := os.CreateTemp(dir, ".gplc-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(contents); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, outputPath)
}

func deriveOutputPath(inputPath string, s config.Settings) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath)) + OutputExtension
	if s.OutputDir != "" {
		return filepath.Join(s.OutputDir, base)
	}
	return filepath.Join(filepath.Dir(inputPath), base)
}
