// Command gplc is GP-λ's compile-only CLI (spec.md §6): a single
// `compile` subcommand, following tawago's cli.App-per-subcommand
// shape in main.go but with the project-scaffolding commands
// (tawago's `init`, `build`, `typeinfo`) left out, since spec.md §6
// scopes those to an external "project driver" collaborator.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/repr"
	"github.com/coreos/pkg/capnslog"
	"github.com/urfave/cli/v2"
	"github.com/ztrue/tracerr"

	"github.com/ReinoutWW/gplambda/internal/compiler"
	"github.com/ReinoutWW/gplambda/internal/config"
	"github.com/ReinoutWW/gplambda/internal/diag"
)

func main() {
	app := &cli.App{
		Name:  "gplc",
		Usage: "GP-λ compiler",
		Commands: []*cli.Command{
			compileCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		tracerr.PrintSourceColor(err)
		os.Exit(1)
	}
}

func compileCommand() *cli.Command {
	return &cli.Command{
		Name:  "compile",
		Usage: "compile a single GP-λ source file to LLVM IR",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Required: true},
			&cli.StringFlag{Name: "output"},
			&cli.BoolFlag{Name: "verbose"},
			&cli.StringFlag{Name: "config", Usage: "path to a YAML settings file"},
		},
		Action: runCompile,
	}
}

func runCompile(c *cli.Context) error {
	if c.Bool("verbose") {
		capnslog.SetGlobalLogLevel(capnslog.DEBUG)
	} else {
		capnslog.SetGlobalLogLevel(capnslog.WARNING)
	}

	settings, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	opts := compiler.Options{
		InputPath:  c.String("input"),
		OutputPath: c.String("output"),
		Verbose:    c.Bool("verbose"),
		Settings:   settings,
	}
	if opts.Verbose {
		repr.Println(opts)
	}

	result := compiler.Compile(opts)
	if opts.Verbose && result.Program != nil {
		repr.Println(result.Program)
		repr.Println(result.GlobalScope)
	}
	for _, d := range result.Errors {
		printDiagnostic(d)
	}
	if result.OutputPath != "" && opts.Verbose {
		fmt.Println("gplc: wrote", result.OutputPath)
	}

	os.Exit(result.ExitCode())
	return nil
}

// printDiagnostic writes one line to standard error in spec.md §6's
// format. Internal diagnostics also get tracerr's colorized frame the
// way tawago's main.go surfaces any Go error it can't otherwise
// explain, since an Internal category is by definition a compiler bug
// worth a full trace.
func printDiagnostic(d diag.Diagnostic) {
	fmt.Fprintln(os.Stderr, d.Error())
	if d.Category == diag.Internal {
		tracerr.PrintSourceColor(tracerr.Wrap(d))
	}
}
