package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/chazu/stencil/lib/core"
	"github.com/chazu/stencil/lib/i18n"
	"github.com/chazu/stencil/project"
	"github.com/chazu/stencil/vm"
)

func runRender(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataPath := fs.String("data", "", "JSON or YAML data file")
	projectDir := fs.String("project", "", "Render a template by name from the project at this directory")
	expressions := fs.Bool("expressions", false, "Enable {.eval}")
	debug := fs.Bool("debug", false, "Trace {.eval} statements")
	locale := fs.String("locale", "", "Locale for format-number, e.g. en-US")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: stencil render [-data file] [-project dir] [-expressions] [-locale tag] <file|-|name>")
		return 2
	}
	target := fs.Arg(0)

	data, err := loadData(*dataPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var ctx *vm.Context
	if *projectDir != "" {
		p, err := project.Open(*projectDir)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer p.Close()
		if ctx, err = p.Render(target, data); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		src, err := readSource(target)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		opts := vm.Options{Expressions: *expressions || *debug, ExpressionDebug: *debug}
		if *locale != "" {
			loc, err := i18n.New(*locale)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			opts.Locale = loc
		}
		ctx = vm.Execute(src, data, opts, core.Options()...)
	}

	fmt.Fprint(stdout, ctx.Render())
	printErrors(stderr, target, ctx.Errors())
	if ctx.ErrorCount() > 0 {
		return 1
	}
	return 0
}
