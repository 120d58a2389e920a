package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/stencil/compiler"
	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
	"github.com/chazu/stencil/store"
)

// compileArg compiles the single file argument, through the cache when
// cachePath is set, and reports diagnostics to stderr.
func compileArg(path, cachePath string, stderr io.Writer) (*compiler.Result, bool) {
	src, err := readSource(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}

	var res *compiler.Result
	if cachePath != "" {
		s, err := store.Open(cachePath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return nil, false
		}
		defer s.Close()
		var hit bool
		res, hit = s.Compile(src)
		log.Debugf("cache hit: %v", hit)
	} else {
		res = compiler.Compile(src)
	}
	printErrors(stderr, path, res.Errors)
	return res, true
}

func printErrors(w io.Writer, name string, errs []diag.Error) {
	for _, e := range errs {
		if e.HasPosition() {
			fmt.Fprintf(w, "%s:%d:%d: %s\n", name, e.Line, e.Column, e.Message)
		} else {
			fmt.Fprintf(w, "%s: %s\n", name, e.Message)
		}
	}
}

func runCompile(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "json", "Output format: json or cbor")
	out := fs.String("o", "", "Write output to this file instead of stdout")
	cache := fs.String("cache", "", "Compiled-template cache database")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: stencil compile [-format json|cbor] [-o file] [-cache db] <file|->")
		return 2
	}

	res, ok := compileArg(fs.Arg(0), *cache, stderr)
	if !ok {
		return 1
	}

	var data []byte
	var err error
	switch *format {
	case "json":
		data, err = bytecode.Encode(res.Code)
		data = append(data, '\n')
	case "cbor":
		data, err = bytecode.MarshalCBOR(res.Code)
	default:
		fmt.Fprintf(stderr, "Error: unknown format %q\n", *format)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *out != "" {
		if err := os.WriteFile(*out, data, 0644); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		stdout.Write(data)
	}
	if len(res.Errors) > 0 {
		return 1
	}
	return 0
}

func runPretty(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pretty", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: stencil pretty <file|->")
		return 2
	}
	res, ok := compileArg(fs.Arg(0), "", stderr)
	if !ok {
		return 1
	}
	fmt.Fprint(stdout, bytecode.Pretty(res.Code))
	if len(res.Errors) > 0 {
		return 1
	}
	return 0
}
