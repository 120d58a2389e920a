package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/stencil/expr"
	"github.com/chazu/stencil/lib/core"
	"github.com/chazu/stencil/vm"
)

const historyFile = ".stencil_history"

// session evaluates expressions against one long-lived context, so
// @variables assigned on one line are visible on the next.
type session struct {
	engine  *vm.Engine
	ctx     *vm.Context
	data    any
	debug   bool
	opts    expr.Options
	printed int
}

func newSession(data any, debug bool) *session {
	s := &session{
		engine: vm.NewEngine(core.Options()...),
		data:   data,
		debug:  debug,
	}
	s.reset()
	return s
}

func (s *session) reset() {
	s.ctx = s.engine.NewContext(s.data, vm.Options{Expressions: true})
	s.printed = 0
}

// eval runs one input and writes the value (or trace) to out and any new
// diagnostics to errOut. It reports whether the input produced errors.
func (s *session) eval(src string, out, errOut io.Writer) bool {
	opts := s.opts
	opts.Debug = s.debug
	x := expr.New(src, opts)
	for _, err := range x.Errors() {
		s.ctx.AddError(err)
	}
	if len(x.Errors()) == 0 {
		if s.debug {
			fmt.Fprint(out, x.Trace(s.ctx))
		} else if v, ok := x.Reduce(s.ctx); ok {
			fmt.Fprintln(out, v.String())
		}
	}
	errs := s.ctx.Errors()[s.printed:]
	s.printed += len(errs)
	for _, e := range errs {
		fmt.Fprintf(errOut, "%s error: %s\n", e.Kind, e.Message)
	}
	return len(errs) > 0
}

func runEval(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataPath := fs.String("data", "", "JSON or YAML data file")
	debug := fs.Bool("debug", false, "Print each statement's RPN and result")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "Usage: stencil eval [-data file] [-debug] <expression>")
		return 2
	}
	data, err := loadData(*dataPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if newSession(data, *debug).eval(strings.Join(fs.Args(), " "), stdout, stderr) {
		return 1
	}
	return 0
}

func runREPL(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataPath := fs.String("data", "", "JSON or YAML data file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	data, err := loadData(*dataPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	s := newSession(data, false)

	fmt.Fprintln(stdout, "Stencil expression REPL (type :help for commands, :quit to exit)")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt(">> ")
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			fmt.Fprintln(stdout)
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(line, ":") {
			if done := s.command(line, stdout, stderr); done {
				break
			}
			continue
		}
		s.eval(line, stdout, stderr)
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return 0
}

// command handles REPL meta-commands. It reports whether to exit.
func (s *session) command(line string, out, errOut io.Writer) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :data <file>      Load JSON or YAML data and reset variables")
		fmt.Fprintln(out, "  :debug            Toggle RPN trace output")
		fmt.Fprintln(out, "  :reset            Clear @variables")
		fmt.Fprintln(out, "  :quit, :q         Exit")
	case ":quit", ":q":
		return true
	case ":debug":
		s.debug = !s.debug
		fmt.Fprintf(out, "debug %v\n", s.debug)
	case ":reset":
		s.reset()
	case ":data":
		if len(fields) != 2 {
			fmt.Fprintln(errOut, "Usage: :data <file>")
			break
		}
		data, err := loadData(fields[1])
		if err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
			break
		}
		s.data = data
		s.reset()
	default:
		fmt.Fprintf(errOut, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
	return false
}
