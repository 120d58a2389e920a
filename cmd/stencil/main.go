// Stencil CLI - compiles, renders and inspects templates.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("stencil.cli")

type command struct {
	name    string
	summary string
	run     func(args []string, stdout, stderr io.Writer) int
}

var commands = []command{
	{"compile", "compile a template and print its bytecode", runCompile},
	{"pretty", "print a template's bytecode one instruction per line", runPretty},
	{"render", "render a template file or a project template", runRender},
	{"eval", "evaluate an expression against data", runEval},
	{"repl", "interactive expression shell", runREPL},
	{"lsp", "run the language server on stdio", runLSP},
}

// verbosity is a repeatable -v flag.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }
func (v *verbosity) Set(s string) error {
	if s == "true" {
		*v++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = verbosity(n)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stencil", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var verbose verbosity
	fs.Var(&verbose, "v", "Verbose logging (repeat for more)")
	logPath := fs.String("log", "", "Write logs to this file instead of stderr")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var path *string
	if *logPath != "" {
		path = logPath
	}
	commonlog.Configure(int(verbose), path)

	if fs.NArg() == 0 {
		usage(stderr, fs)
		return 2
	}
	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			log.Debugf("running %s", name)
			return c.run(fs.Args()[1:], stdout, stderr)
		}
	}
	fmt.Fprintf(stderr, "stencil: unknown command %q\n", name)
	usage(stderr, fs)
	return 2
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: stencil [options] <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nOptions:\n")
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  stencil render -data post.json post.html\n")
	fmt.Fprintf(w, "  stencil render -project . pages/index\n")
	fmt.Fprintf(w, "  stencil eval -data vars.yaml 'a + b * 2'\n")
	fmt.Fprintf(w, "  stencil -v -v lsp\n")
}

// readSource reads a file, or stdin for "-".
func readSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	return string(data), nil
}

// loadData reads a JSON or YAML data file. An empty path yields nil data.
func loadData(path string) (any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read data %s: %w", path, err)
	}
	return parseData(raw, filepath.Ext(path))
}

func parseData(raw []byte, ext string) (any, error) {
	var v any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("parsing yaml data: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("parsing json data: %w", err)
		}
	}
	return v, nil
}
