package main

import (
	"fmt"
	"io"

	"github.com/chazu/stencil/lib/core"
	"github.com/chazu/stencil/server"
	"github.com/chazu/stencil/vm"
)

func runLSP(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Usage: stencil lsp")
		return 2
	}
	srv := server.NewLSP(vm.NewEngine(core.Options()...))
	if err := srv.Run(); err != nil {
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}
