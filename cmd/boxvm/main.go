// Command boxvm compiles and runs a single source file: one positional
// argument, diagnostics to stderr, exit 101 on any compile or runtime
// error (spec.md §6). The shape — a small amount of flag/arg handling
// feeding a single atExit error path — follows cmd/retro/main.go, trimmed
// to the one positional argument and two named failure modes this system
// defines; there is no image loading/saving or raw-tty handling to port,
// since those are specific to the teacher's Forth image model.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/Banzobotic/dymaxilang/compiler"
	"github.com/Banzobotic/dymaxilang/internal/diag"
	"github.com/Banzobotic/dymaxilang/vm"
)

var debug bool

func atExit(err error) {
	if err == nil {
		return
	}
	os.Exit(101)
}

func main() {
	flagArgs := os.Args[1:]
	var path string
	for _, a := range flagArgs {
		if a == "-debug" {
			debug = true
			continue
		}
		path = a
	}

	if path == "" {
		fmt.Fprintln(os.Stderr, "need to provide path to source file")
		os.Exit(1)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "source file not found")
		os.Exit(1)
	}

	var opts []vm.Option
	if debug {
		opts = append(opts, vm.Trace(os.Stderr), vm.DebugGC(os.Stderr))
	}

	c := compiler.New(string(src), opts...)
	_, err = c.Compile()
	if err != nil {
		if list, ok := err.(compiler.ErrorList); ok {
			reportCompileErrors(string(src), c.LineStarts(), list)
		} else {
			reportRuntimeError(err)
		}
		atExit(err)
	}
}

func reportCompileErrors(src string, lineStarts []int, list compiler.ErrorList) {
	for _, e := range list {
		diag.CompileError(os.Stderr, src, lineStarts, e.Line, e.Col, e.Msg)
	}
}

func reportRuntimeError(err error) {
	re, ok := err.(*vm.RuntimeError)
	if !ok {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "runtime error"))
		return
	}
	diag.RuntimeError(os.Stderr, re.Line, re.Msg)
}
