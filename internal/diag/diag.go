// Package diag renders compile- and runtime-error diagnostics to a stream:
// a red "error" label, the source line and column, and a single caret under
// the first column of the offending lexeme; the caret does not extend across
// the rest of the lexeme. It uses raw ANSI escapes rather than a
// color library, matching the original source's own main.rs (which prints
// the same escape sequences directly) and the teacher's preference for
// zero-dependency terminal output elsewhere in cmd/retro/main.go.
package diag

import (
	"fmt"
	"io"
	"strings"
)

const (
	ansiRed   = "\x1b[91m"
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// lineText returns the full text of line n (1-indexed) given the source and
// the lexer's recorded line-start offsets.
func lineText(src string, lineStarts []int, line int) string {
	if line < 1 || line > len(lineStarts) {
		return ""
	}
	start := lineStarts[line-1]
	end := len(src)
	if line < len(lineStarts) {
		end = lineStarts[line] - 1 // exclude the trailing '\n'
		if end < start {
			end = start
		}
	}
	return src[start:end]
}

// CompileError reports a single compile-time diagnostic: line:col, a red
// "error" label, the source line and a caret under the error column.
func CompileError(w io.Writer, src string, lineStarts []int, line, col int, msg string) {
	fmt.Fprintf(w, "%s%serror%s: %s\n", ansiBold, ansiRed, ansiReset, msg)
	fmt.Fprintf(w, "  --> line %d, column %d\n", line, col)
	text := lineText(src, lineStarts, line)
	fmt.Fprintf(w, "   | %s\n", text)
	fmt.Fprintf(w, "   | %s%s^%s\n", strings.Repeat(" ", max0(col-1)), ansiRed, ansiReset)
}

// RuntimeError reports a single fatal runtime diagnostic: the line the
// faulting instruction came from (resolved via the chunk's line table) and
// the VM's error message, with the same red "error" label as compile-time
// diagnostics.
func RuntimeError(w io.Writer, line int, msg string) {
	fmt.Fprintf(w, "%s%serror%s: %s\n", ansiBold, ansiRed, ansiReset, msg)
	fmt.Fprintf(w, "  --> line %d\n", line)
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
