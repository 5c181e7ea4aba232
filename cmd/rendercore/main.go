// File: cmd/rendercore/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/rendercore/cmd"
	"github.com/xkilldash9x/rendercore/internal/observability"
)

const panicLogFile = "panic.log"

const prompt = "rendercore > "

// Swapped out by tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil && !errors.Is(err, context.Canceled) {
			osExit(1)
		}
		return
	}

	if err := interactive(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// interactive reads commands line by line until EOF, "exit" or "quit".
// A failing command is reported and the shell keeps going.
func interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := executeLine(ctx, line, out); err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

// executeLine runs one shell line on a fresh command tree so flags do not
// leak between lines. Panics are turned into errors.
func executeLine(ctx context.Context, line string, out io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()
	root := cmd.NewRootCommand()
	root.SetArgs(strings.Fields(line))
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

// handlePanic writes the panic and its stack to panicLogFile and exits
// non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(msg), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", msg)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "rendercore crashed. Details logged to %s\n", panicLogFile)
	osExit(2)
}
