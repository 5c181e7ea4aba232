// File: cmd/rendercore/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup Helpers ---

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

// --- Interactive shell ---

func TestInteractive(t *testing.T) {
	in := strings.NewReader("version\n\nbogus\nexit\nversion\n")
	var out bytes.Buffer

	require.NoError(t, interactive(context.Background(), in, &out))

	got := out.String()
	assert.Equal(t, 1, strings.Count(got, "rendercore dev"), "lines after exit are not run")
	assert.Contains(t, got, `Error: unknown command "bogus"`)
	assert.Equal(t, 4, strings.Count(got, prompt))
}

func TestInteractiveStopsAtEOF(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, interactive(context.Background(), strings.NewReader("version"), &out))
	assert.Contains(t, out.String(), "rendercore dev")
}

func TestInteractiveStopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	require.NoError(t, interactive(ctx, strings.NewReader("version\nversion\n"), &out))
	assert.Equal(t, 1, strings.Count(out.String(), prompt))
}

// --- Panic handler ---

func TestHandlePanic(t *testing.T) {
	t.Run("writes the panic log", func(t *testing.T) {
		defer resetMocks()
		var path string
		var written []byte
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path, written = name, data
			return nil
		}
		exitCode := -1
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("layout exploded")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(written), "panic: layout exploded")
		assert.Contains(t, string(written), "goroutine", "the stack is included")
		assert.Equal(t, 2, exitCode)
	})

	t.Run("exits when the log cannot be written", func(t *testing.T) {
		defer resetMocks()
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only") }
		exitCode := -1
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, exitCode)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		defer resetMocks()
		osExit = func(int) { t.Fatal("exit called without a panic") }
		func() {
			defer handlePanic()
		}()
	})
}
