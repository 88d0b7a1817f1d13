// Package script drives the command dispatcher from line-oriented input:
// script files, piped standard input, and the interactive shell.
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/shlex"

	"github.com/marmos91/omectl/internal/cli/command"
	"github.com/marmos91/omectl/internal/logger"
)

// Stdin is the file name that selects standard input.
const Stdin = "-"

// Dispatcher executes one tokenized command line.
type Dispatcher interface {
	Dispatch(ctx context.Context, args []string) int
	Context() *command.Context
}

// Batch runs command lines from files.
type Batch struct {
	d Dispatcher
	// KeepGoing continues after a failing line and resets the return code.
	KeepGoing bool
	// Strict stops at the first failing line even with KeepGoing.
	Strict bool
}

// NewBatch creates a batch driver.
func NewBatch(d Dispatcher) *Batch {
	return &Batch{d: d}
}

func (b *Batch) stopOnError() bool {
	return !b.KeepGoing || b.Strict
}

// Run executes every file in order and returns the final return code. An
// empty list reads standard input.
func (b *Batch) Run(ctx context.Context, files []string) int {
	if len(files) == 0 {
		files = []string{Stdin}
	}

	c := b.d.Context()
	rv := 0
	for _, name := range files {
		var (
			code int
			stop bool
		)
		if name == Stdin {
			code, stop = b.RunReader(ctx, "<stdin>", c.In())
		} else {
			code, stop = b.runFile(ctx, name)
		}
		rv = code
		if stop || c.Quitting() {
			break
		}
	}
	return rv
}

func (b *Batch) runFile(ctx context.Context, name string) (int, bool) {
	f, err := os.Open(name)
	if err != nil {
		b.d.Context().Err(fmt.Sprintf("Error: %v", err))
		if b.stopOnError() {
			return command.ExitResource, true
		}
		return 0, false
	}
	defer func() { _ = f.Close() }()
	return b.RunReader(ctx, name, f)
}

// RunReader executes the lines of r. It reports whether the batch must stop.
//
// A *bufio.Reader is read in place, one line at a time, so prompts issued by
// a command consume the lines that follow it.
func (b *Batch) RunReader(ctx context.Context, name string, r io.Reader) (int, bool) {
	c := b.d.Context()
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	rv := 0
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return command.ExitAborted, true
		}

		line, readErr := br.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			c.Err(fmt.Sprintf("Error: reading %s: %v", name, readErr))
			return command.ExitResource, true
		}

		text := strings.TrimSpace(line)
		if text != "" && !strings.HasPrefix(text, "#") {
			rv = b.runLine(ctx, text)
			if rv != 0 {
				c.Err(fmt.Sprintf("%s:%d: %s (exit %d)", name, lineNo, text, rv))
				logger.Warn("script line failed",
					logger.KeyPath, name, logger.KeyLine, lineNo, logger.KeyCode, rv)
				if b.stopOnError() {
					return rv, true
				}
				rv = 0
				c.SetRV(0)
			}
			if c.Quitting() {
				return rv, true
			}
		}

		if readErr != nil {
			return rv, false
		}
	}
}

func (b *Batch) runLine(ctx context.Context, text string) int {
	args, err := shlex.Split(text)
	if err != nil {
		b.d.Context().Err(fmt.Sprintf("Error: %v", err))
		return command.ExitUsage
	}
	if len(args) == 0 {
		return 0
	}
	return b.d.Dispatch(ctx, args)
}
