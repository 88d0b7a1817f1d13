package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// DefaultPrompt is shown before each interactive line.
const DefaultPrompt = "omectl> "

// LineSource supplies interactive input lines.
type LineSource interface {
	Readline() (string, error)
	Close() error
}

// NewReadline returns a terminal line editor with history and command-name
// completion. An empty historyFile disables persisted history.
func NewReadline(prompt, historyFile string, commands []string) (LineSource, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, name := range commands {
		items = append(items, readline.PcItem(name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		HistorySearchFold: true,
		AutoComplete:      readline.NewPrefixCompleter(items...),
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start line editor: %w", err)
	}
	return rl, nil
}

// Shell is the interactive driver. Failing commands never end the loop;
// only EOF and the quit command do.
type Shell struct {
	d   Dispatcher
	src LineSource
}

// NewShell creates a shell reading from src.
func NewShell(d Dispatcher, src LineSource) *Shell {
	return &Shell{d: d, src: src}
}

// Run reads and dispatches lines until EOF or quit and returns the return
// code of the last command.
func (s *Shell) Run(ctx context.Context) int {
	defer func() { _ = s.src.Close() }()
	c := s.d.Context()

	for {
		if ctx.Err() != nil {
			return c.RV()
		}

		line, err := s.src.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return c.RV()
		case err != nil:
			c.Err(fmt.Sprintf("Error: %v", err))
			return c.RV()
		}

		text := strings.TrimSpace(line)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		args, err := shlex.Split(text)
		if err != nil {
			c.Err(fmt.Sprintf("Error: %v", err))
			continue
		}
		if len(args) > 0 {
			s.d.Dispatch(ctx, args)
		}
		if c.Quitting() {
			return c.RV()
		}
	}
}
