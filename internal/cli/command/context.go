package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marmos91/omectl/internal/cli/output"
	"github.com/marmos91/omectl/internal/cli/prompt"
	"github.com/marmos91/omectl/internal/cli/resolver"
	"github.com/marmos91/omectl/internal/cli/sessions"
	"github.com/marmos91/omectl/internal/logger"
	"github.com/marmos91/omectl/pkg/apiclient"
	"github.com/marmos91/omectl/pkg/config"
	"github.com/marmos91/omectl/pkg/remote"
)

// Options configures a Context. Zero fields fall back to the process
// streams and to values built from Config.
type Options struct {
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
	Prompter prompt.Prompter
	Config   *config.Config
	Store    *sessions.Store
	Adapter  remote.Adapter
	Registry *Registry
}

// settings are the per-dispatch global flags. A nested dispatch inherits
// them and restores the outer values when it returns.
type settings struct {
	debug   bool
	quiet   bool
	strict  bool
	format  output.Format
	noColor bool
}

// Context is handed to every command handler. It is owned by the driver and
// lives for the whole process; handles obtained through Conn are closed by
// the dispatcher when the invocation that opened them ends.
type Context struct {
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	prompter prompt.Prompter
	cfg      *config.Config
	registry *Registry

	store   *sessions.Store
	adapter remote.Adapter

	settings settings
	rv       int
	handles  []remote.Handle
	quit     bool
}

// NewContext creates a Context.
func NewContext(opts Options) *Context {
	c := &Context{
		in:       opts.In,
		out:      opts.Out,
		errOut:   opts.Err,
		prompter: opts.Prompter,
		cfg:      opts.Config,
		registry: opts.Registry,
		store:    opts.Store,
		adapter:  opts.Adapter,
	}
	if c.in == nil {
		c.in = os.Stdin
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.errOut == nil {
		c.errOut = os.Stderr
	}
	if c.cfg == nil {
		c.cfg = config.GetDefaultConfig()
	}
	if c.prompter == nil {
		c.prompter = prompt.New(c.in, c.errOut)
	}
	c.settings.format = output.FormatTable
	if f, err := output.ParseFormat(c.cfg.CLI.Output); err == nil {
		c.settings.format = f
	}
	return c
}

// Config returns the loaded configuration.
func (c *Context) Config() *config.Config {
	return c.cfg
}

// Registry returns the command registry, or nil when none was given.
func (c *Context) Registry() *Registry {
	return c.registry
}

// In returns the input stream shared by prompts and script drivers.
func (c *Context) In() io.Reader {
	return c.in
}

// Stdout returns the output stream.
func (c *Context) Stdout() io.Writer {
	return c.out
}

// Stderr returns the diagnostic stream.
func (c *Context) Stderr() io.Writer {
	return c.errOut
}

// Store opens the session store on first use.
func (c *Context) Store() (*sessions.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	base, err := sessions.ResolveBase(c.cfg.Sessions.Dir, c.cfg.Sessions.Home)
	if err != nil {
		return nil, err
	}
	store, err := sessions.NewStore(sessions.Config{
		Base: base,
		Lock: sessions.LockPolicy{
			Attempts: c.cfg.Sessions.LockAttempts,
			Interval: c.cfg.Sessions.LockInterval,
		},
	})
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

// Adapter returns the server adapter, building the HTTP one on first use.
func (c *Context) Adapter() remote.Adapter {
	if c.adapter == nil {
		c.adapter = &apiclient.Adapter{
			Scheme:      c.cfg.Remote.Scheme,
			DefaultPort: c.cfg.Remote.DefaultPort,
			Timeout:     c.cfg.Remote.Timeout,
		}
	}
	return c.adapter
}

// Conn resolves opts into a live session. The handle is closed
// automatically when the current invocation ends.
func (c *Context) Conn(ctx context.Context, opts resolver.Options) (*resolver.Session, error) {
	store, err := c.Store()
	if err != nil {
		return nil, err
	}
	s, err := resolver.New(store, c.Adapter(), c.prompter).Resolve(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.handles = append(c.handles, s.Handle)
	return s, nil
}

// mark returns the current handle watermark.
func (c *Context) mark() int {
	return len(c.handles)
}

// release closes every handle opened after mark, newest first.
func (c *Context) release(mark int) {
	if mark >= len(c.handles) {
		return
	}
	adapter := c.Adapter()
	for i := len(c.handles) - 1; i >= mark; i-- {
		adapter.Close(c.handles[i])
		c.handles[i] = nil
	}
	c.handles = c.handles[:mark]
}

// Close releases every open handle.
func (c *Context) Close() {
	c.release(0)
}

// Out writes text and a newline to stdout.
func (c *Context) Out(text string) {
	c.write(c.out, text, true)
}

// Print writes text to stdout without a trailing newline.
func (c *Context) Print(text string) {
	c.write(c.out, text, false)
}

// Outf formats to stdout. The caller controls the newline.
func (c *Context) Outf(format string, args ...any) {
	c.write(c.out, fmt.Sprintf(format, args...), false)
}

// Info writes a status line to stderr unless --quiet is set.
func (c *Context) Info(text string) {
	if c.settings.quiet {
		return
	}
	c.write(c.errOut, text, true)
}

// Success writes a status line to stderr, green on a color terminal.
// --quiet suppresses it.
func (c *Context) Success(text string) {
	if c.settings.quiet {
		return
	}
	c.status().Success(text)
}

// Warning writes a status line to stderr, yellow on a color terminal.
// --quiet suppresses it.
func (c *Context) Warning(text string) {
	if c.settings.quiet {
		return
	}
	c.status().Warning(text)
}

func (c *Context) status() *output.Printer {
	color := !c.settings.noColor && output.IsColorTerminal(c.errOut)
	return output.NewPrinter(c.errOut, c.settings.format, color)
}

// Err writes text and a newline to stderr.
func (c *Context) Err(text string) {
	c.write(c.errOut, text, true)
}

// Dbg writes text to stderr when --debug is set.
func (c *Context) Dbg(text string) {
	if !c.settings.debug {
		return
	}
	c.write(c.errOut, "debug: "+text, true)
}

func (c *Context) write(w io.Writer, text string, newline bool) {
	if newline && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, _ = io.WriteString(w, text)
}

// Printer returns a printer for structured results honoring -o and
// --no-color.
func (c *Context) Printer() *output.Printer {
	color := !c.settings.noColor && output.IsColorTerminal(c.out)
	return output.NewPrinter(c.out, c.settings.format, color)
}

// Die returns an error that ends the handler with code and prints msg.
// Handlers return it unchanged:
//
//	return c.Die(2, "no such share")
func (c *Context) Die(code int, format string, args ...any) error {
	return &ExitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// RV is the return code of the last dispatched command line.
func (c *Context) RV() int {
	return c.rv
}

// SetRV overrides the return code, as done by drivers that keep going.
func (c *Context) SetRV(rv int) {
	c.rv = rv
}

// Input reads one line from the user. Hidden input is not echoed.
func (c *Context) Input(label string, hidden bool) (string, error) {
	if hidden {
		return c.prompter.Password(label)
	}
	return c.prompter.Input(label, "")
}

// Confirm asks a yes/no question.
func (c *Context) Confirm(label string, defaultYes bool) (bool, error) {
	return c.prompter.Confirm(label, defaultYes)
}

// RequestQuit asks the interactive or batch driver to stop after the
// current command.
func (c *Context) RequestQuit() {
	c.quit = true
}

// Quitting reports whether quit was requested.
func (c *Context) Quitting() bool {
	return c.quit
}

// Debug reports whether --debug is active.
func (c *Context) Debug() bool {
	return c.settings.debug
}

// Quiet reports whether --quiet is active.
func (c *Context) Quiet() bool {
	return c.settings.quiet
}

// Strict reports whether --strict is active.
func (c *Context) Strict() bool {
	return c.settings.strict
}

// logContext returns ctx carrying a LogContext for command.
func logContext(ctx context.Context, command string) context.Context {
	return logger.WithContext(ctx, logger.NewLogContext(command))
}
