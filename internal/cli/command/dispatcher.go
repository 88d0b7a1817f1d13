package command

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/marmos91/omectl/internal/cli/output"
	"github.com/marmos91/omectl/internal/logger"
	"github.com/spf13/cobra"
)

// cobraUsagePrefixes are the error messages cobra produces for malformed
// command lines without a typed error.
var cobraUsagePrefixes = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"required flag",
	"invalid argument",
	"accepts ",
	"requires at least",
	"requires at most",
}

// Dispatcher runs one command line at a time against a registry. Every
// Dispatch builds a fresh cobra tree, so flags never leak between lines.
type Dispatcher struct {
	name     string
	registry *Registry
	c        *Context

	// Default runs when a line carries global flags but no command. Nil
	// prints the root help.
	Default func(ctx context.Context) int
}

// NewDispatcher creates a Dispatcher for the program called name.
func NewDispatcher(name string, registry *Registry, c *Context) *Dispatcher {
	if c.registry == nil {
		c.registry = registry
	}
	return &Dispatcher{name: name, registry: registry, c: c}
}

// Context returns the context shared by all dispatches.
func (d *Dispatcher) Context() *Context {
	return d.c
}

// Dispatch executes args and returns the exit code. Errors are reported on
// stderr; handles opened by the command are closed before it returns.
func (d *Dispatcher) Dispatch(ctx context.Context, args []string) int {
	lc := logger.NewLogContext(d.name)
	ctx = logger.WithContext(ctx, lc)
	saved := d.c.settings
	level := logger.GetLevel()
	mark := d.c.mark()
	defer func() {
		d.c.release(mark)
		d.c.settings = saved
		logger.SetLevel(level.String())
	}()

	err := d.execute(ctx, args)
	code := ExitCode(err)
	if err != nil {
		d.report(err, code)
	}
	d.c.rv = code

	logger.DebugCtx(ctx, "command finished", logger.KeyCode, code, "duration_ms", lc.DurationMs())
	return code
}

func (d *Dispatcher) execute(ctx context.Context, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "command panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	root := d.Root()
	root.SetArgs(args)
	_, err = root.ExecuteContextC(ctx)
	return classify(err)
}

// classify turns cobra's untyped parse errors into usage errors.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrUsage) {
		return err
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	msg := err.Error()
	for _, prefix := range cobraUsagePrefixes {
		if strings.HasPrefix(msg, prefix) {
			return fmt.Errorf("%w: %s", ErrUsage, msg)
		}
	}
	return err
}

func (d *Dispatcher) report(err error, code int) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			d.c.Err(exitErr.Message)
		}
		return
	}
	d.c.Err("Error: " + err.Error())
	if code == ExitUsage {
		d.c.Err(fmt.Sprintf("Run '%s help' for usage.", d.name))
	}
}

// Root builds the cobra tree for one dispatch.
func (d *Dispatcher) Root() *cobra.Command {
	var (
		debugFlag  bool
		quietFlag  bool
		strictFlag bool
		configFile string
		outputFlag string
		noColor    bool
	)

	root := &cobra.Command{
		Use:           d.name,
		Short:         "Manage server sessions from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			s := &d.c.settings
			if fs.Changed("debug") {
				s.debug = debugFlag
			}
			if fs.Changed("quiet") {
				s.quiet = quietFlag
			}
			if fs.Changed("strict") {
				s.strict = strictFlag
			}
			if fs.Changed("no-color") {
				s.noColor = noColor
			}
			if fs.Changed("output") {
				f, err := output.ParseFormat(outputFlag)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrUsage, err)
				}
				s.format = f
			}
			switch {
			case s.debug:
				logger.SetLevel("DEBUG")
			case s.quiet:
				logger.SetLevel("ERROR")
			}

			if lc := logger.FromContext(cmd.Context()); lc != nil {
				lc.Command = cmd.CommandPath()
			} else {
				cmd.SetContext(logContext(cmd.Context(), cmd.CommandPath()))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.Default == nil {
				return cmd.Help()
			}
			if code := d.Default(cmd.Context()); code != ExitOK {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.BoolVar(&debugFlag, "debug", false, "Enable debug output")
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress informational messages")
	pf.BoolVar(&strictFlag, "strict", false, "Stop batch input at the first failing line")
	pf.StringVar(&configFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/omectl/config.yaml)")
	pf.StringVarP(&outputFlag, "output", "o", "", "Output format (table|json|yaml)")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.SetIn(d.c.in)
	root.SetOut(d.c.out)
	root.SetErr(d.c.errOut)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	d.registry.build(root, d.c)
	for _, cmd := range root.Commands() {
		if cmd.Name() == "help" {
			root.RemoveCommand(cmd)
			root.SetHelpCommand(cmd)
			break
		}
	}
	return root
}
