// Package commands wires the omectl command set and runs it.
package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	sessionscmd "github.com/marmos91/omectl/cmd/omectl/commands/sessions"
	"github.com/marmos91/omectl/internal/cli/command"
	"github.com/marmos91/omectl/internal/cli/prompt"
	"github.com/marmos91/omectl/internal/cli/script"
	"github.com/marmos91/omectl/internal/logger"
	"github.com/marmos91/omectl/pkg/config"
)

const programName = "omectl"

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// App is a fully wired command set: registry, context and dispatcher.
type App struct {
	Registry   *command.Registry
	Context    *command.Context
	Dispatcher *command.Dispatcher
}

// NewApp registers every command and builds the dispatcher. Zero fields in
// opts are filled from cfg.
func NewApp(cfg *config.Config, opts command.Options) (*App, error) {
	app := &App{Registry: command.NewRegistry(cfg.CLI.NoDeprecated)}
	opts.Config = cfg
	opts.Registry = app.Registry

	if err := app.register(); err != nil {
		return nil, err
	}

	app.Context = command.NewContext(opts)
	app.Dispatcher = command.NewDispatcher(programName, app.Registry, app.Context)
	return app, nil
}

func (a *App) register() error {
	type registration struct {
		name    string
		help    string
		factory command.Factory
	}
	builtins := []registration{
		{"sessions", "Manage cached server sessions", sessionscmd.New},
		{"load", "Run commands from files or standard input", a.newLoadCmd},
		{"help", "Show help for a command", newHelpCmd},
		{"quit", "Leave the interactive shell", newQuitCmd},
		{"version", "Show version information", newVersionCmd},
		{"completion", "Generate shell completion script", newCompletionCmd},
	}
	for _, r := range builtins {
		if err := a.Registry.Register(r.name, r.help, r.factory); err != nil {
			return err
		}
	}

	deprecated := []struct {
		registration
		replacement string
	}{
		{registration{"login", "Log in to a server", sessionscmd.NewLoginCmd}, "sessions login"},
		{registration{"logout", "Log out of the current session", sessionscmd.NewLogoutCmd}, "sessions logout"},
	}
	for _, r := range deprecated {
		if err := a.Registry.RegisterDeprecated(r.name, r.help, r.replacement, r.factory); err != nil {
			return err
		}
	}
	return nil
}

// Run dispatches args. Without a command, including a line of only global
// flags, it starts the interactive shell on a terminal and reads commands
// from standard input otherwise.
func (a *App) Run(ctx context.Context, args []string, interactive bool) int {
	defer a.Context.Close()

	if len(args) == 0 {
		return a.drive(ctx, interactive)
	}
	a.Dispatcher.Default = func(ctx context.Context) int {
		a.Dispatcher.Default = nil
		return a.drive(ctx, interactive)
	}
	return a.Dispatcher.Dispatch(ctx, args)
}

func (a *App) drive(ctx context.Context, interactive bool) int {
	if !interactive {
		b := script.NewBatch(a.Dispatcher)
		b.Strict = a.Context.Strict()
		return b.Run(ctx, nil)
	}

	src, err := script.NewReadline(script.DefaultPrompt, historyFile(a.Context.Config()), a.Registry.Names())
	if err != nil {
		a.Context.Err(fmt.Sprintf("Error: %v", err))
		return command.ExitFailure
	}
	return script.NewShell(a.Dispatcher, src).Run(ctx)
}

// Execute runs omectl with the process arguments and returns the exit code.
func Execute(args []string) int {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return command.ExitUsage
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return command.ExitFailure
	}
	logger.Debug("starting", "version", versionString())

	// Scripts and prompts read the same buffered stdin.
	stdin := bufio.NewReader(os.Stdin)
	tty := term.IsTerminal(int(os.Stdin.Fd()))
	var p prompt.Prompter = prompt.NewReader(stdin, os.Stderr)
	if tty {
		p = prompt.Terminal{}
	}

	app, err := NewApp(cfg, command.Options{
		In:       stdin,
		Out:      os.Stdout,
		Err:      os.Stderr,
		Prompter: p,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return command.ExitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return app.Run(ctx, args, tty)
}

// configPath finds --config before the command tree exists.
func configPath(args []string) string {
	fs := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.String("config", "", "")
	_ = fs.Parse(args)
	return *path
}

func historyFile(cfg *config.Config) string {
	if cfg.CLI.HistoryFile != "" {
		return cfg.CLI.HistoryFile
	}
	return filepath.Join(config.GetConfigDir(), "history")
}
