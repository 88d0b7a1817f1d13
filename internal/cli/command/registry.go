package command

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// Factory builds a fresh command tree for one dispatch. Flag variables live
// in the factory's closure, so every invocation starts from defaults.
type Factory func(c *Context) *cobra.Command

type entry struct {
	name        string
	help        string
	factory     Factory
	replacement string
}

func (e *entry) deprecated() bool {
	return e.replacement != ""
}

// Registry maps top-level command names to their factories and help text.
// It is built once at startup and shared by every dispatch.
type Registry struct {
	entries        map[string]*entry
	hideDeprecated bool
}

// NewRegistry creates an empty registry. With hideDeprecated set,
// RegisterDeprecated is a silent no-op.
func NewRegistry(hideDeprecated bool) *Registry {
	return &Registry{
		entries:        make(map[string]*entry),
		hideDeprecated: hideDeprecated,
	}
}

// Register adds a command. Registering the same name, help and factory again
// is a no-op; any other reuse of a name fails with ErrDuplicateCommand.
func (r *Registry) Register(name, help string, f Factory) error {
	return r.add(&entry{name: name, help: help, factory: f})
}

// RegisterDeprecated adds a command that points users at replacement.
func (r *Registry) RegisterDeprecated(name, help, replacement string, f Factory) error {
	if r.hideDeprecated {
		return nil
	}
	return r.add(&entry{name: name, help: help, factory: f, replacement: replacement})
}

func (r *Registry) add(e *entry) error {
	if e.name == "" || strings.ContainsAny(e.name, " \t") {
		return fmt.Errorf("%w: invalid command name %q", ErrInternal, e.name)
	}
	if e.factory == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInternal, e.name)
	}

	if old, ok := r.entries[e.name]; ok {
		if old.help == e.help && old.replacement == e.replacement && sameFactory(old.factory, e.factory) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, e.name)
	}
	r.entries[e.name] = e
	return nil
}

func sameFactory(a, b Factory) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Help returns the help text for topic. An empty topic lists every command.
func (r *Registry) Help(topic string) (string, error) {
	if topic == "" {
		var b strings.Builder
		b.WriteString("Commands:\n")
		width := 0
		for _, name := range r.Names() {
			width = max(width, len(name))
		}
		for _, name := range r.Names() {
			e := r.entries[name]
			help := e.help
			if e.deprecated() {
				help += fmt.Sprintf(" (deprecated, use %q)", e.replacement)
			}
			fmt.Fprintf(&b, "  %-*s  %s\n", width, name, help)
		}
		b.WriteString("\nUse \"help <command>\" for more information about a command.\n")
		return b.String(), nil
	}

	e, ok := r.entries[topic]
	if !ok {
		return "", Usagef("no help for %q", topic)
	}
	return e.help + "\n", nil
}

// build instantiates every registered command under root.
func (r *Registry) build(root *cobra.Command, c *Context) {
	for _, name := range r.Names() {
		e := r.entries[name]
		cmd := e.factory(c)
		if cmd == nil {
			continue
		}
		if cmd.Name() != name {
			cmd.Use = name + strings.TrimPrefix(cmd.Use, cmd.Name())
		}
		if cmd.Short == "" {
			cmd.Short = e.help
		}
		if e.deprecated() {
			deprecate(c, cmd, e)
		}
		root.AddCommand(cmd)
	}
}

// deprecate hides cmd from listings and warns on stderr whenever it runs.
func deprecate(c *Context, cmd *cobra.Command, e *entry) {
	cmd.Hidden = true
	next := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		c.Err(fmt.Sprintf("Command %q is deprecated, use %q instead.", e.name, e.replacement))
		if next != nil {
			return next(cmd, args)
		}
		return nil
	}
}
