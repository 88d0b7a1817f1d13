package command

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(c *Context) *cobra.Command {
	return &cobra.Command{
		Use: "echo [words...]",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				c.Out(a)
			}
			return nil
		},
	}
}

func newNoop(c *Context) *cobra.Command {
	return &cobra.Command{Use: "noop", RunE: func(*cobra.Command, []string) error { return nil }}
}

func TestRegistryRegister(t *testing.T) {
	t.Run("same pair is idempotent", func(t *testing.T) {
		r := NewRegistry(false)
		require.NoError(t, r.Register("echo", "Print arguments", newEcho))
		require.NoError(t, r.Register("echo", "Print arguments", newEcho))
		assert.Equal(t, []string{"echo"}, r.Names())
	})

	t.Run("different factory fails", func(t *testing.T) {
		r := NewRegistry(false)
		require.NoError(t, r.Register("echo", "Print arguments", newEcho))
		err := r.Register("echo", "Print arguments", newNoop)
		assert.ErrorIs(t, err, ErrDuplicateCommand)
	})

	t.Run("different help fails", func(t *testing.T) {
		r := NewRegistry(false)
		require.NoError(t, r.Register("echo", "Print arguments", newEcho))
		assert.ErrorIs(t, r.Register("echo", "Something else", newEcho), ErrDuplicateCommand)
	})

	t.Run("invalid entries", func(t *testing.T) {
		r := NewRegistry(false)
		assert.ErrorIs(t, r.Register("", "x", newEcho), ErrInternal)
		assert.ErrorIs(t, r.Register("two words", "x", newEcho), ErrInternal)
		assert.ErrorIs(t, r.Register("nil", "x", nil), ErrInternal)
	})
}

func TestRegistryDeprecated(t *testing.T) {
	shown := NewRegistry(false)
	require.NoError(t, shown.RegisterDeprecated("old", "Old name", "new", newNoop))
	assert.True(t, shown.Has("old"))

	hidden := NewRegistry(true)
	require.NoError(t, hidden.RegisterDeprecated("old", "Old name", "new", newNoop))
	assert.False(t, hidden.Has("old"))
	assert.Empty(t, hidden.Names())
}

func TestRegistryHelp(t *testing.T) {
	r := NewRegistry(false)
	require.NoError(t, r.Register("echo", "Print arguments", newEcho))
	require.NoError(t, r.Register("noop", "Do nothing", newNoop))
	require.NoError(t, r.RegisterDeprecated("old", "Old name", "noop", newNoop))

	all, err := r.Help("")
	require.NoError(t, err)
	assert.Contains(t, all, "echo  Print arguments")
	assert.Contains(t, all, "noop  Do nothing")
	assert.Contains(t, all, `(deprecated, use "noop")`)

	one, err := r.Help("echo")
	require.NoError(t, err)
	assert.Equal(t, "Print arguments\n", one)

	_, err = r.Help("missing")
	assert.ErrorIs(t, err, ErrUsage)
}
