package command

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/omectl/internal/cli/prompt"
	"github.com/marmos91/omectl/pkg/config"
)

func newTestContext(input string) (*Context, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	in := strings.NewReader(input)
	c := NewContext(Options{
		In:       in,
		Out:      &stdout,
		Err:      &stderr,
		Prompter: prompt.NewReader(in, &stderr),
	})
	return c, &stdout, &stderr
}

func TestContextOutput(t *testing.T) {
	c, stdout, stderr := newTestContext("")

	c.Out("one")
	c.Out("two\n")
	c.Print("three")
	c.Outf(" %d\n", 4)
	assert.Equal(t, "one\ntwo\nthree 4\n", stdout.String())

	c.Dbg("hidden")
	c.Info("status")
	c.Success("done")
	c.Warning("careful")
	c.Err("problem")
	assert.Equal(t, "status\ndone\ncareful\nproblem\n", stderr.String())

	stderr.Reset()
	c.settings.debug = true
	c.settings.quiet = true
	c.Dbg("shown")
	c.Info("hidden")
	c.Success("hidden")
	c.Warning("hidden")
	assert.Equal(t, "debug: shown\n", stderr.String())
}

func TestContextInput(t *testing.T) {
	c, _, stderr := newTestContext("plain\nsecret\n")

	v, err := c.Input("Name", false)
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	v, err = c.Input("Password", true)
	require.NoError(t, err)
	assert.Equal(t, "secret", v)
	assert.Contains(t, stderr.String(), "Name: ")

	_, err = c.Input("More", false)
	assert.ErrorIs(t, err, prompt.ErrAborted)
}

func TestContextDie(t *testing.T) {
	c, _, _ := newTestContext("")
	err := c.Die(9, "bad %s", "thing")

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 9, exitErr.Code)
	assert.Equal(t, "bad thing", exitErr.Message)
}

func TestContextDefaults(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.CLI.Output = "yaml"
	cfg.Sessions.Dir = t.TempDir()

	c := NewContext(Options{Config: cfg, Out: &bytes.Buffer{}})
	assert.Equal(t, "yaml", c.Printer().Format().String())

	store, err := c.Store()
	require.NoError(t, err)
	assert.Equal(t, cfg.Sessions.Dir, store.Base())

	again, err := c.Store()
	require.NoError(t, err)
	assert.Same(t, store, again)
	assert.NotNil(t, c.Adapter())
}

func TestLoginFlagsOptions(t *testing.T) {
	l := LoginFlags{User: "alice", Group: "g1", Props: []string{"lang=en"}}

	opts, err := l.Options("host1:4444")
	require.NoError(t, err)
	assert.Equal(t, "host1", opts.Server)
	assert.Equal(t, "alice", opts.User)
	assert.Equal(t, "4444", opts.Port)
	assert.Equal(t, "g1", opts.Group)
	assert.Equal(t, map[string]string{"lang": "en"}, opts.Props)

	_, err = l.Options("bob@host1")
	assert.Error(t, err)

	_, err = (&LoginFlags{Password: "x", NoPassword: true}).Options("")
	assert.Error(t, err)
}
