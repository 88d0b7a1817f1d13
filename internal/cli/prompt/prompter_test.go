package prompt

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderInput(t *testing.T) {
	var out bytes.Buffer
	r := NewReader(strings.NewReader("host1\n\n"), &out)

	v, err := r.Input("Server", "localhost")
	require.NoError(t, err)
	assert.Equal(t, "host1", v)
	assert.Equal(t, "Server: [localhost] ", out.String())

	v, err = r.Input("Server", "localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", v, "empty answer takes the default")
}

func TestReaderPassword(t *testing.T) {
	var out bytes.Buffer
	r := NewReader(strings.NewReader("s3cret\r\n"), &out)

	v, err := r.Password("Password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)
	assert.Equal(t, "Password: ", out.String())
}

func TestReaderLastLineWithoutNewline(t *testing.T) {
	r := NewReader(strings.NewReader("alice"), &bytes.Buffer{})
	v, err := r.Input("Username", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
}

func TestReaderEOFAborts(t *testing.T) {
	r := NewReader(strings.NewReader(""), &bytes.Buffer{})

	_, err := r.Input("Server", "localhost")
	assert.ErrorIs(t, err, ErrAborted)
	assert.True(t, IsAborted(err))

	_, err = r.Password("Password")
	assert.ErrorIs(t, err, ErrAborted)
}

func TestReaderConfirm(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"maybe\n", true, false},
	}

	for _, tt := range tests {
		r := NewReader(strings.NewReader(tt.input), &bytes.Buffer{})
		got, err := r.Confirm("Remove all sessions?", tt.defaultYes)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q default %v", tt.input, tt.defaultYes)
	}
}

func TestNewReaderSharesBufferedReader(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("first\nsecond\n"))
	r := NewReader(br, &bytes.Buffer{})

	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "first\n", line)

	v, err := r.Input("Next", "")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestNewPicksReaderForNonTerminal(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{})
	_, ok := p.(*Reader)
	assert.True(t, ok)
}
