package sessions

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRecordOrdersIdentityFirst(t *testing.T) {
	props := Properties{
		"port":  "4064",
		"sess":  "S1",
		"group": "g1",
		"host":  "host1",
		"user":  "alice",
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeRecord(&buf, props))
	assert.Equal(t, "host=host1\nuser=alice\nsess=S1\ngroup=g1\nport=4064\n", buf.String())
}

func TestEncodeRecordRejectsUnserializable(t *testing.T) {
	tests := []struct {
		name  string
		props Properties
	}{
		{"newline in value", Properties{"k": "a\nb"}},
		{"equals in key", Properties{"a=b": "v"}},
		{"empty key", Properties{"": "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EncodeRecord(&bytes.Buffer{}, tt.props)
			assert.ErrorIs(t, err, ErrInvalidProperty)
		})
	}
}

func TestDecodeRecord(t *testing.T) {
	t.Run("tolerates blank lines and trailing newline", func(t *testing.T) {
		props, err := DecodeRecord(strings.NewReader("host=h\n\nuser=u\r\nsess=s\nextra=a=b\n\n"))
		require.NoError(t, err)
		assert.Equal(t, Properties{"host": "h", "user": "u", "sess": "s", "extra": "a=b"}, props)
	})

	t.Run("empty value", func(t *testing.T) {
		props, err := DecodeRecord(strings.NewReader("group=\n"))
		require.NoError(t, err)
		assert.Equal(t, Properties{"group": ""}, props)
	})

	t.Run("line without equals is corrupt", func(t *testing.T) {
		_, err := DecodeRecord(strings.NewReader("host=h\ngarbage\n"))
		assert.ErrorIs(t, err, ErrCorruptRecord)
		assert.Contains(t, err.Error(), "line 2")
	})
}

func TestRecordRoundTrip(t *testing.T) {
	props := Properties{
		"host":    "h",
		"user":    "u",
		"sess":    "s",
		"group":   "lab",
		"port":    "4064",
		"comment": "  spaces kept  ",
		"unicode": "héllo wörld",
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeRecord(&buf, props))

	got, err := DecodeRecord(&buf)
	require.NoError(t, err)
	assert.Equal(t, props, got)
}

func TestConflicts(t *testing.T) {
	cached := Properties{"host": "h", "user": "u", "sess": "s", "group": "g1", "port": "4444"}

	tests := []struct {
		name      string
		cached    Properties
		requested Properties
		conflict  bool
	}{
		{"no request", cached, Properties{}, false},
		{"nil request", cached, nil, false},
		{"same group", cached, Properties{"group": "g1"}, false},
		{"other group", cached, Properties{"group": "g2"}, true},
		{"same port", cached, Properties{"port": "4444"}, false},
		{"other port", cached, Properties{"port": "5555"}, true},
		{"empty requested value ignored", cached, Properties{"group": ""}, false},
		{"non conflict key ignored", cached, Properties{"timeout": "10"}, false},
		{"absent cached group", Properties{"host": "h"}, Properties{"group": "g1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Conflicts(tt.cached, tt.requested)
			if tt.conflict {
				assert.NotEmpty(t, c)
			} else {
				assert.Empty(t, c)
			}
		})
	}
}

func TestPropertiesMergeDoesNotAlias(t *testing.T) {
	a := Properties{"x": "1"}
	b := a.Merge(Properties{"y": "2"})

	assert.Equal(t, Properties{"x": "1", "y": "2"}, b)
	assert.Equal(t, Properties{"x": "1"}, a)

	var nilProps Properties
	assert.NotNil(t, nilProps.Clone())
}
