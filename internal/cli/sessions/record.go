package sessions

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Recognized property keys.
const (
	KeyHost  = "host"
	KeyUser  = "user"
	KeySess  = "sess"
	KeyGroup = "group"
	KeyPort  = "port"
)

// ConflictKeys is the minimal set of properties that must agree between a
// cached session and a new request for the session to be reused.
var ConflictKeys = []string{KeyGroup, KeyPort}

// Properties is the payload of a session record.
type Properties map[string]string

// Clone returns a copy of p. A nil receiver yields an empty map.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p overlaid with other.
func (p Properties) Merge(other Properties) Properties {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// withIdentity returns a copy of p with the identity keys set.
func (p Properties) withIdentity(server, user, sess string) Properties {
	out := p.Clone()
	out[KeyHost] = server
	out[KeyUser] = user
	out[KeySess] = sess
	return out
}

// checkIdentity reports ErrCorruptRecord unless the identity keys match.
func (p Properties) checkIdentity(server, user, sess string) error {
	want := map[string]string{KeyHost: server, KeyUser: user, KeySess: sess}
	for _, k := range []string{KeyHost, KeyUser, KeySess} {
		got, ok := p[k]
		if !ok {
			return fmt.Errorf("%w: missing %q", ErrCorruptRecord, k)
		}
		if got != want[k] {
			return fmt.Errorf("%w: %s=%q does not match path component %q", ErrCorruptRecord, k, got, want[k])
		}
	}
	return nil
}

// orderedKeys returns the identity keys first, then the rest sorted.
func (p Properties) orderedKeys() []string {
	keys := make([]string, 0, len(p))
	for _, k := range []string{KeyHost, KeyUser, KeySess} {
		if _, ok := p[k]; ok {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(p))
	for k := range p {
		if k != KeyHost && k != KeyUser && k != KeySess {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Conflicts describes the mismatches between cached and requested on the
// ConflictKeys. Requested keys with an empty value are ignored; a cached key
// that is absent differs from any non-empty request. The result is empty when
// the two are compatible.
func Conflicts(cached, requested Properties) string {
	var diffs []string
	for _, k := range ConflictKeys {
		want := requested[k]
		if want == "" {
			continue
		}
		got, ok := cached[k]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: cached=<unset> requested=%q", k, want))
			continue
		}
		if got != want {
			diffs = append(diffs, fmt.Sprintf("%s: cached=%q requested=%q", k, got, want))
		}
	}
	return strings.Join(diffs, ", ")
}

// EncodeRecord writes p as key=value lines, identity keys first.
func EncodeRecord(w io.Writer, p Properties) error {
	var buf bytes.Buffer
	for _, k := range p.orderedKeys() {
		v := p[k]
		if k == "" || strings.ContainsAny(k, "=\n\r") {
			return fmt.Errorf("%w: key %q", ErrInvalidProperty, k)
		}
		if strings.ContainsAny(v, "\n\r") {
			return fmt.Errorf("%w: value of %q contains a newline", ErrInvalidProperty, k)
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// DecodeRecord parses key=value lines. Blank lines are skipped; a line
// without '=' yields ErrCorruptRecord.
func DecodeRecord(r io.Reader) (Properties, error) {
	props := make(Properties)
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("%w: line %d: expected key=value, got %q", ErrCorruptRecord, lineNumber, line)
		}
		props[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return props, nil
}
