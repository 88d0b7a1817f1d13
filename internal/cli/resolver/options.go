package resolver

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/marmos91/omectl/internal/cli/sessions"
)

// ErrInvalidOptions reports malformed login arguments.
var ErrInvalidOptions = errors.New("invalid login options")

// Options are the login arguments shared by every command that connects.
type Options struct {
	Server   string
	User     string
	Password string
	// Key is an existing session id to join instead of logging in.
	Key   string
	Port  string
	Group string
	// Props are free-form key=value overrides stored with the session.
	Props map[string]string
	// NoPassword forbids prompting for a password.
	NoPassword bool
}

// RequestedProps returns the properties a session must match (group, port)
// plus the free-form overrides. Identity keys cannot be overridden.
func (o Options) RequestedProps() sessions.Properties {
	p := make(sessions.Properties, len(o.Props)+2)
	for k, v := range o.Props {
		switch k {
		case sessions.KeyHost, sessions.KeyUser, sessions.KeySess:
			continue
		}
		p[k] = v
	}
	if o.Group != "" {
		p[sessions.KeyGroup] = o.Group
	}
	if o.Port != "" {
		p[sessions.KeyPort] = o.Port
	}
	return p
}

// Validate checks the option values that can be checked without the store.
func (o Options) Validate() error {
	if o.Port != "" {
		if _, err := ParsePort(o.Port); err != nil {
			return err
		}
	}
	if o.NoPassword && o.Password != "" {
		return fmt.Errorf("%w: --password cannot be combined with --no-password", ErrInvalidOptions)
	}
	return nil
}

// ApplyTarget fills Server, User and Port from a "[user@]server[:port]"
// target. A target that contradicts an explicit flag is rejected.
func (o *Options) ApplyTarget(target string) error {
	user, server, port, err := ParseTarget(target)
	if err != nil {
		return err
	}
	if err := merge(&o.Server, server, "server"); err != nil {
		return err
	}
	if err := merge(&o.User, user, "user"); err != nil {
		return err
	}
	return merge(&o.Port, port, "port")
}

func merge(field *string, value, name string) error {
	if value == "" {
		return nil
	}
	if *field != "" && *field != value {
		return fmt.Errorf("%w: target %s %q conflicts with --%s %q", ErrInvalidOptions, name, value, name, *field)
	}
	*field = value
	return nil
}

// ParseTarget splits "[user@]server[:port]".
func ParseTarget(target string) (user, server, port string, err error) {
	rest := target
	if i := strings.LastIndex(target, "@"); i >= 0 {
		user, rest = target[:i], target[i+1:]
		if user == "" {
			return "", "", "", fmt.Errorf("%w: empty user in %q", ErrInvalidOptions, target)
		}
	}

	server = rest
	if strings.Count(rest, ":") == 1 || strings.HasPrefix(rest, "[") {
		h, p, splitErr := net.SplitHostPort(rest)
		if splitErr != nil {
			return "", "", "", fmt.Errorf("%w: %q: %v", ErrInvalidOptions, target, splitErr)
		}
		if _, err := ParsePort(p); err != nil {
			return "", "", "", err
		}
		server, port = h, p
	}

	if server == "" {
		return "", "", "", fmt.Errorf("%w: empty server in %q", ErrInvalidOptions, target)
	}
	return user, server, port, nil
}

// ParsePort validates a TCP port number.
func ParsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("%w: port must be 1-65535, got %q", ErrInvalidOptions, s)
	}
	return n, nil
}

// ParseProps parses key=value pairs as given to --prop.
func ParseProps(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: property %q is not key=value", ErrInvalidOptions, pair)
		}
		out[k] = v
	}
	return out, nil
}
