package command

import (
	"github.com/marmos91/omectl/internal/cli/resolver"
	"github.com/spf13/pflag"
)

// LoginFlags are the shared login arguments a command adds to its own flag
// set when it needs a server session.
type LoginFlags struct {
	Server     string
	User       string
	Password   string
	Key        string
	Port       string
	Group      string
	Props      []string
	NoPassword bool
}

// AddFlags registers the login flags on fs.
func (l *LoginFlags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&l.Server, "server", "s", "", "Server host name or URL")
	fs.StringVarP(&l.User, "user", "u", "", "User name")
	fs.StringVarP(&l.Password, "password", "w", "", "Password (prompted when needed)")
	fs.StringVarP(&l.Key, "key", "k", "", "Existing session key to join")
	fs.StringVarP(&l.Port, "port", "p", "", "Server port")
	fs.StringVarP(&l.Group, "group", "g", "", "Group to log in to")
	fs.StringArrayVarP(&l.Props, "prop", "C", nil, "Extra session property (key=value, repeatable)")
	fs.BoolVar(&l.NoPassword, "no-password", false, "Never prompt for a password")
}

// Options converts the parsed flags, plus an optional [user@]server[:port]
// target, into resolver options.
func (l *LoginFlags) Options(target string) (resolver.Options, error) {
	props, err := resolver.ParseProps(l.Props)
	if err != nil {
		return resolver.Options{}, err
	}

	opts := resolver.Options{
		Server:     l.Server,
		User:       l.User,
		Password:   l.Password,
		Key:        l.Key,
		Port:       l.Port,
		Group:      l.Group,
		Props:      props,
		NoPassword: l.NoPassword,
	}
	if target != "" {
		if err := opts.ApplyTarget(target); err != nil {
			return resolver.Options{}, err
		}
	}
	if err := opts.Validate(); err != nil {
		return resolver.Options{}, err
	}
	return opts, nil
}
