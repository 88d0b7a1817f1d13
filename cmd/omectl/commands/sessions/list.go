package sessions

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
	sessionstore "github.com/marmos91/omectl/internal/cli/sessions"
	"github.com/marmos91/omectl/internal/cli/timeutil"
)

// SessionView is one cached session as listed.
type SessionView struct {
	Server   string    `json:"server" yaml:"server"`
	User     string    `json:"user" yaml:"user"`
	ID       string    `json:"id" yaml:"id"`
	Group    string    `json:"group,omitempty" yaml:"group,omitempty"`
	Port     string    `json:"port,omitempty" yaml:"port,omitempty"`
	LastUsed time.Time `json:"last_used" yaml:"last_used"`
	Current  bool      `json:"current" yaml:"current"`
}

// SessionList renders sessions as a table.
type SessionList []SessionView

// Headers implements TableRenderer.
func (l SessionList) Headers() []string {
	return []string{"", "SERVER", "USER", "SESSION", "GROUP", "LAST USED"}
}

// Rows implements TableRenderer.
func (l SessionList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		mark := ""
		if s.Current {
			mark = "*"
		}
		server := s.Server
		if s.Port != "" {
			server += ":" + s.Port
		}
		group := s.Group
		if group == "" {
			group = "-"
		}
		rows = append(rows, []string{mark, server, s.User, s.ID, group, timeutil.FormatAge(s.LastUsed)})
	}
	return rows
}

// EmptyMessage implements EmptyRenderer.
func (l SessionList) EmptyMessage() string {
	return "No sessions found."
}

func newListCmd(c *command.Context) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached sessions",
		Long: `List every session in the local cache, most recently used first
within each user. The current session is marked with *.

Examples:
  # List sessions as table
  omectl sessions list

  # List as JSON
  omectl sessions list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.Store()
			if err != nil {
				return err
			}
			list, err := listSessions(store)
			if err != nil {
				return err
			}
			return c.Printer().Print(list)
		},
	}
}

func listSessions(store *sessionstore.Store) (SessionList, error) {
	entries, err := store.List()
	if err != nil {
		return nil, err
	}

	server, user, sess, err := current(store)
	if err != nil && !errors.Is(err, sessionstore.ErrNotFound) {
		return nil, err
	}

	list := make(SessionList, 0, len(entries))
	for _, e := range entries {
		list = append(list, SessionView{
			Server:   e.Server,
			User:     e.User,
			ID:       e.ID,
			Group:    e.Props[sessionstore.KeyGroup],
			Port:     e.Props[sessionstore.KeyPort],
			LastUsed: e.ModTime,
			Current:  e.Server == server && e.User == user && e.ID == sess,
		})
	}
	return list, nil
}
