package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/omectl/pkg/remote"
)

var errUnexpectedPrompt = errors.New("unexpected prompt")

type fakeHandle struct {
	sid string
}

func (h *fakeHandle) SessionID() string { return h.sid }

// fakeAdapter is an in-memory server that records every call.
type fakeAdapter struct {
	mu sync.Mutex

	password string
	alive    map[string]bool
	// ids are handed out by Authenticate in order.
	ids []string

	attachErr    error
	keepAliveErr map[string]error

	authCalls   int
	attachCalls int
	keepAlives  map[string]int
	closed      int
	lastProps   map[string]string
}

func newFakeAdapter(password string, alive ...string) *fakeAdapter {
	f := &fakeAdapter{
		password:     password,
		alive:        make(map[string]bool),
		keepAliveErr: make(map[string]error),
		keepAlives:   make(map[string]int),
	}
	for _, sid := range alive {
		f.alive[sid] = true
	}
	return f
}

func (f *fakeAdapter) Authenticate(_ context.Context, server, user, password string, props map[string]string) (remote.Handle, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	f.lastProps = props
	if password != f.password {
		return nil, "", fmt.Errorf("%w: bad password for %s@%s", remote.ErrAuthFailed, user, server)
	}
	if len(f.ids) == 0 {
		return nil, "", errors.New("fake adapter ran out of session ids")
	}
	sid := f.ids[0]
	f.ids = f.ids[1:]
	f.alive[sid] = true
	return &fakeHandle{sid: sid}, sid, nil
}

func (f *fakeAdapter) Attach(_ context.Context, _, _, sid string, props map[string]string) (remote.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachCalls++
	f.lastProps = props
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	if !f.alive[sid] {
		return nil, fmt.Errorf("%w: %s", remote.ErrSessionInvalid, sid)
	}
	return &fakeHandle{sid: sid}, nil
}

func (f *fakeAdapter) KeepAlive(_ context.Context, h remote.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sid := h.SessionID()
	f.keepAlives[sid]++
	return f.keepAliveErr[sid]
}

func (f *fakeAdapter) Close(remote.Handle) {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

type promptCall struct {
	label  string
	def    string
	hidden bool
}

// scriptedPrompter answers prompts from a fixed list and records them.
type scriptedPrompter struct {
	answers []string
	calls   []promptCall
}

func (p *scriptedPrompter) next(c promptCall) (string, error) {
	p.calls = append(p.calls, c)
	if len(p.answers) == 0 {
		return "", fmt.Errorf("%w: %s", errUnexpectedPrompt, c.label)
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	if a == "" && !c.hidden {
		return c.def, nil
	}
	return a, nil
}

func (p *scriptedPrompter) Input(label, def string) (string, error) {
	return p.next(promptCall{label: label, def: def})
}

func (p *scriptedPrompter) Password(label string) (string, error) {
	return p.next(promptCall{label: label, hidden: true})
}

func (p *scriptedPrompter) labels() []string {
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.label
	}
	return out
}
