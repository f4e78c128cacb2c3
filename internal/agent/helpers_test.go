package agent

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hnrobert/lumauth/internal/helper"
	"github.com/hnrobert/lumauth/internal/identity"
	"github.com/hnrobert/lumauth/internal/secret"
)

const waitFor = 2 * time.Second

type staticResolver []string

func (r staticResolver) ResolveAll(context.Context, []identity.Identity) []string {
	return append([]string(nil), r...)
}

// fakeHelper is the helper side of one dialed conversation.
type fakeHelper struct {
	username string
	cookie   string
	conn     net.Conn
	r        *bufio.Reader
}

func (h *fakeHelper) send(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, h.conn.SetWriteDeadline(time.Now().Add(waitFor)))
		_, err := h.conn.Write([]byte(l + "\n"))
		require.NoError(t, err, "send %q", l)
	}
}

func (h *fakeHelper) readLine(t *testing.T) string {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(waitFor)))
	line, err := h.r.ReadString('\n')
	require.NoError(t, err)
	return line
}

// rest returns everything the agent writes until it closes the conn.
func (h *fakeHelper) rest(t *testing.T) string {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(waitFor)))
	b, err := io.ReadAll(h.r)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		require.NoError(t, err)
	}
	return string(b)
}

func (h *fakeHelper) close() {
	_ = h.conn.Close()
}

type pipeDialer struct {
	persistent bool
	err        error
	dials      atomic.Int32
	helpers    chan *fakeHelper
}

func newPipeDialer(persistent bool) *pipeDialer {
	return &pipeDialer{persistent: persistent, helpers: make(chan *fakeHelper, 8)}
}

func (d *pipeDialer) Dial(ctx context.Context, username, cookie string) (helper.Conn, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	local, remote := net.Pipe()
	h := &fakeHelper{username: username, cookie: cookie, conn: remote, r: bufio.NewReader(remote)}
	select {
	case d.helpers <- h:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return helper.NewConn(local, d.persistent), nil
}

func (d *pipeDialer) next(t *testing.T) *fakeHelper {
	t.Helper()
	select {
	case h := <-d.helpers:
		t.Cleanup(h.close)
		return h
	case <-time.After(waitFor):
		t.Fatal("agent never dialed the helper")
		return nil
	}
}

type harness struct {
	t      *testing.T
	c      *Coordinator
	dialer *pipeDialer
	ctx    context.Context

	mu      sync.Mutex
	results map[string]chan error
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	if opts.Dialer == nil {
		opts.Dialer = newPipeDialer(false)
	}
	if opts.Resolver == nil {
		opts.Resolver = staticResolver{"alice"}
	}
	if opts.Locale == "" {
		opts.Locale = "C"
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := New(opts)
	go func() { _ = c.Run(ctx) }()

	d, _ := opts.Dialer.(*pipeDialer)
	return &harness{t: t, c: c, dialer: d, ctx: ctx, results: map[string]chan error{}}
}

// begin starts BeginAuthentication in the background, like a bus call.
func (h *harness) begin(cookie string) {
	h.t.Helper()
	done := make(chan error, 1)
	h.mu.Lock()
	h.results[cookie] = done
	h.mu.Unlock()
	go func() {
		done <- h.c.Begin(h.ctx, Request{
			ActionID:   "org.example.action",
			Message:    "Authentication is required",
			Cookie:     cookie,
			Identities: []identity.Identity{identity.UnixUser(1000)},
		})
	}()
}

func (h *harness) result(cookie string) error {
	h.t.Helper()
	h.mu.Lock()
	done := h.results[cookie]
	h.mu.Unlock()
	select {
	case err := <-done:
		return err
	case <-time.After(waitFor):
		h.t.Fatalf("BeginAuthentication(%s) never returned", cookie)
		return nil
	}
}

func (h *harness) event() AgentEvent {
	h.t.Helper()
	select {
	case ev := <-h.c.Events():
		return ev
	case <-time.After(waitFor):
		h.t.Fatal("no agent event")
		return nil
	}
}

func (h *harness) noEvent(within time.Duration) {
	h.t.Helper()
	select {
	case ev := <-h.c.Events():
		h.t.Fatalf("unexpected event %#v", ev)
	case <-time.After(within):
	}
}

func (h *harness) started(cookie string) Started {
	h.t.Helper()
	ev := h.event()
	s, ok := ev.(Started)
	require.True(h.t, ok, "want Started, got %#v", ev)
	require.Equal(h.t, cookie, s.Cookie)
	return s
}

func (h *harness) password(cookie, user, pw string) *secret.Password {
	h.t.Helper()
	p, err := secret.NewPassword([]byte(pw))
	require.NoError(h.t, err)
	h.c.Input() <- ProvidedPassword{Cookie: cookie, Username: user, Password: p}
	return p
}

func (h *harness) userCancel(cookie string) {
	h.c.Input() <- UserCanceled{Cookie: cookie}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
