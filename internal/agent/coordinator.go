package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hnrobert/lumauth/internal/helper"
	"github.com/hnrobert/lumauth/internal/i18n"
	"github.com/hnrobert/lumauth/internal/identity"
	"github.com/hnrobert/lumauth/internal/logger"
)

// NameResolver turns candidate identities into account names.
type NameResolver interface {
	ResolveAll(ctx context.Context, ids []identity.Identity) []string
}

type Options struct {
	Dialer   helper.Dialer
	Resolver NameResolver
	// Locale selects the language of messages the agent writes itself.
	Locale string
	// MaxAttempts ends a session as not authorized after this many helper
	// failures. Zero means unlimited.
	MaxAttempts int
	// AttemptTimeout fails a session whose helper stops answering during an
	// attempt. Zero disables it.
	AttemptTimeout time.Duration
	// EventBuffer sizes both event channels.
	EventBuffer int
}

// Coordinator owns every live session, keyed by cookie.
type Coordinator struct {
	dialer         helper.Dialer
	resolver       NameResolver
	tr             *i18n.Translator
	maxAttempts    int
	attemptTimeout time.Duration

	events chan AgentEvent
	input  chan UserEvent

	mu       sync.Mutex
	sessions map[string]*session

	closeOnce sync.Once
	closed    chan struct{}
}

func New(opts Options) *Coordinator {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 16
	}
	if opts.Resolver == nil {
		opts.Resolver = identity.NewResolver(2 * time.Second)
	}
	return &Coordinator{
		dialer:         opts.Dialer,
		resolver:       opts.Resolver,
		tr:             i18n.New(opts.Locale),
		maxAttempts:    opts.MaxAttempts,
		attemptTimeout: opts.AttemptTimeout,
		events:         make(chan AgentEvent, opts.EventBuffer),
		input:          make(chan UserEvent, opts.EventBuffer),
		sessions:       make(map[string]*session),
		closed:         make(chan struct{}),
	}
}

// Events is read by the consumer.
func (c *Coordinator) Events() <-chan AgentEvent {
	return c.events
}

// Input is written by the consumer.
func (c *Coordinator) Input() chan<- UserEvent {
	return c.input
}

// Run routes consumer input to sessions until ctx is done. Input for a
// cookie without a live session is dropped.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.closeOnce.Do(func() { close(c.closed) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.input:
			c.route(ev)
		}
	}
}

func (c *Coordinator) route(ev UserEvent) {
	c.mu.Lock()
	s := c.sessions[ev.SessionCookie()]
	c.mu.Unlock()
	if s == nil || !s.mb.put(ev) {
		logger.Debug("dropped %T for inactive session", ev)
		Release(ev)
	}
}

// Begin runs one authentication session and returns when it is over: nil
// on success, otherwise an error matching ErrCancelled, ErrNotAuthorized,
// ErrFailed or ErrAlreadyActive.
func (c *Coordinator) Begin(ctx context.Context, req Request) error {
	if req.Cookie == "" {
		return fmt.Errorf("%w: empty cookie", ErrFailed)
	}
	sctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	if _, ok := c.sessions[req.Cookie]; ok {
		c.mu.Unlock()
		logger.Warn("rejected second authentication request for an active cookie")
		return ErrAlreadyActive
	}
	s := newSession(c, req, cancel)
	c.sessions[req.Cookie] = s
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.sessions, req.Cookie)
		c.mu.Unlock()
	}()

	s.log.Info("authentication requested")
	return s.run(sctx)
}

// Cancel asks the session for cookie to stop. It reports whether a live
// session was found; repeated calls are harmless.
func (c *Coordinator) Cancel(cookie string) bool {
	c.mu.Lock()
	s := c.sessions[cookie]
	c.mu.Unlock()
	if s == nil {
		return false
	}
	s.cancel(ErrCancelled)
	return true
}

// State returns the state of the live session for cookie.
func (c *Coordinator) State(cookie string) (State, bool) {
	c.mu.Lock()
	s := c.sessions[cookie]
	c.mu.Unlock()
	if s == nil {
		return 0, false
	}
	return s.State(), true
}

// Active lists the cookies of live sessions, sorted.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sessions))
	for k := range c.sessions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
