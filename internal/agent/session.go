package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hnrobert/lumauth/internal/helper"
	"github.com/hnrobert/lumauth/internal/i18n"
	"github.com/hnrobert/lumauth/internal/identity"
	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/secret"
)

type State int

const (
	AwaitingIdentities State = iota
	SessionStarted
	AwaitingCredential
	AuthorizationRetrying
	Succeeded
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingIdentities:
		return "awaiting-identities"
	case SessionStarted:
		return "started"
	case AwaitingCredential:
		return "awaiting-credential"
	case AuthorizationRetrying:
		return "authorization-retry"
	case Succeeded:
		return "succeeded"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == Succeeded || s == Cancelled || s == Failed
}

// Request carries the BeginAuthentication arguments.
type Request struct {
	ActionID   string
	Message    string
	IconName   string
	Details    map[string]string
	Cookie     string
	Identities []identity.Identity
}

// terminalEmitTimeout bounds how long a finished session waits for a
// consumer that stopped reading.
const terminalEmitTimeout = 5 * time.Second

var lockTimeUnits = []string{"second", "minute", "hour", "day"}

// IsLockoutNotice reports whether an info message announces a lockout with
// a countdown, e.g. pam_faillock's "Account locked due to 3 failed logins.
// (5 minutes left to unlock)".
func IsLockoutNotice(text string) bool {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "lock") {
		return false
	}
	for _, unit := range lockTimeUnits {
		if strings.Contains(lower, unit) {
			return true
		}
	}
	return false
}

// conversation is one open helper conn plus the goroutine reading it.
type conversation struct {
	conn     helper.Conn
	username string
	lines    chan helper.Directive
	// err is the read error that ended the stream; valid once lines is closed.
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

func newConversation(conn helper.Conn, username string) *conversation {
	c := &conversation{
		conn:     conn,
		username: username,
		lines:    make(chan helper.Directive),
		done:     make(chan struct{}),
	}
	go c.read()
	return c
}

func (c *conversation) read() {
	defer close(c.lines)
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			c.err = err
			return
		}
		select {
		case c.lines <- helper.ParseLine(line):
		case <-c.done:
			c.err = helper.ErrHelperClosed
			return
		}
	}
}

// close detaches from the helper. Pending writes are abandoned.
func (c *conversation) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

type session struct {
	c      *Coordinator
	req    Request
	log    *logrus.Entry
	mb     *mailbox
	cancel context.CancelCauseFunc

	stateMu sync.Mutex
	state   State

	conv *conversation
	// reused marks a conv carried over from a previous attempt; sawLine
	// records whether the helper spoke during the current attempt.
	reused  bool
	sawLine bool
	// promptWaiting is a password prompt the helper sent while no
	// password was pending.
	promptWaiting bool

	attemptActive bool
	pending       *secret.Password
	queued        *ProvidedPassword
	timer         *time.Timer
	lastInfo      string
	attempts      int
	tr            *i18n.Translator
}

func newSession(c *Coordinator, req Request, cancel context.CancelCauseFunc) *session {
	id := uuid.New()
	return &session{
		c:      c,
		req:    req,
		cancel: cancel,
		mb:     newMailbox(),
		tr:     c.tr,
		log: logger.WithFields(logger.Fields{
			"session": id.String(),
			"action":  req.ActionID,
		}),
	}
}

func (s *session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *session) setState(st State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = st
	s.stateMu.Unlock()
	if prev != st {
		s.log.Debugf("state %s -> %s", prev, st)
	}
}

func (s *session) run(ctx context.Context) error {
	defer s.cleanup()

	s.setState(AwaitingIdentities)
	names := s.c.resolver.ResolveAll(ctx, s.req.Identities)
	if ctx.Err() != nil {
		return s.cancelled(ctx)
	}
	if len(names) == 0 {
		s.log.Warnf("none of %d identities resolved to an account name", len(s.req.Identities))
	}

	s.setState(SessionStarted)
	err := s.emit(ctx, Started{
		Cookie:   s.req.Cookie,
		Message:  s.req.Message,
		ActionID: s.req.ActionID,
		IconName: s.req.IconName,
		Details:  s.req.Details,
		Names:    names,
	})
	if err != nil {
		return s.cancelled(ctx)
	}
	s.setState(AwaitingCredential)

	for {
		var lines <-chan helper.Directive
		if s.conv != nil {
			lines = s.conv.lines
		}
		var timeout <-chan time.Time
		if s.timer != nil {
			timeout = s.timer.C
		}

		select {
		case <-ctx.Done():
			return s.cancelled(ctx)

		case <-s.mb.notify:
			events := s.mb.take()
			for i, ev := range events {
				if done, err := s.handleUser(ctx, ev); done {
					for _, rest := range events[i+1:] {
						Release(rest)
					}
					return err
				}
			}

		case d, ok := <-lines:
			if !ok {
				if done, err := s.helperClosed(ctx); done {
					return err
				}
				continue
			}
			if done, err := s.handleDirective(ctx, d); done {
				return err
			}

		case <-timeout:
			s.timer = nil
			s.log.Warnf("helper did not finish the attempt within %s", s.c.attemptTimeout)
			return s.fail(fmt.Errorf("%w: helper timed out", ErrFailed))
		}
	}
}

func (s *session) handleUser(ctx context.Context, ev UserEvent) (bool, error) {
	switch ev := ev.(type) {
	case UserCanceled:
		s.log.Info("authentication cancelled by user")
		return true, s.finishCancelled(ErrCancelled)

	case ProvidedPassword:
		if ev.Password == nil || ev.Password.Closed() {
			s.log.Warn("ignoring empty password submission")
			return false, nil
		}
		if s.attemptActive {
			// One password in flight at a time; the newest waiting one wins.
			if s.queued != nil {
				_ = s.queued.Password.Close()
			}
			s.queued = &ev
			s.log.Debug("password queued behind the running attempt")
			return false, nil
		}
		return s.startAttempt(ctx, ev)

	default:
		Release(ev)
		return false, nil
	}
}

func (s *session) startAttempt(ctx context.Context, ev ProvidedPassword) (bool, error) {
	if s.conv != nil && (!s.conv.conn.Persistent() || s.conv.username != ev.Username) {
		s.dropConv()
	}
	s.reused = s.conv != nil
	if s.conv == nil {
		if err := s.dial(ctx, ev.Username); err != nil {
			_ = ev.Password.Close()
			if ctx.Err() != nil {
				return true, s.cancelled(ctx)
			}
			return true, s.fail(err)
		}
	}

	s.log.WithField("user", ev.Username).Info("password submitted to helper conversation")
	s.pending = ev.Password
	s.attemptActive = true
	s.sawLine = false
	s.lastInfo = ""
	if s.c.attemptTimeout > 0 {
		s.timer = time.NewTimer(s.c.attemptTimeout)
	}
	s.setState(AwaitingCredential)
	if s.promptWaiting {
		s.promptWaiting = false
		s.sawLine = true
		return s.answerPrompt()
	}
	return false, nil
}

func (s *session) dropConv() {
	if s.conv != nil {
		s.conv.close()
		s.conv = nil
	}
	s.promptWaiting = false
}

func (s *session) dial(ctx context.Context, username string) error {
	conn, err := s.c.dialer.Dial(ctx, username, s.req.Cookie)
	if err != nil {
		return fmt.Errorf("%w: open helper: %v", ErrFailed, err)
	}
	s.conv = newConversation(conn, username)
	s.promptWaiting = false
	return nil
}

func (s *session) endAttempt() {
	s.attemptActive = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pending != nil {
		_ = s.pending.Close()
		s.pending = nil
	}
}

func (s *session) handleDirective(ctx context.Context, d helper.Directive) (bool, error) {
	if s.attemptActive {
		s.sawLine = true
	}
	switch d.Kind {
	case helper.PromptEchoOff:
		if !d.IsPasswordPrompt() {
			s.log.Warnf("unsupported hidden prompt %q ignored", d.Text)
			return false, nil
		}
		if s.pending == nil {
			s.log.Debug("password prompt held until a password arrives")
			s.promptWaiting = true
			return false, nil
		}
		return s.answerPrompt()

	case helper.PromptEchoOn:
		s.log.Warnf("unsupported visible prompt %q ignored", d.Text)

	case helper.TextInfo, helper.ErrorMsg:
		s.log.Infof("helper %s: %s", d.Kind, d.Text)
		if IsLockoutNotice(d.Text) {
			s.lastInfo = d.Text
			if err := s.emit(ctx, AuthorizationRetry{Cookie: s.req.Cookie, Message: d.Text}); err != nil {
				return true, s.cancelled(ctx)
			}
		}

	case helper.Failure:
		s.endAttempt()
		s.attempts++
		s.log.Infof("helper reported failure (attempt %d)", s.attempts)
		if s.c.maxAttempts > 0 && s.attempts >= s.c.maxAttempts {
			return true, s.finish(Failed,
				AuthorizationFailed{Cookie: s.req.Cookie, Message: s.tr.T(i18n.TooManyRetries)},
				fmt.Errorf("%w: %d failed attempts", ErrNotAuthorized, s.attempts))
		}
		if s.conv != nil && !s.conv.conn.Persistent() {
			s.dropConv()
		}
		msg := s.lastInfo
		if msg == "" {
			msg = s.tr.T(i18n.AuthFailed)
		}
		s.setState(AuthorizationRetrying)
		if err := s.emit(ctx, AuthorizationRetry{Cookie: s.req.Cookie, Message: msg}); err != nil {
			return true, s.cancelled(ctx)
		}
		if q := s.queued; q != nil {
			s.queued = nil
			return s.startAttempt(ctx, *q)
		}

	case helper.Success:
		s.endAttempt()
		s.log.Info("helper reported success")
		return true, s.finish(Succeeded, AuthorizationSucceeded{Cookie: s.req.Cookie}, nil)

	default:
		s.log.Debugf("unrecognized helper line ignored: %q", d.Text)
	}
	return false, nil
}

// answerPrompt writes the pending password, once.
func (s *session) answerPrompt() (bool, error) {
	err := s.conv.conn.WriteLine(s.pending.Bytes())
	_ = s.pending.Close()
	s.pending = nil
	if err != nil {
		return true, s.fail(fmt.Errorf("%w: write password: %v", ErrFailed, err))
	}
	s.log.Debug("password prompt answered")
	return false, nil
}

func (s *session) helperClosed(ctx context.Context) (bool, error) {
	conv := s.conv
	s.dropConv()

	if !s.attemptActive {
		s.log.Debugf("idle helper conversation closed: %v", conv.err)
		return false, nil
	}
	// A kept-open helper that went away before saying anything never saw
	// the password; open a fresh one for the same attempt.
	if s.reused && !s.sawLine && s.pending != nil {
		s.reused = false
		s.log.Debug("reused helper conversation was gone, reconnecting")
		if err := s.dial(ctx, conv.username); err != nil {
			if ctx.Err() != nil {
				return true, s.cancelled(ctx)
			}
			return true, s.fail(err)
		}
		return false, nil
	}
	return true, s.fail(fmt.Errorf("%w: helper closed the conversation: %v", ErrFailed, conv.err))
}

func (s *session) cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrCancelled) {
		s.log.Info("authentication cancelled by authority")
		return s.finishCancelled(ErrCancelled)
	}
	s.log.Warnf("authentication aborted: %v", cause)
	return s.finishCancelled(fmt.Errorf("%w: %v", ErrFailed, cause))
}

func (s *session) finishCancelled(err error) error {
	st := Cancelled
	if !errors.Is(err, ErrCancelled) {
		st = Failed
	}
	return s.finish(st, Canceled{Cookie: s.req.Cookie}, err)
}

func (s *session) fail(err error) error {
	s.log.Errorf("authentication failed: %v", err)
	return s.finish(Failed, AuthorizationFailed{Cookie: s.req.Cookie, Message: s.tr.T(i18n.HelperFailed)}, err)
}

// finish moves to a terminal state and emits its event. It is only ever
// reached once per session.
func (s *session) finish(st State, ev AgentEvent, err error) error {
	s.endAttempt()
	s.dropConv()
	s.setState(st)
	s.emitTerminal(ev)
	return err
}

// emit delivers a non-terminal event; a cancelled session stops waiting.
func (s *session) emit(ctx context.Context, ev AgentEvent) error {
	select {
	case s.c.events <- ev:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (s *session) emitTerminal(ev AgentEvent) {
	t := time.NewTimer(terminalEmitTimeout)
	defer t.Stop()
	select {
	case s.c.events <- ev:
	case <-s.c.closed:
	case <-t.C:
		s.log.Warnf("consumer not reading; dropped %T", ev)
	}
}

func (s *session) cleanup() {
	s.endAttempt()
	if s.queued != nil {
		_ = s.queued.Password.Close()
		s.queued = nil
	}
	s.dropConv()
	s.mb.close()
}
