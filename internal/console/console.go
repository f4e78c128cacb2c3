// Package console answers authentication sessions on a terminal. It shows
// one prompt at a time and queues sessions that start meanwhile.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/hnrobert/lumauth/internal/agent"
	"github.com/hnrobert/lumauth/internal/i18n"
	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/secret"
)

type answer struct {
	cookie string
	hidden bool
	text   []byte
	err    error
}

// prompt is the session currently owning the terminal.
type prompt struct {
	started   agent.Started
	user      string
	submitted bool
}

type Console struct {
	tty *os.File
	out io.Writer
	tr  *i18n.Translator

	answers chan answer
	asking  bool
	queue   []agent.Started
	cur     *prompt
}

// New reads answers from tty and writes prompts to out.
func New(tty *os.File, out io.Writer, locale string) *Console {
	return &Console{
		tty:     tty,
		out:     out,
		tr:      i18n.New(locale),
		answers: make(chan answer, 1),
	}
}

// Run serves events until ctx is done or events is closed.
func (c *Console) Run(ctx context.Context, events <-chan agent.AgentEvent, input chan<- agent.UserEvent) error {
	fd := int(c.tty.Fd())
	if term.IsTerminal(fd) {
		if st, err := term.GetState(fd); err == nil {
			defer func() { _ = term.Restore(fd, st) }()
		}
	}

	for {
		c.next()

		var reply agent.UserEvent
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			reply = c.handleEvent(ev)
		case a := <-c.answers:
			c.asking = false
			reply = c.handleAnswer(a)
		}

		if reply == nil {
			continue
		}
		select {
		case input <- reply:
		case <-ctx.Done():
			agent.Release(reply)
			return ctx.Err()
		}
	}
}

// next gives the terminal to the oldest queued session once it is free.
func (c *Console) next() {
	if c.cur != nil || c.asking || len(c.queue) == 0 {
		return
	}
	s := c.queue[0]
	c.queue = c.queue[1:]
	c.cur = &prompt{started: s}

	fmt.Fprintf(c.out, "==== AUTHENTICATING FOR %s ====\n", s.ActionID)
	if s.Message != "" {
		fmt.Fprintln(c.out, s.Message)
	}
	if len(s.Names) == 1 {
		c.cur.user = s.Names[0]
		c.askPassword()
		return
	}
	fmt.Fprintln(c.out, "Multiple identities can be used for authentication:")
	for i, n := range s.Names {
		fmt.Fprintf(c.out, " %d. %s\n", i+1, n)
	}
	c.askChoice()
}

func (c *Console) askChoice() {
	fmt.Fprintf(c.out, "Choose identity to authenticate as (1-%d): ", len(c.cur.started.Names))
	c.read(false)
}

func (c *Console) askPassword() {
	fmt.Fprintf(c.out, "Password for %s: ", c.cur.user)
	c.read(true)
}

func (c *Console) read(hidden bool) {
	c.asking = true
	cookie := c.cur.started.Cookie
	go func() {
		fd := int(c.tty.Fd())
		var (
			b   []byte
			err error
		)
		if hidden && term.IsTerminal(fd) {
			b, err = term.ReadPassword(fd)
		} else {
			b, err = readLine(c.tty)
		}
		c.answers <- answer{cookie: cookie, hidden: hidden, text: b, err: err}
	}()
}

// readLine reads up to a newline one byte at a time so nothing is buffered
// past it for the next hidden read.
func readLine(r io.Reader) ([]byte, error) {
	var line []byte
	var one [1]byte
	for {
		n, err := r.Read(one[:])
		if n > 0 {
			if one[0] == '\n' {
				return line, nil
			}
			if one[0] != '\r' {
				line = append(line, one[0])
			}
		}
		if err != nil {
			if len(line) > 0 && errors.Is(err, io.EOF) {
				return line, nil
			}
			secret.Zero(line)
			return nil, err
		}
	}
}

func (c *Console) handleEvent(ev agent.AgentEvent) agent.UserEvent {
	cookie := ev.SessionCookie()
	switch ev := ev.(type) {
	case agent.Started:
		if len(ev.Names) == 0 {
			fmt.Fprintf(c.out, "No account can authenticate %s.\n", ev.ActionID)
			return agent.UserCanceled{Cookie: cookie}
		}
		c.queue = append(c.queue, ev)
		return nil

	case agent.AuthorizationRetry:
		if !c.owns(cookie) {
			return nil
		}
		if ev.Message != "" {
			fmt.Fprintln(c.out, ev.Message)
		}
		if c.cur.submitted && !c.asking {
			c.cur.submitted = false
			c.askPassword()
		}
		return nil

	case agent.AuthorizationSucceeded:
		c.end(cookie, c.tr.T(i18n.AuthSucceeded))
	case agent.Canceled:
		c.end(cookie, c.tr.T(i18n.AuthCancelled))
	case agent.AuthorizationFailed:
		msg := ev.Message
		if msg == "" {
			msg = c.tr.T(i18n.AuthFailed)
		}
		c.end(cookie, msg)
	}
	return nil
}

func (c *Console) owns(cookie string) bool {
	return c.cur != nil && c.cur.started.Cookie == cookie
}

func (c *Console) end(cookie, msg string) {
	for i, s := range c.queue {
		if s.Cookie == cookie {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
	if !c.owns(cookie) {
		return
	}
	if c.asking {
		fmt.Fprintln(c.out)
	}
	fmt.Fprintf(c.out, "%s\n==== AUTHENTICATION COMPLETE ====\n", msg)
	c.cur = nil
}

func (c *Console) handleAnswer(a answer) agent.UserEvent {
	if a.hidden {
		fmt.Fprintln(c.out)
	}
	if !c.owns(a.cookie) {
		logger.Debug("discarded terminal input for a finished session")
		secret.Zero(a.text)
		return nil
	}
	if a.err != nil {
		logger.Warn("terminal read failed: %v", a.err)
		c.cur.submitted = true
		return agent.UserCanceled{Cookie: a.cookie}
	}

	if c.cur.user == "" {
		names := c.cur.started.Names
		s := strings.TrimSpace(string(a.text))
		i := 1
		if s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > len(names) {
				fmt.Fprintln(c.out, "Invalid choice.")
				c.askChoice()
				return nil
			}
			i = n
		}
		c.cur.user = names[i-1]
		c.askPassword()
		return nil
	}

	c.cur.submitted = true
	if len(a.text) == 0 {
		return agent.UserCanceled{Cookie: a.cookie}
	}
	pw, err := secret.NewPassword(a.text)
	if err != nil {
		logger.Error("could not hold password: %v", err)
		return agent.UserCanceled{Cookie: a.cookie}
	}
	return agent.ProvidedPassword{Cookie: a.cookie, Username: c.cur.user, Password: pw}
}
