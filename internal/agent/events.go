package agent

import (
	"github.com/hnrobert/lumauth/internal/secret"
)

// AgentEvent flows from the agent to the consumer.
type AgentEvent interface {
	SessionCookie() string
	// Terminal events are the last event a consumer sees for a cookie.
	Terminal() bool
}

// Started asks the consumer to show a prompt for the session.
type Started struct {
	Cookie   string
	Message  string
	ActionID string
	IconName string
	Details  map[string]string
	// Names are the accounts that may authenticate, in polkit's order.
	Names []string
}

// Canceled tells the consumer to drop the prompt.
type Canceled struct {
	Cookie string
}

type AuthorizationSucceeded struct {
	Cookie string
}

// AuthorizationRetry reports a failed attempt or a lockout notice. The
// session keeps waiting for another password.
type AuthorizationRetry struct {
	Cookie  string
	Message string
}

// AuthorizationFailed ends a session that cannot continue.
type AuthorizationFailed struct {
	Cookie  string
	Message string
}

func (e Started) SessionCookie() string                { return e.Cookie }
func (e Canceled) SessionCookie() string               { return e.Cookie }
func (e AuthorizationSucceeded) SessionCookie() string { return e.Cookie }
func (e AuthorizationRetry) SessionCookie() string     { return e.Cookie }
func (e AuthorizationFailed) SessionCookie() string    { return e.Cookie }

func (Started) Terminal() bool                { return false }
func (Canceled) Terminal() bool               { return true }
func (AuthorizationSucceeded) Terminal() bool { return true }
func (AuthorizationRetry) Terminal() bool     { return false }
func (AuthorizationFailed) Terminal() bool    { return true }

// UserEvent flows from the consumer to the agent.
type UserEvent interface {
	SessionCookie() string
}

type UserCanceled struct {
	Cookie string
}

// ProvidedPassword hands a password to the session. Ownership of Password
// moves to the agent, which closes it after its single use or when the
// event is dropped.
type ProvidedPassword struct {
	Cookie   string
	Username string
	Password *secret.Password
}

func (e UserCanceled) SessionCookie() string     { return e.Cookie }
func (e ProvidedPassword) SessionCookie() string { return e.Cookie }

// Release frees any secret carried by ev.
func Release(ev UserEvent) {
	if p, ok := ev.(ProvidedPassword); ok {
		_ = p.Password.Close()
	}
}
