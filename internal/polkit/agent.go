package polkit

import (
	"context"
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/hnrobert/lumauth/internal/agent"
	"github.com/hnrobert/lumauth/internal/logger"
)

// Authenticator is the session side the bus object forwards to.
type Authenticator interface {
	Begin(ctx context.Context, req agent.Request) error
	Cancel(cookie string) bool
}

// Agent is the exported bus object. It holds no session state; godbus may
// run CancelAuthentication while a BeginAuthentication is still blocked.
type Agent struct {
	ctx  context.Context
	auth Authenticator
}

// NewAgent binds the bus object to auth. ctx bounds every session; it is
// cancelled when the process shuts down.
func NewAgent(ctx context.Context, auth Authenticator) *Agent {
	return &Agent{ctx: ctx, auth: auth}
}

// BeginAuthentication returns when the session ends.
func (a *Agent) BeginAuthentication(actionID, message, iconName string, details map[string]string, cookie string, identities []Identity) *dbus.Error {
	logger.WithFields(logger.Fields{
		"action":     actionID,
		"identities": len(identities),
	}).Info("received request to authenticate")

	err := a.auth.Begin(a.ctx, agent.Request{
		ActionID:   actionID,
		Message:    message,
		IconName:   iconName,
		Details:    details,
		Cookie:     cookie,
		Identities: decodeIdentities(identities),
	})
	return toBusError(err)
}

// CancelAuthentication always succeeds.
func (a *Agent) CancelAuthentication(cookie string) *dbus.Error {
	if !a.auth.Cancel(cookie) {
		logger.Debug("cancel for unknown or finished session ignored")
	}
	return nil
}

func toBusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, agent.ErrCancelled):
		return dbus.NewError(ErrorCancelled, []interface{}{err.Error()})
	case errors.Is(err, agent.ErrNotAuthorized):
		return dbus.NewError(ErrorNotAuthorized, []interface{}{err.Error()})
	default:
		return dbus.NewError(ErrorFailed, []interface{}{err.Error()})
	}
}

// Exporter is the part of *dbus.Conn used to publish the agent.
type Exporter interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
}

// Export publishes a with its introspection data at AgentPath.
func Export(conn Exporter, a *Agent) error {
	if err := conn.Export(a, AgentPath, AgentInterface); err != nil {
		return err
	}
	node := &introspect.Node{
		Name: string(AgentPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: AgentInterface, Methods: introspect.Methods(a)},
		},
	}
	return conn.Export(introspect.NewIntrospectable(node), AgentPath, "org.freedesktop.DBus.Introspectable")
}
