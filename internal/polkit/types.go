package polkit

import (
	"github.com/godbus/dbus/v5"

	"github.com/hnrobert/lumauth/internal/identity"
)

const (
	AgentInterface = "org.freedesktop.PolicyKit1.AuthenticationAgent"
	AgentPath      = dbus.ObjectPath("/org/freedesktop/PolicyKit1/AuthenticationAgent")

	AuthorityName      = "org.freedesktop.PolicyKit1"
	AuthorityPath      = dbus.ObjectPath("/org/freedesktop/PolicyKit1/Authority")
	AuthorityInterface = "org.freedesktop.PolicyKit1.Authority"

	ErrorCancelled     = "org.freedesktop.PolicyKit1.Error.Cancelled"
	ErrorFailed        = "org.freedesktop.PolicyKit1.Error.Failed"
	ErrorNotAuthorized = "org.freedesktop.PolicyKit1.Error.NotAuthorized"
)

// Identity is the (sa{sv}) wire form of a candidate identity.
type Identity struct {
	Kind    string
	Details map[string]dbus.Variant
}

// Subject is the (sa{sv}) wire form of a polkit subject.
type Subject struct {
	Kind    string
	Details map[string]dbus.Variant
}

func (id Identity) decode() identity.Identity {
	details := make(map[string]any, len(id.Details))
	for k, v := range id.Details {
		details[k] = v.Value()
	}
	return identity.Identity{Kind: identity.Kind(id.Kind), Details: details}
}

func decodeIdentities(ids []Identity) []identity.Identity {
	out := make([]identity.Identity, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.decode())
	}
	return out
}
