// Package polkit exposes the agent on the system bus as
// org.freedesktop.PolicyKit1.AuthenticationAgent and registers it with the
// polkit authority for the current session.
package polkit
