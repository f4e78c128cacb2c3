// Package agent runs polkit authentication sessions.
//
// A Coordinator owns the cookie table. Each BeginAuthentication becomes a
// session goroutine that resolves candidate names, announces itself to the
// consumer, and then waits in a single select on the authority's cancel,
// the consumer's input and the helper's output until it reaches one of
// Succeeded, Cancelled or Failed.
//
// The consumer sees the agent through two bounded channels: Events
// (agent to consumer) and Input (consumer to agent). Every session ends with
// exactly one terminal event on Events and nothing for that cookie after it.
package agent
