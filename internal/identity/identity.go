// Package identity turns the candidate identities polkit sends with an
// authentication request into account names a user can pick from.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/hnrobert/lumauth/internal/logger"
)

type Kind string

const (
	KindUnixUser  Kind = "unix-user"
	KindUnixGroup Kind = "unix-group"
)

// Identity is one candidate account. Details hold the decoded variant
// values polkit attached, e.g. {"uid": uint32(1000)}.
type Identity struct {
	Kind    Kind
	Details map[string]any
}

func UnixUser(uid uint32) Identity {
	return Identity{Kind: KindUnixUser, Details: map[string]any{"uid": uid}}
}

func UnixGroup(gid uint32) Identity {
	return Identity{Kind: KindUnixGroup, Details: map[string]any{"gid": gid}}
}

func (id Identity) String() string {
	switch id.Kind {
	case KindUnixUser:
		return fmt.Sprintf("unix-user(%v)", id.Details["uid"])
	case KindUnixGroup:
		return fmt.Sprintf("unix-group(%v)", id.Details["gid"])
	default:
		return string(id.Kind)
	}
}

var ErrUnknownUID = errors.New("unknown uid")

// LookupFunc maps a uid to an account name.
type LookupFunc func(uid uint32) (string, error)

// PasswdLookup reads the host passwd file.
func PasswdLookup(uid uint32) (string, error) {
	f, err := LoadPasswd()
	if err != nil {
		return "", err
	}
	e := f.FindByUID(uid)
	if e == nil {
		return "", ErrUnknownUID
	}
	return e.Name, nil
}

// NSSLookup goes through the system name service (LDAP, SSSD, systemd-homed).
func NSSLookup(uid uint32) (string, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

type Resolver struct {
	// Timeout bounds a single identity lookup.
	Timeout time.Duration
	Lookups []LookupFunc
}

// NewResolver consults the passwd file first, then NSS.
func NewResolver(timeout time.Duration) *Resolver {
	return &Resolver{Timeout: timeout, Lookups: []LookupFunc{PasswdLookup, NSSLookup}}
}

// Resolve returns the display name for id, if it has one.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (string, bool) {
	if id.Kind != KindUnixUser {
		return "", false
	}
	uid, ok := id.Details["uid"].(uint32)
	if !ok {
		logger.Debug("identity %s has no uint32 uid", id)
		return "", false
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	type result struct {
		name string
		ok   bool
	}
	// Buffered so a lookup stuck in the name service can finish after we
	// stop waiting.
	done := make(chan result, 1)
	go func() {
		name, ok := r.lookup(uid)
		done <- result{name, ok}
	}()

	select {
	case res := <-done:
		return res.name, res.ok
	case <-ctx.Done():
		logger.Warn("identity lookup for uid %d abandoned: %v", uid, ctx.Err())
		return "", false
	}
}

func (r *Resolver) lookup(uid uint32) (string, bool) {
	for _, fn := range r.Lookups {
		name, err := fn(uid)
		if err != nil {
			continue
		}
		if name == "" || !utf8.ValidString(name) {
			continue
		}
		return name, true
	}
	return "", false
}

// ResolveAll keeps input order and drops identities without a name and
// duplicate names.
func (r *Resolver) ResolveAll(ctx context.Context, ids []Identity) []string {
	names := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		name, ok := r.Resolve(ctx, id)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
