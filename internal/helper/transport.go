package helper

import (
	"context"
	"errors"

	"github.com/hnrobert/lumauth/internal/logger"
)

// Transport prefers the socket helper and falls back to spawning the
// binary when the socket cannot be reached.
type Transport struct {
	SocketPath string
	HelperPath string
	// Env is appended to the spawned helper's environment.
	Env []string
}

func (t *Transport) Dial(ctx context.Context, username, cookie string) (Conn, error) {
	if !validHandshakeField(username) || !validHandshakeField(cookie) {
		return nil, ErrHandshake
	}
	if t.SocketPath != "" {
		c, err := DialSocket(ctx, t.SocketPath, username, cookie)
		if err == nil {
			logger.Debug("connected to helper socket %s", t.SocketPath)
			return c, nil
		}
		if errors.Is(err, ErrHandshake) || ctx.Err() != nil {
			return nil, err
		}
		logger.Debug("helper socket %s unavailable (%v), spawning %s", t.SocketPath, err, t.HelperPath)
	}
	if t.HelperPath == "" {
		return nil, ErrSpawn
	}
	return Spawn(t.HelperPath, username, cookie, t.Env)
}
