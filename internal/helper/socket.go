package helper

import (
	"context"
	"fmt"
	"net"
)

// DialSocket connects to a socket-activated helper and writes the
// "<username>\n<cookie>\n" handshake.
func DialSocket(ctx context.Context, path, username, cookie string) (Conn, error) {
	if !validHandshakeField(username) || !validHandshakeField(cookie) {
		return nil, ErrHandshake
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	c := newLineConn(nc, nc, true, nc.Close)
	if err := c.WriteLine([]byte(username)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: write username: %v", ErrHandshake, err)
	}
	if err := c.WriteLine([]byte(cookie)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: write cookie: %v", ErrHandshake, err)
	}
	return c, nil
}
