package helper

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

var (
	ErrHelperClosed = errors.New("helper connection closed")
	ErrHandshake    = errors.New("invalid helper handshake")
	ErrSpawn        = errors.New("spawn helper")
)

// Conn is a duplex line stream to one helper instance. ReadLine and
// WriteLine may be called from different goroutines.
type Conn interface {
	// ReadLine returns the next line without its terminator. It returns
	// io.EOF once the helper closed its side.
	ReadLine() (string, error)
	// WriteLine writes b followed by a newline in a single write. The
	// scratch copy it makes is zeroed before returning.
	WriteLine(b []byte) error
	// Persistent reports whether the conn outlives a single FAILURE
	// (socket helper) or ends with it (spawned helper).
	Persistent() bool
	Close() error
}

// Dialer opens a Conn with the handshake already written.
type Dialer interface {
	Dial(ctx context.Context, username, cookie string) (Conn, error)
}

type lineConn struct {
	r          *bufio.Reader
	wmu        sync.Mutex
	w          io.Writer
	persistent bool

	closeOnce sync.Once
	closeErr  error
	closeFn   func() error
	closed    chan struct{}
}

func newLineConn(r io.Reader, w io.Writer, persistent bool, closeFn func() error) *lineConn {
	return &lineConn{
		r:          bufio.NewReader(r),
		w:          w,
		persistent: persistent,
		closeFn:    closeFn,
		closed:     make(chan struct{}),
	}
}

func (c *lineConn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		select {
		case <-c.closed:
			return "", ErrHelperClosed
		default:
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *lineConn) WriteLine(b []byte) error {
	select {
	case <-c.closed:
		return ErrHelperClosed
	default:
	}
	buf := make([]byte, len(b)+1)
	copy(buf, b)
	buf[len(b)] = '\n'
	defer clear(buf)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.w.Write(buf)
	return err
}

func (c *lineConn) Persistent() bool {
	return c.persistent
}

func (c *lineConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.closeFn != nil {
			c.closeErr = c.closeFn()
		}
	})
	return c.closeErr
}

// NewConn wraps an arbitrary stream, mainly for tests and custom helpers.
func NewConn(rw io.ReadWriteCloser, persistent bool) Conn {
	return newLineConn(rw, rw, persistent, rw.Close)
}

func validHandshakeField(s string) bool {
	return s != "" && !strings.ContainsAny(s, "\n\r\x00")
}
