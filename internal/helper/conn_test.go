package helper

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineConnReadWrite(t *testing.T) {
	local, remote := net.Pipe()
	c := NewConn(local, true)
	defer c.Close()

	go func() {
		_, _ = remote.Write([]byte("PAM_PROMPT_ECHO_OFF Password:\r\nSUCCESS"))
		_ = remote.Close()
	}()

	line, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PAM_PROMPT_ECHO_OFF Password:", line)

	line, err = c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", line)

	_, err = c.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, c.Persistent())
}

func TestLineConnWriteAfterClose(t *testing.T) {
	local, _ := net.Pipe()
	c := NewConn(local, false)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.WriteLine([]byte("x")), ErrHelperClosed)
	_, err := c.ReadLine()
	assert.ErrorIs(t, err, ErrHelperClosed)
}

func listen(t *testing.T) (string, net.Listener) {
	t.Helper()
	dir, err := os.MkdirTemp("", "lumauth")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "helper.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return path, ln
}

func TestDialSocketHandshake(t *testing.T) {
	path, ln := listen(t)

	got := make(chan []string, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		br := bufio.NewReader(nc)
		user, _ := br.ReadString('\n')
		cookie, _ := br.ReadString('\n')
		_, _ = nc.Write([]byte("PAM_PROMPT_ECHO_OFF Password:\n"))
		pw, _ := br.ReadString('\n')
		got <- []string{user, cookie, pw}
		_, _ = nc.Write([]byte("SUCCESS\n"))
	}()

	c, err := DialSocket(context.Background(), path, "alice", "cookie-1")
	require.NoError(t, err)
	defer c.Close()

	line, err := c.ReadLine()
	require.NoError(t, err)
	require.True(t, ParseLine(line).IsPasswordPrompt())
	require.NoError(t, c.WriteLine([]byte("secret")))

	line, err = c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", line)
	assert.Equal(t, []string{"alice\n", "cookie-1\n", "secret\n"}, <-got)
}

func TestDialRejectsMalformedHandshake(t *testing.T) {
	_, err := DialSocket(context.Background(), "/nonexistent", "ali\nce", "c")
	assert.ErrorIs(t, err, ErrHandshake)
	_, err = Spawn("/bin/true", "alice", "", nil)
	assert.ErrorIs(t, err, ErrHandshake)
	_, err = Spawn("/bin/true", "--help", "c", nil)
	assert.ErrorIs(t, err, ErrHandshake)
	tr := &Transport{HelperPath: "/bin/true"}
	_, err = tr.Dial(context.Background(), "", "c")
	assert.ErrorIs(t, err, ErrHandshake)
}

const fakeHelper = `#!/bin/sh
read cookie
echo "PAM_TEXT_INFO user=$1 cookie=$cookie lc=$LC_ALL"
echo "PAM_PROMPT_ECHO_OFF Password:"
read pw
if [ "$pw" = "secret" ]; then echo SUCCESS; else echo FAILURE; fi
`

func writeFakeHelper(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("needs /bin/sh")
	}
	p := filepath.Join(t.TempDir(), "polkit-agent-helper-1")
	require.NoError(t, os.WriteFile(p, []byte(fakeHelper), 0o755))
	return p
}

func readAll(t *testing.T, c Conn, answer string) []string {
	t.Helper()
	var lines []string
	for {
		line, err := c.ReadLine()
		if err != nil {
			return lines
		}
		lines = append(lines, line)
		if ParseLine(line).IsPasswordPrompt() {
			require.NoError(t, c.WriteLine([]byte(answer)))
		}
	}
}

func TestSpawn(t *testing.T) {
	p := writeFakeHelper(t)

	c, err := Spawn(p, "alice", "cookie-2", nil)
	require.NoError(t, err)
	defer c.Close()
	assert.False(t, c.Persistent())

	lines := readAll(t, c, "secret")
	assert.Equal(t, []string{
		"PAM_TEXT_INFO user=alice cookie=cookie-2 lc=C",
		"PAM_PROMPT_ECHO_OFF Password:",
		"SUCCESS",
	}, lines)
}

func TestTransportFallsBackToSpawn(t *testing.T) {
	p := writeFakeHelper(t)
	tr := &Transport{
		SocketPath: filepath.Join(t.TempDir(), "missing.sock"),
		HelperPath: p,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := tr.Dial(ctx, "bob", "cookie-3")
	require.NoError(t, err)
	defer c.Close()

	lines := readAll(t, c, "wrong")
	require.Len(t, lines, 3)
	assert.Equal(t, "FAILURE", lines[2])
}

func TestTransportPrefersSocket(t *testing.T) {
	path, ln := listen(t)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		br := bufio.NewReader(nc)
		_, _ = br.ReadString('\n')
		_, _ = br.ReadString('\n')
	}()

	tr := &Transport{SocketPath: path, HelperPath: "/does/not/exist"}
	c, err := tr.Dial(context.Background(), "alice", "cookie-4")
	require.NoError(t, err)
	assert.True(t, c.Persistent())
	require.NoError(t, c.Close())
}
