package helper

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hnrobert/lumauth/internal/logger"
)

// Spawn starts helperPath with username as its argument and writes the
// "<cookie>\n" handshake to its stdin.
//
// Closing the returned Conn closes both pipes and reaps the child in the
// background. The child is never killed: a helper mid-conversation sees EOF
// on stdin and exits by itself.
func Spawn(helperPath, username, cookie string, env []string) (Conn, error) {
	if !validHandshakeField(username) || !validHandshakeField(cookie) || strings.HasPrefix(username, "-") {
		return nil, ErrHandshake
	}

	cmd := exec.Command(helperPath, username)
	cmd.Env = append(append(os.Environ(), env...), "LC_ALL=C")
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	pid := cmd.Process.Pid
	logger.Debug("spawned %s (pid %d)", helperPath, pid)

	closeFn := func() error {
		werr := stdin.Close()
		rerr := stdout.Close()
		go func() {
			err := cmd.Wait()
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) {
				logger.Warn("helper pid %d: %v", pid, err)
				return
			}
			logger.Debug("helper pid %d exited with %d", pid, cmd.ProcessState.ExitCode())
		}()
		return errors.Join(werr, rerr)
	}
	c := newLineConn(stdout, stdin, false, closeFn)
	if err := c.WriteLine([]byte(cookie)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: write cookie: %v", ErrHandshake, err)
	}
	return c, nil
}
