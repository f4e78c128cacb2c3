package polkit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/lumauth/internal/hostfs"
)

type recordedCall struct {
	method string
	args   []interface{}
}

type fakeAuthority struct {
	calls []recordedCall
	err   error
}

func (f *fakeAuthority) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, recordedCall{method: method, args: args})
	return &dbus.Call{Method: method, Args: args, Err: f.err}
}

func TestRegisterSendsSubjectLocaleAndPath(t *testing.T) {
	fa := &fakeAuthority{}
	subj := Subject{Kind: "unix-session", Details: map[string]dbus.Variant{"session-id": dbus.MakeVariant("3")}}

	require.NoError(t, Register(fa, subj, "de_DE.UTF-8"))
	require.NoError(t, Unregister(fa, subj))

	require.Len(t, fa.calls, 2)
	assert.Equal(t, AuthorityInterface+".RegisterAuthenticationAgent", fa.calls[0].method)
	assert.Equal(t, []interface{}{subj, "de_DE.UTF-8", string(AgentPath)}, fa.calls[0].args)
	assert.Equal(t, AuthorityInterface+".UnregisterAuthenticationAgent", fa.calls[1].method)
	assert.Equal(t, []interface{}{subj, string(AgentPath)}, fa.calls[1].args)
}

func TestRegisterWrapsBusError(t *testing.T) {
	fa := &fakeAuthority{err: errors.New("an agent is already registered")}
	err := Register(fa, Subject{Kind: "unix-session"}, "C")
	require.Error(t, err)
	assert.ErrorIs(t, err, fa.err)
}

func TestCurrentSubjectSession(t *testing.T) {
	t.Setenv("XDG_SESSION_ID", "c2")
	s, err := CurrentSubject()
	require.NoError(t, err)
	assert.Equal(t, "unix-session", s.Kind)
	assert.Equal(t, "c2", s.Details["session-id"].Value())
}

func writeStat(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Cleanup(hostfs.SetRoot(dir))
	p := filepath.Join(dir, hostfs.ProcSelfStatRel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestCurrentSubjectProcessFallback(t *testing.T) {
	t.Setenv("XDG_SESSION_ID", "")
	// comm with spaces and a parenthesis; starttime is 987654.
	writeStat(t, "4242 (lum auth) d) S 1 4242 4242 0 -1 4194560 100 0 0 0 1 2 0 0 20 0 1 0 987654 1000 50\n")

	s, err := CurrentSubject()
	require.NoError(t, err)
	assert.Equal(t, "unix-process", s.Kind)
	assert.Equal(t, uint64(987654), s.Details["start-time"].Value())
	assert.Equal(t, uint32(os.Getpid()), s.Details["pid"].Value())
	assert.Equal(t, int32(os.Getuid()), s.Details["uid"].Value())
}

func TestCurrentSubjectMalformedStat(t *testing.T) {
	t.Setenv("XDG_SESSION_ID", "")
	writeStat(t, "4242 (short) S 1\n")
	_, err := CurrentSubject()
	assert.Error(t, err)
}
