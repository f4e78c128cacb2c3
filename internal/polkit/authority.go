package polkit

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/hnrobert/lumauth/internal/hostfs"
	"github.com/hnrobert/lumauth/internal/logger"
)

// Caller is satisfied by dbus.BusObject.
type Caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Authority returns the polkit authority object on conn.
func Authority(conn *dbus.Conn) Caller {
	return conn.Object(AuthorityName, AuthorityPath)
}

func Register(authority Caller, subject Subject, locale string) error {
	call := authority.Call(AuthorityInterface+".RegisterAuthenticationAgent", 0, subject, locale, string(AgentPath))
	if call.Err != nil {
		return fmt.Errorf("register authentication agent: %w", call.Err)
	}
	logger.Info("registered as %s authentication agent at %s", subject.Kind, AgentPath)
	return nil
}

func Unregister(authority Caller, subject Subject) error {
	call := authority.Call(AuthorityInterface+".UnregisterAuthenticationAgent", 0, subject, string(AgentPath))
	if call.Err != nil {
		return fmt.Errorf("unregister authentication agent: %w", call.Err)
	}
	return nil
}

// CurrentSubject identifies this agent to polkit: the login session when
// XDG_SESSION_ID is set, otherwise this process.
func CurrentSubject() (Subject, error) {
	if id := os.Getenv("XDG_SESSION_ID"); id != "" {
		return Subject{
			Kind:    "unix-session",
			Details: map[string]dbus.Variant{"session-id": dbus.MakeVariant(id)},
		}, nil
	}
	logger.Warn("XDG_SESSION_ID is not set; registering as unix-process")

	start, err := processStartTime()
	if err != nil {
		return Subject{}, fmt.Errorf("unix-process subject: %w", err)
	}
	return Subject{
		Kind: "unix-process",
		Details: map[string]dbus.Variant{
			"pid":        dbus.MakeVariant(uint32(os.Getpid())),
			"start-time": dbus.MakeVariant(start),
			"uid":        dbus.MakeVariant(int32(os.Getuid())),
		},
	}, nil
}

// processStartTime reads field 22 of /proc/self/stat (clock ticks since boot).
func processStartTime() (uint64, error) {
	b, err := hostfs.ReadFile(hostfs.ProcSelfStatRel)
	if err != nil {
		return 0, err
	}
	s := string(b)
	// comm (field 2) may contain spaces and parentheses.
	i := strings.LastIndexByte(s, ')')
	if i < 0 {
		return 0, fmt.Errorf("malformed %s", hostfs.ProcSelfStatRel)
	}
	fields := strings.Fields(s[i+1:])
	// fields[0] is field 3 (state).
	const idx = 22 - 3
	if len(fields) <= idx {
		return 0, fmt.Errorf("malformed %s", hostfs.ProcSelfStatRel)
	}
	return strconv.ParseUint(fields[idx], 10, 64)
}
