package identity

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/hnrobert/lumauth/internal/hostfs"
)

type PasswdEntry struct {
	Name  string
	UID   uint32
	GID   uint32
	Gecos string
	Home  string
	Shell string
}

type PasswdFile struct {
	entries []PasswdEntry
}

// LoadPasswd parses the host passwd file. Lines that are comments, NIS
// compat markers or malformed are skipped rather than failing the file.
func LoadPasswd() (*PasswdFile, error) {
	b, err := hostfs.ReadFile(hostfs.EtcPasswdRel)
	if err != nil {
		return nil, err
	}
	return ParsePasswd(bytes.NewReader(b))
}

func ParsePasswd(r io.Reader) (*PasswdFile, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	var f PasswdFile
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") || strings.HasPrefix(trim, "+") || strings.HasPrefix(trim, "-") {
			continue
		}
		// Keep trailing empty fields.
		parts := strings.Split(line, ":")
		if len(parts) < 7 || parts[0] == "" {
			continue
		}
		uid, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			continue
		}
		gid, err := strconv.ParseUint(parts[3], 10, 32)
		if err != nil {
			continue
		}
		f.entries = append(f.entries, PasswdEntry{
			Name:  parts[0],
			UID:   uint32(uid),
			GID:   uint32(gid),
			Gecos: parts[4],
			Home:  parts[5],
			Shell: parts[6],
		})
	}
	return &f, nil
}

func (f *PasswdFile) Find(name string) *PasswdEntry {
	for i := range f.entries {
		if f.entries[i].Name == name {
			return &f.entries[i]
		}
	}
	return nil
}

// FindByUID returns the first entry for uid, matching getpwuid(3).
func (f *PasswdFile) FindByUID(uid uint32) *PasswdEntry {
	for i := range f.entries {
		if f.entries[i].UID == uid {
			return &f.entries[i]
		}
	}
	return nil
}

func (f *PasswdFile) List() []PasswdEntry {
	out := make([]PasswdEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

func readLines(r io.Reader) ([]string, error) {
	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 1024*1024)
	var lines []string
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
