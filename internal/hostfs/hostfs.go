package hostfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrInvalidPath = errors.New("invalid host path")

var (
	rootMu sync.RWMutex
	root   = "/"
)

// Root returns the directory host paths are resolved against.
func Root() string {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// SetRoot changes the host root and returns a function restoring the old one.
func SetRoot(dir string) (restore func()) {
	rootMu.Lock()
	prev := root
	root = dir
	rootMu.Unlock()
	return func() {
		rootMu.Lock()
		root = prev
		rootMu.Unlock()
	}
}

// Path joins Root with a relative path (no leading slash).
// Example: Path("etc/passwd") -> /etc/passwd
func Path(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	clean := filepath.Clean(rel)
	if clean == "." || clean == "" {
		return "", ErrInvalidPath
	}
	if strings.HasPrefix(clean, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(Root(), clean), nil
}

// Abs maps an absolute host path (e.g. /etc/lumauth/config.yaml) under Root.
func Abs(abs string) (string, error) {
	if abs == "" || !strings.HasPrefix(abs, "/") {
		return "", ErrInvalidPath
	}
	clean := filepath.Clean(abs)
	return filepath.Join(Root(), strings.TrimPrefix(clean, "/")), nil
}

// ReadFile reads a root-relative file.
func ReadFile(rel string) ([]byte, error) {
	p, err := Path(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}
