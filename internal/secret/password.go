package secret

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const redacted = "[redacted]"

var ErrEmpty = errors.New("secret: empty password")

// Password must not be copied after creation.
type Password struct {
	mu     sync.Mutex
	data   []byte
	mapped bool
	closed bool
}

// NewPassword copies source into protected memory and zeroes source.
func NewPassword(source []byte) (*Password, error) {
	if len(source) == 0 {
		return nil, ErrEmpty
	}
	p := &Password{}
	data, err := lockedAlloc(len(source))
	if err == nil {
		p.data = data
		p.mapped = true
	} else {
		p.data = make([]byte, len(source))
	}
	copy(p.data, source)
	Zero(source)
	return p, nil
}

func lockedAlloc(size int) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	// MADV_DONTDUMP is missing on some kernels; swap protection still holds.
	_ = unix.Madvise(data, unix.MADV_DONTDUMP)
	return data, nil
}

// Bytes returns the password. The slice aliases the protected region and
// must not be retained. Panics after Close.
func (p *Password) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		panic("secret: read from closed password")
	}
	return p.data
}

func (p *Password) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.data)
}

// Locked reports whether the bytes live in mlocked memory.
func (p *Password) Locked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mapped && !p.closed
}

func (p *Password) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close zeroes and releases the password. It is idempotent and safe on a
// nil receiver.
func (p *Password) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	Zero(p.data)

	var err error
	if p.mapped {
		if uerr := unix.Munlock(p.data); uerr != nil {
			err = fmt.Errorf("secret: munlock: %w", uerr)
		}
		if uerr := unix.Munmap(p.data); uerr != nil && err == nil {
			err = fmt.Errorf("secret: munmap: %w", uerr)
		}
	}
	p.data = nil
	return err
}

func (p *Password) String() string   { return redacted }
func (p *Password) GoString() string { return redacted }

func (p *Password) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

// Zero overwrites b in place.
func Zero(b []byte) {
	clear(b)
}
