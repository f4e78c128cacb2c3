package secret

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPasswordZeroesSource(t *testing.T) {
	src := []byte("hunter2")
	p, err := NewPassword(src)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, make([]byte, 7), src)
	assert.Equal(t, "hunter2", string(p.Bytes()))
	assert.Equal(t, 7, p.Len())
}

func TestNewPasswordEmpty(t *testing.T) {
	_, err := NewPassword(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCloseScrubs(t *testing.T) {
	p, err := NewPassword([]byte("secret"))
	require.NoError(t, err)

	backing := p.Bytes()
	locked := p.Locked()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.True(t, p.Closed())
	assert.False(t, p.Locked())
	assert.Equal(t, 0, p.Len())
	if !locked {
		// Heap fallback: the old slice is still addressable and must be zero.
		assert.Equal(t, make([]byte, 6), backing)
	}
	assert.Panics(t, func() { p.Bytes() })
}

func TestNilClose(t *testing.T) {
	var p *Password
	assert.NoError(t, p.Close())
}

func TestRedacted(t *testing.T) {
	p, err := NewPassword([]byte("secret"))
	require.NoError(t, err)
	defer p.Close()

	for _, verb := range []string{"%v", "%+v", "%#v", "%s", "%q", "%x"} {
		out := fmt.Sprintf(verb, p)
		assert.NotContains(t, out, "secret", verb)
		assert.Equal(t, redacted, out, verb)
	}
	holder := struct{ P *Password }{p}
	assert.NotContains(t, fmt.Sprintf("%+v", holder), "secret")
}
