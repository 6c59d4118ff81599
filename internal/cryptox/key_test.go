package cryptox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKey_ReplacesUnsafeCharacters(t *testing.T) {
	// 0xfb 0xff encodes to "+/8=" in standard base64.
	got := EncodeKey([]byte{0xfb, 0xff})
	assert.Equal(t, "-_8=", got)
}

func TestEncodeKey_MatchesURLEncoding(t *testing.T) {
	raw := []byte{0xfb, 0xef, 0xbe, 0xff, 0x00, 0x10, 0x83, 0x10, 0x51, 0x87, 0x20, 0x92}
	assert.Equal(t, base64.URLEncoding.EncodeToString(raw), EncodeKey(raw))
}

func TestNewKey_UsesTwelveBytes(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0xff}, 32))

	key, err := NewKey(src)
	require.NoError(t, err)

	assert.Len(t, key, 16)
	assert.Equal(t, strings.Repeat("_", 16), key)
	assert.Equal(t, 32-KeySize, src.Len(), "exactly KeySize bytes consumed")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestNewKey_ReaderError(t *testing.T) {
	_, err := NewKey(failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entropy")

	_, err = NewKey(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err, "short reads are errors")
}

func TestGenerateKey_Random(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
	if a == b {
		t.Logf("warning: two GenerateKey results are identical; extremely unlikely")
	}
}

func TestGenerateSecret(t *testing.T) {
	s, err := GenerateSecret(SecretSize)
	require.NoError(t, err)
	assert.Len(t, s, SecretSize)

	empty, err := GenerateSecret(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
