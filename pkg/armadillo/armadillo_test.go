package armadillo

import (
	"crypto/md5"
	"encoding/base32"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyFromBase32Fixture(t *testing.T) {
	encoded := "6Z45YOHAYNS7WSBOJCTUREE5FEM7LO4I"
	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(encoded)
	require.NoError(t, err)
	require.Len(t, data, 20)

	k, err := ParseKey(data)
	require.NoError(t, err)
	assert.Equal(t, data[:16], k.expanded[:16])
}

func TestParseKeyValidAndBadDigest(t *testing.T) {
	raw := []byte(strings.Repeat("k", KeySize))
	sum := md5.Sum(raw)
	data := append(append([]byte{}, raw...), sum[:DigestSize]...)

	_, err := ParseKey(data)
	require.NoError(t, err)

	data[len(data)-1] ^= 0xFF
	_, err = ParseKey(data)
	assert.Error(t, err)
}

func TestDecryptObjectRoundTrip(t *testing.T) {
	raw := []byte(strings.Repeat("k", 16))
	k := &Key{}
	copy(k.expanded[:16], raw)
	copy(k.expanded[16:], raw)

	ekey := strings.Repeat("ab", 16)
	plaintext := []byte("the quick brown fox jumps over the lazy dog, 64+ bytes of payload to span blocks")

	ciphertext, err := k.DecryptObject(ekey, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	roundTrip, err := k.DecryptObject(ekey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, roundTrip)
}
