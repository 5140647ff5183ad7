package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPart(t *testing.T) {
	p, err := Part("4EB3986466EC004FFA1755642B375A87")
	require.NoError(t, err)
	assert.Equal(t, "4e/b3/4eb3986466ec004ffa1755642b375a87", p)
}

func TestPartShort(t *testing.T) {
	_, err := Part("ab")
	assert.Error(t, err)
}

func TestVerifyMD5(t *testing.T) {
	data := []byte("hello world")
	sum := MD5Hex(data)
	assert.NoError(t, VerifyMD5("test", data, sum))
	assert.Error(t, VerifyMD5("test", data, "00000000000000000000000000000000"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("4eb3986466ec004ffa1755642b375a87"))
	assert.False(t, Valid("not-hex"))
	assert.False(t, Valid("abcd"))
}
