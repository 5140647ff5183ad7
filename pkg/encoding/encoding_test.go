package encoding

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/keg/pkg/key"
)

func hexBytes(t *testing.T, hex string) []byte {
	t.Helper()
	b, err := key.Bytes(hex)
	require.NoError(t, err)
	return b
}

func buildEncodingFile(t *testing.T) ([]byte, string, string, string) {
	t.Helper()
	ckey := strings.Repeat("1", 32)
	ekey := strings.Repeat("2", 32)
	espec := "n"

	var specBlock bytes.Buffer
	specBlock.WriteString(espec)
	specBlock.WriteByte(0)
	for specBlock.Len() < 16 {
		specBlock.WriteByte(0)
	}

	contentPPTSize := uint16(1)
	encodingPPTSize := uint16(1)

	var contentPage bytes.Buffer
	contentPage.WriteByte(1) // key_count
	contentPage.WriteByte(0) // size_hi
	binary.Write(&contentPage, binary.BigEndian, uint32(42))
	contentPage.Write(hexBytes(t, ckey))
	contentPage.Write(hexBytes(t, ekey))
	for contentPage.Len() < 1024*int(contentPPTSize) {
		contentPage.WriteByte(0)
	}

	var encodingPage bytes.Buffer
	encodingPage.Write(hexBytes(t, ekey))
	binary.Write(&encodingPage, binary.BigEndian, int32(0))
	encodingPage.Write(make([]byte, 5))
	encodingPage.Write(make([]byte, 16)) // terminator row's ekey field, unused
	binary.Write(&encodingPage, binary.BigEndian, int32(-1))
	for encodingPage.Len() < 1024*int(encodingPPTSize) {
		encodingPage.WriteByte(0)
	}

	var buf bytes.Buffer
	buf.WriteString("EN")
	buf.WriteByte(1)
	buf.WriteByte(16) // content hash size
	buf.WriteByte(16) // encoding hash size
	binary.Write(&buf, binary.BigEndian, contentPPTSize)
	binary.Write(&buf, binary.BigEndian, encodingPPTSize)
	binary.Write(&buf, binary.BigEndian, uint32(1)) // content ppt count
	binary.Write(&buf, binary.BigEndian, uint32(1)) // encoding ppt count
	buf.WriteByte(0)                                // reserved
	binary.Write(&buf, binary.BigEndian, uint32(specBlock.Len()))

	buf.Write(specBlock.Bytes())
	buf.Write(make([]byte, 1*16*2)) // content index, unread by Parse

	buf.Write(contentPage.Bytes())
	buf.Write(make([]byte, 1*16*2))
	buf.Write(encodingPage.Bytes())

	return buf.Bytes(), ckey, ekey, espec
}

func TestParseAndContentKeys(t *testing.T) {
	data, ckey, ekey, _ := buildEncodingFile(t)
	f, err := Parse(data, "", false)
	require.NoError(t, err)

	entries := f.ContentKeys()
	require.Len(t, entries, 1)
	assert.Equal(t, ckey, entries[0].CKey)
	assert.Equal(t, []string{ekey}, entries[0].EKeys)

	found, err := f.FindByContentKey(ckey)
	require.NoError(t, err)
	assert.Equal(t, ekey, found)
}

func TestEncodingKeysAndHas(t *testing.T) {
	data, _, ekey, espec := buildEncodingFile(t)
	f, err := Parse(data, "", false)
	require.NoError(t, err)

	entries := f.EncodingKeys()
	require.Len(t, entries, 1)
	assert.Equal(t, ekey, entries[0].EKey)
	assert.Equal(t, espec, entries[0].Espec)

	assert.True(t, f.HasEncodingKey(ekey))
	assert.False(t, f.HasEncodingKey(strings.Repeat("f", 32)))
}

func TestFindByContentKeyMissing(t *testing.T) {
	data, _, _, _ := buildEncodingFile(t)
	f, err := Parse(data, "", false)
	require.NoError(t, err)
	_, err = f.FindByContentKey("00000000000000000000000000000000")
	assert.Error(t, err)
}
