package buildmgr

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/keg/pkg/cache"
	"github.com/cuemby/keg/pkg/fetcher"
	"github.com/cuemby/keg/pkg/key"
	"github.com/cuemby/keg/pkg/localcdn"
	"github.com/cuemby/keg/pkg/remote"
)

func blteSingleFrame(payload []byte) ([]byte, string) {
	var buf bytes.Buffer
	buf.WriteString("BLTE")
	binary.Write(&buf, binary.BigEndian, int32(0))
	buf.WriteByte('N')
	buf.Write(payload)
	return buf.Bytes(), key.MD5Hex(buf.Bytes())
}

func hexBytes(t *testing.T, hex string) []byte {
	t.Helper()
	b, err := key.Bytes(hex)
	require.NoError(t, err)
	return b
}

// buildEncodingFile builds a one-entry encoding table mapping ckey to ekey.
func buildEncodingFile(t *testing.T, ckey, ekey string) []byte {
	t.Helper()
	var specBlock bytes.Buffer
	specBlock.WriteString("n")
	specBlock.WriteByte(0)

	var contentPage bytes.Buffer
	contentPage.WriteByte(1)
	contentPage.WriteByte(0)
	binary.Write(&contentPage, binary.BigEndian, uint32(42))
	contentPage.Write(hexBytes(t, ckey))
	contentPage.Write(hexBytes(t, ekey))
	for contentPage.Len() < 1024 {
		contentPage.WriteByte(0)
	}

	var encodingPage bytes.Buffer
	encodingPage.Write(hexBytes(t, ekey))
	binary.Write(&encodingPage, binary.BigEndian, int32(0))
	encodingPage.Write(make([]byte, 5))
	encodingPage.Write(make([]byte, 16)) // terminator row's ekey field, unused
	binary.Write(&encodingPage, binary.BigEndian, int32(-1))
	for encodingPage.Len() < 1024 {
		encodingPage.WriteByte(0)
	}

	var buf bytes.Buffer
	buf.WriteString("EN")
	buf.WriteByte(1)
	buf.WriteByte(16)
	buf.WriteByte(16)
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint32(1))
	binary.Write(&buf, binary.BigEndian, uint32(1))
	buf.WriteByte(0)
	binary.Write(&buf, binary.BigEndian, uint32(specBlock.Len()))

	buf.Write(specBlock.Bytes())
	buf.Write(make([]byte, 1*16*2))
	buf.Write(contentPage.Bytes())
	buf.Write(make([]byte, 1*16*2))
	buf.Write(encodingPage.Bytes())

	return buf.Bytes()
}

func mustPart(t *testing.T, k string) string {
	t.Helper()
	p, err := key.Part(k)
	require.NoError(t, err)
	return p
}

// newFixtureServer builds a server over a build whose root manifest is a
// loose file (not archived), exercising the no-archive-hit path of
// resolveContent.
func newFixtureServer(t *testing.T) (*httptest.Server, *localcdn.Store, remote.VersionRecord) {
	t.Helper()
	ckey := strings.Repeat("1", 32)
	rootCKey := strings.Repeat("2", 32)

	rootPayload := []byte("root manifest bytes")
	rootBLTE, rootEKey := blteSingleFrame(rootPayload)

	encFile := buildEncodingFile(t, rootCKey, rootEKey)
	encContainer, encEKey := blteSingleFrame(encFile)

	buildConfig := fmt.Sprintf(
		"root = %s\nencoding = %s %s\n",
		rootCKey, ckey, encEKey,
	)
	cdnConfig := "archives = \nfile-index = \n"

	buildConfigKey := key.MD5Hex([]byte(buildConfig))
	cdnConfigKey := key.MD5Hex([]byte(cdnConfig))

	objects := map[string][]byte{
		"config/" + mustPart(t, buildConfigKey): []byte(buildConfig),
		"config/" + mustPart(t, cdnConfigKey):   []byte(cdnConfig),
		"data/" + mustPart(t, encEKey):          encContainer,
		"data/" + mustPart(t, rootEKey):         rootBLTE,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := objects[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))

	local, err := localcdn.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	version := remote.VersionRecord{BuildConfig: buildConfigKey, CDNConfig: cdnConfigKey}
	return srv, local, version
}

func TestBuildManagerGetRootResolvesLooseFile(t *testing.T) {
	srv, local, version := newFixtureServer(t)
	defer srv.Close()

	objects := cache.NewObjectCache(srv.URL, local)
	f := fetcher.New(version, local, objects, nil)
	m := New(f, objects, local)

	root, err := m.GetRoot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "root manifest bytes", string(root))
}

func TestBuildManagerGetEncodingLazilyFetches(t *testing.T) {
	srv, local, version := newFixtureServer(t)
	defer srv.Close()

	objects := cache.NewObjectCache(srv.URL, local)
	f := fetcher.New(version, local, objects, nil)
	m := New(f, objects, local)

	enc, err := m.GetEncoding(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, enc.EncodingKeys(), 1)
}

func TestBuildManagerGetRootMissingFailsWithFileNotFound(t *testing.T) {
	srv, local, version := newFixtureServer(t)
	defer srv.Close()

	// Replace the build-config with one that names no root at all.
	objects := cache.NewObjectCache(srv.URL, local)
	buildConfig := "build-name = no-root\n"
	buildConfigKey := key.MD5Hex([]byte(buildConfig))
	require.NoError(t, local.SaveItem(localcdn.KindConfig, buildConfigKey, bytes.NewReader([]byte(buildConfig))))

	version.BuildConfig = buildConfigKey
	f := fetcher.New(version, local, objects, nil)
	m := New(f, objects, local)

	_, err := m.GetRoot(context.Background(), false)
	assert.Error(t, err)
}
