package keg

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/keg/pkg/kegerr"
)

func TestInitThenOpen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "repo")

	k, err := Init(root)
	require.NoError(t, err)
	assert.Equal(t, 1, k.Config.ConfigVersion)
	require.NoError(t, k.Close())

	reopened, err := Open(root)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "md5", reopened.Config.NGDP.HashFunction)
}

func TestOpenMissingRepositoryFailsWithRepositoryNotFound(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)
	var notFound *kegerr.RepositoryNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestDiscoverWalksUpToRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "repo")
	k, err := Init(root)
	require.NoError(t, err)
	defer k.Close()

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestDiscoverFailsWhenNoRepositoryExists(t *testing.T) {
	_, err := Discover(t.TempDir())
	require.Error(t, err)
	var notFound *kegerr.RepositoryNotFound
	assert.ErrorAs(t, err, &notFound)
}

func versionsPSV() string {
	return "Region!STRING:0|BuildConfig!HEX:16|CDNConfig!HEX:16|KeyRing!HEX:16|BuildId!DEC:4|VersionsName!String:0|ProductConfig!HEX:16\n" +
		fmt.Sprintf("us|%s|%s|%s|27291|8.0.1.27291|%s\n",
			"4eb3986466ec004ffa1755642b375a87", "fb445ca0526699c61a92830ab894a985", "", "19a26886b5b1c264de1177ae6aa7fbf5")
}

func cdnsPSV(server string) string {
	return "Name!STRING:0|Path!STRING:0|Hosts!STRING:0|Servers!STRING:0|ConfigPath!STRING:0\n" +
		fmt.Sprintf("us|tpr/wow|cdn.example|%s/tpr/wow|\n", server)
}

func TestRemoteSessionFetchesAndPersistsVersions(t *testing.T) {
	root := filepath.Join(t.TempDir(), "repo")
	k, err := Init(root)
	require.NoError(t, err)
	defer k.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/versions":
			w.Write([]byte(versionsPSV()))
		case "/cdns":
			w.Write([]byte(cdnsPSV(srvAddr)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvAddr = srv.URL

	session, err := k.OpenRemote(srv.URL)
	require.NoError(t, err)

	versions, err := session.Versions(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "8.0.1.27291", versions[0].VersionsName)
	assert.Equal(t, int64(27291), versions[0].BuildID)

	cdns, err := session.CDNs(context.Background())
	require.NoError(t, err)
	require.Len(t, cdns, 1)

	base, err := session.SelectServer(cdns)
	require.NoError(t, err)
	assert.Contains(t, base, "tpr/wow")

	pairs, err := k.DB.BuildConfigs("")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, versions[0].BuildConfig, pairs[0].BuildConfig)
}

// srvAddr lets the cdns handler embed the test server's own address as
// its CDN server entry, since httptest.Server picks an ephemeral port.
var srvAddr string
