package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/keg/pkg/metadb"
	"github.com/cuemby/keg/pkg/remote"
	"github.com/cuemby/keg/pkg/statecache"
)

func TestHTTPMetadataCacheGetPSVThenGetCachedPSV(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("Name!STRING:0|Path!STRING:0\nus|tpr/wow\n"))
	}))
	defer srv.Close()

	db, err := metadb.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	state, err := statecache.New(t.TempDir())
	require.NoError(t, err)

	httpRemote := remote.NewHTTPRemote(srv.URL + "/")
	c := NewHTTPMetadataCache(httpRemote, "remote1", db, state)

	file, _, err := c.GetPSV(context.Background(), "cdns")
	require.NoError(t, err)
	assert.Len(t, file.Rows, 1)
	assert.Equal(t, 1, hits)

	cached, err := c.GetCachedPSV(context.Background(), "cdns")
	require.NoError(t, err)
	assert.Len(t, cached.Rows, 1)
	assert.Equal(t, 1, hits, "cached read should not hit the network")

	records, err := c.GetCachedCDNs(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "us", records[0].Name)
}

func TestHTTPMetadataCacheGetCachedPSVFallsBackWhenEmpty(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("Name!STRING:0\nus\n"))
	}))
	defer srv.Close()

	db, err := metadb.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	state, err := statecache.New(t.TempDir())
	require.NoError(t, err)

	httpRemote := remote.NewHTTPRemote(srv.URL + "/")
	c := NewHTTPMetadataCache(httpRemote, "remote1", db, state)

	file, err := c.GetCachedPSV(context.Background(), "cdns")
	require.NoError(t, err)
	assert.Len(t, file.Rows, 1)
	assert.Equal(t, 1, hits)
}
