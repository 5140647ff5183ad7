package cache

import (
	"bytes"
	"context"
	"time"

	"github.com/cuemby/keg/pkg/metadb"
	"github.com/cuemby/keg/pkg/psv"
	"github.com/cuemby/keg/pkg/remote"
	"github.com/cuemby/keg/pkg/statecache"
)

// HTTPMetadataCache wraps an HTTP remote's PSV endpoints with persistence
// into the metadata DB and state cache.
type HTTPMetadataCache struct {
	Remote     *remote.HTTPRemote
	RemoteName string
	DB         *metadb.DB
	State      *statecache.Cache
}

// NewHTTPMetadataCache builds a cacheable wrapper around r.
func NewHTTPMetadataCache(r *remote.HTTPRemote, remoteName string, db *metadb.DB, state *statecache.Cache) *HTTPMetadataCache {
	return &HTTPMetadataCache{Remote: r, RemoteName: remoteName, DB: db, State: state}
}

// GetPSV fetches the named PSV document live, persisting its body to the
// state cache and its rows to the metadata DB before returning it.
func (c *HTTPMetadataCache) GetPSV(ctx context.Context, name string) (*psv.File, *remote.StatefulResponse, error) {
	file, resp, err := c.Remote.GetPSV(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if _, err := c.State.WriteHTTPResponse(resp.Path, resp.Digest, resp.Content); err != nil {
		return nil, nil, err
	}
	if err := c.DB.WritePSV(file, c.RemoteName, resp.Digest, name); err != nil {
		return nil, nil, err
	}
	if err := c.DB.WriteResponse(c.RemoteName, resp.Path, resp.Timestamp, resp.Digest, metadb.SourceHTTP); err != nil {
		return nil, nil, err
	}
	return file, resp, nil
}

// GetCachedPSV reads the latest recorded response for name from the
// metadata DB and replays its body from the state cache, falling back to
// a live GetPSV when no prior response is recorded.
func (c *HTTPMetadataCache) GetCachedPSV(ctx context.Context, name string) (*psv.File, error) {
	digest, err := c.DB.LatestResponseDigest(c.RemoteName, name)
	if err != nil {
		return nil, err
	}
	if digest == "" {
		file, _, err := c.GetPSV(ctx, name)
		return file, err
	}
	body, err := c.State.Read(name, digest)
	if err != nil {
		return nil, err
	}
	return psv.Parse(bytes.NewReader(body))
}

// GetCachedCDNs returns the cached "cdns" document as typed records.
func (c *HTTPMetadataCache) GetCachedCDNs(ctx context.Context) ([]remote.CDNRecord, error) {
	file, err := c.GetCachedPSV(ctx, "cdns")
	if err != nil {
		return nil, err
	}
	return remote.CDNRecordsFromPSV(file), nil
}

// GetCachedVersions returns the cached "versions" document as typed
// records.
func (c *HTTPMetadataCache) GetCachedVersions(ctx context.Context) ([]remote.VersionRecord, error) {
	file, err := c.GetCachedPSV(ctx, "versions")
	if err != nil {
		return nil, err
	}
	return remote.VersionRecordsFromPSV(file), nil
}

// RibbitMetadataCache wraps a Ribbit remote's PSV endpoints the same way
// HTTPMetadataCache does, keying the state cache by SHA-256 checksum with
// a ".bmime" suffix instead of an MD5 digest.
type RibbitMetadataCache struct {
	Remote     *remote.RibbitRemote
	RemoteName string
	DB         *metadb.DB
	State      *statecache.Cache
}

// NewRibbitMetadataCache builds a cacheable wrapper around r.
func NewRibbitMetadataCache(r *remote.RibbitRemote, remoteName string, db *metadb.DB, state *statecache.Cache) *RibbitMetadataCache {
	return &RibbitMetadataCache{Remote: r, RemoteName: remoteName, DB: db, State: state}
}

// GetPSV fetches the named PSV document live over Ribbit, persisting its
// body and rows the same way the HTTP wrapper does.
func (c *RibbitMetadataCache) GetPSV(name string) (*psv.File, *remote.RibbitResponse, error) {
	file, resp, err := c.Remote.GetPSV(name)
	if err != nil {
		return nil, nil, err
	}
	path := c.Remote.RequestPath(name)
	if _, err := c.State.WriteRibbitResponse(c.Remote.Hostname(), path, resp.Checksum, resp.Content); err != nil {
		return nil, nil, err
	}
	if err := c.DB.WritePSV(file, c.RemoteName, resp.Checksum, name); err != nil {
		return nil, nil, err
	}
	if err := c.DB.WriteResponse(c.RemoteName, path, time.Now().Unix(), resp.Checksum, metadb.SourceRibbit); err != nil {
		return nil, nil, err
	}
	return file, resp, nil
}
