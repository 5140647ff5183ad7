// Package cache implements the write-through layer between a remote
// source (CDN server or version server) and keg's local stores: content
// objects land in the local object store, PSV metadata lands in the
// metadata DB and state cache.
package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/keg/pkg/archiveindex"
	"github.com/cuemby/keg/pkg/blte"
	"github.com/cuemby/keg/pkg/key"
	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/localcdn"
	"github.com/cuemby/keg/pkg/remote"
)

// ObjectCache serves content-addressed CDN objects from a local object
// store, fetching and caching from a remote HTTP CDN server on miss.
type ObjectCache struct {
	remoteBase string
	client     *http.Client
	local      *localcdn.Store
}

// NewObjectCache builds an ObjectCache fetching from remoteBase (a CDN
// server's base URL joined with its tenant path) and caching into local.
func NewObjectCache(remoteBase string, local *localcdn.Store) *ObjectCache {
	return &ObjectCache{
		remoteBase: remoteBase,
		client:     &http.Client{Timeout: 60 * time.Second},
		local:      local,
	}
}

func (o *ObjectCache) fetch(ctx context.Context, path string) ([]byte, error) {
	url := remote.JoinPath(o.remoteBase, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &kegerr.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &kegerr.NetworkError{Status: resp.StatusCode, URL: url}
	}

	return io.ReadAll(resp.Body)
}

// GetConfig returns the config object for k, fetching and caching it on
// first access.
func (o *ObjectCache) GetConfig(ctx context.Context, k string) ([]byte, error) {
	return o.getCached(ctx, localcdn.KindConfig, "config", k)
}

// GetData returns the raw (BLTE-encoded) data object for k.
func (o *ObjectCache) GetData(ctx context.Context, k string) ([]byte, error) {
	return o.getCached(ctx, localcdn.KindData, "data", k)
}

// GetBLTEData returns the decoded content of the data object for k.
func (o *ObjectCache) GetBLTEData(ctx context.Context, k string, verify bool) ([]byte, error) {
	raw, err := o.GetData(ctx, k)
	if err != nil {
		return nil, err
	}
	return blte.Decode(bytes.NewReader(raw), k, verify)
}

// GetDataIndex returns the parsed archive index for k.
func (o *ObjectCache) GetDataIndex(ctx context.Context, k string, verify bool) (*archiveindex.Index, error) {
	raw, err := o.getCachedSuffixed(ctx, localcdn.KindIndex, "data", k, ".index")
	if err != nil {
		return nil, err
	}
	return archiveindex.Parse(raw, k, verify)
}

// GetPatch returns the raw patch archive object for k.
func (o *ObjectCache) GetPatch(ctx context.Context, k string) ([]byte, error) {
	return o.getCached(ctx, localcdn.KindPatch, "patch", k)
}

// GetPatchIndex returns the patch archive index for k.
func (o *ObjectCache) GetPatchIndex(ctx context.Context, k string, verify bool) (*archiveindex.Index, error) {
	raw, err := o.getCachedSuffixed(ctx, localcdn.KindPatchIndex, "patch", k, ".index")
	if err != nil {
		return nil, err
	}
	return archiveindex.Parse(raw, k, verify)
}

// GetConfigItem returns the product-config JSON item for k.
func (o *ObjectCache) GetConfigItem(ctx context.Context, k string) ([]byte, error) {
	return o.getCachedSuffixed(ctx, localcdn.KindConfigItem, "configs/data", k, "")
}

// Local returns the local object store this cache writes through to, for
// callers that need to lay down objects the cache's own accessors don't
// cover directly (e.g. decrypted Armadillo payloads).
func (o *ObjectCache) Local() *localcdn.Store { return o.local }

// FetchRaw fetches the object at urlDir/part(k)+suffix from the remote
// without consulting or populating the local store. Callers that need to
// transform a response before caching it (decryption, re-verification)
// use this instead of the Get* accessors.
func (o *ObjectCache) FetchRaw(ctx context.Context, urlDir, k, suffix string) ([]byte, error) {
	part, err := key.Part(k)
	if err != nil {
		return nil, err
	}
	return o.fetch(ctx, "/"+urlDir+"/"+part+suffix)
}

func (o *ObjectCache) getCached(ctx context.Context, kind localcdn.Kind, urlDir, k string) ([]byte, error) {
	return o.getCachedSuffixed(ctx, kind, urlDir, k, "")
}

func (o *ObjectCache) getCachedSuffixed(ctx context.Context, kind localcdn.Kind, urlDir, k, suffix string) ([]byte, error) {
	if present, err := o.has(kind, k); err != nil {
		return nil, err
	} else if present {
		rc, err := o.local.GetItem(kind, k)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	part, err := key.Part(k)
	if err != nil {
		return nil, err
	}
	data, err := o.fetch(ctx, "/"+urlDir+"/"+part+suffix)
	if err != nil {
		return nil, err
	}
	if err := o.local.SaveItem(kind, k, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return data, nil
}

func (o *ObjectCache) has(kind localcdn.Kind, k string) (bool, error) {
	switch kind {
	case localcdn.KindConfig:
		return o.local.HasConfig(k), nil
	case localcdn.KindData:
		return o.local.HasData(k), nil
	case localcdn.KindIndex:
		return o.local.HasIndex(k), nil
	case localcdn.KindPatch:
		return o.local.HasPatch(k), nil
	case localcdn.KindPatchIndex:
		return o.local.HasPatchIndex(k), nil
	case localcdn.KindConfigItem:
		return o.local.HasConfigItem(k), nil
	default:
		return false, fmt.Errorf("cache: unhandled object kind")
	}
}
