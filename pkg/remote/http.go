package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/keg/pkg/key"
	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/psv"
)

// StatefulResponse wraps a single remote fetch with the bookkeeping the
// cacheable wrapper needs: the request path, the raw body, when it was
// fetched, and the MD5 digest the state cache addresses it by.
type StatefulResponse struct {
	Path      string
	Content   []byte
	Timestamp int64
	Digest    string
}

// CachePath is the partitioned path the response body is stored at in the
// state cache: <path>/<part(digest)>.
func (r *StatefulResponse) CachePath() (string, error) {
	part, err := key.Part(r.Digest)
	if err != nil {
		return "", err
	}
	p := r.Path
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p + "/" + part, nil
}

func newStatefulResponse(path string, body []byte) *StatefulResponse {
	return &StatefulResponse{
		Path:      path,
		Content:   body,
		Timestamp: time.Now().Unix(),
		Digest:    key.MD5Hex(body),
	}
}

// HTTPRemote is the HTTP transport over a CDN's version-server tenant: a
// base URL that requests are composed against with JoinPath.
type HTTPRemote struct {
	base   string
	client *http.Client
}

// NewHTTPRemote builds an HTTPRemote rooted at base, e.g.
// "https://us.version.battle.net/".
func NewHTTPRemote(base string) *HTTPRemote {
	return &HTTPRemote{
		base: base,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetResponse performs an HTTP GET against base+path, failing with
// NetworkError on any non-2xx status.
func (h *HTTPRemote) GetResponse(ctx context.Context, path string) (*StatefulResponse, error) {
	url := JoinPath(h.base, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &kegerr.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &kegerr.NetworkError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &kegerr.NetworkError{Status: resp.StatusCode, URL: url}
	}

	return newStatefulResponse(path, body), nil
}

// GetBlob fetches /blob/<name> and decodes it as JSON.
func (h *HTTPRemote) GetBlob(ctx context.Context, name string) (interface{}, *StatefulResponse, error) {
	resp, err := h.GetResponse(ctx, "blob/"+name)
	if err != nil {
		return nil, nil, err
	}
	var v interface{}
	if err := json.Unmarshal(resp.Content, &v); err != nil {
		return nil, nil, fmt.Errorf("decoding blob %s: %w", name, err)
	}
	return v, resp, nil
}

// GetPSV fetches and parses the named PSV document (e.g. "cdns",
// "versions", "bgdl", "blobs").
func (h *HTTPRemote) GetPSV(ctx context.Context, name string) (*psv.File, *StatefulResponse, error) {
	resp, err := h.GetResponse(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	file, err := psv.Parse(bytes.NewReader(resp.Content))
	if err != nil {
		return nil, nil, err
	}
	return file, resp, nil
}

// GetCDNs fetches and parses the "cdns" PSV document into typed records.
func (h *HTTPRemote) GetCDNs(ctx context.Context) ([]CDNRecord, *StatefulResponse, error) {
	file, resp, err := h.GetPSV(ctx, "cdns")
	if err != nil {
		return nil, nil, err
	}
	return CDNRecordsFromPSV(file), resp, nil
}

// GetVersions fetches and parses the "versions" PSV document into typed
// records.
func (h *HTTPRemote) GetVersions(ctx context.Context) ([]VersionRecord, *StatefulResponse, error) {
	file, resp, err := h.GetPSV(ctx, "versions")
	if err != nil {
		return nil, nil, err
	}
	return VersionRecordsFromPSV(file), resp, nil
}

// GetBGDL fetches and parses the "bgdl" PSV document into typed records.
func (h *HTTPRemote) GetBGDL(ctx context.Context) ([]VersionRecord, *StatefulResponse, error) {
	file, resp, err := h.GetPSV(ctx, "bgdl")
	if err != nil {
		return nil, nil, err
	}
	return VersionRecordsFromPSV(file), resp, nil
}

// GetBlobs fetches and parses the "blobs" PSV document into typed records.
func (h *HTTPRemote) GetBlobs(ctx context.Context) ([]BlobRecord, *StatefulResponse, error) {
	file, resp, err := h.GetPSV(ctx, "blobs")
	if err != nil {
		return nil, nil, err
	}
	return BlobRecordsFromPSV(file), resp, nil
}
