// Package statecache stores raw response bodies under a partitioned
// <name>/<part(key)> layout so the cacheable remote wrapper can replay a
// previously fetched PSV/MIME body without re-requesting it.
package statecache

import (
	"os"
	"path/filepath"

	"github.com/cuemby/keg/pkg/atomicio"
	"github.com/cuemby/keg/pkg/key"
)

// Cache is a content-addressed body store rooted at a single directory.
type Cache struct {
	root string
}

// New opens a state cache rooted at root, creating it if necessary.
func New(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Cache{root: root}, nil
}

func (c *Cache) path(name, k string) (string, error) {
	part, err := key.Part(k)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.root, name, part), nil
}

// Exists reports whether a body for (name, k) is already cached.
func (c *Cache) Exists(name, k string) bool {
	path, err := c.path(name, k)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Read returns the cached body for (name, k).
func (c *Cache) Read(name, k string) ([]byte, error) {
	path, err := c.path(name, k)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Write atomically stores content under (name, k), returning the number
// of bytes written.
func (c *Cache) Write(name, k string, content []byte) (int, error) {
	path, err := c.path(name, k)
	if err != nil {
		return 0, err
	}
	if err := atomicio.WriteFile(path, content, 0o644); err != nil {
		return 0, err
	}
	return len(content), nil
}

// WriteHTTPResponse caches an HTTP response body under its request path
// (leading slash stripped) and MD5 digest, skipping the write if already
// present.
func (c *Cache) WriteHTTPResponse(requestPath, digest string, content []byte) (int, error) {
	name := trimLeadingSlash(requestPath)
	if c.Exists(name, digest) {
		return 0, nil
	}
	return c.Write(name, digest, content)
}

// WriteRibbitResponse caches a Ribbit response body under
// <hostname>/<path>/<part(<checksum>.bmime)>, skipping the write if
// already present.
func (c *Cache) WriteRibbitResponse(hostname, requestPath, checksum string, content []byte) (int, error) {
	name := filepath.Join(hostname, trimLeadingSlash(requestPath))
	filename := checksum + ".bmime"
	if c.Exists(name, filename) {
		return 0, nil
	}
	return c.Write(name, filename, content)
}

func trimLeadingSlash(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	return s
}
