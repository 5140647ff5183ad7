package keg

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/keg/pkg/cache"
	"github.com/cuemby/keg/pkg/events"
	"github.com/cuemby/keg/pkg/fetcher"
	"github.com/cuemby/keg/pkg/metadb"
	"github.com/cuemby/keg/pkg/psv"
	"github.com/cuemby/keg/pkg/remote"
)

// RemoteSession is one configured remote (a product entry on a version
// server), speaking either HTTP or Ribbit depending on its URL scheme.
// It caches every PSV document it fetches into the repository's
// response caches and metadata DB before handing typed records back to
// the caller.
type RemoteSession struct {
	keg  *Keg
	name string

	http   *remote.HTTPRemote
	ribbit *remote.RibbitRemote
}

// OpenRemote builds a session for rawURL, dispatching on scheme:
// "ribbit://host[:port]/product" speaks the TCP protocol, anything else
// is treated as an HTTP(S) version-server base URL.
func (k *Keg) OpenRemote(rawURL string) (*RemoteSession, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing remote url %q: %w", rawURL, err)
	}

	session := &RemoteSession{keg: k, name: rawURL}
	switch u.Scheme {
	case "ribbit":
		r, err := remote.NewRibbitRemote(rawURL, k.Config.VerifyIntegrity)
		if err != nil {
			return nil, err
		}
		session.ribbit = r
	case "http", "https":
		session.http = remote.NewHTTPRemote(rawURL)
	default:
		return nil, fmt.Errorf("unsupported remote scheme %q in %q", u.Scheme, rawURL)
	}
	return session, nil
}

// psvDocument normalizes the two transports' differently-shaped PSV
// responses (StatefulResponse vs RibbitResponse) into the bits a
// RemoteSession needs to cache and persist one.
type psvDocument struct {
	file      *psv.File
	content   []byte
	path      string
	digest    string
	timestamp int64
	source    metadb.Source
}

func (s *RemoteSession) fetchPSV(ctx context.Context, name string) (*psvDocument, error) {
	if s.http != nil {
		file, resp, err := s.http.GetPSV(ctx, name)
		if err != nil {
			return nil, err
		}
		return &psvDocument{
			file: file, content: resp.Content, path: resp.Path,
			digest: resp.Digest, timestamp: resp.Timestamp, source: metadb.SourceHTTP,
		}, nil
	}

	file, resp, err := s.ribbit.GetPSV(name)
	if err != nil {
		return nil, err
	}
	return &psvDocument{
		file: file, content: resp.Content, path: s.ribbit.RequestPath(name),
		digest: resp.Checksum, timestamp: time.Now().Unix(), source: metadb.SourceRibbit,
	}, nil
}

// persist writes a fetched PSV document through to the matching response
// cache and records its rows in the metadata DB under tableName.
func (s *RemoteSession) persist(doc *psvDocument, tableName string) error {
	switch doc.source {
	case metadb.SourceHTTP:
		if _, err := s.keg.Responses.WriteHTTPResponse(doc.path, doc.digest, doc.content); err != nil {
			return err
		}
	case metadb.SourceRibbit:
		if _, err := s.keg.Ribbit.WriteRibbitResponse(s.ribbit.Hostname(), doc.path, doc.digest, doc.content); err != nil {
			return err
		}
	}

	if err := s.keg.DB.WriteResponse(s.name, doc.path, doc.timestamp, doc.digest, doc.source); err != nil {
		return err
	}
	return s.keg.DB.WritePSV(doc.file, s.name, doc.digest, tableName)
}

// Versions fetches, caches, and returns the "versions" PSV document.
func (s *RemoteSession) Versions(ctx context.Context) ([]remote.VersionRecord, error) {
	doc, err := s.fetchPSV(ctx, "versions")
	if err != nil {
		return nil, err
	}
	if err := s.persist(doc, "versions"); err != nil {
		return nil, err
	}
	return remote.VersionRecordsFromPSV(doc.file), nil
}

// BGDL fetches, caches, and returns the "bgdl" (background-download)
// PSV document.
func (s *RemoteSession) BGDL(ctx context.Context) ([]remote.VersionRecord, error) {
	doc, err := s.fetchPSV(ctx, "bgdl")
	if err != nil {
		return nil, err
	}
	if err := s.persist(doc, "bgdl"); err != nil {
		return nil, err
	}
	return remote.VersionRecordsFromPSV(doc.file), nil
}

// CDNs fetches, caches, and returns the "cdns" PSV document.
func (s *RemoteSession) CDNs(ctx context.Context) ([]remote.CDNRecord, error) {
	doc, err := s.fetchPSV(ctx, "cdns")
	if err != nil {
		return nil, err
	}
	if err := s.persist(doc, "cdns"); err != nil {
		return nil, err
	}
	return remote.CDNRecordsFromPSV(doc.file), nil
}

// Blobs fetches, caches, and returns the "blobs" PSV document.
func (s *RemoteSession) Blobs(ctx context.Context) ([]remote.BlobRecord, error) {
	doc, err := s.fetchPSV(ctx, "blobs")
	if err != nil {
		return nil, err
	}
	if err := s.persist(doc, "blobs"); err != nil {
		return nil, err
	}
	return remote.BlobRecordsFromPSV(doc.file), nil
}

// SelectServer picks a CDN server base URL (server + tenant path) from
// cdns, preferring entries matching keg.conf's preferred_cdns list in
// order and falling back to the first server of the first CDN record.
func (s *RemoteSession) SelectServer(cdns []remote.CDNRecord) (string, error) {
	for _, want := range s.keg.Config.PreferredCDNs {
		for _, c := range cdns {
			for _, srv := range c.AllServers() {
				if strings.Contains(srv, want) {
					return remote.JoinPath(srv, c.Path), nil
				}
			}
		}
	}
	for _, c := range cdns {
		if servers := c.AllServers(); len(servers) > 0 {
			return remote.JoinPath(servers[0], c.Path), nil
		}
	}
	return "", fmt.Errorf("keg: no usable CDN server found among %d records", len(cdns))
}

// NewFetcher builds a Fetcher over version, fetching content objects
// from serverBase (as returned by SelectServer) into the repository's
// local object store.
func (s *RemoteSession) NewFetcher(version remote.VersionRecord, serverBase string, broker *events.Broker) *fetcher.Fetcher {
	objects := cache.NewObjectCache(serverBase, s.keg.Local)
	return fetcher.New(version, s.keg.Local, objects, broker)
}
