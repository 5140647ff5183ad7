package remote

import (
	"strconv"
	"strings"

	"github.com/cuemby/keg/pkg/psv"
)

// CDNRecord is one row of the "cdns" PSV document.
type CDNRecord struct {
	Name       string
	Path       string
	Hosts      string
	Servers    string
	ConfigPath string
}

// VersionRecord is one row of the "versions" or "bgdl" PSV document (the
// two share a shape).
type VersionRecord struct {
	Region        string
	BuildConfig   string
	CDNConfig     string
	KeyRing       string
	BuildID       int64
	VersionsName  string
	ProductConfig string
}

// BlobRecord is one row of the "blobs" PSV document.
type BlobRecord struct {
	Region         string
	InstallBlobMD5 string
	GameBlobMD5    string
}

// Hostnames splits the space-separated Hosts field.
func (c CDNRecord) Hostnames() []string { return strings.Fields(c.Hosts) }

// ServerURLs splits the space-separated Servers field.
func (c CDNRecord) ServerURLs() []string { return strings.Fields(c.Servers) }

// AllServers returns every usable server base URL for this CDN entry:
// the explicit Servers list (already schemed, e.g.
// "http://level3.blizzard.com") followed by each Hosts entry prefixed
// with "http://", matching the precedence the reference client uses.
func (c CDNRecord) AllServers() []string {
	servers := c.ServerURLs()
	out := make([]string, 0, len(servers)+len(c.Hostnames()))
	out = append(out, servers...)
	for _, h := range c.Hostnames() {
		out = append(out, "http://"+h)
	}
	return out
}

// CDNRecordsFromPSV converts a parsed "cdns" PSV document into typed records.
func CDNRecordsFromPSV(f *psv.File) []CDNRecord {
	out := make([]CDNRecord, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = CDNRecord{
			Name:       row.GetOr("Name", ""),
			Path:       row.GetOr("Path", ""),
			Hosts:      row.GetOr("Hosts", ""),
			Servers:    row.GetOr("Servers", ""),
			ConfigPath: row.GetOr("ConfigPath", ""),
		}
	}
	return out
}

// VersionRecordsFromPSV converts a parsed "versions" or "bgdl" PSV document into typed records.
func VersionRecordsFromPSV(f *psv.File) []VersionRecord {
	out := make([]VersionRecord, len(f.Rows))
	for i, row := range f.Rows {
		buildID, _ := strconv.ParseInt(row.GetOr("BuildId", "0"), 10, 64)
		out[i] = VersionRecord{
			Region:        row.GetOr("Region", ""),
			BuildConfig:   row.GetOr("BuildConfig", ""),
			CDNConfig:     row.GetOr("CDNConfig", ""),
			KeyRing:       row.GetOr("KeyRing", ""),
			BuildID:       buildID,
			VersionsName:  row.GetOr("VersionsName", ""),
			ProductConfig: row.GetOr("ProductConfig", ""),
		}
	}
	return out
}

// BlobRecordsFromPSV converts a parsed "blobs" PSV document into typed records.
func BlobRecordsFromPSV(f *psv.File) []BlobRecord {
	out := make([]BlobRecord, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = BlobRecord{
			Region:         row.GetOr("Region", ""),
			InstallBlobMD5: row.GetOr("InstallBlobMD5", ""),
			GameBlobMD5:    row.GetOr("GameBlobMD5", ""),
		}
	}
	return out
}
