package configfile

import "strings"

// BuildConfig is the typed view over a parsed Build-Config object: a
// mapping of role name to (content-key, encoding-key) pair, plus a handful
// of scalar fields.
type BuildConfig struct {
	Values Values

	Root     KeyPair
	Install  KeyPair
	Download KeyPair
	Encoding KeyPair
	Size     KeyPair

	PatchConfig        string
	BuildName          string
	BuildProduct       string
	BuildUID           string
	BuildSignatureFile string
}

// NewBuildConfig builds a typed view from parsed key=value pairs.
func NewBuildConfig(v Values) *BuildConfig {
	return &BuildConfig{
		Values:             v,
		Root:               parseKeyPair(v["root"]),
		Install:            parseKeyPair(v["install"]),
		Download:           parseKeyPair(v["download"]),
		Encoding:           parseEncoding(v["encoding"]),
		Size:               parseKeyPair(v["size"]),
		PatchConfig:        v["patch-config"],
		BuildName:          v["build-name"],
		BuildProduct:       v["build-product"],
		BuildUID:           v["build-uid"],
		BuildSignatureFile: v["build-signature-file"],
	}
}

// encoding's value is "ckey ekey [encodedSize]" — the pair is the same
// shape as any other role, but keep a dedicated parser so a future encoded
// size field is easy to add without disturbing other roles.
func parseEncoding(raw string) KeyPair {
	return parseKeyPair(raw)
}

// CDNConfig is the typed view over a parsed CDN-Config object.
type CDNConfig struct {
	Values Values

	Archives          []string
	ArchiveGroup      string
	PatchArchives     []string
	PatchArchiveGroup string
	FileIndex         string
	PatchFileIndex    string
}

// NewCDNConfig builds a typed view from parsed key=value pairs.
func NewCDNConfig(v Values) *CDNConfig {
	return &CDNConfig{
		Values:            v,
		Archives:          splitFields(v["archives"]),
		ArchiveGroup:      v["archive-group"],
		PatchArchives:     splitFields(v["patch-archives"]),
		PatchArchiveGroup: v["patch-archive-group"],
		FileIndex:         v["file-index"],
		PatchFileIndex:    v["patch-file-index"],
	}
}

func splitFields(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}
