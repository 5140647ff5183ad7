// Package config loads and saves keg.conf, the repository's own
// configuration file. It is a distinct format from the NGDP key=value
// grammar pkg/configfile parses: keg.conf is TOML, since it is the
// client's own settings file, not a wire format mandated by the protocol.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/cuemby/keg/pkg/kegerr"
)

// FileName is the conventional name of the repository config file under
// a keg repository root.
const FileName = "keg.conf"

// CurrentVersion is the config_version this package writes and the
// highest version it understands.
const CurrentVersion = 1

// NGDP holds NGDP-protocol-wide settings: the hash function object keys
// are computed with. Only "md5" exists today, but the field is named and
// typed for the day the format adds another.
type NGDP struct {
	HashFunction string `toml:"hash_function"`
}

// Remote describes one configured remote (a product entry on an upstream
// version server / CDN tenant), keyed by its URL in Config.Remotes.
type Remote struct {
	DefaultFetch bool `toml:"default-fetch"`
	Writeable    bool `toml:"writeable"`
}

// Config is the parsed form of keg.conf.
type Config struct {
	ConfigVersion       int               `toml:"config_version"`
	DefaultRemotePrefix string            `toml:"default-remote-prefix"`
	PreferredCDNs       []string          `toml:"preferred_cdns"`
	VerifyIntegrity     bool              `toml:"verify-integrity"`
	NGDP                NGDP              `toml:"ngdp"`
	Remotes             map[string]Remote `toml:"remotes"`
}

// Default returns the configuration a freshly initialized repository
// starts with.
func Default() *Config {
	return &Config{
		ConfigVersion:   CurrentVersion,
		VerifyIntegrity: true,
		NGDP:            NGDP{HashFunction: "md5"},
		Remotes:         map[string]Remote{},
	}
}

// Load reads and parses path, failing with *kegerr.InvalidConfig if the
// file exists but does not parse, or *kegerr.FileNotFound if it is
// missing entirely.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &kegerr.FileNotFound{Path: path}
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &kegerr.InvalidConfig{Reason: err.Error()}
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

// Save serializes c and writes it to path, overwriting any existing
// file.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// AddRemote registers url as a remote, replacing any existing entry of
// the same name.
func (c *Config) AddRemote(url string, r Remote) {
	if c.Remotes == nil {
		c.Remotes = map[string]Remote{}
	}
	c.Remotes[url] = r
}

// RemoveRemote deletes url from the configured remotes, reporting
// whether it was present.
func (c *Config) RemoveRemote(url string) bool {
	if _, ok := c.Remotes[url]; !ok {
		return false
	}
	delete(c.Remotes, url)
	return true
}

// DefaultFetchRemotes returns the remote URLs marked default-fetch,
// in the order a fetch with no explicit remote argument should use.
// Iteration order over the underlying map is not stable across calls,
// so the result is sorted for deterministic CLI output.
func (c *Config) DefaultFetchRemotes() []string {
	var out []string
	for url, r := range c.Remotes {
		if r.DefaultFetch {
			out = append(out, url)
		}
	}
	sort.Strings(out)
	return out
}
