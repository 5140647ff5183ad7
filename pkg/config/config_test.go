package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsFileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "keg.conf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cfg := Default()
	cfg.DefaultRemotePrefix = "wow"
	cfg.PreferredCDNs = []string{"level3.blizzard.com", "blizzard.edgesuite.net"}
	cfg.AddRemote("http://us.patch.battle.net:1119/wow", Remote{DefaultFetch: true, Writeable: false})

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, loaded.ConfigVersion)
	assert.Equal(t, "wow", loaded.DefaultRemotePrefix)
	assert.Equal(t, []string{"level3.blizzard.com", "blizzard.edgesuite.net"}, loaded.PreferredCDNs)
	assert.True(t, loaded.VerifyIntegrity)
	assert.Equal(t, "md5", loaded.NGDP.HashFunction)
	require.Contains(t, loaded.Remotes, "http://us.patch.battle.net:1119/wow")
	assert.True(t, loaded.Remotes["http://us.patch.battle.net:1119/wow"].DefaultFetch)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("config_version = [this is not valid"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestDefaultFetchRemotesIsSortedAndFiltered(t *testing.T) {
	cfg := Default()
	cfg.AddRemote("http://b.example/wow", Remote{DefaultFetch: true})
	cfg.AddRemote("http://a.example/wow", Remote{DefaultFetch: true})
	cfg.AddRemote("http://c.example/wow", Remote{DefaultFetch: false})

	assert.Equal(t, []string{"http://a.example/wow", "http://b.example/wow"}, cfg.DefaultFetchRemotes())
}

func TestRemoveRemote(t *testing.T) {
	cfg := Default()
	cfg.AddRemote("http://a.example/wow", Remote{})

	assert.True(t, cfg.RemoveRemote("http://a.example/wow"))
	assert.False(t, cfg.RemoveRemote("http://a.example/wow"))
}
