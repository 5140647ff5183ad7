package configfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuplicateKeysConcatenate(t *testing.T) {
	v, err := ParseString("a = 1\nb = 2\na = 3\n")
	require.NoError(t, err)
	assert.Equal(t, "1\n3", v["a"])
	assert.Equal(t, "2", v["b"])
}

func TestParseIgnoresCommentsAndBlankLines(t *testing.T) {
	v, err := ParseString("# comment\n\nroot = abc\n")
	require.NoError(t, err)
	assert.Equal(t, "abc", v["root"])
	assert.Len(t, v, 1)
}

func TestBuildConfigRoles(t *testing.T) {
	v, err := ParseString(
		"root = aaaa\n" +
			"install = bbbb cccc\n" +
			"encoding = dddd eeee\n" +
			"patch-config = ffff\n" +
			"build-name = WOW-1.0.0\n",
	)
	require.NoError(t, err)

	bc := NewBuildConfig(v)
	assert.Equal(t, "aaaa", bc.Root.CKey)
	assert.Equal(t, "bbbb", bc.Install.CKey)
	assert.Equal(t, "cccc", bc.Install.EKey)
	assert.Equal(t, "dddd", bc.Encoding.CKey)
	assert.Equal(t, "eeee", bc.Encoding.EKey)
	assert.Equal(t, "ffff", bc.PatchConfig)
	assert.Equal(t, "WOW-1.0.0", bc.BuildName)
	assert.True(t, bc.Download.Empty())
}

func TestCDNConfigArchives(t *testing.T) {
	v, err := ParseString("archives = a b c\narchive-group = grp\n")
	require.NoError(t, err)

	cc := NewCDNConfig(v)
	assert.Equal(t, []string{"a", "b", "c"}, cc.Archives)
	assert.Equal(t, "grp", cc.ArchiveGroup)
	assert.Empty(t, cc.PatchArchives)
}

func TestPatchConfigEntries(t *testing.T) {
	v, err := ParseString(
		"patch = abc\n" +
			"patch-size = 42\n" +
			"patch-entry = FILE ckey1 100 ekey1 90 z old1 50 p1 45\n",
	)
	require.NoError(t, err)

	pc, err := NewPatchConfig(v)
	require.NoError(t, err)
	assert.Equal(t, int64(42), pc.PatchSize)
	require.Len(t, pc.PatchEntries, 1)
	e := pc.PatchEntries[0]
	assert.Equal(t, "ckey1", e.CKey)
	require.Len(t, e.Pairs, 1)
	assert.Equal(t, "old1", e.Pairs[0].OldEKey)
	assert.Equal(t, "p1", e.Pairs[0].PatchEKey)
}
