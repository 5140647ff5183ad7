package psv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const versionsFixture = `## seqn = 2037980
Region!STRING:0|BuildConfig!HEX:32|CDNConfig!HEX:32|KeyRing!HEX:32|BuildId!DEC:4|VersionsName!String:0|ProductConfig!HEX:32
us|4eb3986466ec004ffa1755642b375a87|fb445ca0526699c61a92830ab894a985||27291|8.0.1.27291|19a26886b5b1c264de1177ae6aa7fbf5
eu|4eb3986466ec004ffa1755642b375a87|fb445ca0526699c61a92830ab894a985||27291|8.0.1.27291|19a26886b5b1c264de1177ae6aa7fbf5
kr|4eb3986466ec004ffa1755642b375a87|fb445ca0526699c61a92830ab894a985||27291|8.0.1.27291|19a26886b5b1c264de1177ae6aa7fbf5
cn|4eb3986466ec004ffa1755642b375a87|fb445ca0526699c61a92830ab894a985||27291|8.0.1.27291|19a26886b5b1c264de1177ae6aa7fbf5
tw|4eb3986466ec004ffa1755642b375a87|fb445ca0526699c61a92830ab894a985||27291|8.0.1.27291|19a26886b5b1c264de1177ae6aa7fbf5
sg|4eb3986466ec004ffa1755642b375a87|fb445ca0526699c61a92830ab894a985||27291|8.0.1.27291|19a26886b5b1c264de1177ae6aa7fbf5
xx|4eb3986466ec004ffa1755642b375a87|fb445ca0526699c61a92830ab894a985||27291|8.0.1.27291|19a26886b5b1c264de1177ae6aa7fbf5
`

func TestParseVersions(t *testing.T) {
	f, err := Parse(strings.NewReader(versionsFixture))
	require.NoError(t, err)

	assert.Equal(t, 2037980, f.Seqn)
	assert.Equal(t,
		[]string{"Region", "BuildConfig", "CDNConfig", "KeyRing", "BuildId", "VersionsName", "ProductConfig"},
		f.CleanHeader(),
	)
	require.Len(t, f.Rows, 7)

	row := f.Rows[0]
	region, _ := row.Get("Region")
	bc, _ := row.Get("BuildConfig")
	cc, _ := row.Get("CDNConfig")
	kr, _ := row.Get("KeyRing")
	bid, _ := row.Get("BuildId")
	vn, _ := row.Get("VersionsName")
	pc, _ := row.Get("ProductConfig")

	assert.Equal(t, "us", region)
	assert.Equal(t, "4eb3986466ec004ffa1755642b375a87", bc)
	assert.Equal(t, "fb445ca0526699c61a92830ab894a985", cc)
	assert.Equal(t, "", kr)
	assert.Equal(t, "27291", bid)
	assert.Equal(t, "8.0.1.27291", vn)
	assert.Equal(t, "19a26886b5b1c264de1177ae6aa7fbf5", pc)
}

func TestBuildIdCaseInsensitive(t *testing.T) {
	f, err := Parse(strings.NewReader(versionsFixture))
	require.NoError(t, err)
	v, ok := f.Rows[0].Get("BuildID")
	assert.True(t, ok)
	assert.Equal(t, "27291", v)
}

func TestDuplicateSeqn(t *testing.T) {
	data := "## seqn = 1\n## seqn = 2\nA|B\nx|y\n"
	_, err := Parse(strings.NewReader(data))
	assert.Error(t, err)
}

func TestHexColumns(t *testing.T) {
	f, err := Parse(strings.NewReader(versionsFixture))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"BuildConfig", "CDNConfig", "KeyRing", "ProductConfig"}, f.HexColumns())
}
