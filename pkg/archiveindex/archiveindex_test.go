package archiveindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/keg/pkg/key"
)

func TestParseAndItems(t *testing.T) {
	items := []Item{
		{Key: "00000000000000000000000000000001", Size: 10, Offset: 0},
		{Key: "00000000000000000000000000000002", Size: 20, Offset: 10},
	}
	// Normalize keys to valid 32-hex first.
	for i := range items {
		items[i].Key = items[i].Key[len(items[i].Key)-32:]
	}

	data := Build(items, 1)
	indexKey := key.MD5Hex(data[len(data)-footerSize:])

	idx, err := Parse(data, indexKey, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx.NumItems)

	got, err := idx.Items()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, items[0].Key, got[0].Key)
	assert.Equal(t, items[0].Size, got[0].Size)
}

func TestMergeGroupDropsDuplicates(t *testing.T) {
	dup := "00000000000000000000000000000009"
	itemsA := []Item{{Key: dup, Size: 1, Offset: 0}, {Key: "00000000000000000000000000000001", Size: 2, Offset: 1}}
	itemsB := []Item{{Key: dup, Size: 99, Offset: 50}}

	dataA := Build(append([]Item{}, itemsA...), 64)
	dataB := Build(append([]Item{}, itemsB...), 64)

	keyA := key.MD5Hex(dataA[len(dataA)-footerSize:])
	keyB := key.MD5Hex(dataB[len(dataB)-footerSize:])

	idxA, err := Parse(dataA, keyA, true)
	require.NoError(t, err)
	idxB, err := Parse(dataB, keyB, true)
	require.NoError(t, err)

	merged, err := MergeGroup([]string{"archA", "archB"}, []*Index{idxA, idxB})
	require.NoError(t, err)

	count := 0
	for _, e := range merged {
		if e.Key == dup {
			count++
			assert.Equal(t, 0, e.ArchiveID)
			assert.Equal(t, uint32(1), e.Size)
		}
	}
	assert.Equal(t, 1, count)
}

func TestParseShortDataFails(t *testing.T) {
	_, err := Parse([]byte("short"), "anything", false)
	assert.Error(t, err)
}
