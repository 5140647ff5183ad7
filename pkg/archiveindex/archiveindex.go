// Package archiveindex parses the trailing-footer archive index format
// and merges multiple archive indexes into one sorted archive-group index.
package archiveindex

import (
	"encoding/binary"
	"sort"

	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/key"
)

const footerSize = 28

// Item is one (key, size, offset) triple within an archive.
type Item struct {
	Key    string
	Size   uint32
	Offset uint32
}

// Index is a parsed archive index: the footer fields plus the raw body
// bytes needed to iterate Items lazily.
type Index struct {
	Key string

	Version       uint8
	BlockSizeKB   uint8
	OffsetSize    uint8
	SizeSize      uint8
	KeySize       uint8
	ChecksumSize  uint8
	NumItems      uint32
	FooterTOCHash string
	FooterSum     string

	body []byte
}

// Parse parses an archive index from its full on-disk bytes. When verify
// is true, the MD5 of the 28-byte footer must equal key.
func Parse(data []byte, indexKey string, verify bool) (*Index, error) {
	if len(data) < footerSize {
		return nil, &kegerr.InvalidConfig{Reason: "archive index shorter than footer size"}
	}
	footer := data[len(data)-footerSize:]
	body := data[:len(data)-footerSize]

	if verify {
		if err := key.VerifyMD5("archive index footer", footer, indexKey); err != nil {
			return nil, err
		}
	}

	idx := &Index{
		Key:           indexKey,
		FooterTOCHash: key.FromBytes(footer[0:8]),
		Version:       footer[8],
		BlockSizeKB:   footer[11],
		OffsetSize:    footer[12],
		SizeSize:      footer[13],
		KeySize:       footer[14],
		ChecksumSize:  footer[15],
		NumItems:      binary.LittleEndian.Uint32(footer[16:20]),
		FooterSum:     key.FromBytes(footer[20:28]),
		body:          body,
	}
	return idx, nil
}

// Items returns every (key, size, offset) triple in the index, in the
// on-disk order (sorted by key within each fixed-size block).
func (idx *Index) Items() ([]Item, error) {
	items := make([]Item, 0, idx.NumItems)

	blockSize := int(idx.BlockSizeKB) * 1024
	entrySize := int(idx.KeySize) + int(idx.SizeSize) + int(idx.OffsetSize)
	bytesLeft := blockSize
	pos := 0

	for i := uint32(0); i < idx.NumItems; i++ {
		if entrySize > bytesLeft {
			pos += bytesLeft
			bytesLeft = blockSize
		}
		bytesLeft -= entrySize

		if pos+entrySize > len(idx.body) {
			return nil, &kegerr.InvalidConfig{Reason: "archive index body truncated"}
		}
		entry := idx.body[pos : pos+entrySize]
		pos += entrySize

		k := key.FromBytes(entry[0:idx.KeySize])
		size := binary.BigEndian.Uint32(entry[idx.KeySize : idx.KeySize+4])
		offset := binary.BigEndian.Uint32(entry[idx.KeySize+4 : idx.KeySize+8])
		items = append(items, Item{Key: k, Size: size, Offset: offset})
	}
	return items, nil
}

// GroupEntry is one row of a merged archive-group index: the archive it
// lives in plus its (size, offset) within that archive.
type GroupEntry struct {
	Key       string
	Size      uint32
	ArchiveID int
	Offset    uint32
}

// MergeGroup N-way merges the items of several archive indexes into a
// single list sorted by key; when the same key appears in more than one
// archive, the first occurrence (by input order) wins and later
// duplicates are dropped.
func MergeGroup(archiveKeys []string, indexes []*Index) ([]GroupEntry, error) {
	if len(archiveKeys) != len(indexes) {
		return nil, &kegerr.InvalidConfig{Reason: "archive key count does not match index count"}
	}

	var all []GroupEntry
	for archiveID, idx := range indexes {
		items, err := idx.Items()
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			all = append(all, GroupEntry{Key: it.Key, Size: it.Size, ArchiveID: archiveID, Offset: it.Offset})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	deduped := all[:0]
	seen := make(map[string]bool, len(all))
	for _, e := range all {
		if seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		deduped = append(deduped, e)
	}
	return deduped, nil
}

// Build serializes items back into the footer+body archive index format,
// sorted by key within fixed-size blocks of blockSizeKB kilobytes. This
// backs the optional write path: decode remains mandatory, encode is
// exercised only in isolation by tests, never on the default fetch path.
func Build(items []Item, blockSizeKB uint8) []byte {
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	blockSize := int(blockSizeKB) * 1024
	entrySize := 16 + 4 + 4
	var body []byte
	bytesLeft := blockSize
	for _, it := range items {
		if entrySize > bytesLeft {
			body = append(body, make([]byte, bytesLeft)...)
			bytesLeft = blockSize
		}
		bytesLeft -= entrySize

		kb, _ := key.Bytes(it.Key)
		entry := make([]byte, entrySize)
		copy(entry[0:16], kb)
		binary.BigEndian.PutUint32(entry[16:20], it.Size)
		binary.BigEndian.PutUint32(entry[20:24], it.Offset)
		body = append(body, entry...)
	}

	footer := make([]byte, footerSize)
	// toc_hash left zeroed: callers that need a real TOC hash compute it
	// from body before calling Build and overwrite footer[0:8] themselves.
	footer[8] = 1 // version
	footer[11] = blockSizeKB
	footer[12] = 4 // offset_size
	footer[13] = 4 // size_size
	footer[14] = 16
	footer[15] = 8
	binary.LittleEndian.PutUint32(footer[16:20], uint32(len(items)))

	out := append(body, footer...)
	sum := key.MD5Hex(footer)
	sumBytes, _ := key.Bytes(sum)
	copy(out[len(out)-8:], sumBytes[:8])
	return out
}
