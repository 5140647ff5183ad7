// Package encoding parses the two-sided encoding-table binary format that
// maps content-keys to encoding-keys and encoding-keys to their espec
// strings.
package encoding

import (
	"encoding/binary"

	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/key"
)

const headerSize = 22

// ContentEntry is one row of the content-key page table: a content-key
// and the one or more encoding-keys its content has been stored under.
type ContentEntry struct {
	CKey  string
	EKeys []string
}

// EncodingEntry is one row of the encoding-key page table: an
// encoding-key and the espec string describing how it was encoded.
type EncodingEntry struct {
	EKey  string
	Espec string
}

// File is a parsed encoding table.
type File struct {
	ContentHashSize  uint8
	EncodingHashSize uint8
	ContentPPTSize   uint16
	EncodingPPTSize  uint16
	ContentPPTCount  uint32
	EncodingPPTCount uint32
	ESpecBlockSize   uint32

	Specs []string

	contentIndex  []byte
	contentTable  []byte
	encodingIndex []byte
	encodingTable []byte

	contentEntries []ContentEntry
	contentMap     map[string][]string

	encodingEntries []EncodingEntry
	encodingSet     map[string]bool
}

// Parse parses an encoding table from its full decoded bytes. When verify
// is true, the MD5 of data must equal ckey (the encoding file's own
// content-key never appears in itself, so callers verify against the
// CKey recorded in the referencing Build-Config, not a self-reference).
func Parse(data []byte, ckey string, verify bool) (*File, error) {
	if verify {
		if err := key.VerifyMD5("encoding file", data, ckey); err != nil {
			return nil, err
		}
	}
	if len(data) < headerSize {
		return nil, &kegerr.InvalidConfig{Reason: "encoding file shorter than header"}
	}
	if string(data[0:2]) != "EN" {
		return nil, &kegerr.InvalidConfig{Reason: "bad encoding file magic"}
	}
	if data[2] != 1 {
		return nil, &kegerr.InvalidConfig{Reason: "unsupported encoding file version"}
	}

	f := &File{
		ContentHashSize:  data[3],
		EncodingHashSize: data[4],
		ContentPPTSize:   binary.BigEndian.Uint16(data[5:7]),
		EncodingPPTSize:  binary.BigEndian.Uint16(data[7:9]),
		ContentPPTCount:  binary.BigEndian.Uint32(data[9:13]),
		EncodingPPTCount: binary.BigEndian.Uint32(data[13:17]),
		ESpecBlockSize:   binary.BigEndian.Uint32(data[18:22]),
	}

	cursor := data[headerSize:]

	specBlock := cursor[:f.ESpecBlockSize]
	cursor = cursor[f.ESpecBlockSize:]
	for _, part := range splitNull(specBlock) {
		if len(part) > 0 {
			f.Specs = append(f.Specs, string(part))
		}
	}

	contentIndexLen := int(f.ContentPPTCount) * int(f.ContentHashSize) * 2
	f.contentIndex, cursor = take(cursor, contentIndexLen)

	contentTableLen := int(f.ContentPPTCount) * 1024 * int(f.ContentPPTSize)
	f.contentTable, cursor = take(cursor, contentTableLen)

	encodingIndexLen := int(f.EncodingPPTCount) * int(f.EncodingHashSize) * 2
	f.encodingIndex, cursor = take(cursor, encodingIndexLen)

	encodingTableLen := int(f.EncodingPPTCount) * 1024 * int(f.EncodingPPTSize)
	f.encodingTable, _ = take(cursor, encodingTableLen)

	return f, nil
}

func take(data []byte, n int) ([]byte, []byte) {
	if n > len(data) {
		n = len(data)
	}
	return data[:n], data[n:]
}

func splitNull(data []byte) [][]byte {
	var parts [][]byte
	start := 0
	for i, b := range data {
		if b == 0 {
			parts = append(parts, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		parts = append(parts, data[start:])
	}
	return parts
}

// ContentKeys returns every (content-key, encoding-keys) row, parsing and
// memoizing the internal lookup map on first call.
func (f *File) ContentKeys() []ContentEntry {
	if f.contentEntries != nil {
		return f.contentEntries
	}

	pageSize := 1024 * int(f.ContentPPTSize)
	f.contentMap = make(map[string][]string)

	for p := 0; p < int(f.ContentPPTCount); p++ {
		page := f.contentTable[p*pageSize : (p+1)*pageSize]
		ofs := 0
		for ofs+6+int(f.ContentHashSize) <= pageSize {
			keyCount := int(page[ofs])
			sizeHi := uint64(page[ofs+1])
			size := uint64(binary.BigEndian.Uint32(page[ofs+2 : ofs+6]))
			_ = size | (sizeHi << 32)
			ofs += 6
			if keyCount == 0 {
				break
			}
			ckey := key.FromBytes(page[ofs : ofs+int(f.ContentHashSize)])
			ofs += int(f.ContentHashSize)

			ekeys := make([]string, 0, keyCount)
			for i := 0; i < keyCount; i++ {
				ekeys = append(ekeys, key.FromBytes(page[ofs:ofs+int(f.EncodingHashSize)]))
				ofs += int(f.EncodingHashSize)
			}

			f.contentEntries = append(f.contentEntries, ContentEntry{CKey: ckey, EKeys: ekeys})
			if _, exists := f.contentMap[ckey]; !exists {
				f.contentMap[ckey] = ekeys
			}
		}
	}
	if f.contentEntries == nil {
		f.contentEntries = []ContentEntry{}
	}
	return f.contentEntries
}

// FindByContentKey returns the first encoding-key stored for ckey.
func (f *File) FindByContentKey(ckey string) (string, error) {
	f.ContentKeys()
	ekeys, ok := f.contentMap[ckey]
	if !ok || len(ekeys) == 0 {
		return "", &kegerr.FileNotFound{Path: "content key " + ckey}
	}
	return ekeys[0], nil
}

// EncodingKeys returns every (encoding-key, espec) row, parsing and
// memoizing the internal membership set on first call.
func (f *File) EncodingKeys() []EncodingEntry {
	if f.encodingEntries != nil {
		return f.encodingEntries
	}

	pageSize := 1024 * int(f.EncodingPPTSize)
	f.encodingSet = make(map[string]bool)
	entrySize := int(f.EncodingHashSize) + 4 + 5

	for p := 0; p < int(f.EncodingPPTCount); p++ {
		page := f.encodingTable[p*pageSize : (p+1)*pageSize]
		ofs := 0
		for ofs+entrySize <= pageSize {
			specIndex := int32(binary.BigEndian.Uint32(page[ofs+int(f.EncodingHashSize) : ofs+int(f.EncodingHashSize)+4]))
			if specIndex == -1 {
				break
			}
			ekey := key.FromBytes(page[ofs : ofs+int(f.EncodingHashSize)])
			espec := ""
			if specIndex >= 0 && int(specIndex) < len(f.Specs) {
				espec = f.Specs[specIndex]
			}
			f.encodingEntries = append(f.encodingEntries, EncodingEntry{EKey: ekey, Espec: espec})
			f.encodingSet[ekey] = true
			ofs += entrySize
		}
	}
	if f.encodingEntries == nil {
		f.encodingEntries = []EncodingEntry{}
	}
	return f.encodingEntries
}

// HasEncodingKey preloads the encoding-key table and reports whether ekey
// is present.
func (f *File) HasEncodingKey(ekey string) bool {
	f.EncodingKeys()
	return f.encodingSet[ekey]
}
