// Package install parses the Install manifest binary format: a set of
// named tags, each a bitfield addressing the manifest's file entries, and
// the entries themselves.
package install

import (
	"bufio"
	"bytes"
	"encoding/binary"

	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/key"
)

// Tag is one named bitfield: Type is a caller-defined classification
// (platform, locale, product, ...), and Bits has one bit per manifest
// entry, most-significant-bit first within each byte.
type Tag struct {
	Name string
	Type uint16
	Bits []byte
}

func (t Tag) has(entryIndex int) bool {
	byteIdx := entryIndex / 8
	if byteIdx >= len(t.Bits) {
		return false
	}
	bit := uint(7 - entryIndex%8)
	return t.Bits[byteIdx]&(1<<bit) != 0
}

// Entry is one manifest row: an OS-visible file path, its content-key,
// and its decoded size.
type Entry struct {
	FileName string
	CKey     string
	Size     uint32
}

// File is a parsed install manifest.
type File struct {
	Version  uint8
	HashSize uint8
	Tags     []Tag
	Entries  []Entry

	tagIndex map[string]int
}

// Parse parses a decoded install manifest. When verify is true, the MD5
// of data must equal ckey.
func Parse(data []byte, ckey string, verify bool) (*File, error) {
	if verify {
		if err := key.VerifyMD5("install file", data, ckey); err != nil {
			return nil, err
		}
	}

	r := bufio.NewReader(bytes.NewReader(data))
	magic := make([]byte, 2)
	if _, err := readFull(r, magic); err != nil || string(magic) != "IN" {
		return nil, &kegerr.InvalidConfig{Reason: "bad install file magic"}
	}

	header := make([]byte, 8)
	if _, err := readFull(r, header); err != nil {
		return nil, &kegerr.InvalidConfig{Reason: "short install file header"}
	}
	version := header[0]
	hashSize := header[1]
	tagCount := binary.BigEndian.Uint16(header[2:4])
	entryCount := binary.BigEndian.Uint32(header[4:8])

	bitfieldLen := int((entryCount + 7) / 8)

	f := &File{Version: version, HashSize: hashSize, tagIndex: make(map[string]int)}

	for i := 0; i < int(tagCount); i++ {
		name, err := readCString(r)
		if err != nil {
			return nil, err
		}
		typeBytes := make([]byte, 2)
		if _, err := readFull(r, typeBytes); err != nil {
			return nil, &kegerr.InvalidConfig{Reason: "short tag type"}
		}
		bits := make([]byte, bitfieldLen)
		if _, err := readFull(r, bits); err != nil {
			return nil, &kegerr.InvalidConfig{Reason: "short tag bitfield"}
		}
		f.tagIndex[name] = len(f.Tags)
		f.Tags = append(f.Tags, Tag{Name: name, Type: binary.BigEndian.Uint16(typeBytes), Bits: bits})
	}

	for i := 0; i < int(entryCount); i++ {
		name, err := readCString(r)
		if err != nil {
			return nil, err
		}
		digest := make([]byte, hashSize)
		if _, err := readFull(r, digest); err != nil {
			return nil, &kegerr.InvalidConfig{Reason: "short entry digest"}
		}
		sizeBytes := make([]byte, 4)
		if _, err := readFull(r, sizeBytes); err != nil {
			return nil, &kegerr.InvalidConfig{Reason: "short entry size"}
		}
		f.Entries = append(f.Entries, Entry{
			FileName: name,
			CKey:     key.FromBytes(digest),
			Size:     binary.BigEndian.Uint32(sizeBytes),
		})
	}

	return f, nil
}

// FilterEntries returns every entry for which all of the named tags have
// their bit set. An unknown tag name fails with TagError.
func (f *File) FilterEntries(tags []string) ([]Entry, error) {
	selected := make([]Tag, 0, len(tags))
	for _, name := range tags {
		idx, ok := f.tagIndex[name]
		if !ok {
			return nil, &kegerr.TagError{Tag: name}
		}
		selected = append(selected, f.Tags[idx])
	}

	var out []Entry
	for i, e := range f.Entries {
		match := true
		for _, t := range selected {
			if !t.has(i) {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", &kegerr.InvalidConfig{Reason: "unterminated cstring: " + err.Error()}
	}
	return s[:len(s)-1], nil
}
