// Package patch parses Patch-Config "patch-entry" lines: whitespace
// delimited tokens describing a delta from one or more old encoding-keys
// to a new one.
package patch

import (
	"strconv"
	"strings"

	"github.com/cuemby/keg/pkg/kegerr"
)

// Pair is one (old_ekey, old_size) -> (patch_ekey, patch_size) delta
// within a patch entry.
type Pair struct {
	OldEKey   string
	OldSize   int64
	PatchEKey string
	PatchSize int64
}

// Entry is one parsed patch-entry line.
type Entry struct {
	Type           string
	CKey           string
	CSize          int64
	EKey           string
	ESize          int64
	EncodingFormat string
	Pairs          []Pair
}

// ParseEntry parses a single whitespace-delimited patch-entry line:
// "type ckey csize ekey esize espec [old_ekey old_size patch_ekey patch_size]...".
func ParseEntry(line string) (*Entry, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 6 {
		return nil, &kegerr.InvalidConfig{Reason: "patch entry has fewer than 6 tokens: " + line}
	}

	e := &Entry{
		Type: tokens[0],
		CKey: tokens[1],
		EKey: tokens[3],
	}
	var err error
	if e.CSize, err = strconv.ParseInt(tokens[2], 10, 64); err != nil {
		return nil, &kegerr.InvalidConfig{Reason: "invalid csize in patch entry: " + tokens[2]}
	}
	if e.ESize, err = strconv.ParseInt(tokens[4], 10, 64); err != nil {
		return nil, &kegerr.InvalidConfig{Reason: "invalid esize in patch entry: " + tokens[4]}
	}
	e.EncodingFormat = tokens[5]

	rest := tokens[6:]
	if len(rest)%4 != 0 {
		return nil, &kegerr.InvalidConfig{Reason: "trailing patch pair tokens not a multiple of 4"}
	}
	for i := 0; i < len(rest); i += 4 {
		oldSize, err := strconv.ParseInt(rest[i+1], 10, 64)
		if err != nil {
			return nil, &kegerr.InvalidConfig{Reason: "invalid old_size in patch pair: " + rest[i+1]}
		}
		patchSize, err := strconv.ParseInt(rest[i+3], 10, 64)
		if err != nil {
			return nil, &kegerr.InvalidConfig{Reason: "invalid patch_size in patch pair: " + rest[i+3]}
		}
		e.Pairs = append(e.Pairs, Pair{
			OldEKey:   rest[i],
			OldSize:   oldSize,
			PatchEKey: rest[i+2],
			PatchSize: patchSize,
		})
	}
	return e, nil
}

// ParseEntries parses one patch entry per line of the "patch-entry"
// config value (duplicate keys have already been newline-joined by
// pkg/configfile).
func ParseEntries(raw string) ([]*Entry, error) {
	if raw == "" {
		return nil, nil
	}
	var entries []*Entry
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		e, err := ParseEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
