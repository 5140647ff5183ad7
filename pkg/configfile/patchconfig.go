package configfile

import (
	"strconv"

	"github.com/cuemby/keg/pkg/patch"
)

// PatchConfig is the typed view over a parsed Patch-Config object.
type PatchConfig struct {
	Values Values

	Patch        string
	PatchSize    int64
	PatchEntries []*patch.Entry
}

// NewPatchConfig builds a typed view from parsed key=value pairs and parses
// every "patch-entry" line eagerly; a malformed entry fails the whole
// parse, matching the original's list-comprehension-style construction.
func NewPatchConfig(v Values) (*PatchConfig, error) {
	entries, err := patch.ParseEntries(v["patch-entry"])
	if err != nil {
		return nil, err
	}

	var size int64
	if raw, ok := v["patch-size"]; ok {
		size, _ = strconv.ParseInt(raw, 10, 64)
	}

	return &PatchConfig{
		Values:       v,
		Patch:        v["patch"],
		PatchSize:    size,
		PatchEntries: entries,
	}, nil
}
