package fetcher

import (
	"bytes"

	"github.com/cuemby/keg/pkg/archiveindex"
	"github.com/cuemby/keg/pkg/blte"
	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/key"
	"github.com/cuemby/keg/pkg/localcdn"
)

// directiveSpec is the per-queue recipe a Directive follows to resolve,
// verify, and store one key: which partitioned space it lives in, which
// URL directory and suffix the remote request is built from, how to
// verify a fetched payload, and whether the object may be served
// Armadillo-encrypted.
type directiveSpec struct {
	kind           localcdn.Kind
	urlDir         string
	suffix         string
	verify         func(local *localcdn.Store, data []byte, k string) error
	mayBeEncrypted bool
}

func verifyPlainMD5(_ *localcdn.Store, data []byte, k string) error {
	return key.VerifyMD5("object "+k, data, k)
}

func verifyBLTE(_ *localcdn.Store, data []byte, k string) error {
	return blte.Verify(bytes.NewReader(data), k)
}

func verifyArchiveIndex(_ *localcdn.Store, data []byte, k string) error {
	_, err := archiveindex.Parse(data, k, true)
	return err
}

// verifyIndexPresence checks only that the key's own index file is
// already present locally. An archive (or patch archive) is a
// concatenation of independently BLTE-encoded loose files, not one BLTE
// container, so there is no single whole-file digest to verify it
// against; decoding it as one BLTE stream finds trailing bytes after the
// first embedded file. Matches the original's ArchiveFetchDirective and
// PatchArchiveFetchDirective, which raise on a missing index and
// otherwise leave the rest of the archive unverified (a TODO there too).
func verifyIndexPresence(indexKind localcdn.Kind) func(*localcdn.Store, []byte, string) error {
	return func(local *localcdn.Store, _ []byte, k string) error {
		if !existsLocally(local, indexKind, k) {
			return &kegerr.FileNotFound{Path: "index for archive " + k}
		}
		return nil
	}
}

// directiveSpecs maps each of the fetcher's nine named queues to its
// directive recipe.
var directiveSpecs = map[string]directiveSpec{
	"product_config": {
		kind: localcdn.KindConfigItem, urlDir: "configs/data",
		verify: verifyPlainMD5, mayBeEncrypted: true,
	},
	"config": {
		kind: localcdn.KindConfig, urlDir: "config",
		verify: verifyPlainMD5, mayBeEncrypted: true,
	},
	"index": {
		kind: localcdn.KindIndex, urlDir: "data", suffix: ".index",
		verify: verifyArchiveIndex,
	},
	"patch_index": {
		kind: localcdn.KindPatchIndex, urlDir: "patch", suffix: ".index",
		verify: verifyArchiveIndex,
	},
	"archive": {
		kind: localcdn.KindData, urlDir: "data",
		verify: verifyIndexPresence(localcdn.KindIndex),
	},
	"loose_file": {
		kind: localcdn.KindData, urlDir: "data",
		verify: verifyBLTE,
	},
	// A build's detached signature is a loose data object like any other,
	// but isn't itself BLTE-encoded, so it verifies by plain identity.
	"signature_file": {
		kind: localcdn.KindData, urlDir: "data",
		verify: verifyPlainMD5,
	},
	"patch_entry": {
		kind: localcdn.KindPatch, urlDir: "patch",
		verify: verifyBLTE,
	},
	"patch_archive": {
		kind: localcdn.KindPatch, urlDir: "patch",
		verify: verifyIndexPresence(localcdn.KindPatchIndex),
	},
}
