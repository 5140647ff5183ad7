// Package buildmgr is a convenience facade over a resolved build: given a
// Fetcher that already knows its (build-config, cdn-config) pair, it
// exposes the encoding table, install manifest, archive-group index, and
// root manifest without the caller having to know which of those live in
// an archive versus as a loose file.
package buildmgr

import (
	"bytes"
	"context"
	"io"

	"github.com/cuemby/keg/pkg/archiveindex"
	"github.com/cuemby/keg/pkg/blte"
	"github.com/cuemby/keg/pkg/cache"
	"github.com/cuemby/keg/pkg/encoding"
	"github.com/cuemby/keg/pkg/fetcher"
	"github.com/cuemby/keg/pkg/install"
	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/localcdn"
)

// BuildManager resolves the install manifest and root manifest for a
// build already known to a Fetcher, pulling their bytes out of whichever
// archive the archive-group index says they live in, or loose if not.
type BuildManager struct {
	fetcher *fetcher.Fetcher
	objects *cache.ObjectCache
	local   *localcdn.Store
}

// New builds a BuildManager over f, a Fetcher whose FetchConfig (at
// least) has already resolved the build's Build-Config.
func New(f *fetcher.Fetcher, objects *cache.ObjectCache, local *localcdn.Store) *BuildManager {
	return &BuildManager{fetcher: f, objects: objects, local: local}
}

// GetEncoding returns the build's encoding table, fetching through
// FetchMetadata if it hasn't already run.
func (m *BuildManager) GetEncoding(ctx context.Context, verify bool) (*encoding.File, error) {
	if m.fetcher.EncodingFile() == nil {
		if err := m.fetcher.FetchMetadata(ctx, verify); err != nil {
			return nil, err
		}
	}
	return m.fetcher.EncodingFile(), nil
}

// GetArchiveGroup returns the build's merged archive-group index,
// fetching through FetchData if it hasn't already run.
func (m *BuildManager) GetArchiveGroup(ctx context.Context, verify bool) ([]archiveindex.GroupEntry, error) {
	if m.fetcher.ArchiveGroup() == nil {
		if err := m.fetcher.FetchData(ctx, verify); err != nil {
			return nil, err
		}
	}
	return m.fetcher.ArchiveGroup(), nil
}

// GetInstall resolves and parses the build's install manifest. The
// Build-Config's install role may be expressed as (ckey, ekey),
// (ckey, ""), or left empty entirely; when only the ckey is known, the
// encoding table supplies the matching ekey.
func (m *BuildManager) GetInstall(ctx context.Context, verify bool) (*install.File, error) {
	bc := m.fetcher.BuildConfig()
	if bc == nil {
		if err := m.fetcher.FetchConfig(ctx, verify); err != nil {
			return nil, err
		}
		bc = m.fetcher.BuildConfig()
	}
	if bc.Install.Empty() {
		return nil, &kegerr.FileNotFound{Path: "install manifest (build-config names none)"}
	}

	ekey := bc.Install.EKey
	if ekey == "" {
		enc, err := m.GetEncoding(ctx, verify)
		if err != nil {
			return nil, err
		}
		ekey, err = enc.FindByContentKey(bc.Install.CKey)
		if err != nil {
			return nil, err
		}
	}

	data, err := m.resolveContent(ctx, ekey, verify)
	if err != nil {
		return nil, err
	}
	return install.Parse(data, bc.Install.CKey, verify)
}

// GetRoot resolves and returns the build's root manifest bytes. The root
// manifest's own format is product-specific and isn't otherwise parsed
// by keg; callers that understand it decode the returned bytes
// themselves.
func (m *BuildManager) GetRoot(ctx context.Context, verify bool) ([]byte, error) {
	bc := m.fetcher.BuildConfig()
	if bc == nil {
		if err := m.fetcher.FetchConfig(ctx, verify); err != nil {
			return nil, err
		}
		bc = m.fetcher.BuildConfig()
	}
	if bc.Root.Empty() {
		return nil, &kegerr.FileNotFound{Path: "root manifest (build-config names none)"}
	}

	ekey := bc.Root.EKey
	if ekey == "" {
		enc, err := m.GetEncoding(ctx, verify)
		if err != nil {
			return nil, err
		}
		ekey, err = enc.FindByContentKey(bc.Root.CKey)
		if err != nil {
			return nil, err
		}
	}

	return m.resolveContent(ctx, ekey, verify)
}

// resolveContent returns the decoded content for ekey, wherever it lives:
// inside one of the build's archives (per the archive-group index) or as
// its own loose data object.
func (m *BuildManager) resolveContent(ctx context.Context, ekey string, verify bool) ([]byte, error) {
	group, err := m.GetArchiveGroup(ctx, verify)
	if err != nil {
		return nil, err
	}

	cdnConfig := m.fetcher.CDNConfig()
	for _, e := range group {
		if e.Key != ekey {
			continue
		}
		if e.ArchiveID < 0 || e.ArchiveID >= len(cdnConfig.Archives) {
			return nil, &kegerr.FileNotFound{Path: "archive index out of range for " + ekey}
		}
		archiveKey := cdnConfig.Archives[e.ArchiveID]
		return m.extractFromArchive(archiveKey, e.Offset, e.Size, ekey, verify)
	}

	return m.objects.GetBLTEData(ctx, ekey, verify)
}

// extractFromArchive slices the (offset, size) span for ekey out of the
// already-fetched archive archiveKey and decodes it as a BLTE block.
func (m *BuildManager) extractFromArchive(archiveKey string, offset, size uint32, ekey string, verify bool) ([]byte, error) {
	rc, err := m.local.GetItem(localcdn.KindData, archiveKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	archive, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	end := uint64(offset) + uint64(size)
	if end > uint64(len(archive)) {
		return nil, &kegerr.InvalidConfig{Reason: "archive span exceeds archive size for " + ekey}
	}

	return blte.Decode(bytes.NewReader(archive[offset:end]), ekey, verify)
}
