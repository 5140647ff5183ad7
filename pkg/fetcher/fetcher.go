// Package fetcher implements the fetch planner: the component that walks
// a build's reference graph (Build-Config -> CDN-Config -> Patch-Config
// -> encoding table -> archives -> loose files -> patches) and drives
// every object it discovers through a bounded-concurrency fetch, verify,
// and local-store publish cycle.
//
// The planner never descends the graph eagerly: each phase enqueues the
// keys it has learned about onto one of nine named queues, then drains
// that queue through a worker pool before moving on, so a key discovered
// twice (e.g. a CDN-Config whose file-index is also one of its
// archives) is only ever fetched once.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cuemby/keg/pkg/archiveindex"
	"github.com/cuemby/keg/pkg/armadillo"
	"github.com/cuemby/keg/pkg/blte"
	"github.com/cuemby/keg/pkg/cache"
	"github.com/cuemby/keg/pkg/configfile"
	"github.com/cuemby/keg/pkg/encoding"
	"github.com/cuemby/keg/pkg/events"
	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/localcdn"
	"github.com/cuemby/keg/pkg/metrics"
	"github.com/cuemby/keg/pkg/remote"
)

// DefaultConcurrency is the number of directives a drain services at once
// when the caller doesn't specify one.
const DefaultConcurrency = 8

// queueNames lists the fetcher's nine dedup queues in no particular
// order; phases enqueue onto them by name.
var queueNames = []string{
	"product_config", "config", "index", "patch_index",
	"archive", "loose_file", "signature_file", "patch_entry", "patch_archive",
}

// Fetcher plans and drives the fetch of a single (build-config,
// cdn-config, patch-config) triple into the local object store.
type Fetcher struct {
	local       *localcdn.Store
	objects     *cache.ObjectCache
	broker      *events.Broker
	concurrency int

	buildConfigKey   string
	cdnConfigKey     string
	productConfigKey string

	buildConfig  *configfile.BuildConfig
	cdnConfig    *configfile.CDNConfig
	patchConfig  *configfile.PatchConfig
	encodingFile *encoding.File
	archiveGroup []archiveindex.GroupEntry

	decryptionKeyName string
	decryptionKey     *armadillo.Key

	queues map[string]*queue
}

// New builds a Fetcher over version (a resolved "versions" PSV row),
// fetching through objects and publishing into local. broker may be nil
// if the caller doesn't want progress events.
func New(version remote.VersionRecord, local *localcdn.Store, objects *cache.ObjectCache, broker *events.Broker) *Fetcher {
	f := &Fetcher{
		local:             local,
		objects:           objects,
		broker:            broker,
		concurrency:       DefaultConcurrency,
		buildConfigKey:    version.BuildConfig,
		cdnConfigKey:      version.CDNConfig,
		productConfigKey:  version.ProductConfig,
		queues:            make(map[string]*queue, len(queueNames)),
	}
	for _, name := range queueNames {
		f.queues[name] = newQueue()
	}
	return f
}

// SetConcurrency overrides the number of directives serviced at once
// within a single drain. Values below 1 are ignored.
func (f *Fetcher) SetConcurrency(n int) {
	if n >= 1 {
		f.concurrency = n
	}
}

// BuildConfig returns the parsed Build-Config, populated once FetchConfig
// has run.
func (f *Fetcher) BuildConfig() *configfile.BuildConfig { return f.buildConfig }

// CDNConfig returns the parsed CDN-Config, populated once FetchConfig has
// run.
func (f *Fetcher) CDNConfig() *configfile.CDNConfig { return f.cdnConfig }

// PatchConfig returns the parsed Patch-Config, nil if the build has none.
func (f *Fetcher) PatchConfig() *configfile.PatchConfig { return f.patchConfig }

// EncodingFile returns the parsed encoding table, populated once
// FetchMetadata has run.
func (f *Fetcher) EncodingFile() *encoding.File { return f.encodingFile }

// ArchiveGroup returns the merged archive-group index, populated once
// FetchData has run.
func (f *Fetcher) ArchiveGroup() []archiveindex.GroupEntry { return f.archiveGroup }

func (f *Fetcher) queue(name string) *queue { return f.queues[name] }

func (f *Fetcher) emit(t events.EventType, drain, k, msg string) {
	if f.broker == nil {
		return
	}
	f.broker.Publish(&events.Event{Type: t, Drain: drain, Key: k, Message: msg})
}

func existsLocally(local *localcdn.Store, kind localcdn.Kind, k string) bool {
	switch kind {
	case localcdn.KindConfig:
		return local.HasConfig(k)
	case localcdn.KindData:
		return local.HasData(k)
	case localcdn.KindIndex:
		return local.HasIndex(k)
	case localcdn.KindPatch:
		return local.HasPatch(k)
	case localcdn.KindPatchIndex:
		return local.HasPatchIndex(k)
	case localcdn.KindConfigItem:
		return local.HasConfigItem(k)
	default:
		return false
	}
}

// fetchKey resolves a single key from queueName: a no-op if already
// present locally, otherwise a remote fetch followed by the queue's
// decrypt-if-needed, verify, and atomic-publish sequence.
func (f *Fetcher) fetchKey(ctx context.Context, queueName, k string, verify bool) error {
	spec := directiveSpecs[queueName]

	if existsLocally(f.local, spec.kind, k) {
		f.emit(events.EventKeySkipped, queueName, k, "")
		metrics.KeysSkippedTotal.WithLabelValues(queueName).Inc()
		return nil
	}

	raw, err := f.objects.FetchRaw(ctx, spec.urlDir, k, spec.suffix)
	if err != nil {
		metrics.KeysFailedTotal.WithLabelValues(queueName, "transport").Inc()
		return err
	}
	metrics.BytesDownloadedTotal.WithLabelValues(queueName).Add(float64(len(raw)))

	if spec.mayBeEncrypted && f.decryptionKeyName != "" {
		if f.decryptionKey != nil {
			raw, err = f.decryptionKey.DecryptObject(k, raw)
			if err != nil {
				metrics.KeysFailedTotal.WithLabelValues(queueName, "decrypt").Inc()
				return err
			}
		} else {
			if err := f.local.SaveItem(localcdn.KindFragment, k, bytes.NewReader(raw)); err != nil {
				return err
			}
			f.emit(events.EventKeyQuarantined, queueName, k, "awaiting armadillo key "+f.decryptionKeyName)
			metrics.KeysQuarantinedTotal.WithLabelValues(queueName).Inc()
			return nil
		}
	}

	if verify {
		if err := spec.verify(f.local, raw, k); err != nil {
			metrics.KeysFailedTotal.WithLabelValues(queueName, "verify").Inc()
			metrics.IntegrityFailuresTotal.WithLabelValues(queueName).Inc()
			return err
		}
	}

	if err := f.local.SaveItem(spec.kind, k, bytes.NewReader(raw)); err != nil {
		return err
	}
	f.emit(events.EventKeyFetched, queueName, k, "")
	metrics.KeysFetchedTotal.WithLabelValues(queueName).Inc()
	return nil
}

// runDrain drains queueName and services every missing key concurrently,
// bounded by f.concurrency.
func (f *Fetcher) runDrain(ctx context.Context, queueName string, verify bool) error {
	keys := f.queue(queueName).drain()
	metrics.DrainQueueDepth.WithLabelValues(queueName).Set(float64(len(keys)))
	if len(keys) == 0 {
		return nil
	}

	timer := metrics.NewTimer()
	f.emit(events.EventDrainStarted, queueName, "", fmt.Sprintf("%d keys", len(keys)))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(f.concurrency))
	for _, k := range keys {
		k := k
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			return f.fetchKey(gctx, queueName, k, verify)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.emit(events.EventDrainCompleted, queueName, "", fmt.Sprintf("%d keys", len(keys)))
	timer.ObserveDurationVec(metrics.DrainDuration, queueName)
	return nil
}

// readConfig reads and returns a config-space object already confirmed
// present locally.
func (f *Fetcher) readConfig(k string) ([]byte, error) {
	rc, err := f.local.GetItem(localcdn.KindConfig, k)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// decryptionKeyNameFromProductConfig digs "all.config.decryption_key_name" out of a
// product-config JSON document, returning "" if the document has no such
// field (most products don't).
func decryptionKeyNameFromProductConfig(data []byte) string {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	all, _ := doc["all"].(map[string]interface{})
	if all == nil {
		return ""
	}
	cfg, _ := all["config"].(map[string]interface{})
	if cfg == nil {
		return ""
	}
	name, _ := cfg["decryption_key_name"].(string)
	return name
}

// FetchConfig is phase 1: resolve the product-config (discovering any
// Armadillo decryption key the build needs), then the build-config and
// cdn-config, then the patch-config if the build-config names one.
func (f *Fetcher) FetchConfig(ctx context.Context, verify bool) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FetchPhaseDuration, "fetch_config")

	if f.buildConfig != nil {
		return nil
	}

	if f.productConfigKey != "" {
		f.queue("product_config").add(f.productConfigKey)
		if err := f.runDrain(ctx, "product_config", verify); err != nil {
			return err
		}
		if f.local.HasConfigItem(f.productConfigKey) {
			rc, err := f.local.GetItem(localcdn.KindConfigItem, f.productConfigKey)
			if err != nil {
				return err
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			if name := decryptionKeyNameFromProductConfig(data); name != "" {
				f.decryptionKeyName = name
				k, err := f.local.GetDecryptionKey(name)
				var notFound *kegerr.ArmadilloKeyNotFound
				if err != nil && !errors.As(err, &notFound) {
					return err
				}
				f.decryptionKey = k
			}
		}
	}

	f.queue("config").add(f.buildConfigKey)
	f.queue("config").add(f.cdnConfigKey)
	if err := f.runDrain(ctx, "config", verify); err != nil {
		return err
	}

	if f.local.HasConfig(f.buildConfigKey) {
		data, err := f.readConfig(f.buildConfigKey)
		if err != nil {
			return err
		}
		values, err := configfile.ParseString(string(data))
		if err != nil {
			return err
		}
		f.buildConfig = configfile.NewBuildConfig(values)
	}
	if f.local.HasConfig(f.cdnConfigKey) {
		data, err := f.readConfig(f.cdnConfigKey)
		if err != nil {
			return err
		}
		values, err := configfile.ParseString(string(data))
		if err != nil {
			return err
		}
		f.cdnConfig = configfile.NewCDNConfig(values)
	}

	if f.buildConfig != nil && f.buildConfig.PatchConfig != "" {
		f.queue("config").add(f.buildConfig.PatchConfig)
		if err := f.runDrain(ctx, "config", verify); err != nil {
			return err
		}
		if f.local.HasConfig(f.buildConfig.PatchConfig) {
			data, err := f.readConfig(f.buildConfig.PatchConfig)
			if err != nil {
				return err
			}
			values, err := configfile.ParseString(string(data))
			if err != nil {
				return err
			}
			pc, err := configfile.NewPatchConfig(values)
			if err != nil {
				return err
			}
			f.patchConfig = pc
		}
	}

	return nil
}

// FetchMetadata is phase 2: enqueue every archive, patch-archive, and
// file-index the cdn-config names, resolve the encoding table (and with
// it the download/size loose files and build signature), then drain the
// index and patch_index queues.
func (f *Fetcher) FetchMetadata(ctx context.Context, verify bool) error {
	if err := f.FetchConfig(ctx, verify); err != nil {
		return err
	}
	if f.cdnConfig == nil {
		return &kegerr.FileNotFound{Path: "cdn-config " + f.cdnConfigKey}
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FetchPhaseDuration, "fetch_metadata")

	for _, a := range f.cdnConfig.Archives {
		f.queue("archive").add(a)
		f.queue("index").add(a)
	}
	f.queue("index").add(f.cdnConfig.FileIndex)

	for _, pa := range f.cdnConfig.PatchArchives {
		f.queue("patch_archive").add(pa)
		f.queue("patch_index").add(pa)
	}
	f.queue("patch_index").add(f.cdnConfig.PatchFileIndex)

	if f.patchConfig != nil {
		for _, e := range f.patchConfig.PatchEntries {
			for _, p := range e.Pairs {
				f.queue("patch_entry").add(p.PatchEKey)
			}
		}
	}

	if f.buildConfig != nil && !f.buildConfig.Encoding.Empty() {
		ekey := f.buildConfig.Encoding.EKey
		if ekey == "" {
			ekey = f.buildConfig.Encoding.CKey
		}
		f.queue("loose_file").add(ekey)
		if err := f.runDrain(ctx, "loose_file", verify); err != nil {
			return err
		}
		if f.local.HasData(ekey) {
			rc, err := f.local.GetItem(localcdn.KindData, ekey)
			if err != nil {
				return err
			}
			raw, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			decoded, err := blte.Decode(bytes.NewReader(raw), ekey, verify)
			if err != nil {
				return err
			}
			ef, err := encoding.Parse(decoded, f.buildConfig.Encoding.CKey, false)
			if err != nil {
				return err
			}
			f.encodingFile = ef
		}

		if f.buildConfig.Download.EKey != "" {
			f.queue("loose_file").add(f.buildConfig.Download.EKey)
			if err := f.runDrain(ctx, "loose_file", verify); err != nil {
				return err
			}
		}
		if f.buildConfig.Size.EKey != "" {
			f.queue("loose_file").add(f.buildConfig.Size.EKey)
			if err := f.runDrain(ctx, "loose_file", verify); err != nil {
				return err
			}
		}
	}

	if f.buildConfig != nil && f.buildConfig.BuildSignatureFile != "" {
		f.queue("signature_file").add(f.buildConfig.BuildSignatureFile)
		if err := f.runDrain(ctx, "signature_file", verify); err != nil {
			return err
		}
	}

	if err := f.runDrain(ctx, "index", verify); err != nil {
		return err
	}
	if err := f.runDrain(ctx, "patch_index", verify); err != nil {
		return err
	}

	return nil
}

// FetchData is phase 3: build the merged archive-group index, enqueue
// every encoding-key the archive group doesn't already cover as a loose
// file, then drain the archive, loose_file, patch_entry, and
// patch_archive queues.
func (f *Fetcher) FetchData(ctx context.Context, verify bool) error {
	if err := f.FetchMetadata(ctx, verify); err != nil {
		return err
	}
	if f.encodingFile == nil {
		return &kegerr.FileNotFound{Path: "encoding file for build " + f.buildConfigKey}
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FetchPhaseDuration, "fetch_data")

	indexes := make([]*archiveindex.Index, 0, len(f.cdnConfig.Archives))
	for _, a := range f.cdnConfig.Archives {
		idx, err := f.objects.GetDataIndex(ctx, a, verify)
		if err != nil {
			return err
		}
		indexes = append(indexes, idx)
	}
	group, err := archiveindex.MergeGroup(f.cdnConfig.Archives, indexes)
	if err != nil {
		return err
	}
	f.archiveGroup = group

	inGroup := make(map[string]bool, len(group))
	for _, e := range group {
		inGroup[e.Key] = true
	}

	for _, e := range f.encodingFile.EncodingKeys() {
		if !inGroup[e.EKey] {
			f.queue("loose_file").add(e.EKey)
		}
	}

	if err := f.runDrain(ctx, "archive", verify); err != nil {
		return err
	}
	if err := f.runDrain(ctx, "loose_file", verify); err != nil {
		return err
	}
	if err := f.runDrain(ctx, "patch_entry", verify); err != nil {
		return err
	}
	if err := f.runDrain(ctx, "patch_archive", verify); err != nil {
		return err
	}

	return nil
}
