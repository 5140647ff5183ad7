// Package localcdn implements the filesystem object store keg uses as its
// local cache of CDN objects: a partitioned layout under $ngdp/objects,
// an encrypted quarantine for objects awaiting an Armadillo key, temp
// staging for atomic writes, and a bbolt-backed presence index so
// existence checks don't stat the filesystem on every lookup.
package localcdn

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/keg/pkg/armadillo"
	"github.com/cuemby/keg/pkg/atomicio"
	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/key"
)

var (
	bucketConfig      = []byte("config")
	bucketData        = []byte("data")
	bucketIndex       = []byte("index")
	bucketPatch       = []byte("patch")
	bucketPatchIndex  = []byte("patch_index")
	bucketConfigItems = []byte("config_items")
	bucketFragments   = []byte("fragments")
)

// Store is the local, partitioned CDN object store rooted at a single
// $ngdp directory.
type Store struct {
	root string
	db   *bolt.DB
}

// Open opens (creating if necessary) the object store rooted at root. The
// on-disk layout is root/objects/{config,data,patch}, root/objects/configs/data,
// root/fragments, root/armadillo, and root/temp for staging; the presence
// index lives at root/presence.db.
func Open(root string) (*Store, error) {
	dirs := []string{
		filepath.Join(root, "objects", "config"),
		filepath.Join(root, "objects", "data"),
		filepath.Join(root, "objects", "patch"),
		filepath.Join(root, "objects", "configs", "data"),
		filepath.Join(root, "fragments"),
		filepath.Join(root, "armadillo"),
		filepath.Join(root, "temp"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("creating local CDN directory %s: %w", d, err)
		}
	}

	db, err := bolt.Open(filepath.Join(root, "presence.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening presence index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketConfig, bucketData, bucketIndex, bucketPatch,
			bucketPatchIndex, bucketConfigItems, bucketFragments,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating presence bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{root: root, db: db}, nil
}

// Close closes the presence index.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configPath(k string) (string, error) {
	part, err := key.Part(k)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, "objects", "config", part), nil
}

func (s *Store) dataPath(k string) (string, error) {
	part, err := key.Part(k)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, "objects", "data", part), nil
}

func (s *Store) indexPath(k string) (string, error) {
	p, err := s.dataPath(k)
	if err != nil {
		return "", err
	}
	return p + ".index", nil
}

func (s *Store) patchPath(k string) (string, error) {
	part, err := key.Part(k)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, "objects", "patch", part), nil
}

func (s *Store) patchIndexPath(k string) (string, error) {
	p, err := s.patchPath(k)
	if err != nil {
		return "", err
	}
	return p + ".index", nil
}

func (s *Store) configItemPath(k string) (string, error) {
	part, err := key.Part(k)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, "objects", "configs", "data", part), nil
}

func (s *Store) fragmentPath(k string) (string, error) {
	part, err := key.Part(k)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, "fragments", part), nil
}

func (s *Store) marked(bucket []byte, k string) bool {
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucket).Get([]byte(k)) != nil
		return nil
	})
	return found
}

func (s *Store) mark(bucket []byte, k string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(k), []byte{1})
	})
}

// HasConfig reports whether the config object for k is present.
func (s *Store) HasConfig(k string) bool { return s.marked(bucketConfig, k) }

// HasData reports whether the data object for k is present.
func (s *Store) HasData(k string) bool { return s.marked(bucketData, k) }

// HasIndex reports whether the archive index for k is present.
func (s *Store) HasIndex(k string) bool { return s.marked(bucketIndex, k) }

// HasPatch reports whether the patch archive for k is present.
func (s *Store) HasPatch(k string) bool { return s.marked(bucketPatch, k) }

// HasPatchIndex reports whether the patch archive index for k is present.
func (s *Store) HasPatchIndex(k string) bool { return s.marked(bucketPatchIndex, k) }

// HasConfigItem reports whether the product-config item for k is present.
func (s *Store) HasConfigItem(k string) bool { return s.marked(bucketConfigItems, k) }

// HasFragment reports whether an encrypted, not-yet-decryptable fragment
// for k is quarantined.
func (s *Store) HasFragment(k string) bool { return s.marked(bucketFragments, k) }

// Kind identifies which partitioned space an item lives in.
type Kind int

const (
	KindConfig Kind = iota
	KindData
	KindIndex
	KindPatch
	KindPatchIndex
	KindConfigItem
	KindFragment
)

func (s *Store) pathFor(k Kind, key string) (string, error) {
	switch k {
	case KindConfig:
		return s.configPath(key)
	case KindData:
		return s.dataPath(key)
	case KindIndex:
		return s.indexPath(key)
	case KindPatch:
		return s.patchPath(key)
	case KindPatchIndex:
		return s.patchIndexPath(key)
	case KindConfigItem:
		return s.configItemPath(key)
	case KindFragment:
		return s.fragmentPath(key)
	default:
		return "", fmt.Errorf("unknown object kind %d", k)
	}
}

func (s *Store) bucketFor(k Kind) []byte {
	switch k {
	case KindConfig:
		return bucketConfig
	case KindData:
		return bucketData
	case KindIndex:
		return bucketIndex
	case KindPatch:
		return bucketPatch
	case KindPatchIndex:
		return bucketPatchIndex
	case KindConfigItem:
		return bucketConfigItems
	case KindFragment:
		return bucketFragments
	default:
		return nil
	}
}

// GetItem opens a stream over the stored object for key in the given
// kind's space, failing with FileNotFound if absent.
func (s *Store) GetItem(k Kind, objKey string) (io.ReadCloser, error) {
	path, err := s.pathFor(k, objKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &kegerr.FileNotFound{Path: path}
		}
		return nil, err
	}
	return f, nil
}

// SaveItem atomically writes r's content as the object for objKey in the
// given kind's space and marks it present in the presence index.
func (s *Store) SaveItem(k Kind, objKey string, r io.Reader) error {
	path, err := s.pathFor(k, objKey)
	if err != nil {
		return err
	}
	f, tmp, err := atomicio.NewStagingFile(filepath.Join(s.root, "temp"))
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = atomicio.Publish(tmp, path)
	}
	if err != nil {
		atomicio.Abandon(tmp)
		return err
	}
	return s.mark(s.bucketFor(k), objKey)
}

// Stats returns the number of objects present in each kind's space, keyed
// by the kind's bucket name ("config", "data", "index", "patch",
// "patch_index", "config_items", "fragments").
func (s *Store) Stats() map[string]int {
	out := make(map[string]int, 7)
	_ = s.db.View(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketConfig, bucketData, bucketIndex, bucketPatch,
			bucketPatchIndex, bucketConfigItems, bucketFragments,
		} {
			out[string(b)] = tx.Bucket(b).Stats().KeyN
		}
		return nil
	})
	return out
}

// GetDecryptionKey reads and verifies the named Armadillo key from
// $ngdp/armadillo/<name>, failing with ArmadilloKeyNotFound if absent.
func (s *Store) GetDecryptionKey(name string) (*armadillo.Key, error) {
	path := filepath.Join(s.root, "armadillo", name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &kegerr.ArmadilloKeyNotFound{Name: name}
		}
		return nil, err
	}
	return armadillo.ParseKey(data)
}

// SaveDecryptionKey persists an Armadillo key blob under the given name
// so future GetDecryptionKey calls can find it.
func (s *Store) SaveDecryptionKey(name string, data []byte) error {
	path := filepath.Join(s.root, "armadillo", name)
	return atomicio.WriteFile(path, data, 0o600)
}
