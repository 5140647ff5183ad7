// Package keg implements the repository root object: the single struct
// that threads configuration, the metadata DB, the local object store,
// and the state caches to every other operation, so no package needs a
// package-level global to reach repository state.
package keg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/keg/pkg/config"
	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/localcdn"
	"github.com/cuemby/keg/pkg/metadb"
	"github.com/cuemby/keg/pkg/statecache"
)

// dbFileName is the metadata DB's conventional name under a repository
// root.
const dbFileName = "keg.db"

// Keg is an open repository: a directory on disk holding keg.conf,
// keg.db, the local object store, and the two response caches (one per
// wire protocol). Every operation that touches repository state takes a
// *Keg rather than reading package-level globals.
type Keg struct {
	Root   string
	Config *config.Config
	DB     *metadb.DB
	Local  *localcdn.Store

	// Responses caches the HTTP version-server/CDN responses under
	// $ngdp/responses; Ribbit caches the Ribbit MIME envelopes under
	// $ngdp/ribbit, mirroring the two distinct cache directories the
	// repository layout names.
	Responses *statecache.Cache
	Ribbit    *statecache.Cache
}

// Init creates a new repository at root: the directory is created if
// necessary, a default keg.conf is written, and every substore is
// opened. It fails if a keg.conf already exists at root.
func Init(root string) (*Keg, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating repository root %s: %w", root, err)
	}

	confPath := filepath.Join(root, config.FileName)
	if _, err := os.Stat(confPath); err == nil {
		return nil, fmt.Errorf("keg: %s already exists", confPath)
	}

	cfg := config.Default()
	if err := cfg.Save(confPath); err != nil {
		return nil, err
	}

	return open(root, cfg)
}

// Open opens an existing repository at root, failing with
// *kegerr.RepositoryNotFound if no keg.conf is present there.
func Open(root string) (*Keg, error) {
	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if err != nil {
		if _, ok := err.(*kegerr.FileNotFound); ok {
			return nil, &kegerr.RepositoryNotFound{Path: root}
		}
		return nil, err
	}
	return open(root, cfg)
}

func open(root string, cfg *config.Config) (*Keg, error) {
	local, err := localcdn.Open(root)
	if err != nil {
		return nil, err
	}

	db, err := metadb.Open(filepath.Join(root, dbFileName))
	if err != nil {
		local.Close()
		return nil, err
	}

	responses, err := statecache.New(filepath.Join(root, "responses"))
	if err != nil {
		db.Close()
		local.Close()
		return nil, err
	}

	ribbit, err := statecache.New(filepath.Join(root, "ribbit"))
	if err != nil {
		db.Close()
		local.Close()
		return nil, err
	}

	return &Keg{
		Root:      root,
		Config:    cfg,
		DB:        db,
		Local:     local,
		Responses: responses,
		Ribbit:    ribbit,
	}, nil
}

// Close releases the repository's open handles (the metadata DB and the
// local object store's presence index).
func (k *Keg) Close() error {
	dbErr := k.DB.Close()
	localErr := k.Local.Close()
	if dbErr != nil {
		return dbErr
	}
	return localErr
}

// ConfigPath is the path keg.conf lives at within this repository.
func (k *Keg) ConfigPath() string { return filepath.Join(k.Root, config.FileName) }

// SaveConfig persists the current in-memory Config back to keg.conf.
func (k *Keg) SaveConfig() error { return k.Config.Save(k.ConfigPath()) }

// Discover walks upward from start looking for a directory containing
// keg.conf, the way version-control tools locate a repository root from
// a subdirectory. It fails with *kegerr.RepositoryNotFound if none is
// found before reaching the filesystem root.
func Discover(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &kegerr.RepositoryNotFound{Path: start}
		}
		dir = parent
	}
}
