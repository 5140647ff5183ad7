// Package metadb persists CDN metadata (version/CDN/blob/bgdl rows, plus
// a response log) so the Fetcher and CLI can resolve a product version
// without re-requesting it from a remote.
package metadb

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/psv"
)

// Source identifies which transport produced a cached response.
type Source int

const (
	SourceHTTP   Source = 1
	SourceRibbit Source = 2
)

var tableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS responses (
		remote TEXT, path TEXT, timestamp INTEGER, digest TEXT, source INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS blobs (
		remote TEXT, key TEXT, row INTEGER, Region TEXT, InstallBlobMD5 TEXT, GameBlobMD5 TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS cdns (
		remote TEXT, key TEXT, row INTEGER, Name TEXT, Path TEXT, Hosts TEXT, Servers TEXT, ConfigPath TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS versions (
		remote TEXT, key TEXT, row INTEGER, BuildConfig TEXT, BuildID INTEGER,
		CDNConfig TEXT, KeyRing TEXT, ProductConfig TEXT, Region TEXT, VersionsName TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS bgdl (
		remote TEXT, key TEXT, row INTEGER, BuildConfig TEXT, BuildID INTEGER,
		CDNConfig TEXT, KeyRing TEXT, ProductConfig TEXT, Region TEXT, VersionsName TEXT
	)`,
}

// DB is the relational metadata index backing keg's fetch planner.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path and ensures its schema
// exists. Pass ":memory:" for an ephemeral, process-local database.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) createTables() error {
	for _, stmt := range tableDefinitions {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("creating metadata table: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// WriteResponse records a single fetched-response entry.
func (db *DB) WriteResponse(remote, path string, timestamp int64, digest string, source Source) error {
	_, err := db.conn.Exec(
		`INSERT INTO responses (remote, path, timestamp, digest, source) VALUES (?, ?, ?, ?, ?)`,
		remote, path, timestamp, digest, int(source),
	)
	return err
}

// LatestResponseDigest returns the most recently recorded digest for
// (remote, path), or "" if none exists.
func (db *DB) LatestResponseDigest(remote, path string) (string, error) {
	var digest string
	row := db.conn.QueryRow(
		`SELECT digest FROM responses WHERE remote = ? AND path = ? ORDER BY timestamp DESC LIMIT 1`,
		remote, path,
	)
	err := row.Scan(&digest)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return digest, nil
}

// tableColumns maps a PSV document name to its table's typed columns, in
// insert order.
var tableColumns = map[string][]string{
	"cdns":     {"Name", "Path", "Hosts", "Servers", "ConfigPath"},
	"versions": {"BuildConfig", "BuildID", "CDNConfig", "KeyRing", "ProductConfig", "Region", "VersionsName"},
	"bgdl":     {"BuildConfig", "BuildID", "CDNConfig", "KeyRing", "ProductConfig", "Region", "VersionsName"},
	"blobs":    {"Region", "InstallBlobMD5", "GameBlobMD5"},
}

// WritePSV ingests a parsed PSV document into the table named by tableName
// (one of "cdns", "versions", "bgdl", "blobs"): it deletes any existing
// rows for (remote, key) then batch-inserts the new rows, lowercasing
// any column whose raw header carries a "!HEX" type annotation.
func (db *DB) WritePSV(file *psv.File, remoteName, key, tableName string) error {
	cols, ok := tableColumns[tableName]
	if !ok {
		return fmt.Errorf("metadb: unknown PSV table %q", tableName)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE remote = ? AND key = ?`, tableName),
		remoteName, key,
	); err != nil {
		return fmt.Errorf("clearing stale %s rows: %w", tableName, err)
	}

	hexCols := map[string]bool{}
	for _, c := range file.HexColumns() {
		hexCols[c] = true
	}

	placeholders := strings.Repeat("?, ", len(cols))
	placeholders = strings.TrimSuffix(placeholders, ", ")
	insertSQL := fmt.Sprintf(
		`INSERT INTO %s (remote, key, row, %s) VALUES (?, ?, ?, %s)`,
		tableName, strings.Join(cols, ", "), placeholders,
	)

	for i, row := range file.Rows {
		args := make([]interface{}, 0, 3+len(cols))
		args = append(args, remoteName, key, i)
		for _, col := range cols {
			v := row.GetOr(col, "")
			if hexCols[col] {
				v = strings.ToLower(v)
			}
			args = append(args, v)
		}
		if _, err := tx.Exec(insertSQL, args...); err != nil {
			return fmt.Errorf("inserting %s row %d: %w", tableName, i, err)
		}
	}

	return tx.Commit()
}

// BuildConfigPair is one (BuildConfig, CDNConfig) association.
type BuildConfigPair struct {
	BuildConfig string
	CDNConfig   string
}

// BuildConfigs returns the distinct (BuildConfig, CDNConfig) pairs known
// for remote, or for all remotes if remote is "".
func (db *DB) BuildConfigs(remoteName string) ([]BuildConfigPair, error) {
	query := `SELECT DISTINCT BuildConfig, CDNConfig FROM versions`
	args := []interface{}{}
	if remoteName != "" {
		query += ` WHERE remote = ?`
		args = append(args, remoteName)
	}
	query += ` GROUP BY BuildConfig`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BuildConfigPair
	for rows.Next() {
		var p BuildConfigPair
		if err := rows.Scan(&p.BuildConfig, &p.CDNConfig); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CDNConfigs returns the distinct CDNConfig values known across remotes,
// or across all remotes if remotes is empty.
func (db *DB) CDNConfigs(remotes []string) ([]string, error) {
	query := `SELECT DISTINCT CDNConfig FROM versions`
	args := make([]interface{}, 0, len(remotes))
	if len(remotes) > 0 {
		placeholders := strings.Repeat("?, ", len(remotes))
		placeholders = strings.TrimSuffix(placeholders, ", ")
		query += fmt.Sprintf(` WHERE remote IN (%s)`, placeholders)
		for _, r := range remotes {
			args = append(args, r)
		}
	}
	query += ` GROUP BY CDNConfig ORDER BY CDNConfig`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VersionSummary is one (BuildConfig, BuildID, VersionsName) triple.
type VersionSummary struct {
	BuildConfig  string
	BuildID      int64
	VersionsName string
}

// Versions returns the distinct (BuildConfig, BuildID, VersionsName)
// triples known for remote, or across all remotes if remote is "",
// ordered ascending by BuildID.
func (db *DB) Versions(remoteName string) ([]VersionSummary, error) {
	query := `SELECT DISTINCT BuildConfig, BuildID, VersionsName FROM versions`
	args := []interface{}{}
	if remoteName != "" {
		query += ` WHERE remote = ?`
		args = append(args, remoteName)
	}
	query += ` ORDER BY BuildID ASC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VersionSummary
	for rows.Next() {
		var v VersionSummary
		if err := rows.Scan(&v.BuildConfig, &v.BuildID, &v.VersionsName); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// FindVersion resolves version (a VersionsName, BuildID, or BuildConfig)
// to its (BuildConfig, CDNConfig) pair for remote, or across all remotes
// if remote is "". An unresolvable version returns sql.ErrNoRows; an
// ambiguous one returns *kegerr.AmbiguousVersion naming the distinct
// candidate BuildConfigs.
func (db *DB) FindVersion(remoteName, version string) (BuildConfigPair, error) {
	query := `
		SELECT DISTINCT BuildConfig, CDNConfig
		FROM versions
		WHERE (VersionsName = ? OR BuildID = ? OR BuildConfig = ?)
	`
	args := []interface{}{version, version, version}
	if remoteName != "" {
		query += ` AND remote = ?`
		args = append(args, remoteName)
	}
	query += ` GROUP BY BuildConfig`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return BuildConfigPair{}, err
	}
	defer rows.Close()

	var results []BuildConfigPair
	for rows.Next() {
		var p BuildConfigPair
		if err := rows.Scan(&p.BuildConfig, &p.CDNConfig); err != nil {
			return BuildConfigPair{}, err
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return BuildConfigPair{}, err
	}

	switch len(results) {
	case 0:
		return BuildConfigPair{}, sql.ErrNoRows
	case 1:
		return results[0], nil
	default:
		hints := make([]string, len(results))
		for i, r := range results {
			hints[i] = r.BuildConfig
		}
		return BuildConfigPair{}, &kegerr.AmbiguousVersion{Input: version, Hints: hints}
	}
}
