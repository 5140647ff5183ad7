// Package kegerr centralizes the error taxonomy shared across keg's
// packages, the way warren's pkg/types centralizes its domain vocabulary.
package kegerr

import "fmt"

// NetworkError reports a transport-level failure: a non-2xx HTTP response
// or a connection reset.
type NetworkError struct {
	Status int
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("network error fetching %s: status %d", e.URL, e.Status)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RibbitError reports a Ribbit-protocol-specific failure (malformed
// response, missing checksum, unterminated stream).
type RibbitError struct {
	Reason string
}

func (e *RibbitError) Error() string { return "ribbit: " + e.Reason }

// NoDataError is returned when a Ribbit request returns an empty response.
type NoDataError struct {
	Path string
}

func (e *NoDataError) Error() string { return fmt.Sprintf("ribbit: no data returned for %s", e.Path) }

// IntegrityVerificationError reports any hash mismatch between expected
// and actual content.
type IntegrityVerificationError struct {
	ObjectName     string
	ExpectedDigest string
	ActualDigest   string
}

func (e *IntegrityVerificationError) Error() string {
	return fmt.Sprintf(
		"integrity verification failed for %s: expected %s, got %s",
		e.ObjectName, e.ExpectedDigest, e.ActualDigest,
	)
}

// BLTEError reports a malformed BLTE container or trailing bytes after the
// last decoded block.
type BLTEError struct {
	Reason string
}

func (e *BLTEError) Error() string { return "blte: " + e.Reason }

// ErrStreamAlreadyConsumed is returned when a caller attempts to iterate a
// BLTE block stream a second time.
var ErrStreamAlreadyConsumed = fmt.Errorf("blte: stream already consumed")

// ErrTrailingBytes is returned when a multi-frame BLTE file has bytes left
// over after all blocks have been consumed.
var ErrTrailingBytes = &BLTEError{Reason: "trailing bytes after final block"}

// InvalidPSV reports a PSV parse error with line information where
// available.
type InvalidPSV struct {
	Line   int
	Reason string
}

func (e *InvalidPSV) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid psv at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("invalid psv: %s", e.Reason)
}

// InvalidKey reports a malformed object key (wrong length, non-hex).
type InvalidKey struct {
	Key    string
	Reason string
}

func (e *InvalidKey) Error() string { return fmt.Sprintf("invalid key %q: %s", e.Key, e.Reason) }

// InvalidConfig reports a config-file parse error with byte offset/line
// where available.
type InvalidConfig struct {
	Line   int
	Reason string
}

func (e *InvalidConfig) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid config at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("invalid config: %s", e.Reason)
}

// ArmadilloKeyNotFound reports that a named decryption key is not present
// in the local armadillo key store. Not fatal inside the Fetcher (it
// triggers quarantine); fatal if demanded by the build manager.
type ArmadilloKeyNotFound struct {
	Name string
}

func (e *ArmadilloKeyNotFound) Error() string {
	return fmt.Sprintf("armadillo key not found: %s", e.Name)
}

// AmbiguousVersion reports that a user-provided version string matched
// more than one (BuildConfig, CDNConfig) pair.
type AmbiguousVersion struct {
	Input string
	Hints []string
}

func (e *AmbiguousVersion) Error() string {
	return fmt.Sprintf("ambiguous version %q: candidates %v", e.Input, e.Hints)
}

// TagError reports that an install-file filter referenced an unknown tag
// name.
type TagError struct {
	Tag string
}

func (e *TagError) Error() string { return fmt.Sprintf("unknown install tag: %s", e.Tag) }

// FileNotFound reports that a local object was expected to exist but does
// not.
type FileNotFound struct {
	Path string
}

func (e *FileNotFound) Error() string { return fmt.Sprintf("file not found: %s", e.Path) }

// RepositoryNotFound reports that a command was run outside (or without)
// a keg repository: no keg.conf at or above the working directory.
type RepositoryNotFound struct {
	Path string
}

func (e *RepositoryNotFound) Error() string {
	return fmt.Sprintf("not a keg repository (or any parent up to %s): no keg.conf found", e.Path)
}
