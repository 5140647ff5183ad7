// Package atomicio implements the write-temp-then-rename discipline used
// everywhere keg persists content-addressed objects: no reader ever
// observes a partially-written file.
package atomicio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempSuffix marks a staged, not-yet-published file. Orphaned ".keg_temp.*"
// files are safe to remove on the next run: the rename that publishes them
// never happened.
const TempSuffix = ".keg_temp"

// WriteFile writes data to a unique temp file alongside path, then renames
// it into place. Directory components of path are created as needed. The
// rename is the sole moment a concurrent reader may observe the file; two
// writers racing the same path converge on identical bytes by construction
// (object keys are content-addressed), so the race is harmless.
func WriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicio: create dir %s: %w", dir, err)
	}

	tmp := tempPath(path)
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("atomicio: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomicio: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// WriteStream copies r into a unique temp file alongside path, then renames
// it into place once fully written. Used when the source should be
// streamed rather than buffered (BLTE archives, loose files).
func WriteStream(path string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("atomicio: create dir %s: %w", dir, err)
	}

	tmp := tempPath(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("atomicio: open temp %s: %w", tmp, err)
	}

	n, err := io.Copy(f, r)
	closeErr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("atomicio: write temp %s: %w", tmp, err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("atomicio: close temp %s: %w", tmp, closeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("atomicio: rename %s -> %s: %w", tmp, path, err)
	}
	return n, nil
}

// NewStagingFile opens a fresh temp file under dir for a caller that wants
// to stream writes incrementally (e.g. while still downloading) and
// publish later via Publish. The returned path is not yet the final path.
func NewStagingFile(dir string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("atomicio: create dir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, uuid.NewString()+TempSuffix)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("atomicio: open staging file: %w", err)
	}
	return f, tmp, nil
}

// Publish renames a previously staged file into its final path, creating
// parent directories as needed.
func Publish(tempPath, finalPath string) error {
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicio: create dir %s: %w", dir, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("atomicio: rename %s -> %s: %w", tempPath, finalPath, err)
	}
	return nil
}

// Abandon removes a staged temp file without publishing it, used when a
// drain is cancelled mid-fetch.
func Abandon(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("atomicio: abandon %s: %w", tempPath, err)
	}
	return nil
}

func tempPath(path string) string {
	return path + TempSuffix + "." + uuid.NewString()
}
