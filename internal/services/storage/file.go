// Package storage holds the write-path primitive shared by the transaction
// store and the metrics snapshot: an atomic file write that readers can
// never observe half-finished.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to filename via a temp file in the same
// directory followed by a rename, fsyncing before the swap. A crash mid-write
// leaves either the previous file intact or the new one complete, never a
// truncated mix.
func AtomicWriteFile(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// The temp file must live on the same filesystem as the target for the
	// rename to be atomic.
	tmp, err := os.CreateTemp(dir, ".relay-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmp = nil

	if err := os.Rename(tmpPath, filename); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}
