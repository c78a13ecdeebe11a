// Package paths resolves OS-convention storage locations for aipo and
// provides an atomic-write helper used by the cache, conversation memory,
// and evidence pack writers.
//
// No library in the retrieval pack wraps os.UserHomeDir/os.UserCacheDir for
// this purpose (every repo that needs a storage directory either takes it as
// a config flag or hardcodes a relative path) — this is the mechanical
// filesystem-convention plumbing the stdlib already covers cleanly, so no
// third-party dependency is introduced here.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dirs holds the three storage roots a run needs.
type Dirs struct {
	DataDir  string // conversation memory DB, long-lived
	CacheDir string // response cache
	StateDir string // run staging directories, evidence packs
}

// Resolve computes Dirs under outputDir, creating them if they don't exist.
// outputDir is AIPO_OUTPUT_DIR (or its default); everything aipo writes lives
// under it so a single flag controls the whole footprint.
func Resolve(outputDir string) (Dirs, error) {
	if outputDir == "" {
		outputDir = "./aipo-runs"
	}
	d := Dirs{
		DataDir:  filepath.Join(outputDir, "data"),
		CacheDir: filepath.Join(outputDir, "cache"),
		StateDir: filepath.Join(outputDir, "state"),
	}
	for _, dir := range []string{d.DataDir, d.CacheDir, d.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Dirs{}, fmt.Errorf("paths: create %s: %w", dir, err)
		}
	}
	return d, nil
}

// AtomicWriteFile writes data to path by first writing to a sibling ".tmp"
// file, fsyncing it, then renaming over the destination. Rename is atomic on
// POSIX filesystems, so readers never observe a partial file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("paths: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("paths: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("paths: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("paths: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("paths: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("paths: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("paths: rename into place: %w", err)
	}
	return nil
}
