package run

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// #region layout
// Layout names the files of one experiment directory.
type Layout struct {
	Dir string
}

func (l Layout) DB() string         { return filepath.Join(l.Dir, "run.db") }
func (l Layout) Config() string     { return filepath.Join(l.Dir, "config.yaml") }
func (l Layout) Summary() string    { return filepath.Join(l.Dir, "summary.json") }
func (l Layout) Candidates() string { return filepath.Join(l.Dir, "candidates.json") }
func (l Layout) Structures() string { return filepath.Join(l.Dir, "structures") }

// PosePath is relative to Dir.
func (l Layout) PosePath(candidateID string) string {
	return filepath.Join("structures", candidateID+".pdb")
}

// #endregion layout

// #region files
// writeFileAtomic replaces path with data via a temp file and rename, so
// readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// writeIfChanged skips the write when path already holds data.
// It reports whether the file was written.
func writeIfChanged(path string, data []byte) (bool, error) {
	old, err := os.ReadFile(path)
	if err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return true, writeFileAtomic(path, data)
}

// nonEmptyDir reports whether dir exists and holds at least one entry.
func nonEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", dir, err)
	}
	return len(entries) > 0, nil
}

// #endregion files
