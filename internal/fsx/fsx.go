// Package fsx provides atomic, durable filesystem writes shared by the
// checkpoint, metrics, and config layers.
//
// All state artifacts must survive process termination at any instant: a
// reader must observe either the previous complete file or the new complete
// file, never a torn write. The write protocol is therefore
// temp file -> write -> chmod -> fsync -> close -> rename -> dir fsync.
package fsx

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path atomically and durably.
//
// The temporary file is created in the destination directory so the final
// rename never crosses a filesystem boundary.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return SyncDir(dir)
}

// EnsureDir creates dir (and parents) and syncs it and its parent so the
// directory entry itself is durable.
func EnsureDir(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if err := SyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		if err := SyncDir(parent); err != nil {
			return err
		}
	}
	return nil
}

// SyncDir fsyncs a directory. Best-effort durability for renames within it.
func SyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
