// Package storage provides the object-storage boundary the run uploads its
// artifacts through at finalize. Uploads are best-effort: failures are
// logged by the caller and never abort the run.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Uploader stores a local file durably under a destination key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// Dir mirrors uploads into a local directory tree (the mounted-bucket
// model): key "runs/x/state.pt" lands at Root/runs/x/state.pt.
type Dir struct {
	Root string
}

func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Dir{Root: root}, nil
}

func (d *Dir) Upload(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(d.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// MirrorDir uploads every regular file under dir, keyed as
// prefix/<path relative to dir>. Individual failures are logged and
// skipped; the first walk error aborts the mirror but is still non-fatal to
// the caller.
func MirrorDir(ctx context.Context, u Uploader, dir, prefix string, log zerolog.Logger) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := prefix + "/" + filepath.ToSlash(rel)
		if uerr := u.Upload(ctx, path, key); uerr != nil {
			log.Warn().Err(uerr).Str("path", path).Str("key", key).Msg("artifact upload failed")
		}
		return nil
	})
}
