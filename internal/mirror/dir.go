package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mlserve/internal/common/fsutil"
)

// Dir mirrors objects into a directory tree, typically a network mount.
type Dir struct {
	root string
}

// NewDir creates root if needed.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("dir mirror: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("dir mirror: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) objectPath(key string) (string, error) {
	clean := filepath.FromSlash(strings.TrimPrefix(key, "/"))
	if clean == "" || strings.HasPrefix(filepath.Clean(clean), "..") {
		return "", fmt.Errorf("dir mirror: invalid key %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

func (d *Dir) Upload(ctx context.Context, localPath, key string) error {
	dst, err := d.objectPath(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(dst, b, 0o644)
}

func (d *Dir) Download(ctx context.Context, key, localPath string) error {
	src, err := d.objectPath(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	defer in.Close()
	b, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(localPath, b, 0o644)
}

func (d *Dir) Delete(ctx context.Context, key string) error {
	p, err := d.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (d *Dir) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *Dir) Exists(ctx context.Context, key string) (bool, error) {
	p, err := d.objectPath(key)
	if err != nil {
		return false, err
	}
	return fsutil.FileExists(p), nil
}
