package fileserve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DirStore reads files from a local directory. Lookups go through an
// os.Root, so symlinks cannot lead outside the directory either.
type DirStore struct {
	root    *os.Root
	maxSize int64
}

// OpenDir opens dir as a serving root. maxSize bounds the size of a single
// file; 0 means no limit.
func OpenDir(dir string, maxSize int64) (*DirStore, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("fileserve: open root: %w", err)
	}
	return &DirStore{root: root, maxSize: maxSize}, nil
}

// Dir returns the directory being served.
func (d *DirStore) Dir() string {
	return d.root.Name()
}

// ReadFile implements Store.
func (d *DirStore) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := d.root.Open(filepath.FromSlash(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, name)
	}
	if d.maxSize > 0 && info.Size() > d.maxSize {
		return nil, fmt.Errorf("fileserve: %s exceeds %d bytes", name, d.maxSize)
	}

	return io.ReadAll(f)
}

// Close releases the root directory handle.
func (d *DirStore) Close() error {
	return d.root.Close()
}
