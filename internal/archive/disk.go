package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// DiskStore stores exports on the local filesystem.
type DiskStore struct {
	dir     string
	maxSize int64
}

// NewDiskStore creates a DiskStore writing into dir, creating it if
// needed. A maxSize of 0 means no limit.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, maxSize: maxSize}, nil
}

// Put writes the export to a temp file and renames it into place, so a
// failed export never replaces an older one.
func (s *DiskStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)

	f, err := os.CreateTemp(s.dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	var reader io.Reader = r
	if s.maxSize > 0 {
		reader = io.LimitReader(r, s.maxSize+1)
	}
	written, err := io.Copy(f, reader)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	if s.maxSize > 0 && written > s.maxSize {
		return "", ErrTooLarge
	}

	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

// Get opens a stored export.
func (s *DiskStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, err
}

func splitPath(target string) (dir, name string) {
	dir, name = filepath.Split(target)
	if dir == "" {
		dir = "."
	}
	return dir, name
}
