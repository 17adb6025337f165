package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"expensync/internal/core"
)

const SchemeDisk = "disk"

// DiskStore keeps photos as flat files in a single directory.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Save(ctx context.Context, contentType string, r io.Reader) (string, error) {
	ext, err := Extension(contentType)
	if err != nil {
		return "", err
	}
	name := uuid.NewString() + ext

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp photo: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	return SchemeDisk + ":" + name, nil
}

func (s *DiskStore) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", core.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("open photo: %w", err)
	}
	return f, ContentTypeFor(path), nil
}

// Delete removes the file. Deleting a missing photo is not an error.
func (s *DiskStore) Delete(ctx context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

func (s *DiskStore) path(ref string) (string, error) {
	scheme, key, err := SplitRef(ref)
	if err != nil {
		return "", err
	}
	if scheme != SchemeDisk || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.dir, key), nil
}
