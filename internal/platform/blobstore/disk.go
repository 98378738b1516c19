package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskBlobStore keeps blobs as files named by their generated id under a
// single root directory.
type DiskBlobStore struct {
	root string
}

// NewDiskBlobStore creates root if needed.
func NewDiskBlobStore(root string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskBlobStore{root: root}, nil
}

func (s *DiskBlobStore) Upload(_ context.Context, fileName string, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(fileName, content)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("chmod blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, s.path(meta.ID)); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	return meta, nil
}

func (s *DiskBlobStore) Download(_ context.Context, id string) (io.ReadCloser, error) {
	if !validID(id) {
		return nil, ErrBlobNotFound
	}
	f, err := os.Open(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *DiskBlobStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return ErrBlobNotFound
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *DiskBlobStore) path(id string) string {
	return filepath.Join(s.root, id)
}
