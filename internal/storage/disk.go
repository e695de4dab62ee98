package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *DiskStore) Put(_ context.Context, b Blob) (PutResult, error) {
	key := uuid.NewString() + "_" + filepath.Base(b.Name)
	path := filepath.Join(s.dir, key)
	if err := os.WriteFile(path, b.Data, 0o644); err != nil {
		return PutResult{}, err
	}
	return PutResult{URL: s.baseURL + "/" + key, Key: key}, nil
}

func (s *DiskStore) Delete(_ context.Context, key string) error {
	// key is a bare filename produced by Put; never allow traversal
	if key != filepath.Base(key) {
		return os.ErrNotExist
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
