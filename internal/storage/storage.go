package storage

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/chat-backend/internal/config"
)

// Blob is an upload about to be stored.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

type PutResult struct {
	URL string
	Key string
}

// BlobStore is the storage capability attachments go through. The backend is
// chosen once at construction, never by per-call string dispatch.
type BlobStore interface {
	Put(ctx context.Context, b Blob) (PutResult, error)
	Delete(ctx context.Context, key string) error
}

func New(ctx context.Context, cfg config.Storage) (BlobStore, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, cfg.Region, cfg.Bucket, cfg.PublicRead)
	case "disk":
		return NewDiskStore(cfg.Dir, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
