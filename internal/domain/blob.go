package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader answers lookups against object storage.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies settled history to cold storage, one object per UTC day.
type Archiver interface {
	ArchiveSettlements(ctx context.Context, day time.Time) (int64, error)
	ArchiveEvents(ctx context.Context, day time.Time) (int64, error)
}
