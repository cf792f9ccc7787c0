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

// BlobReader fetches objects. Missing objects yield ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// SnapshotArchiver writes board snapshots to cold storage and reads back the
// most recent one.
type SnapshotArchiver interface {
	ArchiveBoard(ctx context.Context, board Board, at time.Time) (path string, err error)
	LatestBoard(ctx context.Context) (Board, error)
}
