package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports the trade history of a resolved epoch to blob storage.
type Archiver interface {
	ArchiveEpoch(ctx context.Context, marketID string, epoch uint64) (objects int, err error)
}
