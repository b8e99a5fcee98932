package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store is a named collection of immutable blobs.
type Store interface {
	// Open opens a blob for reading. Remote blobs issue reads under ctx.
	Open(ctx context.Context, name string) (Blob, error)
	// Put writes a whole blob, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Missing blobs are not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is implemented by blobs whose content is already in memory.
type Mappable interface {
	// Bytes returns the content without copying.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}
