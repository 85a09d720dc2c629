// Package blobstore abstracts the storage backends a catalog can write to:
// local disk, in-memory (tests), and remote object stores (see the s3 and
// minio subpackages).
//
// Partition writers stage data under a temporary name and commit it with
// Rename, so directory listings never observe a half-written partition.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrExists is returned by Rename with replace=false when the target name
// is already taken. This is how an atomic-rename race between two
// uncoordinated writers surfaces.
var ErrExists = os.ErrExist

// BlobStore is an abstraction for accessing immutable data blobs (sealed
// partition segments) and staging new ones.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a new writable blob. Callers stage under a temporary
	// name and commit via Rename.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Rename atomically moves oldName to newName. With replace=false the
	// rename fails with ErrExists when newName is already present.
	Rename(ctx context.Context, oldName, newName string, replace bool) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a write-only handle to a staged blob.
type WritableBlob interface {
	io.WriteCloser
	Sync() error
}

// ReadAll reads the full content of a blob.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	data := make([]byte, b.Size())
	if len(data) == 0 {
		return data, nil
	}
	n, err := b.ReadAt(ctx, data, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}
