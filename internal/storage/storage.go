// Package storage provides the object stores that hold exported partitioning
// snapshots.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage abstracts an object store.
// Implementations are S3 and the local filesystem.
type ObjectStorage interface {
	// Put writes data at objectPath, replacing any existing object.
	// It returns the ETag of the stored object.
	Put(ctx context.Context, objectPath string, data []byte) (string, error)

	// PutIfAbsent writes data only when no object exists at objectPath.
	// It returns ErrPreconditionFailed otherwise.
	PutIfAbsent(ctx context.Context, objectPath string, data []byte) (string, error)

	// Get reads the object at objectPath. It returns ErrObjectNotFound when
	// the object does not exist.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
