// Package storage provides the on-disk table file handle used by the catalog
// and the object storage backends that schema definitions and manifest
// snapshots travel through.
package storage

import (
	"context"
	"errors"
)

// Common errors for object storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

// ObjectStorage abstracts the object stores a schema definition can be fetched
// from and a manifest snapshot can be published to.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Upload copies the file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath, creating parent directories.
	// Returns ErrObjectNotFound when the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
