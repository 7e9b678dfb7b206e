// Package storage defines the interface for artifact storage backends. The
// pipeline uses it to publish consolidated datasets and parquet exports to a
// configured destination (local directory or GCS bucket).
package storage

import (
	"context"
	"io"
)

// Adapter is a single named storage destination.
type Adapter interface {
	// Upload writes the data stream to the given bucket and object name.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens the object for reading. The caller must close the
	// returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object under the given prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes the object. Deleting a missing object is not an
	// error.
	DeleteObject(ctx context.Context, bucket, objectName string) error

	// Type identifies the backend kind ("local" or "gcs").
	Type() string
	// Name is the configured connection name.
	Name() string

	Close() error
}

// Factory resolves named storage adapters from configuration.
type Factory interface {
	// Get returns the adapter for the configured connection name, creating
	// it on first use.
	Get(name string) (Adapter, error)
	// CloseAll closes every adapter created by this factory.
	CloseAll() error
}
