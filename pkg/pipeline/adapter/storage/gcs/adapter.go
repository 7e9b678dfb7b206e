// Package gcs provides a Google Cloud Storage implementation of the storage
// adapter, used to publish consolidated datasets to a bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage"
	storageConfig "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage/config"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// ProviderType is the type identifier for the GCS storage backend.
const ProviderType = "gcs"

type gcsAdapter struct {
	client *gcstorage.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.Adapter = (*gcsAdapter)(nil)

// NewAdapter creates a GCS-backed storage adapter. When a credentials file is
// configured it is used explicitly; otherwise application default credentials
// apply.
func NewAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.Adapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage %q: failed to create client: %w", name, err)
	}
	return &gcsAdapter{client: client, cfg: cfg, name: name}, nil
}

func (a *gcsAdapter) Type() string { return ProviderType }
func (a *gcsAdapter) Name() string { return a.name }

func (a *gcsAdapter) Close() error {
	return a.client.Close()
}

func (a *gcsAdapter) bucketName(bucket string) string {
	if bucket == "" {
		return a.cfg.BucketName
	}
	return bucket
}

func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	w := a.client.Bucket(a.bucketName(bucket)).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("gcs storage %q: failed to write object %q: %w", a.name, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs storage %q: failed to finalize object %q: %w", a.name, objectName, err)
	}
	logger.Debugf("Uploaded object 'gs://%s/%s' (gcs storage '%s').", a.bucketName(bucket), objectName, a.name)
	return nil
}

func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	r, err := a.client.Bucket(a.bucketName(bucket)).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs storage %q: failed to open object %q: %w", a.name, objectName, err)
	}
	return r, nil
}

func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	it := a.client.Bucket(a.bucketName(bucket)).Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gcs storage %q: failed to list objects with prefix %q: %w", a.name, prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	err := a.client.Bucket(a.bucketName(bucket)).Object(objectName).Delete(ctx)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		logger.Warnf("Attempted to delete non-existent object '%s' (gcs storage '%s').", objectName, a.name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("gcs storage %q: failed to delete object %q: %w", a.name, objectName, err)
	}
	return nil
}
