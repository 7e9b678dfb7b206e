// Package local provides a local file system implementation of the storage
// adapter, used in development and for on-host artifact archives.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	storageAdapter "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage"
	storageConfig "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage/config"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// ProviderType is the type identifier for the local storage backend.
const ProviderType = "local"

type localAdapter struct {
	cfg  storageConfig.StorageConfig
	name string
}

var _ storageAdapter.Adapter = (*localAdapter)(nil)

// NewAdapter validates the BaseDir configuration, creating the directory if
// needed, and returns a local storage adapter.
func NewAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.Adapter, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage %q: base_dir must be configured", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("local storage %q: failed to stat base_dir %q: %w", name, cfg.BaseDir, err)
		}
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage %q: failed to create base_dir %q: %w", name, cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage %q: base_dir %q is not a directory", name, cfg.BaseDir)
	}

	return &localAdapter{cfg: cfg, name: name}, nil
}

func (a *localAdapter) Type() string { return ProviderType }
func (a *localAdapter) Name() string { return a.name }

func (a *localAdapter) Close() error {
	return nil
}

func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", fullPath, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", fullPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("failed to write %q: %w", fullPath, err)
	}
	logger.Debugf("Uploaded object to '%s' (local storage '%s').", fullPath, a.name)
	return nil
}

func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", fullPath, err)
	}
	return file, nil
}

func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return err
	}

	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) && path == basePath {
				return filepath.SkipAll
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		objectName, relErr := filepath.Rel(basePath, path)
		if relErr != nil {
			return relErr
		}
		objectName = filepath.ToSlash(objectName)
		if prefix != "" && !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("failed to list objects under %q: %w", basePath, err)
	}
	return nil
}

func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("Attempted to delete non-existent object '%s' (local storage '%s').", fullPath, a.name)
			return nil
		}
		return fmt.Errorf("failed to delete %q: %w", fullPath, err)
	}
	return nil
}

// resolvePath joins BaseDir, bucket and object name, rejecting paths that
// escape BaseDir.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(a.cfg.BaseDir, bucket, objectName)

	absBase, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base_dir %q: %w", a.cfg.BaseDir, err)
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", fullPath, err)
	}
	if !strings.HasPrefix(absFull, absBase) {
		return "", fmt.Errorf("path %q escapes base_dir %q", fullPath, a.cfg.BaseDir)
	}
	return fullPath, nil
}
