// Package factory resolves named storage adapters from the application
// configuration, creating each backend on first use.
package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageAdapter "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage"
	storageConfig "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage/config"
	gcs "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage/gcs"
	local "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage/local"
	coreConfig "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

type storageFactory struct {
	cfg *coreConfig.Config

	mu       sync.Mutex
	adapters map[string]storageAdapter.Adapter
}

var _ storageAdapter.Factory = (*storageFactory)(nil)

// New creates a storage factory backed by the application configuration.
func New(cfg *coreConfig.Config) storageAdapter.Factory {
	return &storageFactory{
		cfg:      cfg,
		adapters: make(map[string]storageAdapter.Adapter),
	}
}

func (f *storageFactory) Get(name string) (storageAdapter.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if adapter, ok := f.adapters[name]; ok {
		return adapter, nil
	}

	cfg, err := storageConfig.DecodeNamed(f.cfg.Merchpipe.StorageConfigs, name)
	if err != nil {
		return nil, err
	}

	var adapter storageAdapter.Adapter
	switch cfg.Type {
	case local.ProviderType:
		adapter, err = local.NewAdapter(cfg, name)
	case gcs.ProviderType:
		adapter, err = gcs.NewAdapter(context.Background(), cfg, name)
	default:
		return nil, fmt.Errorf("unsupported storage type %q for connection %q", cfg.Type, name)
	}
	if err != nil {
		return nil, err
	}

	f.adapters[name] = adapter
	logger.Debugf("Created storage connection '%s' (type '%s').", name, cfg.Type)
	return adapter, nil
}

func (f *storageFactory) CloseAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs *multierror.Error
	for name, adapter := range f.adapters {
		if err := adapter.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close storage connection %q: %w", name, err))
		}
		delete(f.adapters, name)
	}
	return errs.ErrorOrNil()
}
