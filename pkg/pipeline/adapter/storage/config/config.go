package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Backend kind: "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Default bucket for operations.
	CredentialsFile string `yaml:"credentials_file"` // Service account key path for GCS.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local storage.
}

// DecodeNamed extracts and decodes the named storage configuration from the
// raw storage config map loaded from YAML.
func DecodeNamed(raw map[string]interface{}, name string) (StorageConfig, error) {
	namedConfig, ok := raw[name]
	if !ok {
		return StorageConfig{}, fmt.Errorf("storage configuration %q not found", name)
	}

	var cfg StorageConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "yaml",
	})
	if err != nil {
		return StorageConfig{}, fmt.Errorf("failed to create decoder for storage config %q: %w", name, err)
	}
	if err := decoder.Decode(namedConfig); err != nil {
		return StorageConfig{}, fmt.Errorf("failed to decode storage config %q: %w", name, err)
	}
	return cfg, nil
}
