package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMergesYAMLOverDefaults(t *testing.T) {
	embedded := []byte(`
merchpipe:
  api:
    endpoint: "https://example.test/bulk"
    batch_size: 25
  download:
    completeness_threshold: 0.9
  system:
    logging:
      level: "DEBUG"
`)

	cfg, err := LoadConfig("", embedded)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/bulk", cfg.Merchpipe.API.Endpoint)
	assert.Equal(t, 25, cfg.Merchpipe.API.BatchSize)
	assert.Equal(t, 0.9, cfg.Merchpipe.Download.CompletenessThreshold)
	assert.Equal(t, "DEBUG", cfg.Merchpipe.System.Logging.Level)

	// Values absent from the YAML keep their defaults.
	assert.Equal(t, 4, cfg.Merchpipe.API.Retry.MaxAttempts)
	assert.Equal(t, "UTC", cfg.Merchpipe.System.Timezone)
	assert.Equal(t, "data", cfg.Merchpipe.Download.DataDir)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("MERCHPIPE_API_BATCH_SIZE", "50")
	t.Setenv("MERCHPIPE_DOWNLOAD_DATA_DIR", "/var/lib/merchpipe")
	t.Setenv("MERCHPIPE_PIPELINE_STEP_TIMEOUT_MINUTES", "90")

	cfg, err := LoadConfig("", []byte(`
merchpipe:
  api:
    batch_size: 25
`))
	require.NoError(t, err)

	// Environment variables win over both YAML and defaults.
	assert.Equal(t, 50, cfg.Merchpipe.API.BatchSize)
	assert.Equal(t, "/var/lib/merchpipe", cfg.Merchpipe.Download.DataDir)
	assert.Equal(t, 90, cfg.Merchpipe.Pipeline.StepTimeoutMinutes)
}

func TestLoadConfigExpandsPlaceholders(t *testing.T) {
	t.Setenv("TEST_MERCH_API_KEY", "k-123")

	cfg, err := LoadConfig("", []byte(`
merchpipe:
  api:
    api_key: "${TEST_MERCH_API_KEY}"
`))
	require.NoError(t, err)
	assert.Equal(t, "k-123", cfg.Merchpipe.API.APIKey)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	_, err := LoadConfig("", []byte("merchpipe: ["))
	require.Error(t, err)
}

func TestLoadConfigStorageConfigs(t *testing.T) {
	cfg, err := LoadConfig("", []byte(`
merchpipe:
  storage:
    artifact-store:
      type: local
      base_dir: "/tmp/artifacts"
`))
	require.NoError(t, err)
	require.Contains(t, cfg.Merchpipe.StorageConfigs, "artifact-store")
}
