package config

// Package config provides structures and utilities for managing merchpipe
// application configuration.

// EmbeddedConfig holds the content of the configuration file, typically
// embedded into the binary and passed from main.go.
type EmbeddedConfig []byte

// RetryConfig holds the retry schedule for the batch API client.
type RetryConfig struct {
	MaxAttempts          int     `yaml:"max_attempts"`           // MaxAttempts is the maximum number of attempts per batch.
	InitialInterval      int     `yaml:"initial_interval"`       // InitialInterval is the initial backoff interval in milliseconds.
	MaxInterval          int     `yaml:"max_interval"`           // MaxInterval is the maximum backoff interval in milliseconds.
	Factor               float64 `yaml:"factor"`                 // Factor is the backoff multiplier (e.g., 2.0 for exponential backoff).
	RetryableStatusCodes []int   `yaml:"retryable_status_codes"` // RetryableStatusCodes lists HTTP statuses treated as transient.
}

// APIConfig holds settings for the remote merchandising data source.
type APIConfig struct {
	// Endpoint is the base URL of the bulk data API.
	Endpoint string `yaml:"endpoint"`
	// APIKey authenticates requests against the data source.
	APIKey string `yaml:"api_key"`
	// RequestTimeoutSeconds bounds a single HTTP request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	// BatchSize is the number of store codes sent per bulk request.
	BatchSize int `yaml:"batch_size"`
	// BatchPauseMillis is the courtesy pause between consecutive batches.
	// This is a backpressure mechanism agreed with the upstream source, not
	// a performance knob.
	BatchPauseMillis int `yaml:"batch_pause_millis"`
	// Retry is the retry schedule for transient failures.
	Retry RetryConfig `yaml:"retry"`
}

// DownloadConfig holds settings for the resumable store downloader.
type DownloadConfig struct {
	// DataDir is the root directory for ledgers, partial and final artifacts.
	DataDir string `yaml:"data_dir"`
	// StoreListFile is the path of the expected store-code universe file
	// (one store code per line).
	StoreListFile string `yaml:"store_list_file"`
	// CheckpointInterval is the number of batches between partial-artifact
	// checkpoints.
	CheckpointInterval int `yaml:"checkpoint_interval"`
	// CompletenessThreshold is the fraction of the universe that must be
	// covered for the download step to exit successfully.
	CompletenessThreshold float64 `yaml:"completeness_threshold"`
	// ParquetExport enables exporting consolidated final artifacts as
	// Parquet alongside the canonical CSV files.
	ParquetExport bool `yaml:"parquet_export"`
	// UploadStorageRef names the storage connection final artifacts are
	// uploaded to after consolidation. Empty disables upload.
	UploadStorageRef string `yaml:"upload_storage_ref"`
}

// PipelineConfig holds settings for the step controller.
type PipelineConfig struct {
	// ScriptsDir is the directory step commands are resolved against.
	ScriptsDir string `yaml:"scripts_dir"`
	// StepTimeoutMinutes is the default per-step wall-clock timeout.
	// Zero disables the timeout.
	StepTimeoutMinutes int `yaml:"step_timeout_minutes"`
	// MetricsTextfile is the path the Prometheus registry is written to at
	// the end of a run (node-exporter textfile collector format). Empty
	// disables the export.
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// DatabaseConfig holds settings for the run-history metadata database.
type DatabaseConfig struct {
	// Dialect selects the driver: "sqlite", "mysql" or "postgres".
	// Empty keeps run history in memory only.
	Dialect string `yaml:"dialect"`
	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn"`
}

// TracingConfig holds settings for OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`     // Endpoint is the OTLP gRPC collector address (host:port).
	ServiceName string `yaml:"service_name"` // ServiceName tags exported spans.
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Shanghai").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// MerchpipeConfig holds all configuration under the "merchpipe" top-level key.
type MerchpipeConfig struct {
	// Pipeline contains step controller settings.
	Pipeline PipelineConfig `yaml:"pipeline"`
	// API contains remote data source settings.
	API APIConfig `yaml:"api"`
	// Download contains resumable downloader settings.
	Download DownloadConfig `yaml:"download"`
	// System contains system-wide settings.
	System SystemConfig `yaml:"system"`
	// Database contains run-history database settings.
	Database DatabaseConfig `yaml:"database"`
	// Tracing contains OTLP trace export settings.
	Tracing TracingConfig `yaml:"tracing"`
	// StorageConfigs holds named storage adapter configurations
	// (decoded per adapter with mapstructure).
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Merchpipe MerchpipeConfig `yaml:"merchpipe"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new Config instance populated with default values.
func NewConfig() *Config {
	cfg := &Config{
		Merchpipe: MerchpipeConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Pipeline: PipelineConfig{
				ScriptsDir:         "scripts",
				StepTimeoutMinutes: 0,
			},
			API: APIConfig{
				RequestTimeoutSeconds: 30,
				BatchSize:             10,
				BatchPauseMillis:      500,
				Retry: RetryConfig{
					MaxAttempts:          4,
					InitialInterval:      1000,
					MaxInterval:          30000,
					Factor:               2.0,
					RetryableStatusCodes: []int{429, 500, 502, 503, 504},
				},
			},
			Download: DownloadConfig{
				DataDir:               "data",
				StoreListFile:         "data/store_list.txt",
				CheckpointInterval:    5,
				CompletenessThreshold: 0.95,
			},
			Database: DatabaseConfig{
				Dialect: "",
			},
			Tracing: TracingConfig{
				ServiceName: "merchpipe",
			},
		},
	}
	cfg.Merchpipe.StorageConfigs = map[string]interface{}{}
	return cfg
}
