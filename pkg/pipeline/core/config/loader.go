package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig // EmbeddedConfig contains the raw bytes of the configuration file.
	EnvFilePath    string         `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// loadConfig loads configuration from the embedded YAML and environment
// variables. Precedence, lowest first: NewConfig defaults, YAML values,
// environment variable overrides.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	expander := NewOsEnvironmentExpander()
	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to expand environment placeholders in embedded config", err, false, true)
	}

	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to unmarshal embedded config", err, false, true)
	}

	mergeConfig(cfg, &yamlConfig)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), "MERCHPIPE_"); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to load config from environment variables", err, false, true)
	}
	return cfg, nil
}

// LoadConfig loads configuration from the embedded bytes and environment.
// It is expected to be called once during application startup.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig)
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It also sets the global logger level from the loaded configuration.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Merchpipe.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Merchpipe.System.Logging.Level)

	return cfg, nil
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Non-zero values in sourceConfig overwrite the corresponding defaults.
func mergeConfig(destConfig, sourceConfig *Config) {
	dest, source := &destConfig.Merchpipe, &sourceConfig.Merchpipe

	if source.Pipeline.ScriptsDir != "" {
		dest.Pipeline.ScriptsDir = source.Pipeline.ScriptsDir
	}
	if source.Pipeline.StepTimeoutMinutes != 0 {
		dest.Pipeline.StepTimeoutMinutes = source.Pipeline.StepTimeoutMinutes
	}
	if source.Pipeline.MetricsTextfile != "" {
		dest.Pipeline.MetricsTextfile = source.Pipeline.MetricsTextfile
	}

	mergeAPIConfig(&dest.API, &source.API)
	mergeDownloadConfig(&dest.Download, &source.Download)

	if source.System.Timezone != "" {
		dest.System.Timezone = source.System.Timezone
	}
	if source.System.Logging.Level != "" {
		dest.System.Logging.Level = source.System.Logging.Level
	}

	if source.Database.Dialect != "" {
		dest.Database.Dialect = source.Database.Dialect
	}
	if source.Database.DSN != "" {
		dest.Database.DSN = source.Database.DSN
	}

	if source.Tracing.Enabled {
		dest.Tracing.Enabled = true
	}
	if source.Tracing.Endpoint != "" {
		dest.Tracing.Endpoint = source.Tracing.Endpoint
	}
	if source.Tracing.ServiceName != "" {
		dest.Tracing.ServiceName = source.Tracing.ServiceName
	}

	if source.StorageConfigs != nil {
		if dest.StorageConfigs == nil {
			dest.StorageConfigs = make(map[string]interface{})
		}
		for key, value := range source.StorageConfigs {
			dest.StorageConfigs[key] = value
		}
	}
}

// mergeAPIConfig merges source into dest.
func mergeAPIConfig(dest, source *APIConfig) {
	if source.Endpoint != "" {
		dest.Endpoint = source.Endpoint
	}
	if source.APIKey != "" {
		dest.APIKey = source.APIKey
	}
	if source.RequestTimeoutSeconds != 0 {
		dest.RequestTimeoutSeconds = source.RequestTimeoutSeconds
	}
	if source.BatchSize != 0 {
		dest.BatchSize = source.BatchSize
	}
	if source.BatchPauseMillis != 0 {
		dest.BatchPauseMillis = source.BatchPauseMillis
	}
	mergeRetryConfig(&dest.Retry, &source.Retry)
}

// mergeRetryConfig merges source into dest.
func mergeRetryConfig(dest, source *RetryConfig) {
	if source.MaxAttempts != 0 {
		dest.MaxAttempts = source.MaxAttempts
	}
	if source.InitialInterval != 0 {
		dest.InitialInterval = source.InitialInterval
	}
	if source.MaxInterval != 0 {
		dest.MaxInterval = source.MaxInterval
	}
	if source.Factor != 0 {
		dest.Factor = source.Factor
	}
	if source.RetryableStatusCodes != nil {
		dest.RetryableStatusCodes = source.RetryableStatusCodes
	}
}

// mergeDownloadConfig merges source into dest.
func mergeDownloadConfig(dest, source *DownloadConfig) {
	if source.DataDir != "" {
		dest.DataDir = source.DataDir
	}
	if source.StoreListFile != "" {
		dest.StoreListFile = source.StoreListFile
	}
	if source.CheckpointInterval != 0 {
		dest.CheckpointInterval = source.CheckpointInterval
	}
	if source.CompletenessThreshold != 0 {
		dest.CompletenessThreshold = source.CompletenessThreshold
	}
	if source.ParquetExport {
		dest.ParquetExport = true
	}
	if source.UploadStorageRef != "" {
		dest.UploadStorageRef = source.UploadStorageRef
	}
}

// loadStructFromEnv recursively loads configuration values into a struct from
// environment variables, using the "yaml" tag to derive variable names
// (e.g., MERCHPIPE_MERCHPIPE is collapsed to MERCHPIPE_, so the API endpoint
// becomes MERCHPIPE_API_ENDPOINT).
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envVarName := strings.ToUpper(prefix + yamlTag)
		if yamlTag == "merchpipe" {
			// Collapse the root key so variables read MERCHPIPE_API_ENDPOINT
			// rather than MERCHPIPE_MERCHPIPE_API_ENDPOINT.
			envVarName = strings.TrimSuffix(strings.ToUpper(prefix), "_")
		}

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}

		if err := setField(field, envValue); err != nil {
			return exception.NewPipelineError(moduleName, fmt.Sprintf("failed to set field '%s' from env var '%s'", fieldType.Name, envVarName), err, false, true)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float and bool fields; other kinds (maps, slices)
// are left to YAML configuration.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
