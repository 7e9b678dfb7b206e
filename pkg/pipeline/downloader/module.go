package downloader

import (
	"time"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage"
	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
	artifact "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/artifact"
	client "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/client"
	ledgerpkg "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/ledger"
	validate "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/validate"
	retry "github.com/tigerroll/merchpipe/pkg/pipeline/engine/retry"
)

// NewFromConfig assembles a Downloader from application configuration. The
// parquet exporter is wired only when both parquet export and an upload
// destination are configured.
func NewFromConfig(
	cfg *config.Config,
	batchClient client.BatchClient,
	ledger *ledgerpkg.Ledger,
	consolidator *artifact.Consolidator,
	validator *validate.Validator,
	recorder metrics.MetricRecorder,
	factory storageAdapter.Factory,
) (*Downloader, error) {
	download := cfg.Merchpipe.Download

	var exporter *artifact.ParquetExporter
	if download.ParquetExport && download.UploadStorageRef != "" {
		dest, err := factory.Get(download.UploadStorageRef)
		if err != nil {
			return nil, err
		}
		exporter = artifact.NewParquetExporter(dest)
	}

	return New(Params{
		Client:       batchClient,
		Ledger:       ledger,
		Consolidator: consolidator,
		Validator:    validator,
		Recorder:     recorder,
		Exporter:     exporter,
		Download:     download,
		BatchPause:   time.Duration(cfg.Merchpipe.API.BatchPauseMillis) * time.Millisecond,
	}), nil
}

// Module wires the downloader and its collaborators into the application.
var Module = fx.Options(
	fx.Provide(
		func(cfg *config.Config) *ledgerpkg.Ledger {
			return ledgerpkg.New(cfg.Merchpipe.Download.DataDir)
		},
		func(cfg *config.Config) *artifact.Consolidator {
			return artifact.NewConsolidator(cfg.Merchpipe.Download.DataDir)
		},
		func(consolidator *artifact.Consolidator) *validate.Validator {
			return validate.NewValidator(consolidator, nil)
		},
		func(cfg *config.Config) retry.Policy {
			return retry.NewPolicy(cfg.Merchpipe.API.Retry)
		},
		fx.Annotate(
			func(cfg *config.Config, policy retry.Policy, recorder metrics.MetricRecorder) *client.HTTPClient {
				return client.NewHTTPClient(cfg.Merchpipe.API, policy, recorder)
			},
			fx.As(new(client.BatchClient)),
		),
		NewFromConfig,
	),
)
