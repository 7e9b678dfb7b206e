// Package app assembles the merchpipe and storefetch applications with
// uber-fx and carries the shared wiring: configuration, metrics, storage,
// the run-history repository and period resolution.
package app

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/fx"

	storagefactory "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage/factory"
	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
	artifact "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/artifact"
	ledgerpkg "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/ledger"
	record "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/record"
	inframetrics "github.com/tigerroll/merchpipe/pkg/pipeline/infrastructure/metrics"
	inmemory "github.com/tigerroll/merchpipe/pkg/pipeline/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/merchpipe/pkg/pipeline/infrastructure/repository/sql"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// exitHolder carries the process exit code out of the fx container.
type exitHolder struct {
	code int
}

// commonOptions wires the concerns every merchpipe binary shares.
func commonOptions(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) fx.Option {
	return fx.Options(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		fx.Provide(fx.Annotate(
			func() context.Context { return appCtx },
			fx.ResultTags(`name:"appCtx"`),
		)),
		logger.Module,
		config.Module,
		inframetrics.Module,
		storagefactory.Module,
		fx.Provide(newRunRepository),
	)
}

// newRunRepository selects the run-history backend from configuration: the
// gorm-backed repository when a dialect is set, in-memory otherwise.
func newRunRepository(lc fx.Lifecycle, cfg *config.Config) (repository.RunRepository, error) {
	if cfg.Merchpipe.Database.Dialect == "" {
		logger.Debugf("No database dialect configured; run history is kept in memory only.")
		return inmemory.NewRunRepository(), nil
	}
	repo, err := sqlrepo.NewMigratedRunRepository(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return repo.Close() },
	})
	return repo, nil
}

// resolvePeriod turns the optional --month/--period flags into a Period,
// falling back to the calendar resolver (A = days 1 to 15, B = 16 to EOM)
// in the configured timezone.
func resolvePeriod(month, half string, cfg *config.Config) (model.Period, error) {
	if month == "" {
		return model.NewCalendarResolver(cfg.Merchpipe.System.Timezone).Current()
	}
	if half == "" {
		half = string(model.PeriodFull)
	}
	return model.NewPeriod(month, model.PeriodHalf(half))
}

// clearPeriodArtifacts purges the ledger, partial and final artifacts of one
// period label.
func clearPeriodArtifacts(ledger *ledgerpkg.Ledger, consolidator *artifact.Consolidator, label string) error {
	logger.Infof("Clearing cached artifacts for period '%s'.", label)
	if err := ledger.Clear(label); err != nil {
		return err
	}
	return consolidator.ClearPeriod(label)
}

// clearAllArtifacts discovers every period label present in the data
// directory and purges each of them.
func clearAllArtifacts(cfg *config.Config, ledger *ledgerpkg.Ledger, consolidator *artifact.Consolidator) error {
	labels := make(map[string]bool)
	dataDir := cfg.Merchpipe.Download.DataDir

	for _, suffix := range []string{"_succeeded.txt", "_failed.txt"} {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*"+suffix))
		if err != nil {
			return err
		}
		for _, m := range matches {
			labels[strings.TrimSuffix(filepath.Base(m), suffix)] = true
		}
	}
	for _, t := range record.AllTypes {
		suffix := "_" + string(t) + ".csv"
		matches, err := filepath.Glob(filepath.Join(dataDir, "*"+suffix))
		if err != nil {
			return err
		}
		for _, m := range matches {
			labels[strings.TrimSuffix(filepath.Base(m), suffix)] = true
		}
	}

	for label := range labels {
		if err := clearPeriodArtifacts(ledger, consolidator, label); err != nil {
			return err
		}
	}
	logger.Infof("Cleared artifacts for %d period(s).", len(labels))
	return nil
}
