package app

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	downloader "github.com/tigerroll/merchpipe/pkg/pipeline/downloader"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// FetchInvocation carries the parsed storefetch CLI flags.
type FetchInvocation struct {
	Month     string
	Half      string
	BatchSize int
	ForceFull bool
	Recover   bool
}

// RunStoreFetch assembles and runs the resumable downloader application,
// returning the process exit code: 0 when completeness reached the
// configured threshold, 1 below it, 2 on an internal error.
func RunStoreFetch(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, inv FetchInvocation) int {
	exit := &exitHolder{code: 2}

	app := fx.New(
		commonOptions(appCtx, envFilePath, embeddedConfig),
		fx.Supply(inv),
		fx.Provide(func() *exitHolder { return exit }),
		downloader.Module,
		fx.Invoke(fx.Annotate(startStoreFetch, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // d *downloader.Downloader
			"",              // cfg *config.Config
			"",              // inv FetchInvocation
			"",              // exit *exitHolder
			`name:"appCtx"`, // appCtx context.Context
		))),
	)

	app.Run()
	if err := app.Err(); err != nil {
		logger.Errorf("Application failed to start: %v", err)
		return 2
	}
	return exit.code
}

func startStoreFetch(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	d *downloader.Downloader,
	cfg *config.Config,
	inv FetchInvocation,
	exit *exitHolder,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in store fetch: %v", r)
						exit.code = 2
					}
					if err := shutdowner.Shutdown(); err != nil {
						logger.Errorf("Failed to shut down application: %v", err)
					}
				}()
				exit.code = runStoreFetch(appCtx, d, cfg, inv)
			}()
			return nil
		},
	})
}

func runStoreFetch(appCtx context.Context, d *downloader.Downloader, cfg *config.Config, inv FetchInvocation) int {
	period, err := resolvePeriod(inv.Month, inv.Half, cfg)
	if err != nil {
		logger.Errorf("Failed to resolve reporting period: %v", exception.ExtractErrorMessage(err))
		return 2
	}

	batchSize := inv.BatchSize
	if batchSize == 0 {
		batchSize = cfg.Merchpipe.API.BatchSize
	}

	summary, err := d.Run(appCtx, downloader.Request{
		Period:    period,
		BatchSize: batchSize,
		ForceFull: inv.ForceFull,
		Recover:   inv.Recover,
	})
	if err != nil {
		logger.Errorf("Store fetch failed: %v", exception.ExtractErrorMessage(err))
		return 2
	}

	logger.Infof("Store fetch for period '%s': universe=%d skipped=%d attempted=%d succeeded=%d failed=%d completeness=%.1f%%",
		summary.PeriodLabel, summary.UniverseSize, summary.Skipped, summary.Attempted,
		summary.Succeeded, summary.Failed, summary.Fraction*100)
	if !summary.Success {
		return 1
	}
	return 0
}
