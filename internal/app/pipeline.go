package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	controller "github.com/tigerroll/merchpipe/pkg/pipeline/core/controller"
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	registry "github.com/tigerroll/merchpipe/pkg/pipeline/core/registry"
	downloader "github.com/tigerroll/merchpipe/pkg/pipeline/downloader"
	artifact "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/artifact"
	ledgerpkg "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/ledger"
	validate "github.com/tigerroll/merchpipe/pkg/pipeline/downloader/validate"
	runner "github.com/tigerroll/merchpipe/pkg/pipeline/engine/runner"
	inframetrics "github.com/tigerroll/merchpipe/pkg/pipeline/infrastructure/metrics"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// PipelineInvocation carries the parsed merchpipe CLI flags.
type PipelineInvocation struct {
	StartStep          int
	EndStep            int
	Strict             bool
	ValidateData       bool
	SkipAPI            bool
	SkipCategories     map[string]bool
	StepTimeoutMinutes int
	ClearAll           bool
	ClearPeriod        bool
	Month              string
	Half               string
}

// RunPipeline assembles and runs the pipeline controller application,
// returning the process exit code: 0 on overall success (which outside
// strict mode includes non-critical step failures), non-zero on a failed run
// or an initialization error.
func RunPipeline(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, stepDefs registry.StepDefinitionBytes, inv PipelineInvocation) int {
	exit := &exitHolder{code: 2}

	app := fx.New(
		commonOptions(appCtx, envFilePath, embeddedConfig),
		fx.Supply(stepDefs, inv),
		fx.Provide(func() *exitHolder { return exit }),
		fx.Provide(func(cfg *config.Config) runner.Options {
			return runner.Options{Env: []string{"MERCHPIPE_DATA_DIR=" + cfg.Merchpipe.Download.DataDir}}
		}),
		registry.Module,
		runner.Module,
		controller.Module,
		downloader.Module,
		fx.Provide(fx.Annotate(
			newDataPresentPredicate,
			fx.ResultTags(`group:"skip_predicates"`),
		)),
		fx.Invoke(fx.Annotate(startPipeline, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // ctrl *controller.Controller
			"",              // cfg *config.Config
			"",              // ledger
			"",              // consolidator
			"",              // recorder
			"",              // inv PipelineInvocation
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

// newDataPresentPredicate skips acquisition steps when the period's final
// artifacts already cover the full store universe.
func newDataPresentPredicate(validator *validate.Validator, cfg *config.Config) controller.SkipPredicate {
	return func(step model.PipelineStep, req model.RunRequest) (bool, string) {
		if step.Category != "acquisition" {
			return false, ""
		}
		universe, err := downloader.ReadStoreList(cfg.Merchpipe.Download.StoreListFile)
		if err != nil || len(universe) == 0 {
			return false, ""
		}
		expected := make(map[string]bool, len(universe))
		for _, key := range universe {
			expected[key] = true
		}
		report, err := validator.Check(req.Period.Label(), expected)
		if err == nil && report.Complete {
			return true, "store data for the period is already complete"
		}
		return false, ""
	}
}

func startPipeline(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	ctrl *controller.Controller,
	cfg *config.Config,
	ledger *ledgerpkg.Ledger,
	consolidator *artifact.Consolidator,
	recorder *inframetrics.PrometheusRecorder,
	inv PipelineInvocation,
	exit *exitHolder,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in pipeline run: %v", r)
						exit.code = 2
					}
					if path := cfg.Merchpipe.Pipeline.MetricsTextfile; path != "" {
						if err := recorder.WriteTextfile(path); err != nil {
							logger.Warnf("Failed to write metrics textfile %q: %v", path, err)
						}
					}
					if err := shutdowner.Shutdown(); err != nil {
						logger.Errorf("Failed to shut down application: %v", err)
					}
				}()
				exit.code = runPipeline(appCtx, ctrl, cfg, ledger, consolidator, inv)
			}()
			return nil
		},
	})
}

// runPipeline performs the maintenance flags and the controller run, mapping
// the outcome to the exit-code contract.
func runPipeline(
	appCtx context.Context,
	ctrl *controller.Controller,
	cfg *config.Config,
	ledger *ledgerpkg.Ledger,
	consolidator *artifact.Consolidator,
	inv PipelineInvocation,
) int {
	period, err := resolvePeriod(inv.Month, inv.Half, cfg)
	if err != nil {
		logger.Errorf("Failed to resolve reporting period: %v", exception.ExtractErrorMessage(err))
		return 2
	}

	if inv.ClearAll {
		if err := clearAllArtifacts(cfg, ledger, consolidator); err != nil {
			logger.Errorf("Failed to clear cached artifacts: %v", err)
			return 2
		}
	} else if inv.ClearPeriod {
		if err := clearPeriodArtifacts(ledger, consolidator, period.Label()); err != nil {
			logger.Errorf("Failed to clear cached artifacts for period '%s': %v", period.Label(), err)
			return 2
		}
	}

	timeoutMinutes := inv.StepTimeoutMinutes
	if timeoutMinutes == 0 {
		timeoutMinutes = cfg.Merchpipe.Pipeline.StepTimeoutMinutes
	}

	req := model.RunRequest{
		StartStep:      inv.StartStep,
		EndStep:        inv.EndStep,
		Strict:         inv.Strict,
		ValidateData:   inv.ValidateData,
		Period:         period,
		StepTimeout:    time.Duration(timeoutMinutes) * time.Minute,
		SkipCategories: inv.SkipCategories,
		SkipAPI:        inv.SkipAPI,
	}

	execution, err := ctrl.Run(appCtx, req)
	if err != nil {
		logger.Errorf("Pipeline run could not start: %v", exception.ExtractErrorMessage(err))
		return 2
	}
	if !execution.Succeeded() {
		return 1
	}
	return 0
}
