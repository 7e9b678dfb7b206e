package controller

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
	registry "github.com/tigerroll/merchpipe/pkg/pipeline/core/registry"
	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
	runner "github.com/tigerroll/merchpipe/pkg/pipeline/engine/runner"
)

// Module wires the pipeline controller. Additional skip predicates are
// collected from the "skip_predicates" group so applications can contribute
// their own rules.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(
				reg *registry.Registry,
				stepRunner runner.StepRunner,
				repo repository.RunRepository,
				recorder metrics.MetricRecorder,
				tracer metrics.Tracer,
				cfg *config.Config,
				predicates []SkipPredicate,
			) *Controller {
				return New(Params{
					Registry:   reg,
					Runner:     stepRunner,
					Repository: repo,
					Recorder:   recorder,
					Tracer:     tracer,
					Config:     cfg,
					Predicates: predicates,
				})
			},
			fx.ParamTags("", "", "", "", "", "", `group:"skip_predicates"`),
		),
	),
)
