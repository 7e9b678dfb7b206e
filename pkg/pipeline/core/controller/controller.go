// Package controller walks the step registry over a requested ordinal range,
// applies skip rules, launches each step through the step runner and applies
// the failure policy. Steps run strictly sequentially; later steps consume
// files written by earlier ones.
package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	registry "github.com/tigerroll/merchpipe/pkg/pipeline/core/registry"
	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
	runner "github.com/tigerroll/merchpipe/pkg/pipeline/engine/runner"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

const componentName = "controller"

// SkipPredicate decides whether a step should be skipped for this run. The
// returned reason appears in the log and the run summary.
type SkipPredicate func(step model.PipelineStep, req model.RunRequest) (skip bool, reason string)

// Controller orchestrates one pipeline run.
type Controller struct {
	registry   *registry.Registry
	runner     runner.StepRunner
	repo       repository.RunRepository
	recorder   metrics.MetricRecorder
	tracer     metrics.Tracer
	cfg        *config.Config
	predicates []SkipPredicate
}

// Params collects the controller's dependencies. Predicates beyond the
// built-in category and acquisition rules are optional.
type Params struct {
	Registry   *registry.Registry
	Runner     runner.StepRunner
	Repository repository.RunRepository
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
	Config     *config.Config
	Predicates []SkipPredicate
}

// New creates a Controller.
func New(p Params) *Controller {
	return &Controller{
		registry:   p.Registry,
		runner:     p.Runner,
		repo:       p.Repository,
		recorder:   p.Recorder,
		tracer:     p.Tracer,
		cfg:        p.Config,
		predicates: p.Predicates,
	}
}

// Run executes the steps in the requested range and returns the finalized run
// execution. Step failures never surface as an error here; they are folded
// into the execution per the failure policy. The returned error covers only
// setup problems such as an invalid step range.
func (c *Controller) Run(ctx context.Context, req model.RunRequest) (*model.RunExecution, error) {
	steps, err := c.registry.Range(req.StartStep, req.EndStep)
	if err != nil {
		return nil, exception.NewPipelineError(componentName, "invalid step range", err, false, true)
	}

	execution := model.NewRunExecution(req)
	if execution.EndStep == 0 {
		execution.EndStep = c.registry.Len()
	}
	if err := c.repo.SaveRunExecution(ctx, execution); err != nil {
		logger.Warnf("Failed to persist run execution %s: %v", execution.ID, err)
	}

	ctx, endRunSpan := c.tracer.StartRunSpan(ctx, execution)
	defer endRunSpan()
	c.recorder.RecordRunStart(ctx, execution)

	execution.MarkAsStarted()
	c.updateRun(ctx, execution)
	logger.Infof("Run %s: period '%s', steps [%d, %d], strict=%v",
		execution.ID, execution.PeriodLabel, execution.StartStep, execution.EndStep, req.Strict)

	criticalFailed := false
	for _, step := range steps {
		stepExec := model.NewStepExecution(execution.ID, step)
		execution.StepExecutions = append(execution.StepExecutions, stepExec)
		if err := c.repo.SaveStepExecution(ctx, stepExec); err != nil {
			logger.Warnf("Failed to persist step execution %s: %v", stepExec.ID, err)
		}

		if skip, reason := c.shouldSkip(step, req); skip {
			logger.Infof("Step %d '%s' skipped: %s", step.Ordinal, step.Name, reason)
			stepExec.MarkAsSkipped()
			execution.SkippedSteps = append(execution.SkippedSteps, step.Ordinal)
			c.updateStep(ctx, stepExec)
			continue
		}

		failed := c.runStep(ctx, step, req, stepExec)
		c.updateStep(ctx, stepExec)

		if !failed {
			execution.CompletedSteps = append(execution.CompletedSteps, step.Ordinal)
			continue
		}

		execution.FailedSteps = append(execution.FailedSteps, step.Ordinal)
		execution.Failures = append(execution.Failures, stepExec.Failures...)

		// Critical failures always halt. Non-critical failures halt only in
		// strict mode; otherwise the run records them and moves on.
		if step.Critical {
			criticalFailed = true
			logger.Errorf("Critical step %d '%s' failed, halting the run.", step.Ordinal, step.Name)
			break
		}
		if req.Strict {
			logger.Errorf("Step %d '%s' failed in strict mode, halting the run.", step.Ordinal, step.Name)
			break
		}
		logger.Warnf("Step %d '%s' failed (non-critical), continuing.", step.Ordinal, step.Name)
	}

	// Non-critical failures alone do not fail the run; in strict mode any
	// failure does.
	if criticalFailed || (req.Strict && len(execution.FailedSteps) > 0) {
		// Individual step failures are already recorded; nil avoids
		// duplicating them in the failure list.
		execution.MarkAsFailed(nil)
	} else {
		execution.MarkAsCompleted()
	}

	c.recorder.RecordRunEnd(ctx, execution)
	c.updateRun(ctx, execution)
	c.printSummary(execution)
	return execution, nil
}

// runStep executes one step end to end and reports whether it failed.
func (c *Controller) runStep(ctx context.Context, step model.PipelineStep, req model.RunRequest, stepExec *model.StepExecution) bool {
	command := c.resolveCommand(step, req.Period)
	timeout := req.StepTimeout
	if step.TimeoutMinutes > 0 {
		timeout = time.Duration(step.TimeoutMinutes) * time.Minute
	}

	stepCtx, endSpan := c.tracer.StartStepSpan(ctx, stepExec)
	defer endSpan()
	c.recorder.RecordStepStart(stepCtx, stepExec)
	stepExec.MarkAsStarted()
	logger.Infof("Step %d '%s': %v (timeout %s)", step.Ordinal, step.Name, command, timeout)

	result, err := c.runner.Run(stepCtx, command, timeout)
	if result != nil {
		stepExec.ExitCode = result.ExitCode
		stepExec.Stdout = result.Stdout
		stepExec.Stderr = result.Stderr
	}

	switch {
	case err != nil && result != nil && result.TimedOut:
		stepExec.MarkAsTimedOut(err)
	case err != nil:
		stepExec.MarkAsFailed(err)
	case result.ExitCode != 0:
		stepExec.MarkAsFailed(exception.Errorf(componentName, "step %q exited with code %d", step.Name, result.ExitCode))
	default:
		if checkErr := c.checkOutput(step, req); checkErr != nil {
			stepExec.MarkAsFailed(checkErr)
		} else {
			stepExec.MarkAsCompleted()
		}
	}
	c.recorder.RecordStepEnd(stepCtx, stepExec)

	if stepExec.Status == model.StatusFailed {
		c.tracer.RecordError(stepCtx, componentName, stepExec.Failures.AsError())
		c.relayOutput(stepExec)
		return true
	}
	logger.Infof("Step %d '%s' completed in %s.", step.Ordinal, step.Name, stepExec.Duration())
	return false
}

func (c *Controller) shouldSkip(step model.PipelineStep, req model.RunRequest) (bool, string) {
	if req.SkipCategories[step.Category] {
		return true, fmt.Sprintf("category %q skipped by request", step.Category)
	}
	if req.SkipAPI && step.Category == "acquisition" {
		return true, "data acquisition disabled (--skip-api)"
	}
	for _, predicate := range c.predicates {
		if skip, reason := predicate(step, req); skip {
			return true, reason
		}
	}
	return false, ""
}

// resolveCommand substitutes period placeholders in the arguments and
// resolves a relative executable against the configured scripts directory.
func (c *Controller) resolveCommand(step model.PipelineStep, period model.Period) []string {
	command := make([]string, len(step.Command))
	replacer := strings.NewReplacer(
		"{label}", period.Label(),
		"{month}", period.YYYYMM,
		"{period}", string(period.Half),
	)
	for i, arg := range step.Command {
		command[i] = replacer.Replace(arg)
	}
	if scriptsDir := c.cfg.Merchpipe.Pipeline.ScriptsDir; scriptsDir != "" && !filepath.IsAbs(command[0]) && !strings.ContainsRune(command[0], os.PathSeparator) {
		command[0] = filepath.Join(scriptsDir, command[0])
	}
	return command
}

// checkOutput runs the step's declared data-quality check, when enabled.
func (c *Controller) checkOutput(step model.PipelineStep, req model.RunRequest) error {
	if !req.ValidateData || step.Check == nil {
		return nil
	}
	check := step.Check
	path := strings.ReplaceAll(check.File, "{label}", req.Period.Label())
	path = strings.ReplaceAll(path, "{month}", req.Period.YYYYMM)
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.cfg.Merchpipe.Download.DataDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return exception.NewPipelineError(componentName, fmt.Sprintf("step %q produced no output at %q", step.Name, path), err, false, false)
	}
	if info.Size() < check.MinBytes {
		return exception.Errorf(componentName, "step %q output %q is %d byte(s), expected at least %d", step.Name, path, info.Size(), check.MinBytes)
	}
	if check.MinRows > 0 {
		rows, err := countDataRows(path)
		if err != nil {
			return exception.NewPipelineError(componentName, fmt.Sprintf("failed to inspect step %q output %q", step.Name, path), err, false, false)
		}
		if rows < check.MinRows {
			return exception.Errorf(componentName, "step %q output %q has %d data row(s), expected at least %d", step.Name, path, rows, check.MinRows)
		}
	}
	return nil
}

// relayOutput surfaces the failed step's captured output for diagnosis.
func (c *Controller) relayOutput(stepExec *model.StepExecution) {
	logger.Errorf("Step %d '%s' failed (exit code %d): %s",
		stepExec.Ordinal, stepExec.StepName, stepExec.ExitCode, exception.ExtractErrorMessage(stepExec.Failures.AsError()))
	if out := strings.TrimSpace(stepExec.Stdout); out != "" {
		logger.Errorf("--- stdout of '%s' ---\n%s", stepExec.StepName, out)
	}
	if errOut := strings.TrimSpace(stepExec.Stderr); errOut != "" {
		logger.Errorf("--- stderr of '%s' ---\n%s", stepExec.StepName, errOut)
	}
}

func (c *Controller) printSummary(execution *model.RunExecution) {
	verdict := "SUCCEEDED"
	if !execution.Succeeded() {
		verdict = "FAILED"
	}
	logger.Infof("Run %s %s: completed=%v skipped=%v failed=%v",
		execution.ID, verdict, execution.CompletedSteps, execution.SkippedSteps, execution.FailedSteps)
	for _, msg := range execution.Failures {
		logger.Warnf("  failure: %s", msg)
	}
}

func (c *Controller) updateRun(ctx context.Context, execution *model.RunExecution) {
	if err := c.repo.UpdateRunExecution(ctx, execution); err != nil {
		logger.Warnf("Failed to update run execution %s: %v", execution.ID, err)
	}
}

func (c *Controller) updateStep(ctx context.Context, stepExec *model.StepExecution) {
	if err := c.repo.UpdateStepExecution(ctx, stepExec); err != nil {
		logger.Warnf("Failed to update step execution %s: %v", stepExec.ID, err)
	}
}

// countDataRows counts non-empty lines after the header of a CSV output.
func countDataRows(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	rows := 0
	for i, line := range strings.Split(string(data), "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		rows++
	}
	return rows, nil
}
