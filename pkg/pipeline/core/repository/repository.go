// Package repository defines the persistence contract for pipeline run
// history. Implementations live under infrastructure/repository.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
)

// ErrRunExecutionNotFound is returned when a RunExecution cannot be found.
var ErrRunExecutionNotFound = errors.New("run execution not found")

// ErrStepExecutionNotFound is returned when a StepExecution cannot be found.
var ErrStepExecutionNotFound = errors.New("step execution not found")

// ErrConcurrentUpdate is returned when an optimistic-lock update matched no
// row, meaning another writer touched the record first.
var ErrConcurrentUpdate = errors.New("concurrent update detected")

// RunRepository persists pipeline run history: one RunExecution per
// invocation plus one StepExecution per executed or skipped step.
type RunRepository interface {
	SaveRunExecution(ctx context.Context, execution *model.RunExecution) error
	// UpdateRunExecution applies an optimistic-lock update on Version.
	UpdateRunExecution(ctx context.Context, execution *model.RunExecution) error
	FindRunExecutionByID(ctx context.Context, id string) (*model.RunExecution, error)
	// FindLatestRunExecutionByPeriod returns the most recently created run
	// for a period label, with its step executions loaded.
	FindLatestRunExecutionByPeriod(ctx context.Context, periodLabel string) (*model.RunExecution, error)

	SaveStepExecution(ctx context.Context, execution *model.StepExecution) error
	UpdateStepExecution(ctx context.Context, execution *model.StepExecution) error
	FindStepExecutionsByRunID(ctx context.Context, runID string) ([]*model.StepExecution, error)

	Close() error
}
