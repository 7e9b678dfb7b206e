// Package sql implements the run-history repository on top of gorm. It
// supports sqlite, mysql and postgres through the configured dialect and
// applies embedded schema migrations on startup.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

const componentName = "run_repository"

// RunRepository is the gorm-backed implementation of
// repository.RunRepository.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository wraps an open gorm connection. The schema is expected to
// be migrated already (see Migrate).
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

var _ repository.RunRepository = (*RunRepository)(nil)

func (r *RunRepository) SaveRunExecution(ctx context.Context, execution *model.RunExecution) error {
	const op = "RunRepository.SaveRunExecution"
	entity := fromDomainRunExecution(execution)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewPipelineError(op, fmt.Sprintf("failed to save RunExecution (ID: %s)", execution.ID), err, true, false)
	}
	return nil
}

func (r *RunRepository) UpdateRunExecution(ctx context.Context, execution *model.RunExecution) error {
	const op = "RunRepository.UpdateRunExecution"

	originalVersion := execution.Version
	execution.Version++
	execution.LastUpdated = time.Now()
	entity := fromDomainRunExecution(execution)

	result := r.db.WithContext(ctx).
		Model(&RunExecutionEntity{}).
		Where("id = ? AND version = ?", entity.ID, originalVersion).
		Select("*").
		Updates(entity)
	if result.Error != nil {
		execution.Version = originalVersion
		return exception.NewPipelineError(op, fmt.Sprintf("failed to update RunExecution (ID: %s)", execution.ID), result.Error, true, false)
	}
	if result.RowsAffected == 0 {
		execution.Version = originalVersion
		return fmt.Errorf("%w: RunExecution (ID: %s) version %d", repository.ErrConcurrentUpdate, execution.ID, originalVersion)
	}
	return nil
}

func (r *RunRepository) FindRunExecutionByID(ctx context.Context, id string) (*model.RunExecution, error) {
	const op = "RunRepository.FindRunExecutionByID"
	var entity RunExecutionEntity

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRunExecutionNotFound
		}
		return nil, exception.NewPipelineError(op, fmt.Sprintf("failed to find RunExecution by ID: %s", id), err, true, false)
	}

	execution := toDomainRunExecution(&entity)
	r.attachStepExecutions(ctx, execution)
	return execution, nil
}

func (r *RunRepository) FindLatestRunExecutionByPeriod(ctx context.Context, periodLabel string) (*model.RunExecution, error) {
	const op = "RunRepository.FindLatestRunExecutionByPeriod"
	var entity RunExecutionEntity

	err := r.db.WithContext(ctx).
		Where("period_label = ?", periodLabel).
		Order("create_time desc").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRunExecutionNotFound
		}
		return nil, exception.NewPipelineError(op, fmt.Sprintf("failed to find latest RunExecution for period %s", periodLabel), err, true, false)
	}

	execution := toDomainRunExecution(&entity)
	r.attachStepExecutions(ctx, execution)
	return execution, nil
}

// attachStepExecutions loads step history best-effort; a load failure is
// logged but does not fail the run lookup.
func (r *RunRepository) attachStepExecutions(ctx context.Context, execution *model.RunExecution) {
	steps, err := r.FindStepExecutionsByRunID(ctx, execution.ID)
	if err != nil {
		logger.Errorf("Failed to load StepExecutions for RunExecution (ID: %s): %v", execution.ID, err)
		return
	}
	execution.StepExecutions = steps
}

func (r *RunRepository) SaveStepExecution(ctx context.Context, execution *model.StepExecution) error {
	const op = "RunRepository.SaveStepExecution"
	entity := fromDomainStepExecution(execution)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewPipelineError(op, fmt.Sprintf("failed to save StepExecution (ID: %s)", execution.ID), err, true, false)
	}
	return nil
}

func (r *RunRepository) UpdateStepExecution(ctx context.Context, execution *model.StepExecution) error {
	const op = "RunRepository.UpdateStepExecution"

	originalVersion := execution.Version
	execution.Version++
	execution.LastUpdated = time.Now()
	entity := fromDomainStepExecution(execution)

	result := r.db.WithContext(ctx).
		Model(&StepExecutionEntity{}).
		Where("id = ? AND version = ?", entity.ID, originalVersion).
		Select("*").
		Updates(entity)
	if result.Error != nil {
		execution.Version = originalVersion
		return exception.NewPipelineError(op, fmt.Sprintf("failed to update StepExecution (ID: %s)", execution.ID), result.Error, true, false)
	}
	if result.RowsAffected == 0 {
		execution.Version = originalVersion
		return fmt.Errorf("%w: StepExecution (ID: %s) version %d", repository.ErrConcurrentUpdate, execution.ID, originalVersion)
	}
	return nil
}

func (r *RunRepository) FindStepExecutionsByRunID(ctx context.Context, runID string) ([]*model.StepExecution, error) {
	const op = "RunRepository.FindStepExecutionsByRunID"
	var entities []StepExecutionEntity

	err := r.db.WithContext(ctx).
		Where("run_execution_id = ?", runID).
		Order("start_time asc").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewPipelineError(op, fmt.Sprintf("failed to find StepExecutions for run %s", runID), err, true, false)
	}

	executions := make([]*model.StepExecution, len(entities))
	for i := range entities {
		executions[i] = toDomainStepExecution(&entities[i])
	}
	return executions, nil
}

// Close releases the underlying database connection.
func (r *RunRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
