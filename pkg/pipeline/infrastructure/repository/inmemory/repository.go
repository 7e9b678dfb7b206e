// Package inmemory implements the run-history repository with in-process
// maps. It is the default when no database dialect is configured, and the
// backing store for repository-dependent tests.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
)

// RunRepository keeps run history in memory. Safe for concurrent use.
type RunRepository struct {
	mu             sync.RWMutex
	runExecutions  map[string]*model.RunExecution
	stepExecutions map[string]*model.StepExecution
}

// NewRunRepository creates an empty in-memory repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{
		runExecutions:  make(map[string]*model.RunExecution),
		stepExecutions: make(map[string]*model.StepExecution),
	}
}

var _ repository.RunRepository = (*RunRepository)(nil)

func copyRunExecution(e *model.RunExecution) *model.RunExecution {
	c := *e
	c.StepExecutions = nil
	return &c
}

func copyStepExecution(e *model.StepExecution) *model.StepExecution {
	c := *e
	return &c
}

func (r *RunRepository) SaveRunExecution(ctx context.Context, execution *model.RunExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runExecutions[execution.ID]; exists {
		return fmt.Errorf("run execution already exists (ID: %s)", execution.ID)
	}
	r.runExecutions[execution.ID] = copyRunExecution(execution)
	return nil
}

func (r *RunRepository) UpdateRunExecution(ctx context.Context, execution *model.RunExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, exists := r.runExecutions[execution.ID]
	if !exists {
		return repository.ErrRunExecutionNotFound
	}
	if stored.Version != execution.Version {
		return fmt.Errorf("%w: RunExecution (ID: %s) version %d", repository.ErrConcurrentUpdate, execution.ID, execution.Version)
	}
	execution.Version++
	execution.LastUpdated = time.Now()
	r.runExecutions[execution.ID] = copyRunExecution(execution)
	return nil
}

func (r *RunRepository) FindRunExecutionByID(ctx context.Context, id string) (*model.RunExecution, error) {
	r.mu.RLock()
	stored, exists := r.runExecutions[id]
	r.mu.RUnlock()
	if !exists {
		return nil, repository.ErrRunExecutionNotFound
	}
	execution := copyRunExecution(stored)
	steps, _ := r.FindStepExecutionsByRunID(ctx, id)
	execution.StepExecutions = steps
	return execution, nil
}

func (r *RunRepository) FindLatestRunExecutionByPeriod(ctx context.Context, periodLabel string) (*model.RunExecution, error) {
	r.mu.RLock()
	var latest *model.RunExecution
	for _, e := range r.runExecutions {
		if e.PeriodLabel != periodLabel {
			continue
		}
		if latest == nil || e.CreateTime.After(latest.CreateTime) {
			latest = e
		}
	}
	r.mu.RUnlock()
	if latest == nil {
		return nil, repository.ErrRunExecutionNotFound
	}
	return r.FindRunExecutionByID(ctx, latest.ID)
}

func (r *RunRepository) SaveStepExecution(ctx context.Context, execution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stepExecutions[execution.ID]; exists {
		return fmt.Errorf("step execution already exists (ID: %s)", execution.ID)
	}
	r.stepExecutions[execution.ID] = copyStepExecution(execution)
	return nil
}

func (r *RunRepository) UpdateStepExecution(ctx context.Context, execution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, exists := r.stepExecutions[execution.ID]
	if !exists {
		return repository.ErrStepExecutionNotFound
	}
	if stored.Version != execution.Version {
		return fmt.Errorf("%w: StepExecution (ID: %s) version %d", repository.ErrConcurrentUpdate, execution.ID, execution.Version)
	}
	execution.Version++
	execution.LastUpdated = time.Now()
	r.stepExecutions[execution.ID] = copyStepExecution(execution)
	return nil
}

func (r *RunRepository) FindStepExecutionsByRunID(ctx context.Context, runID string) ([]*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.StepExecution
	for _, e := range r.stepExecutions {
		if e.RunExecutionID == runID {
			out = append(out, copyStepExecution(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Close is a no-op for the in-memory repository.
func (r *RunRepository) Close() error {
	return nil
}
