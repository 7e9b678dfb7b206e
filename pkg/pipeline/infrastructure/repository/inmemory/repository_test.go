package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
)

func newRun(t *testing.T, label string) *model.RunExecution {
	t.Helper()
	period, err := model.NewPeriod(label[:6], model.PeriodHalf(label[6:]))
	require.NoError(t, err)
	return model.NewRunExecution(model.RunRequest{Period: period, StartStep: 1, EndStep: 5})
}

func TestSaveAndFindRunExecution(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	run := newRun(t, "202509A")
	require.NoError(t, repo.SaveRunExecution(ctx, run))

	found, err := repo.FindRunExecutionByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, found.ID)
	assert.Equal(t, "202509A", found.PeriodLabel)

	_, err = repo.FindRunExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrRunExecutionNotFound)

	// Duplicate save is rejected.
	assert.Error(t, repo.SaveRunExecution(ctx, run))
}

func TestUpdateRunExecutionOptimisticLock(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	run := newRun(t, "202509A")
	require.NoError(t, repo.SaveRunExecution(ctx, run))

	run.MarkAsStarted()
	require.NoError(t, repo.UpdateRunExecution(ctx, run))
	assert.Equal(t, 1, run.Version)

	// A stale copy must not clobber the newer record.
	stale := *run
	stale.Version = 0
	err := repo.UpdateRunExecution(ctx, &stale)
	assert.ErrorIs(t, err, repository.ErrConcurrentUpdate)
}

func TestFindLatestRunExecutionByPeriod(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	first := newRun(t, "202509A")
	require.NoError(t, repo.SaveRunExecution(ctx, first))

	second := newRun(t, "202509A")
	second.CreateTime = first.CreateTime.Add(time.Minute)
	require.NoError(t, repo.SaveRunExecution(ctx, second))

	other := newRun(t, "202509B")
	require.NoError(t, repo.SaveRunExecution(ctx, other))

	latest, err := repo.FindLatestRunExecutionByPeriod(ctx, "202509A")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = repo.FindLatestRunExecutionByPeriod(ctx, "202401A")
	assert.ErrorIs(t, err, repository.ErrRunExecutionNotFound)
}

func TestStepExecutionsOrderedByStartTime(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	run := newRun(t, "202509B")
	require.NoError(t, repo.SaveRunExecution(ctx, run))

	later := model.NewStepExecution(run.ID, model.PipelineStep{Ordinal: 2, Name: "second"})
	later.StartTime = time.Now().Add(time.Minute)
	earlier := model.NewStepExecution(run.ID, model.PipelineStep{Ordinal: 1, Name: "first"})

	require.NoError(t, repo.SaveStepExecution(ctx, later))
	require.NoError(t, repo.SaveStepExecution(ctx, earlier))

	steps, err := repo.FindStepExecutionsByRunID(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "first", steps[0].StepName)
	assert.Equal(t, "second", steps[1].StepName)

	found, err := repo.FindRunExecutionByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, found.StepExecutions, 2)
}

func TestUpdateStepExecution(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	step := model.NewStepExecution("run-1", model.PipelineStep{Ordinal: 1, Name: "only"})
	require.NoError(t, repo.SaveStepExecution(ctx, step))

	step.MarkAsCompleted()
	require.NoError(t, repo.UpdateStepExecution(ctx, step))
	assert.Equal(t, 1, step.Version)

	missing := model.NewStepExecution("run-1", model.PipelineStep{Ordinal: 2, Name: "ghost"})
	err := repo.UpdateStepExecution(ctx, missing)
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
}
