package sql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
)

func newMockRepository(t *testing.T) (*RunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return NewRunRepository(gormDB), mock
}

func testRun(t *testing.T) *model.RunExecution {
	t.Helper()
	period, err := model.NewPeriod("202509", model.PeriodA)
	require.NoError(t, err)
	return model.NewRunExecution(model.RunRequest{Period: period, StartStep: 1, EndStep: 3})
}

func TestSaveRunExecutionInsertsRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	run := testRun(t)

	mock.ExpectExec("INSERT INTO `pipeline_run_execution`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SaveRunExecution(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunExecutionBumpsVersion(t *testing.T) {
	repo, mock := newMockRepository(t)
	run := testRun(t)

	mock.ExpectExec("UPDATE `pipeline_run_execution` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateRunExecution(context.Background(), run))
	assert.Equal(t, 1, run.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunExecutionStaleVersion(t *testing.T) {
	repo, mock := newMockRepository(t)
	run := testRun(t)

	// No row matched the id+version predicate: another writer got there first.
	mock.ExpectExec("UPDATE `pipeline_run_execution` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateRunExecution(context.Background(), run)
	assert.ErrorIs(t, err, repository.ErrConcurrentUpdate)
	// The in-memory version must roll back so the caller can reload and retry.
	assert.Equal(t, 0, run.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRunExecutionByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT \\* FROM `pipeline_run_execution`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindRunExecutionByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrRunExecutionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStepExecutionStaleVersion(t *testing.T) {
	repo, mock := newMockRepository(t)
	step := model.NewStepExecution("run-1", model.PipelineStep{Ordinal: 1, Name: "clean-sales"})

	mock.ExpectExec("UPDATE `pipeline_step_execution` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStepExecution(context.Background(), step)
	assert.ErrorIs(t, err, repository.ErrConcurrentUpdate)
	assert.Equal(t, 0, step.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
