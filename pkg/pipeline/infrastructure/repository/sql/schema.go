package sql

import (
	"time"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
)

// RunExecutionEntity is a schema model used for persistence.
type RunExecutionEntity struct {
	ID             string
	PeriodLabel    string
	StartStep      int
	EndStep        int
	Strict         bool
	StartTime      time.Time
	EndTime        *time.Time
	Status         model.RunStatus
	ExitStatus     model.ExitStatus
	CompletedSteps model.OrdinalList
	SkippedSteps   model.OrdinalList
	FailedSteps    model.OrdinalList
	Failures       model.FailureList
	CreateTime     time.Time
	LastUpdated    time.Time
	Version        int
}

func (RunExecutionEntity) TableName() string {
	return "pipeline_run_execution"
}

// StepExecutionEntity is a schema model used for persistence.
type StepExecutionEntity struct {
	ID             string
	RunExecutionID string
	Ordinal        int
	StepName       string
	Category       string
	Critical       bool
	StartTime      time.Time
	EndTime        *time.Time
	Status         model.RunStatus
	ExitStatus     model.ExitStatus
	ExitCode       int
	Stdout         string
	Stderr         string
	Failures       model.FailureList
	LastUpdated    time.Time
	Version        int
}

func (StepExecutionEntity) TableName() string {
	return "pipeline_step_execution"
}
