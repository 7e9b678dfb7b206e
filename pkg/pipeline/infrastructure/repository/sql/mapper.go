package sql

import (
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
)

func fromDomainRunExecution(re *model.RunExecution) *RunExecutionEntity {
	if re == nil {
		return nil
	}
	return &RunExecutionEntity{
		ID:             re.ID,
		PeriodLabel:    re.PeriodLabel,
		StartStep:      re.StartStep,
		EndStep:        re.EndStep,
		Strict:         re.Strict,
		StartTime:      re.StartTime,
		EndTime:        re.EndTime,
		Status:         re.Status,
		ExitStatus:     re.ExitStatus,
		CompletedSteps: re.CompletedSteps,
		SkippedSteps:   re.SkippedSteps,
		FailedSteps:    re.FailedSteps,
		Failures:       re.Failures,
		CreateTime:     re.CreateTime,
		LastUpdated:    re.LastUpdated,
		Version:        re.Version,
	}
}

func toDomainRunExecution(entity *RunExecutionEntity) *model.RunExecution {
	if entity == nil {
		return nil
	}
	return &model.RunExecution{
		ID:             entity.ID,
		PeriodLabel:    entity.PeriodLabel,
		StartStep:      entity.StartStep,
		EndStep:        entity.EndStep,
		Strict:         entity.Strict,
		StartTime:      entity.StartTime,
		EndTime:        entity.EndTime,
		Status:         entity.Status,
		ExitStatus:     entity.ExitStatus,
		CompletedSteps: entity.CompletedSteps,
		SkippedSteps:   entity.SkippedSteps,
		FailedSteps:    entity.FailedSteps,
		Failures:       entity.Failures,
		CreateTime:     entity.CreateTime,
		LastUpdated:    entity.LastUpdated,
		Version:        entity.Version,
	}
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	if se == nil {
		return nil
	}
	return &StepExecutionEntity{
		ID:             se.ID,
		RunExecutionID: se.RunExecutionID,
		Ordinal:        se.Ordinal,
		StepName:       se.StepName,
		Category:       se.Category,
		Critical:       se.Critical,
		StartTime:      se.StartTime,
		EndTime:        se.EndTime,
		Status:         se.Status,
		ExitStatus:     se.ExitStatus,
		ExitCode:       se.ExitCode,
		Stdout:         se.Stdout,
		Stderr:         se.Stderr,
		Failures:       se.Failures,
		LastUpdated:    se.LastUpdated,
		Version:        se.Version,
	}
}

func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	if entity == nil {
		return nil
	}
	return &model.StepExecution{
		ID:             entity.ID,
		RunExecutionID: entity.RunExecutionID,
		Ordinal:        entity.Ordinal,
		StepName:       entity.StepName,
		Category:       entity.Category,
		Critical:       entity.Critical,
		StartTime:      entity.StartTime,
		EndTime:        entity.EndTime,
		Status:         entity.Status,
		ExitStatus:     entity.ExitStatus,
		ExitCode:       entity.ExitCode,
		Stdout:         entity.Stdout,
		Stderr:         entity.Stderr,
		Failures:       entity.Failures,
		LastUpdated:    entity.LastUpdated,
		Version:        entity.Version,
	}
}
