package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// RunStatus represents the state of a pipeline run or step execution.
type RunStatus string

const (
	StatusStarting  RunStatus = "STARTING"
	StatusStarted   RunStatus = "STARTED"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
	StatusStopped   RunStatus = "STOPPED"
	StatusUnknown   RunStatus = "UNKNOWN"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsFinished checks if the RunStatus represents a terminal state.
func (s RunStatus) IsFinished() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// ExitStatus represents the detailed outcome of a run or step.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusSkipped   ExitStatus = "SKIPPED"
	ExitStatusTimedOut  ExitStatus = "TIMED_OUT"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// PipelineStep describes one named step of the fixed pipeline sequence.
// Steps are defined at process start and never mutated at runtime.
type PipelineStep struct {
	// Ordinal is the 1-based position of the step in the pipeline.
	Ordinal int `yaml:"ordinal"`
	// Name is the unique human-readable step name.
	Name string `yaml:"name"`
	// Description explains what the step does, for --list-steps output.
	Description string `yaml:"description"`
	// Command is the executable reference and its arguments, resolved
	// against the configured scripts directory unless absolute.
	Command []string `yaml:"command"`
	// Category is a free-form grouping label used for reporting and
	// --skip-<category> rules (e.g., "acquisition", "clustering").
	Category string `yaml:"category"`
	// Critical marks steps whose failure halts the entire run.
	Critical bool `yaml:"critical"`
	// TimeoutMinutes overrides the run-level step timeout when non-zero.
	TimeoutMinutes int `yaml:"timeout_minutes"`
	// Check is the optional post-step data-quality check.
	Check *OutputCheck `yaml:"check"`
}

// OutputCheck declares a post-step data-quality check on a produced artifact.
type OutputCheck struct {
	// File is the expected output path. The period label placeholder
	// "{label}" is substituted before checking.
	File string `yaml:"file"`
	// MinBytes is the minimum acceptable file size.
	MinBytes int64 `yaml:"min_bytes"`
	// MinRows is the minimum number of data rows (excluding the header)
	// for CSV outputs. Zero disables the row check.
	MinRows int `yaml:"min_rows"`
}

// RunRequest captures one pipeline invocation. Created once per run.
type RunRequest struct {
	// StartStep and EndStep bound the inclusive ordinal range to execute.
	StartStep int
	EndStep   int
	// Strict stops the pipeline on any failure, critical or not.
	Strict bool
	// ValidateData enables the post-step data-quality checks.
	ValidateData bool
	// Period identifies the reporting window the run operates on.
	Period Period
	// StepTimeout is the default per-step wall-clock timeout. Zero disables it.
	StepTimeout time.Duration
	// SkipCategories lists categories whose steps are skipped outright.
	SkipCategories map[string]bool
	// SkipAPI skips the data-acquisition steps regardless of local state.
	SkipAPI bool
}

// FailureList is a persistable list of failure messages.
type FailureList []string

// Append records an error message. Nil errors are ignored.
func (f *FailureList) Append(err error) {
	if err == nil {
		return
	}
	*f = append(*f, err.Error())
}

// AsError folds the list into a single error, or nil when empty.
func (f FailureList) AsError() error {
	var result *multierror.Error
	for _, msg := range f {
		result = multierror.Append(result, fmt.Errorf("%s", msg))
	}
	return result.ErrorOrNil()
}

// Value implements driver.Valuer, converting the FailureList to JSON.
func (f FailureList) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner, converting JSON to a FailureList.
func (f *FailureList) Scan(value interface{}) error {
	return scanJSON(value, f)
}

// OrdinalList is a persistable list of step ordinals.
type OrdinalList []int

// Value implements driver.Valuer, converting the OrdinalList to JSON.
func (o OrdinalList) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner, converting JSON to an OrdinalList.
func (o *OrdinalList) Scan(value interface{}) error {
	return scanJSON(value, o)
}

// scanJSON decodes a JSON column value ([]byte or string) into dest.
func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type %T", value)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dest)
}

// RunExecution is the mutable accumulator of one pipeline run. It is created
// empty at run start, mutated step by step, and finalized at run end.
type RunExecution struct {
	ID          string
	PeriodLabel string
	StartStep   int
	EndStep     int
	Strict      bool
	StartTime   time.Time
	EndTime     *time.Time
	Status      RunStatus
	ExitStatus  ExitStatus
	// CompletedSteps, SkippedSteps and FailedSteps record step ordinals by
	// outcome; the summary reports them separately.
	CompletedSteps OrdinalList
	SkippedSteps   OrdinalList
	FailedSteps    OrdinalList
	Failures       FailureList
	StepExecutions []*StepExecution
	CreateTime     time.Time
	LastUpdated    time.Time
	Version        int
}

// NewRunExecution creates a RunExecution in the STARTING state.
func NewRunExecution(req RunRequest) *RunExecution {
	now := time.Now()
	return &RunExecution{
		ID:          uuid.NewString(),
		PeriodLabel: req.Period.Label(),
		StartStep:   req.StartStep,
		EndStep:     req.EndStep,
		Strict:      req.Strict,
		StartTime:   now,
		Status:      StatusStarting,
		ExitStatus:  ExitStatusUnknown,
		CreateTime:  now,
		LastUpdated: now,
	}
}

// MarkAsStarted transitions the run to STARTED.
func (e *RunExecution) MarkAsStarted() {
	e.Status = StatusStarted
	e.StartTime = time.Now()
	e.LastUpdated = e.StartTime
}

// MarkAsCompleted transitions the run to COMPLETED.
func (e *RunExecution) MarkAsCompleted() {
	now := time.Now()
	e.Status = StatusCompleted
	e.ExitStatus = ExitStatusCompleted
	e.EndTime = &now
	e.LastUpdated = now
}

// MarkAsFailed transitions the run to FAILED and records the error.
func (e *RunExecution) MarkAsFailed(err error) {
	now := time.Now()
	e.Status = StatusFailed
	e.ExitStatus = ExitStatusFailed
	e.Failures.Append(err)
	e.EndTime = &now
	e.LastUpdated = now
}

// Succeeded reports the terminal verdict: true when no critical step failed
// and, in strict mode, no step failed at all. The verdict is derived at
// finalization time by the controller; here it simply mirrors the status.
func (e *RunExecution) Succeeded() bool {
	return e.Status == StatusCompleted
}

// StepExecution records the execution of one pipeline step within a run.
type StepExecution struct {
	ID             string
	RunExecutionID string
	Ordinal        int
	StepName       string
	Category       string
	Critical       bool
	StartTime      time.Time
	EndTime        *time.Time
	Status         RunStatus
	ExitStatus     ExitStatus
	ExitCode       int
	Stdout         string
	Stderr         string
	Failures       FailureList
	LastUpdated    time.Time
	Version        int
}

// NewStepExecution creates a StepExecution in the STARTING state for the
// given run and step.
func NewStepExecution(runID string, step PipelineStep) *StepExecution {
	now := time.Now()
	return &StepExecution{
		ID:             uuid.NewString(),
		RunExecutionID: runID,
		Ordinal:        step.Ordinal,
		StepName:       step.Name,
		Category:       step.Category,
		Critical:       step.Critical,
		StartTime:      now,
		Status:         StatusStarting,
		ExitStatus:     ExitStatusUnknown,
		LastUpdated:    now,
	}
}

// MarkAsStarted transitions the step to STARTED.
func (s *StepExecution) MarkAsStarted() {
	s.Status = StatusStarted
	s.StartTime = time.Now()
	s.LastUpdated = s.StartTime
}

// MarkAsCompleted transitions the step to COMPLETED.
func (s *StepExecution) MarkAsCompleted() {
	now := time.Now()
	s.Status = StatusCompleted
	s.ExitStatus = ExitStatusCompleted
	s.EndTime = &now
	s.LastUpdated = now
}

// MarkAsSkipped marks the step as skipped without having run it.
func (s *StepExecution) MarkAsSkipped() {
	now := time.Now()
	s.Status = StatusCompleted
	s.ExitStatus = ExitStatusSkipped
	s.EndTime = &now
	s.LastUpdated = now
}

// MarkAsFailed transitions the step to FAILED and records the error.
func (s *StepExecution) MarkAsFailed(err error) {
	now := time.Now()
	s.Status = StatusFailed
	s.ExitStatus = ExitStatusFailed
	s.Failures.Append(err)
	s.EndTime = &now
	s.LastUpdated = now
}

// MarkAsTimedOut marks the step as failed due to a wall-clock timeout.
// A timed-out step is always a failure, never a skip.
func (s *StepExecution) MarkAsTimedOut(err error) {
	s.MarkAsFailed(err)
	s.ExitStatus = ExitStatusTimedOut
}

// Duration returns the elapsed wall-clock time of the step, or zero when the
// step has not finished.
func (s *StepExecution) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
