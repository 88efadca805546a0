package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrIndexOutOfRange = errors.New("stage index out of range")
	ErrStageNotFound   = errors.New("stage not found")
	ErrInvalid         = errors.New("validation failed")
)

type JobStatus string

const (
	PendingJobStatus JobStatus = "Pending"
	RunningJobStatus JobStatus = "Running"
	PassedJobStatus  JobStatus = "Passed"
	FailedJobStatus  JobStatus = "Failed"
)

// ParseJobStatus maps the status spellings used across backend views onto
// the four job states.
func ParseJobStatus(s string) (JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "scheduled", "queued", "":
		return PendingJobStatus, nil
	case "running", "in_progress", "in progress":
		return RunningJobStatus, nil
	case "passed", "completed", "success", "succeeded":
		return PassedJobStatus, nil
	case "failed", "error", "failure":
		return FailedJobStatus, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

func (s JobStatus) Valid() bool {
	switch s {
	case PendingJobStatus, RunningJobStatus, PassedJobStatus, FailedJobStatus:
		return true
	}
	return false
}

type JobCategory string

const (
	SalesforceCategory JobCategory = "Salesforce"
	SAPCategory        JobCategory = "SAP"
	OracleCategory     JobCategory = "Oracle"
	MySQLCategory      JobCategory = "MySQL"
	PostgresCategory   JobCategory = "PostgreSQL"
	MongoDBCategory    JobCategory = "MongoDB"
	S3Category         JobCategory = "S3"
	AzureBlobCategory  JobCategory = "Azure Blob"
	SnowflakeCategory  JobCategory = "Snowflake"
	FileUploadCategory JobCategory = "File Upload"
	APICategory        JobCategory = "API"
	OtherCategory      JobCategory = "Other"
)

var jobCategories = []JobCategory{
	SalesforceCategory, SAPCategory, OracleCategory, MySQLCategory, PostgresCategory,
	MongoDBCategory, S3Category, AzureBlobCategory, SnowflakeCategory, FileUploadCategory,
	APICategory, OtherCategory,
}

func JobCategories() []JobCategory {
	out := make([]JobCategory, len(jobCategories))
	copy(out, jobCategories)
	return out
}

func ParseJobCategory(s string) (JobCategory, error) {
	for _, c := range jobCategories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown job category %q", s)
}

func (c JobCategory) Valid() bool {
	for _, known := range jobCategories {
		if c == known {
			return true
		}
	}
	return false
}

type TriggerType string

const (
	ScheduleTrigger    TriggerType = "schedule"
	FileArrivalTrigger TriggerType = "file_arrival"
)

// ScheduleDetails describes when a schedule-triggered job runs.
type ScheduleDetails struct {
	Frequency  string `json:"frequency" yaml:"frequency"`                           // "hourly", "daily", "weekly", "monthly"
	Time       string `json:"time" yaml:"time"`                                     // "HH:MM", 24h clock
	DayOfWeek  string `json:"day_of_week,omitempty" yaml:"day_of_week,omitempty"`   // weekly only, e.g. "monday"
	DayOfMonth int    `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty"` // monthly only, 1-28
	Cron       string `json:"cron,omitempty" yaml:"cron,omitempty"`                 // derived cron expression
}

// ExecutionDetails is the optional execution metadata of a job.
type ExecutionDetails struct {
	DataSource      string           `json:"data_source" yaml:"data_source"`             // e.g. "s3://bucket/key.csv"
	DataDestination string           `json:"data_destination" yaml:"data_destination"`   // e.g. "s3://bucket/folder/"
	TriggerType     TriggerType      `json:"trigger_type" yaml:"trigger_type"`           // "schedule" or "file_arrival"
	Schedule        *ScheduleDetails `json:"schedule,omitempty" yaml:"schedule,omitempty"` // set when TriggerType is "schedule"
}

// Job is one ingestion/processing unit. Stage order is execution order.
// Pipeline membership is not stored here; see JobPipelines.
type Job struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Category    JobCategory       `json:"category" yaml:"category"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	LastRun     *time.Time        `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	Status      JobStatus         `json:"status" yaml:"status"`
	Execution   *ExecutionDetails `json:"execution,omitempty" yaml:"execution,omitempty"`
	Stages      []Stage           `json:"stages" yaml:"stages"`
}

// Validate checks the job's own invariants.
func (j Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return errors.Wrap(ErrInvalid, "job id cannot be empty")
	}
	if strings.TrimSpace(j.Name) == "" {
		return errors.Wrap(ErrInvalid, "job name cannot be empty")
	}
	if j.Category != "" && !j.Category.Valid() {
		return errors.Wrapf(ErrInvalid, "job %s: invalid category %q", j.ID, j.Category)
	}
	if !j.Status.Valid() {
		return errors.Wrapf(ErrInvalid, "job %s: invalid status %q", j.ID, j.Status)
	}
	seen := make(map[string]struct{}, len(j.Stages))
	for _, st := range j.Stages {
		if st.ID == "" {
			return errors.Wrapf(ErrInvalid, "job %s: stage with empty id", j.ID)
		}
		if _, dup := seen[st.ID]; dup {
			return errors.Wrapf(ErrInvalid, "job %s: duplicate stage id %s", j.ID, st.ID)
		}
		seen[st.ID] = struct{}{}
		if !st.Type.Valid() {
			return errors.Wrapf(ErrInvalid, "job %s: stage %s has invalid type %q", j.ID, st.ID, st.Type)
		}
		if !st.Status.Valid() {
			return errors.Wrapf(ErrInvalid, "job %s: stage %s has invalid status %q", j.ID, st.ID, st.Status)
		}
	}
	return nil
}

// StageIndex returns the position of a stage or -1.
func (j Job) StageIndex(stageID string) int {
	for i, st := range j.Stages {
		if st.ID == stageID {
			return i
		}
	}
	return -1
}

func (j Job) withStages(stages []Stage) Job {
	j.Stages = stages
	return j
}

func cloneStages(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// AddStage appends a new pending stage with a fresh id. Existing stages keep
// their order.
func AddStage(job Job, in StageInput, ids IDGenerator) (Job, Stage, error) {
	if !in.Type.Valid() {
		return job, Stage{}, errors.Wrapf(ErrInvalid, "invalid stage type %q", in.Type)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return job, Stage{}, errors.Wrap(ErrInvalid, "stage name cannot be empty")
	}
	if ids == nil {
		ids = DefaultIDs()
	}
	st := Stage{
		ID:          ids.StageID(),
		Type:        in.Type,
		Name:        name,
		Description: in.Description,
		Status:      PendingStageStatus,
	}
	stages := append(cloneStages(job.Stages), st)
	return job.withStages(stages), st, nil
}

// ReorderStages moves the stage at from to position to, shifting the stages
// in between. The job is returned unchanged with ErrIndexOutOfRange when
// either index is invalid.
func ReorderStages(job Job, from, to int) (Job, error) {
	n := len(job.Stages)
	if from < 0 || from >= n || to < 0 || to >= n {
		return job, errors.Wrapf(ErrIndexOutOfRange, "move %d -> %d with %d stages", from, to, n)
	}
	stages := cloneStages(job.Stages)
	moved := stages[from]
	stages = append(stages[:from], stages[from+1:]...)
	stages = append(stages[:to], append([]Stage{moved}, stages[to:]...)...)
	return job.withStages(stages), nil
}

// RemoveStage drops the stage with the given id. Unknown ids are a no-op.
func RemoveStage(job Job, stageID string) Job {
	idx := job.StageIndex(stageID)
	if idx < 0 {
		return job
	}
	stages := make([]Stage, 0, len(job.Stages)-1)
	stages = append(stages, job.Stages[:idx]...)
	stages = append(stages, job.Stages[idx+1:]...)
	return job.withStages(stages)
}

// UpdateStage applies an inline edit to one stage.
func UpdateStage(job Job, stageID string, patch StagePatch) (Job, error) {
	idx := job.StageIndex(stageID)
	if idx < 0 {
		return job, errors.Wrapf(ErrStageNotFound, "stage %s", stageID)
	}
	stages := cloneStages(job.Stages)
	st := stages[idx]
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return job, errors.Wrap(ErrInvalid, "stage name cannot be empty")
		}
		st.Name = name
	}
	if patch.Description != nil {
		st.Description = *patch.Description
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return job, errors.Wrapf(ErrInvalid, "invalid stage status %q", *patch.Status)
		}
		st.Status = *patch.Status
	}
	stages[idx] = st
	return job.withStages(stages), nil
}
