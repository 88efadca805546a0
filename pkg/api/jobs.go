package api

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/pkg/errors"
)

// StepOutcomes records which optional wizard steps were run.
type StepOutcomes struct {
	Rules         string `json:"rules"`
	NER           string `json:"ner"`
	BusinessLogic string `json:"business_logic"`
}

// CreateJobRequest is the body of POST /create-job-config.
type CreateJobRequest struct {
	JobName           string                  `json:"job_name"`
	Category          models.JobCategory      `json:"category,omitempty"`
	Description       string                  `json:"description,omitempty"`
	InputType         InputType               `json:"input_type"`
	SourceBucket      string                  `json:"source_bucket,omitempty"`
	SourceKey         string                  `json:"source_key,omitempty"`
	SourcePath        string                  `json:"data_source"`
	DestinationBucket string                  `json:"destination_bucket"`
	DestinationFolder string                  `json:"destination_folder,omitempty"`
	DestinationPath   string                  `json:"data_destination"`
	Database          *DataSourceRequest      `json:"database,omitempty"`
	TriggerType       models.TriggerType      `json:"trigger_type"`
	Schedule          *models.ScheduleDetails `json:"schedule,omitempty"`
	Steps             StepOutcomes            `json:"steps"`
	ETLMethod         string                  `json:"etl_method,omitempty"`
	ETLPayload        json.RawMessage         `json:"etl_payload,omitempty"`
	Stages            []models.Stage          `json:"stages,omitempty"`
}

type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
}

// RemoteJob is a job as the backend lists it.
type RemoteJob struct {
	JobID           string                  `json:"job_id"`
	JobName         string                  `json:"job_name"`
	Category        string                  `json:"category,omitempty"`
	Description     string                  `json:"description,omitempty"`
	LastRun         *time.Time              `json:"last_run,omitempty"`
	Status          string                  `json:"status"`
	DataSource      string                  `json:"data_source,omitempty"`
	DataDestination string                  `json:"data_destination,omitempty"`
	TriggerType     models.TriggerType      `json:"trigger_type,omitempty"`
	Schedule        *models.ScheduleDetails `json:"schedule,omitempty"`
	Stages          []models.Stage          `json:"stages,omitempty"`
}

// ToJob converts the backend shape into the local model.
func (r RemoteJob) ToJob() (models.Job, error) {
	status, err := models.ParseJobStatus(r.Status)
	if err != nil {
		return models.Job{}, errors.Wrapf(err, "job %s", r.JobID)
	}
	category := models.OtherCategory
	if r.Category != "" {
		if c, err := models.ParseJobCategory(r.Category); err == nil {
			category = c
		}
	}
	job := models.Job{
		ID:          r.JobID,
		Name:        r.JobName,
		Category:    category,
		Description: r.Description,
		LastRun:     r.LastRun,
		Status:      status,
		Stages:      r.Stages,
	}
	if r.DataSource != "" || r.DataDestination != "" || r.TriggerType != "" {
		job.Execution = &models.ExecutionDetails{
			DataSource:      r.DataSource,
			DataDestination: r.DataDestination,
			TriggerType:     r.TriggerType,
			Schedule:        r.Schedule,
		}
	}
	return job, nil
}

type EditJobRequest struct {
	JobID       string                  `json:"job_id"`
	JobName     string                  `json:"job_name,omitempty"`
	Description string                  `json:"description,omitempty"`
	TriggerType models.TriggerType      `json:"trigger_type,omitempty"`
	Schedule    *models.ScheduleDetails `json:"schedule,omitempty"`
	Stages      []models.Stage          `json:"stages,omitempty"`
}

type JobStatusResponse struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	ExecutionArn string     `json:"execution_arn,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
}

type RunResponse struct {
	ExecutionArn string `json:"execution_arn,omitempty"`
	Message      string `json:"message,omitempty"`
}

// PipelineRequest is the body of POST /create-pipeline and PUT /edit-pipeline.
type PipelineRequest = models.Pipeline

type JobMetrics struct {
	JobID              string     `json:"job_id"`
	TotalRuns          int        `json:"total_runs"`
	SuccessfulRuns     int        `json:"successful_runs"`
	FailedRuns         int        `json:"failed_runs"`
	AvgDurationSeconds float64    `json:"avg_duration_seconds"`
	RecordsProcessed   int64      `json:"records_processed,omitempty"`
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
}

type SystemMonitor struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent,omitempty"`
	ActiveJobs    int     `json:"active_jobs"`
	QueuedJobs    int     `json:"queued_jobs"`
}

type RunRecord struct {
	RunID      string     `json:"run_id"`
	JobID      string     `json:"job_id"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Message    string     `json:"message,omitempty"`
}

func jobQuery(jobID string) url.Values {
	if jobID == "" {
		return nil
	}
	return url.Values{"job_id": {jobID}}
}

// CreateJobConfig calls POST /create-job-config.
func (c *Client) CreateJobConfig(ctx context.Context, req CreateJobRequest) (CreateJobResponse, error) {
	var resp CreateJobResponse
	err := c.post(ctx, "/create-job-config", req, &resp)
	return resp, err
}

// ListJobs calls GET /jobs.
func (c *Client) ListJobs(ctx context.Context) ([]RemoteJob, error) {
	var resp struct {
		Jobs []RemoteJob `json:"jobs"`
	}
	if err := c.get(ctx, "/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJobDetails calls GET /get_job_details.
func (c *Client) GetJobDetails(ctx context.Context, jobID string) (RemoteJob, error) {
	var resp RemoteJob
	err := c.get(ctx, "/get_job_details", jobQuery(jobID), &resp)
	return resp, err
}

// EditJob calls PUT /edit_job.
func (c *Client) EditJob(ctx context.Context, req EditJobRequest) error {
	return c.put(ctx, "/edit_job", req, nil)
}

// GetStatus calls GET /get_status.
func (c *Client) GetStatus(ctx context.Context, jobID string) (JobStatusResponse, error) {
	var resp JobStatusResponse
	err := c.get(ctx, "/get_status", jobQuery(jobID), &resp)
	return resp, err
}

// RunStepFunction calls POST /run-step-function.
func (c *Client) RunStepFunction(ctx context.Context, jobID string) (RunResponse, error) {
	var resp RunResponse
	err := c.post(ctx, "/run-step-function", map[string]string{"job_id": jobID}, &resp)
	return resp, err
}

// CreatePipeline calls POST /create-pipeline.
func (c *Client) CreatePipeline(ctx context.Context, p PipelineRequest) error {
	return c.post(ctx, "/create-pipeline", p, nil)
}

// EditPipeline calls PUT /edit-pipeline.
func (c *Client) EditPipeline(ctx context.Context, p PipelineRequest) error {
	return c.put(ctx, "/edit-pipeline", p, nil)
}

// RunPipeline calls POST /run-pipeline.
func (c *Client) RunPipeline(ctx context.Context, pipelineID string) (RunResponse, error) {
	var resp RunResponse
	err := c.post(ctx, "/run-pipeline", map[string]string{"pipeline_id": pipelineID}, &resp)
	return resp, err
}

// ListPipelines calls GET /get_all_pipelines.
func (c *Client) ListPipelines(ctx context.Context) ([]models.Pipeline, error) {
	var resp struct {
		Pipelines []models.Pipeline `json:"pipelines"`
	}
	if err := c.get(ctx, "/get_all_pipelines", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pipelines, nil
}

// GetJobMetrics calls GET /get_job_metrics.
func (c *Client) GetJobMetrics(ctx context.Context, jobID string) (JobMetrics, error) {
	var resp JobMetrics
	err := c.get(ctx, "/get_job_metrics", jobQuery(jobID), &resp)
	return resp, err
}

// GetSystemMonitor calls GET /get_system_monitor.
func (c *Client) GetSystemMonitor(ctx context.Context) (SystemMonitor, error) {
	var resp SystemMonitor
	err := c.get(ctx, "/get_system_monitor", nil, &resp)
	return resp, err
}

// GetPreviousRuns calls GET /get_previous_runs.
func (c *Client) GetPreviousRuns(ctx context.Context, jobID string) ([]RunRecord, error) {
	var resp struct {
		Runs []RunRecord `json:"runs"`
	}
	if err := c.get(ctx, "/get_previous_runs", jobQuery(jobID), &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}
