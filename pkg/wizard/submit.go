package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/pkg/errors"
)

// FieldError names one missing or invalid field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every FieldError found in one pass.
type ValidationErrors []*FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, f := range v {
		msgs[i] = f.Error()
	}
	return strings.Join(msgs, "; ")
}

// OrNil returns nil for an empty list so callers can return it as error.
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Field returns the error for name, if any.
func (v ValidationErrors) Field(name string) *FieldError {
	for _, f := range v {
		if f.Field == name {
			return f
		}
	}
	return nil
}

// JobRequestInput is what the user types on the schedule step.
type JobRequestInput struct {
	JobName     string
	Category    models.JobCategory
	Description string
	Schedule    *ScheduleSpec
}

// JobCreator posts the assembled request. *api.Client implements it.
type JobCreator interface {
	CreateJobConfig(ctx context.Context, req api.CreateJobRequest) (api.CreateJobResponse, error)
}

func (s Session) sourceError() *FieldError {
	if s.SourcePath() != "" {
		return nil
	}
	switch {
	case s.InputType != "" && !s.InputType.IsFile():
		return &FieldError{Field: "source_path", Message: fmt.Sprintf("no table selected for %s source", s.InputType)}
	case s.Source.Bucket != "":
		return &FieldError{Field: "source_path", Message: fmt.Sprintf("source path is incomplete: bucket %q has no file selected", s.Source.Bucket)}
	}
	return &FieldError{Field: "source_path", Message: "no source file selected"}
}

func (s Session) destinationError() *FieldError {
	if s.DestinationPath() != "" {
		return nil
	}
	return &FieldError{Field: "destination_path", Message: "no destination bucket selected"}
}

func scheduleErrors(spec *ScheduleSpec) ValidationErrors {
	if spec == nil {
		return ValidationErrors{{Field: "schedule", Message: "a trigger is required"}}
	}
	switch spec.Type {
	case FileArrival:
		return nil
	case TimeBased:
	default:
		return ValidationErrors{{Field: "schedule.type", Message: fmt.Sprintf("unknown schedule type %q", spec.Type)}}
	}
	var errs ValidationErrors
	if spec.Frequency == "" {
		errs = append(errs, &FieldError{Field: "schedule.frequency", Message: "frequency is required for time-based schedules"})
	}
	if strings.TrimSpace(spec.TimeOfDay) == "" {
		errs = append(errs, &FieldError{Field: "schedule.time", Message: "time of day is required for time-based schedules"})
	}
	if len(errs) > 0 {
		return errs
	}
	if _, err := spec.CronExpression(); err != nil {
		errs = append(errs, &FieldError{Field: "schedule", Message: err.Error()})
	}
	return errs
}

// Validate checks every field the creation request needs.
func (s Session) Validate() error {
	var errs ValidationErrors
	if s.JobName == "" {
		errs = append(errs, &FieldError{Field: "job_name", Message: "job name is required"})
	}
	if f := s.sourceError(); f != nil {
		errs = append(errs, f)
	}
	if f := s.destinationError(); f != nil {
		errs = append(errs, f)
	}
	errs = append(errs, scheduleErrors(s.Schedule)...)
	return errs.OrNil()
}

// BuildRequest assembles the creation request from a validated session
// that has reached the schedule step.
func BuildRequest(s Session, in JobRequestInput) (api.CreateJobRequest, error) {
	s = s.WithDetails(in)
	if err := s.Validate(); err != nil {
		return api.CreateJobRequest{}, err
	}
	if err := s.at(StepSchedule, "submit job"); err != nil {
		return api.CreateJobRequest{}, err
	}
	details, err := s.Schedule.Details()
	if err != nil {
		return api.CreateJobRequest{}, err
	}
	req := api.CreateJobRequest{
		JobName:           s.JobName,
		Category:          in.Category,
		Description:       strings.TrimSpace(in.Description),
		InputType:         s.InputType,
		SourceBucket:      s.Source.Bucket,
		SourceKey:         s.Source.Key,
		SourcePath:        s.SourcePath(),
		DestinationBucket: s.Destination.Bucket,
		DestinationFolder: strings.Trim(s.Destination.Folder, "/"),
		DestinationPath:   s.DestinationPath(),
		TriggerType:       s.Schedule.TriggerType(),
		Schedule:          details,
		Steps: api.StepOutcomes{
			Rules:         string(s.Rules),
			NER:           string(s.NER),
			BusinessLogic: string(s.BusinessLogic),
		},
		ETLMethod:  s.ETLMethod,
		ETLPayload: s.ETLPayload,
	}
	if req.InputType == "" {
		req.InputType = api.CSVInput
	}
	if s.Database != nil && !s.InputType.IsFile() {
		db := *s.Database
		req.Database = &db
	}
	return req, nil
}

// Submit validates the session and posts it. When validation fails no
// request is made. Backend errors are returned as they are.
func Submit(ctx context.Context, s Session, in JobRequestInput, creator JobCreator) (api.CreateJobResponse, error) {
	req, err := BuildRequest(s, in)
	if err != nil {
		return api.CreateJobResponse{}, err
	}
	resp, err := creator.CreateJobConfig(ctx, req)
	if err != nil {
		return api.CreateJobResponse{}, errors.Wrap(err, "create job")
	}
	return resp, nil
}
