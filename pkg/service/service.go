package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/ignatij/ingestctl/pkg/graph"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/ignatij/ingestctl/pkg/workspace"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for WorkspaceService
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Backend is the part of the API client the service talks to.
type Backend interface {
	ListJobs(ctx context.Context) ([]api.RemoteJob, error)
	ListPipelines(ctx context.Context) ([]models.Pipeline, error)
	CreatePipeline(ctx context.Context, p api.PipelineRequest) error
	EditPipeline(ctx context.Context, p api.PipelineRequest) error
	RunPipeline(ctx context.Context, pipelineID string) (api.RunResponse, error)
}

// WorkspaceService manages the locally cached jobs and pipelines.
// Every mutation loads the snapshot, applies one transition and saves it
// inside a single store transaction.
type WorkspaceService struct {
	store  storage.Store
	logger Logger
	ids    models.IDGenerator
	now    func() time.Time
}

type Option func(*WorkspaceService)

func WithIDGenerator(ids models.IDGenerator) Option {
	return func(s *WorkspaceService) { s.ids = ids }
}

func WithClock(now func() time.Time) Option {
	return func(s *WorkspaceService) { s.now = now }
}

func NewWorkspaceService(store storage.Store, logger Logger, opts ...Option) *WorkspaceService {
	s := &WorkspaceService{
		store:  store,
		logger: logger,
		ids:    models.DefaultIDs(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// update runs fn against the stored snapshot in one transaction.
func (s *WorkspaceService) update(op string, fn func(workspace.Snapshot) (workspace.Snapshot, error)) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	snap, err := workspace.Load(txStore)
	if err != nil {
		return err
	}
	next, err := fn(snap)
	if err != nil {
		return errors.WithMessage(err, op)
	}
	return workspace.Save(txStore, next)
}

func (s *WorkspaceService) snapshot() (workspace.Snapshot, error) {
	return workspace.Load(s.store)
}

func (s *WorkspaceService) ListJobs() ([]models.JobView, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Views(), nil
}

func (s *WorkspaceService) GetJob(jobID string) (models.JobView, error) {
	snap, err := s.snapshot()
	if err != nil {
		return models.JobView{}, err
	}
	v, ok := snap.View(jobID)
	if !ok {
		return models.JobView{}, errors.Wrapf(workspace.ErrJobNotFound, "job %s", jobID)
	}
	return v, nil
}

func (s *WorkspaceService) ListPipelines() ([]models.Pipeline, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Pipelines, nil
}

func (s *WorkspaceService) GetPipeline(id string) (models.Pipeline, error) {
	snap, err := s.snapshot()
	if err != nil {
		return models.Pipeline{}, err
	}
	p, ok := snap.Pipeline(id)
	if !ok {
		return models.Pipeline{}, errors.Wrapf(workspace.ErrPipelineNotFound, "pipeline %s", id)
	}
	return p, nil
}

// CreateJob stores a new job. A missing id is generated, an unset status
// is Pending and an unset category is Other.
func (s *WorkspaceService) CreateJob(job models.Job) (models.Job, error) {
	job.Name = strings.TrimSpace(job.Name)
	if job.ID == "" {
		job.ID = s.ids.JobID()
	}
	if job.Status == "" {
		job.Status = models.PendingJobStatus
	}
	if job.Category == "" {
		job.Category = models.OtherCategory
	}
	if job.Stages == nil {
		job.Stages = []models.Stage{}
	}
	err := s.update("create job", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		return snap.AddJob(job)
	})
	if err != nil {
		s.logger.Errorf("Failed to create job '%s': %v", job.Name, err)
		return models.Job{}, err
	}
	s.logger.Infof("Created job '%s' with ID %s", job.Name, job.ID)
	return job, nil
}

func (s *WorkspaceService) UpdateJob(job models.Job) error {
	err := s.update("update job", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		return snap.UpdateJob(job)
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Updated job %s", job.ID)
	return nil
}

func (s *WorkspaceService) DeleteJob(jobID string) error {
	err := s.update("delete job", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		return snap.DeleteJob(jobID)
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Deleted job %s", jobID)
	return nil
}

func (s *WorkspaceService) AddStage(jobID string, in models.StageInput) (models.Stage, error) {
	var added models.Stage
	err := s.update("add stage", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		next, st, err := snap.AddStage(jobID, in, s.ids)
		added = st
		return next, err
	})
	if err != nil {
		return models.Stage{}, err
	}
	s.logger.Infof("Added %s stage %s to job %s", added.Type, added.ID, jobID)
	return added, nil
}

func (s *WorkspaceService) ReorderStages(jobID string, from, to int) error {
	err := s.update("reorder stages", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		return snap.ReorderStages(jobID, from, to)
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Moved stage of job %s from %d to %d", jobID, from, to)
	return nil
}

// SetStageOrder reorders the stages of a job to match stageIDs, which must
// be a permutation of the current ids.
func (s *WorkspaceService) SetStageOrder(jobID string, stageIDs []string) error {
	return s.update("set stage order", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		job, ok := snap.Job(jobID)
		if !ok {
			return snap, errors.Wrapf(workspace.ErrJobNotFound, "job %s", jobID)
		}
		if len(stageIDs) != len(job.Stages) {
			return snap, errors.Wrapf(models.ErrInvalid, "expected %d stage ids, got %d", len(job.Stages), len(stageIDs))
		}
		seen := make(map[string]struct{}, len(stageIDs))
		for _, id := range stageIDs {
			if _, dup := seen[id]; dup {
				return snap, errors.Wrapf(models.ErrInvalid, "stage %s listed twice", id)
			}
			seen[id] = struct{}{}
		}
		next := snap
		for to, id := range stageIDs {
			cur, _ := next.Job(jobID)
			from := cur.StageIndex(id)
			if from < 0 {
				return snap, errors.Wrapf(models.ErrStageNotFound, "stage %s", id)
			}
			var err error
			if next, err = next.ReorderStages(jobID, from, to); err != nil {
				return snap, err
			}
		}
		return next, nil
	})
}

func (s *WorkspaceService) RemoveStage(jobID, stageID string) error {
	err := s.update("remove stage", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		return snap.RemoveStage(jobID, stageID)
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Removed stage %s from job %s", stageID, jobID)
	return nil
}

func (s *WorkspaceService) UpdateStage(jobID, stageID string, patch models.StagePatch) (models.Stage, error) {
	var updated models.Stage
	err := s.update("update stage", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		next, err := snap.UpdateStage(jobID, stageID, patch)
		if err != nil {
			return snap, err
		}
		job, _ := next.Job(jobID)
		updated = job.Stages[job.StageIndex(stageID)]
		return next, nil
	})
	return updated, err
}

// CreatePipeline saves a new pipeline. Without nodes the jobs are laid out
// on a grid.
func (s *WorkspaceService) CreatePipeline(name string, jobIDs []string, nodes []models.Node, edges []models.Edge) (models.Pipeline, error) {
	if len(nodes) == 0 {
		nodes = graph.AutoLayout(jobIDs)
	}
	var created models.Pipeline
	err := s.update("create pipeline", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		next, p, err := snap.CreatePipeline(name, jobIDs, nodes, edges, s.ids, s.now().UTC())
		created = p
		return next, err
	})
	if err != nil {
		s.logger.Errorf("Failed to create pipeline '%s': %v", name, err)
		return models.Pipeline{}, err
	}
	s.logger.Infof("Created pipeline '%s' with ID %s", created.Name, created.ID)
	return created, nil
}

func (s *WorkspaceService) UpdatePipeline(id, name string, jobIDs []string, nodes []models.Node, edges []models.Edge) (models.Pipeline, error) {
	var updated models.Pipeline
	err := s.update("update pipeline", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		next, p, err := snap.UpdatePipeline(id, name, jobIDs, nodes, edges)
		updated = p
		return next, err
	})
	if err != nil {
		return models.Pipeline{}, err
	}
	s.logger.Infof("Updated pipeline %s", id)
	return updated, nil
}

func (s *WorkspaceService) DeletePipeline(id string) error {
	err := s.update("delete pipeline", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		return snap.DeletePipeline(id)
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Deleted pipeline %s", id)
	return nil
}

// ExecutionOrder is the order the pipeline's jobs run in.
func (s *WorkspaceService) ExecutionOrder(id string) ([]string, error) {
	p, err := s.GetPipeline(id)
	if err != nil {
		return nil, err
	}
	return graph.ExecutionOrder(p)
}

// SyncJobs refreshes the local job cache from the backend job list.
func (s *WorkspaceService) SyncJobs(ctx context.Context, backend Backend) (int, error) {
	remote, err := backend.ListJobs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list remote jobs")
	}
	jobs := make([]models.Job, 0, len(remote))
	var errs []error
	for _, r := range remote {
		job, err := r.ToJob()
		if err == nil {
			err = errors.Wrapf(job.Validate(), "remote job %s", r.JobID)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, job)
	}
	if len(errs) > 0 {
		s.logger.Errorf("Skipped %d remote jobs: %v", len(errs), stderrors.Join(errs...))
	}
	err = s.update("sync jobs", func(snap workspace.Snapshot) (workspace.Snapshot, error) {
		return snap.MergeJobs(jobs)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Infof("Synced %d jobs from backend", len(jobs))
	return len(jobs), nil
}

// PublishPipeline sends a local pipeline to the backend, creating it there
// the first time and editing it afterwards.
func (s *WorkspaceService) PublishPipeline(ctx context.Context, backend Backend, id string) error {
	p, err := s.GetPipeline(id)
	if err != nil {
		return err
	}
	if err := graph.Validate(p); err != nil {
		return errors.WithMessage(err, fmt.Sprintf("pipeline %s", id))
	}
	remote, err := backend.ListPipelines(ctx)
	if err != nil {
		return errors.Wrap(err, "list remote pipelines")
	}
	for _, r := range remote {
		if r.ID == id {
			if err := backend.EditPipeline(ctx, p); err != nil {
				return errors.Wrapf(err, "edit pipeline %s", id)
			}
			s.logger.Infof("Published changes to pipeline %s", id)
			return nil
		}
	}
	if err := backend.CreatePipeline(ctx, p); err != nil {
		return errors.Wrapf(err, "create pipeline %s", id)
	}
	s.logger.Infof("Published new pipeline %s", id)
	return nil
}

// RunPipeline checks the pipeline is runnable and asks the backend to run it.
func (s *WorkspaceService) RunPipeline(ctx context.Context, backend Backend, id string) (api.RunResponse, error) {
	order, err := s.ExecutionOrder(id)
	if err != nil {
		return api.RunResponse{}, err
	}
	resp, err := backend.RunPipeline(ctx, id)
	if err != nil {
		s.logger.Errorf("Failed to run pipeline %s: %v", id, err)
		return api.RunResponse{}, errors.Wrapf(err, "run pipeline %s", id)
	}
	s.logger.Infof("Started pipeline %s (%d jobs)", id, len(order))
	return resp, nil
}
