// Package workspace holds the local (jobs, pipelines) collection. Every
// mutation is a transition from one consistent Snapshot to the next; a
// failed transition leaves the previous snapshot untouched.
package workspace

import (
	"encoding/json"
	stderrors "errors"
	"slices"
	"time"

	"github.com/ignatij/ingestctl/pkg/graph"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/pkg/errors"
)

// CurrentVersion is the schema version written into app_data.
const CurrentVersion = 1

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrPipelineNotFound = errors.New("pipeline not found")
	ErrDuplicateJob     = errors.New("job id already exists")
)

type Snapshot struct {
	Version   int               `json:"version"`
	Jobs      []models.Job      `json:"jobs"`
	Pipelines []models.Pipeline `json:"pipelines"`
}

func Empty() Snapshot {
	return Snapshot{Version: CurrentVersion, Jobs: []models.Job{}, Pipelines: []models.Pipeline{}}
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Version:   CurrentVersion,
		Jobs:      append([]models.Job{}, s.Jobs...),
		Pipelines: append([]models.Pipeline{}, s.Pipelines...),
	}
}

func (s Snapshot) jobIndex(id string) int {
	return slices.IndexFunc(s.Jobs, func(j models.Job) bool { return j.ID == id })
}

func (s Snapshot) pipelineIndex(id string) int {
	return slices.IndexFunc(s.Pipelines, func(p models.Pipeline) bool { return p.ID == id })
}

func (s Snapshot) Job(id string) (models.Job, bool) {
	if i := s.jobIndex(id); i >= 0 {
		return s.Jobs[i], true
	}
	return models.Job{}, false
}

func (s Snapshot) Pipeline(id string) (models.Pipeline, bool) {
	if i := s.pipelineIndex(id); i >= 0 {
		return s.Pipelines[i], true
	}
	return models.Pipeline{}, false
}

func (s Snapshot) JobIDs() []string {
	ids := make([]string, 0, len(s.Jobs))
	for _, j := range s.Jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

// View returns one job with its derived pipeline membership.
func (s Snapshot) View(jobID string) (models.JobView, bool) {
	j, ok := s.Job(jobID)
	if !ok {
		return models.JobView{}, false
	}
	return models.RecomputeConnectivity(j, s.Pipelines), true
}

// Views returns every job with its derived pipeline membership.
func (s Snapshot) Views() []models.JobView {
	views := make([]models.JobView, 0, len(s.Jobs))
	for _, j := range s.Jobs {
		views = append(views, models.RecomputeConnectivity(j, s.Pipelines))
	}
	return views
}

// Check verifies the cross-entity invariants of the snapshot.
func (s Snapshot) Check() error {
	var errs []error
	seen := make(map[string]struct{}, len(s.Jobs))
	for _, j := range s.Jobs {
		if _, dup := seen[j.ID]; dup {
			errs = append(errs, errors.Wrapf(ErrDuplicateJob, "job %s", j.ID))
		}
		seen[j.ID] = struct{}{}
		if err := j.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range s.Pipelines {
		for _, id := range p.Jobs {
			if _, ok := seen[id]; !ok {
				errs = append(errs, errors.Wrapf(ErrJobNotFound, "pipeline %s references job %s", p.ID, id))
			}
		}
		if err := graph.Validate(p); err != nil {
			errs = append(errs, errors.Wrapf(err, "pipeline %s", p.ID))
		}
	}
	return stderrors.Join(errs...)
}

// AddJob inserts a new job.
func (s Snapshot) AddJob(job models.Job) (Snapshot, error) {
	if err := job.Validate(); err != nil {
		return s, err
	}
	if s.jobIndex(job.ID) >= 0 {
		return s, errors.Wrapf(ErrDuplicateJob, "job %s", job.ID)
	}
	if job.Stages == nil {
		job.Stages = []models.Stage{}
	}
	next := s.clone()
	next.Jobs = append(next.Jobs, job)
	return next, nil
}

// UpdateJob replaces the job with the same id.
func (s Snapshot) UpdateJob(job models.Job) (Snapshot, error) {
	i := s.jobIndex(job.ID)
	if i < 0 {
		return s, errors.Wrapf(ErrJobNotFound, "job %s", job.ID)
	}
	if err := job.Validate(); err != nil {
		return s, err
	}
	next := s.clone()
	next.Jobs[i] = job
	return next, nil
}

// DeleteJob removes a job and detaches it from every pipeline, dropping
// its node and the edges touching that node.
func (s Snapshot) DeleteJob(jobID string) (Snapshot, error) {
	i := s.jobIndex(jobID)
	if i < 0 {
		return s, errors.Wrapf(ErrJobNotFound, "job %s", jobID)
	}
	next := s.clone()
	next.Jobs = slices.Delete(next.Jobs, i, i+1)
	for pi, p := range next.Pipelines {
		if !p.HasJob(jobID) {
			continue
		}
		next.Pipelines[pi] = detachJob(p, jobID)
	}
	return next, nil
}

func detachJob(p models.Pipeline, jobID string) models.Pipeline {
	dropped := map[string]struct{}{}
	nodes := make([]models.Node, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.JobID == jobID {
			dropped[n.ID] = struct{}{}
			continue
		}
		nodes = append(nodes, n)
	}
	edges := make([]models.Edge, 0, len(p.Edges))
	for _, e := range p.Edges {
		_, src := dropped[e.Source]
		_, dst := dropped[e.Target]
		if !src && !dst {
			edges = append(edges, e)
		}
	}
	p.Jobs = slices.DeleteFunc(slices.Clone(p.Jobs), func(id string) bool { return id == jobID })
	p.Nodes = nodes
	p.Edges = edges
	return p
}

// mapJob applies fn to one job and swaps the result in.
func (s Snapshot) mapJob(jobID string, fn func(models.Job) (models.Job, error)) (Snapshot, error) {
	i := s.jobIndex(jobID)
	if i < 0 {
		return s, errors.Wrapf(ErrJobNotFound, "job %s", jobID)
	}
	updated, err := fn(s.Jobs[i])
	if err != nil {
		return s, err
	}
	next := s.clone()
	next.Jobs[i] = updated
	return next, nil
}

func (s Snapshot) AddStage(jobID string, in models.StageInput, ids models.IDGenerator) (Snapshot, models.Stage, error) {
	var added models.Stage
	next, err := s.mapJob(jobID, func(j models.Job) (models.Job, error) {
		updated, st, err := models.AddStage(j, in, ids)
		added = st
		return updated, err
	})
	return next, added, err
}

func (s Snapshot) ReorderStages(jobID string, from, to int) (Snapshot, error) {
	return s.mapJob(jobID, func(j models.Job) (models.Job, error) {
		return models.ReorderStages(j, from, to)
	})
}

func (s Snapshot) RemoveStage(jobID, stageID string) (Snapshot, error) {
	return s.mapJob(jobID, func(j models.Job) (models.Job, error) {
		return models.RemoveStage(j, stageID), nil
	})
}

func (s Snapshot) UpdateStage(jobID, stageID string, patch models.StagePatch) (Snapshot, error) {
	return s.mapJob(jobID, func(j models.Job) (models.Job, error) {
		return models.UpdateStage(j, stageID, patch)
	})
}

func (s Snapshot) requireJobs(jobIDs []string) error {
	for _, id := range jobIDs {
		if s.jobIndex(id) < 0 {
			return errors.Wrapf(ErrJobNotFound, "job %s", id)
		}
	}
	return nil
}

// CreatePipeline adds a validated pipeline over existing jobs.
func (s Snapshot) CreatePipeline(name string, jobIDs []string, nodes []models.Node, edges []models.Edge, ids models.IDGenerator, now time.Time) (Snapshot, models.Pipeline, error) {
	if err := s.requireJobs(jobIDs); err != nil {
		return s, models.Pipeline{}, err
	}
	p, err := graph.CreatePipeline(name, jobIDs, nodes, edges, ids, now)
	if err != nil {
		return s, models.Pipeline{}, err
	}
	next := s.clone()
	next.Pipelines = append(next.Pipelines, p)
	return next, p, nil
}

// UpdatePipeline rewrites a pipeline, keeping its id and creation time.
func (s Snapshot) UpdatePipeline(id, name string, jobIDs []string, nodes []models.Node, edges []models.Edge) (Snapshot, models.Pipeline, error) {
	i := s.pipelineIndex(id)
	if i < 0 {
		return s, models.Pipeline{}, errors.Wrapf(ErrPipelineNotFound, "pipeline %s", id)
	}
	if err := s.requireJobs(jobIDs); err != nil {
		return s, models.Pipeline{}, err
	}
	p, err := graph.UpdatePipeline(s.Pipelines[i], name, jobIDs, nodes, edges)
	if err != nil {
		return s, models.Pipeline{}, err
	}
	next := s.clone()
	next.Pipelines[i] = p
	return next, p, nil
}

// DeletePipeline removes a pipeline. Job membership is derived from the
// pipeline collection, so no job refers to it afterwards.
func (s Snapshot) DeletePipeline(id string) (Snapshot, error) {
	i := s.pipelineIndex(id)
	if i < 0 {
		return s, errors.Wrapf(ErrPipelineNotFound, "pipeline %s", id)
	}
	next := s.clone()
	next.Pipelines = slices.Delete(next.Pipelines, i, i+1)
	return next, nil
}

// MergeJobs upserts jobs fetched from the backend, keeping local stages when
// the remote copy carries none.
func (s Snapshot) MergeJobs(remote []models.Job) (Snapshot, error) {
	next := s.clone()
	for _, r := range remote {
		if err := r.Validate(); err != nil {
			return s, errors.Wrapf(err, "remote job %s", r.ID)
		}
		if i := next.jobIndex(r.ID); i >= 0 {
			if len(r.Stages) == 0 {
				r.Stages = next.Jobs[i].Stages
			}
			next.Jobs[i] = r
			continue
		}
		if r.Stages == nil {
			r.Stages = []models.Stage{}
		}
		next.Jobs = append(next.Jobs, r)
	}
	return next, nil
}

// Load reads the snapshot stored under app_data. A missing key yields an
// empty snapshot.
func Load(store storage.Store) (Snapshot, error) {
	raw, err := store.Get(storage.AppDataKey)
	if stderrors.Is(err, storage.ErrNotFound) {
		return Empty(), nil
	}
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "load app data")
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode app data")
	}
	if snap.Version > CurrentVersion {
		return Snapshot{}, errors.Errorf("app data version %d is newer than supported version %d", snap.Version, CurrentVersion)
	}
	if snap.Jobs == nil {
		snap.Jobs = []models.Job{}
	}
	if snap.Pipelines == nil {
		snap.Pipelines = []models.Pipeline{}
	}
	snap.Version = CurrentVersion
	return snap, nil
}

// Save writes the snapshot under app_data.
func Save(store storage.Store, snap Snapshot) error {
	snap.Version = CurrentVersion
	raw, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode app data")
	}
	return errors.Wrap(store.Set(storage.AppDataKey, string(raw)), "save app data")
}
