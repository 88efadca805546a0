package models

import (
	"slices"
	"time"
)

// Position is a node's 2D location on the pipeline canvas.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one job placed on a pipeline canvas.
type Node struct {
	ID       string   `json:"id" yaml:"id"`         // unique within the pipeline
	JobID    string   `json:"job_id" yaml:"job_id"` // must be listed in Pipeline.Jobs
	Position Position `json:"position" yaml:"position"`
}

// Marker is the arrow drawn at an edge end.
type Marker struct {
	Type   string  `json:"type" yaml:"type"` // e.g. "arrowclosed"
	Width  float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Height float64 `json:"height,omitempty" yaml:"height,omitempty"`
	Color  string  `json:"color,omitempty" yaml:"color,omitempty"`
}

// Edge says that Target runs after Source.
type Edge struct {
	ID        string            `json:"id" yaml:"id"`
	Source    string            `json:"source" yaml:"source"` // node id
	Target    string            `json:"target" yaml:"target"` // node id
	Animated  bool              `json:"animated,omitempty" yaml:"animated,omitempty"`
	Style     map[string]string `json:"style,omitempty" yaml:"style,omitempty"`
	MarkerEnd *Marker           `json:"marker_end,omitempty" yaml:"marker_end,omitempty"`
}

// Pipeline is a directed graph over a subset of jobs.
type Pipeline struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Jobs      []string  `json:"jobs" yaml:"jobs"`   // job ids, membership only
	Nodes     []Node    `json:"nodes" yaml:"nodes"` // one per included job
	Edges     []Edge    `json:"edges" yaml:"edges"`
}

// HasJob reports whether the job belongs to the pipeline.
func (p Pipeline) HasJob(jobID string) bool {
	return slices.Contains(p.Jobs, jobID)
}

// NodeForJob returns the node embedding the job, if any.
func (p Pipeline) NodeForJob(jobID string) (Node, bool) {
	for _, n := range p.Nodes {
		if n.JobID == jobID {
			return n, true
		}
	}
	return Node{}, false
}

// PipelineRef is the short form of a pipeline shown next to a job.
type PipelineRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JobPipelines returns the pipelines containing the job, in collection order.
func JobPipelines(jobID string, pipelines []Pipeline) []PipelineRef {
	refs := []PipelineRef{}
	for _, p := range pipelines {
		if p.HasJob(jobID) {
			refs = append(refs, PipelineRef{ID: p.ID, Name: p.Name})
		}
	}
	return refs
}

// IsConnected reports whether the job belongs to at least one pipeline.
func IsConnected(jobID string, pipelines []Pipeline) bool {
	for _, p := range pipelines {
		if p.HasJob(jobID) {
			return true
		}
	}
	return false
}

// JobView is a job together with its derived pipeline membership.
type JobView struct {
	Job
	Pipelines   []PipelineRef `json:"pipelines"`
	IsConnected bool          `json:"isConnected"`
}

// RecomputeConnectivity derives the membership view of a job from the
// current pipeline collection.
func RecomputeConnectivity(job Job, pipelines []Pipeline) JobView {
	refs := JobPipelines(job.ID, pipelines)
	return JobView{Job: job, Pipelines: refs, IsConnected: len(refs) > 0}
}
