package graph

import (
	"slices"
	"time"

	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/pkg/errors"
)

// Builder accumulates a user's job selection and drawn connections and
// rejects invalid edges as they are drawn, before anything is saved.
type Builder struct {
	known map[string]struct{}
	jobs  []string
	nodes []models.Node
	edges []models.Edge
}

// NewBuilder starts an empty canvas over the jobs that exist in the workspace.
func NewBuilder(knownJobIDs []string) *Builder {
	known := make(map[string]struct{}, len(knownJobIDs))
	for _, id := range knownJobIDs {
		known[id] = struct{}{}
	}
	return &Builder{known: known}
}

// FromPipeline loads an existing pipeline for editing.
func FromPipeline(p models.Pipeline, knownJobIDs []string) (*Builder, error) {
	b := NewBuilder(knownJobIDs)
	for _, n := range p.Nodes {
		pos := n.Position
		if err := b.addNode(n.ID, n.JobID, pos); err != nil {
			return nil, err
		}
	}
	for _, id := range p.Jobs {
		if !slices.Contains(b.jobs, id) {
			if err := b.AddJob(id, nil); err != nil {
				return nil, err
			}
		}
	}
	for _, e := range p.Edges {
		if err := b.connectNodes(e); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// AddJob places a job on the canvas. A nil position uses the next grid slot.
func (b *Builder) AddJob(jobID string, pos *models.Position) error {
	var at models.Position
	if pos != nil {
		at = *pos
	} else {
		i := len(b.nodes)
		at = models.Position{X: float64((i % perRow) * columnWidth), Y: float64((i / perRow) * rowHeight)}
	}
	return b.addNode(NodeID(jobID), jobID, at)
}

func (b *Builder) addNode(nodeID, jobID string, pos models.Position) error {
	if _, ok := b.known[jobID]; !ok {
		return errors.Wrapf(ErrUnknownJob, "job %s does not exist", jobID)
	}
	if slices.Contains(b.jobs, jobID) {
		return errors.Wrapf(ErrDuplicateNode, "job %s is already on the canvas", jobID)
	}
	for _, n := range b.nodes {
		if n.ID == nodeID {
			return errors.Wrapf(ErrDuplicateNode, "node %s", nodeID)
		}
	}
	b.jobs = append(b.jobs, jobID)
	b.nodes = append(b.nodes, models.Node{ID: nodeID, JobID: jobID, Position: pos})
	return nil
}

// RemoveJob drops the job's node together with every incident edge.
func (b *Builder) RemoveJob(jobID string) {
	node, ok := b.node(jobID)
	if !ok {
		return
	}
	b.jobs = slices.DeleteFunc(b.jobs, func(id string) bool { return id == jobID })
	b.nodes = slices.DeleteFunc(b.nodes, func(n models.Node) bool { return n.ID == node.ID })
	b.edges = slices.DeleteFunc(b.edges, func(e models.Edge) bool {
		return e.Source == node.ID || e.Target == node.ID
	})
}

// Connect draws an edge meaning target runs after source.
func (b *Builder) Connect(sourceJobID, targetJobID string) error {
	src, ok := b.node(sourceJobID)
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "job %s is not on the canvas", sourceJobID)
	}
	dst, ok := b.node(targetJobID)
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "job %s is not on the canvas", targetJobID)
	}
	style, marker := DefaultEdgeStyle()
	return b.connectNodes(models.Edge{
		ID:        EdgeID(src.ID, dst.ID),
		Source:    src.ID,
		Target:    dst.ID,
		Animated:  true,
		Style:     style,
		MarkerEnd: marker,
	})
}

func (b *Builder) connectNodes(e models.Edge) error {
	ids := make(map[string]struct{}, len(b.nodes))
	for _, n := range b.nodes {
		ids[n.ID] = struct{}{}
	}
	if err := checkEdge(ids, e.Source, e.Target); err != nil {
		return err
	}
	for _, existing := range b.edges {
		if existing.Source == e.Source && existing.Target == e.Target {
			return errors.Wrapf(ErrDuplicateEdge, "%s -> %s", e.Source, e.Target)
		}
	}
	candidate := models.Pipeline{Jobs: b.jobs, Nodes: b.nodes, Edges: append(slices.Clone(b.edges), e)}
	if _, err := topologicalSort(candidate); err != nil {
		return errors.Wrapf(err, "connecting %s -> %s", e.Source, e.Target)
	}
	b.edges = append(b.edges, e)
	return nil
}

// Disconnect removes the edge between two jobs, if drawn.
func (b *Builder) Disconnect(sourceJobID, targetJobID string) {
	src, okS := b.node(sourceJobID)
	dst, okT := b.node(targetJobID)
	if !okS || !okT {
		return
	}
	b.edges = slices.DeleteFunc(b.edges, func(e models.Edge) bool {
		return e.Source == src.ID && e.Target == dst.ID
	})
}

func (b *Builder) node(jobID string) (models.Node, bool) {
	for _, n := range b.nodes {
		if n.JobID == jobID {
			return n, true
		}
	}
	return models.Node{}, false
}

func (b *Builder) Jobs() []string { return slices.Clone(b.jobs) }
func (b *Builder) Nodes() []models.Node { return slices.Clone(b.nodes) }
func (b *Builder) Edges() []models.Edge { return slices.Clone(b.edges) }

// Build creates a new pipeline from the canvas.
func (b *Builder) Build(name string, ids models.IDGenerator, now time.Time) (models.Pipeline, error) {
	return CreatePipeline(name, b.Jobs(), b.Nodes(), b.Edges(), ids, now)
}

// Apply rewrites an existing pipeline with the canvas contents.
func (b *Builder) Apply(existing models.Pipeline, name string) (models.Pipeline, error) {
	return UpdatePipeline(existing, name, b.Jobs(), b.Nodes(), b.Edges())
}
