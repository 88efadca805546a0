// Package graph builds and validates pipeline graphs: one node per job and
// directed "runs after" edges between nodes.
package graph

import (
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/pkg/errors"
)

var (
	ErrUnknownNode   = errors.New("edge endpoint is not a node of the pipeline")
	ErrUnknownJob    = errors.New("node job is not part of the pipeline")
	ErrSelfLoop      = errors.New("edge source equals its target")
	ErrDuplicateEdge = errors.New("duplicate edge between the same nodes")
	ErrDuplicateNode = errors.New("duplicate node")
	ErrCycle         = errors.New("cycle detected in pipeline")
	ErrEmptyName     = errors.New("pipeline name cannot be empty")
)

const (
	// layout grid used for nodes without an explicit position
	columnWidth = 250
	rowHeight   = 120
	perRow      = 4
)

// DefaultEdgeStyle is applied to edges drawn through Builder.Connect.
func DefaultEdgeStyle() (map[string]string, *models.Marker) {
	return map[string]string{"stroke": "#6366f1", "strokeWidth": "2"},
		&models.Marker{Type: "arrowclosed", Width: 20, Height: 20, Color: "#6366f1"}
}

// NodeID is the node id used for a job on the canvas.
func NodeID(jobID string) string {
	return "node-" + jobID
}

// EdgeID is the edge id used for a source/target pair.
func EdgeID(source, target string) string {
	return "edge-" + source + "-" + target
}

// AutoLayout places one node per job left to right, wrapping every
// perRow jobs.
func AutoLayout(jobIDs []string) []models.Node {
	nodes := make([]models.Node, 0, len(jobIDs))
	for i, id := range jobIDs {
		nodes = append(nodes, models.Node{
			ID:    NodeID(id),
			JobID: id,
			Position: models.Position{
				X: float64((i % perRow) * columnWidth),
				Y: float64((i / perRow) * rowHeight),
			},
		})
	}
	return nodes
}

// Validate checks the structural rules of a pipeline graph and reports every
// violation found.
func Validate(p models.Pipeline) error {
	var errs []error
	sound := true

	nodes := make(map[string]struct{}, len(p.Nodes))
	placed := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		if _, dup := nodes[n.ID]; dup {
			errs = append(errs, errors.Wrapf(ErrDuplicateNode, "node %s", n.ID))
			sound = false
			continue
		}
		nodes[n.ID] = struct{}{}
		if _, dup := placed[n.JobID]; dup {
			errs = append(errs, errors.Wrapf(ErrDuplicateNode, "job %s has more than one node", n.JobID))
			sound = false
		}
		placed[n.JobID] = struct{}{}
		if !slices.Contains(p.Jobs, n.JobID) {
			errs = append(errs, errors.Wrapf(ErrUnknownJob, "node %s embeds job %s", n.ID, n.JobID))
		}
	}

	type pair struct{ source, target string }
	seen := make(map[pair]struct{}, len(p.Edges))
	for _, e := range p.Edges {
		if err := checkEdge(nodes, e.Source, e.Target); err != nil {
			errs = append(errs, errors.Wrapf(err, "edge %s", e.ID))
			sound = false
			continue
		}
		k := pair{e.Source, e.Target}
		if _, dup := seen[k]; dup {
			errs = append(errs, errors.Wrapf(ErrDuplicateEdge, "edge %s (%s -> %s)", e.ID, e.Source, e.Target))
			continue
		}
		seen[k] = struct{}{}
	}

	if sound {
		if _, err := topologicalSort(p); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func checkEdge(nodes map[string]struct{}, source, target string) error {
	if _, ok := nodes[source]; !ok {
		return errors.Wrapf(ErrUnknownNode, "source %s", source)
	}
	if _, ok := nodes[target]; !ok {
		return errors.Wrapf(ErrUnknownNode, "target %s", target)
	}
	if source == target {
		return errors.Wrapf(ErrSelfLoop, "node %s", source)
	}
	return nil
}

// CreatePipeline validates the supplied graph and stamps a fresh id and
// creation time. Node and edge slices are stored as given.
func CreatePipeline(name string, jobIDs []string, nodes []models.Node, edges []models.Edge, ids models.IDGenerator, now time.Time) (models.Pipeline, error) {
	if ids == nil {
		ids = models.DefaultIDs()
	}
	p := models.Pipeline{
		ID:        ids.PipelineID(),
		CreatedAt: now,
	}
	return fill(p, name, jobIDs, nodes, edges)
}

// UpdatePipeline replaces name, jobs, nodes and edges; id and createdAt are kept.
func UpdatePipeline(existing models.Pipeline, name string, jobIDs []string, nodes []models.Node, edges []models.Edge) (models.Pipeline, error) {
	p := models.Pipeline{
		ID:        existing.ID,
		CreatedAt: existing.CreatedAt,
	}
	return fill(p, name, jobIDs, nodes, edges)
}

func fill(p models.Pipeline, name string, jobIDs []string, nodes []models.Node, edges []models.Edge) (models.Pipeline, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Pipeline{}, ErrEmptyName
	}
	p.Name = name
	p.Jobs = dedupe(jobIDs)
	p.Nodes = nonNil(nodes)
	p.Edges = nonNil(edges)
	if err := Validate(p); err != nil {
		return models.Pipeline{}, err
	}
	return p, nil
}

// ExecutionOrder returns the job ids of the pipeline in an order where every
// job comes after the jobs it runs after. Ties follow node order.
func ExecutionOrder(p models.Pipeline) ([]string, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	nodeOrder, err := topologicalSort(p)
	if err != nil {
		return nil, err
	}
	jobOf := make(map[string]string, len(p.Nodes))
	for _, n := range p.Nodes {
		jobOf[n.ID] = n.JobID
	}
	order := make([]string, 0, len(nodeOrder))
	for _, id := range nodeOrder {
		order = append(order, jobOf[id])
	}
	return order, nil
}

// topologicalSort runs Kahn's algorithm over the node graph
func topologicalSort(p models.Pipeline) ([]string, error) {
	graph := make(map[string][]string, len(p.Nodes))
	inDegree := make(map[string]int, len(p.Nodes))
	for _, n := range p.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range p.Edges {
		if _, ok := inDegree[e.Source]; !ok {
			return nil, errors.Wrapf(ErrUnknownNode, "source %s", e.Source)
		}
		if _, ok := inDegree[e.Target]; !ok {
			return nil, errors.Wrapf(ErrUnknownNode, "target %s", e.Target)
		}
		graph[e.Source] = append(graph[e.Source], e.Target)
		inDegree[e.Target]++
	}

	var queue []string
	for _, n := range p.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	sorted := make([]string, 0, len(p.Nodes))
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		sorted = append(sorted, curr)
		for _, next := range graph[curr] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(sorted) != len(inDegree) {
		return nil, errors.Wrap(ErrCycle, fmt.Sprintf("%d of %d nodes ordered", len(sorted), len(inDegree)))
	}
	return sorted, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
