package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ignatij/ingestctl/pkg/graph"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func pipelinesCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "Compose jobs into pipelines",
	}
	cmd.AddCommand(
		pipelinesListCmd(o), pipelinesCreateCmd(o), pipelinesUpdateCmd(o), pipelinesDeleteCmd(o),
		pipelinesOrderCmd(o), pipelinesExportCmd(o), pipelinesPublishCmd(o), pipelinesRunCmd(o),
	)
	return cmd
}

// canvas holds a pipeline drawn from flags or read from a YAML file.
type canvas struct {
	jobs  []string
	nodes []models.Node
	edges []models.Edge
}

func parseEdge(s string) (string, string, error) {
	src, dst, ok := strings.Cut(s, ":")
	if !ok || src == "" || dst == "" {
		return "", "", errors.Errorf("edge %q must look like <source-job>:<target-job>", s)
	}
	return src, dst, nil
}

// drawCanvas places jobs and connects edges through graph.Builder so an
// invalid edge is rejected before anything is saved.
func drawCanvas(known, jobIDs, edgeSpecs []string) (canvas, error) {
	b := graph.NewBuilder(known)
	for _, id := range jobIDs {
		if err := b.AddJob(id, nil); err != nil {
			return canvas{}, err
		}
	}
	for _, spec := range edgeSpecs {
		src, dst, err := parseEdge(spec)
		if err != nil {
			return canvas{}, err
		}
		if err := b.Connect(src, dst); err != nil {
			return canvas{}, err
		}
	}
	return canvas{jobs: b.Jobs(), nodes: b.Nodes(), edges: b.Edges()}, nil
}

func readPipelineFile(path string) (models.Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Pipeline{}, errors.Wrapf(err, "read %s", path)
	}
	var p models.Pipeline
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return models.Pipeline{}, errors.Wrapf(err, "parse %s", path)
	}
	return p, nil
}

func pipelinesListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local pipelines",
		Args:  cobra.NoArgs,
		RunE: run(o, func(_ *cobra.Command, _ []string, a *app) error {
			pipelines, err := a.svc.ListPipelines()
			if err != nil {
				return toast("Failed to list pipelines", err)
			}
			if a.printJSON(pipelines) {
				return nil
			}
			tw := a.table("ID", "NAME", "JOBS", "EDGES", "CREATED")
			for _, p := range pipelines {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", p.ID, p.Name, len(p.Jobs), len(p.Edges), p.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		}),
	}
}

func pipelineFlags(cmd *cobra.Command) (jobs, edges *[]string, file *string) {
	flags := cmd.Flags()
	jobs = flags.StringSlice("job", nil, "Job id to place on the canvas (repeatable)")
	edges = flags.StringSlice("edge", nil, "Connection <source-job>:<target-job> (repeatable)")
	file = flags.String("file", "", "Read jobs, nodes and edges from a YAML pipeline file")
	return jobs, edges, file
}

func (a *app) canvasFrom(jobs, edges []string, file string) (canvas, string, error) {
	if file != "" {
		p, err := readPipelineFile(file)
		if err != nil {
			return canvas{}, "", err
		}
		return canvas{jobs: p.Jobs, nodes: p.Nodes, edges: p.Edges}, p.Name, nil
	}
	views, err := a.svc.ListJobs()
	if err != nil {
		return canvas{}, "", err
	}
	known := make([]string, len(views))
	for i, v := range views {
		known[i] = v.ID
	}
	c, err := drawCanvas(known, jobs, edges)
	return c, "", err
}

func pipelinesCreateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a pipeline from jobs and connections",
		Args:  cobra.MaximumNArgs(1),
	}
	jobs, edges, file := pipelineFlags(cmd)
	cmd.RunE = run(o, func(_ *cobra.Command, args []string, a *app) error {
		c, name, err := a.canvasFrom(*jobs, *edges, *file)
		if err != nil {
			return toast("Invalid pipeline", err)
		}
		if len(args) == 1 {
			name = args[0]
		}
		p, err := a.svc.CreatePipeline(name, c.jobs, c.nodes, c.edges)
		if err != nil {
			return toast("Failed to create pipeline", err)
		}
		if a.printJSON(p) {
			return nil
		}
		a.printf("Created pipeline %s\n", p.ID)
		return nil
	})
	return cmd
}

func pipelinesUpdateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <pipeline-id>",
		Short: "Replace the name, jobs and connections of a pipeline",
		Args:  cobra.ExactArgs(1),
	}
	jobs, edges, file := pipelineFlags(cmd)
	name := cmd.Flags().String("name", "", "New name (defaults to the current one)")
	cmd.RunE = run(o, func(_ *cobra.Command, args []string, a *app) error {
		existing, err := a.svc.GetPipeline(args[0])
		if err != nil {
			return toast("Failed to load pipeline", err)
		}
		c, fileName, err := a.canvasFrom(*jobs, *edges, *file)
		if err != nil {
			return toast("Invalid pipeline", err)
		}
		newName := existing.Name
		if fileName != "" {
			newName = fileName
		}
		if *name != "" {
			newName = *name
		}
		p, err := a.svc.UpdatePipeline(existing.ID, newName, c.jobs, c.nodes, c.edges)
		if err != nil {
			return toast("Failed to update pipeline", err)
		}
		if a.printJSON(p) {
			return nil
		}
		a.printf("Updated pipeline %s\n", p.ID)
		return nil
	})
	return cmd
}

func pipelinesDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pipeline-id>",
		Short: "Delete a local pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(_ *cobra.Command, args []string, a *app) error {
			if err := a.svc.DeletePipeline(args[0]); err != nil {
				return toast("Failed to delete pipeline", err)
			}
			a.printf("Deleted pipeline %s\n", args[0])
			return nil
		}),
	}
}

func pipelinesOrderCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "order <pipeline-id>",
		Short: "Print the order the pipeline's jobs run in",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(_ *cobra.Command, args []string, a *app) error {
			order, err := a.svc.ExecutionOrder(args[0])
			if err != nil {
				return toast("Invalid pipeline", err)
			}
			if a.printJSON(order) {
				return nil
			}
			for i, id := range order {
				a.printf("%d. %s\n", i+1, id)
			}
			return nil
		}),
	}
}

func pipelinesExportCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <pipeline-id>",
		Short: "Print a pipeline as YAML, suitable for --file",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(_ *cobra.Command, args []string, a *app) error {
			p, err := a.svc.GetPipeline(args[0])
			if err != nil {
				return toast("Failed to load pipeline", err)
			}
			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(p); err != nil {
				return toast("Failed to export pipeline", err)
			}
			return enc.Close()
		}),
	}
}

func pipelinesPublishCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <pipeline-id>",
		Short: "Create or update the pipeline on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.svc.PublishPipeline(cmd.Context(), a.client, args[0]); err != nil {
				return toast("Failed to publish pipeline", err)
			}
			a.printf("Published pipeline %s\n", args[0])
			return nil
		}),
	}
}

func pipelinesRunCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline-id>",
		Short: "Run a pipeline on the backend",
		Args:  cobra.ExactArgs(1),
	}
	dryRun := cmd.Flags().Bool("dry-run", false, "Only print the execution order")
	cmd.RunE = run(o, func(cmd *cobra.Command, args []string, a *app) error {
		if *dryRun {
			order, err := a.svc.ExecutionOrder(args[0])
			if err != nil {
				return toast("Invalid pipeline", err)
			}
			a.printf("Would run: %s\n", strings.Join(order, " -> "))
			return nil
		}
		resp, err := a.svc.RunPipeline(cmd.Context(), a.client, args[0])
		if err != nil {
			return toast("Failed to run pipeline", err)
		}
		if a.printJSON(resp) {
			return nil
		}
		a.printf("Started %s\n", resp.ExecutionArn)
		return nil
	})
	return cmd
}
