package cli

import (
	"fmt"
	"time"

	internal_http "github.com/ignatij/ingestctl/internal/http"
	"github.com/spf13/cobra"
)

func metricsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show job metrics, system load and run history",
	}
	cmd.AddCommand(metricsJobsCmd(o), metricsSystemCmd(o), metricsRunsCmd(o))
	return cmd
}

func metricsJobsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs [job-id]",
		Short: "Show run metrics for one job or all jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(o, func(cmd *cobra.Command, args []string, a *app) error {
			var jobID string
			if len(args) == 1 {
				jobID = args[0]
			}
			m, err := a.client.GetJobMetrics(cmd.Context(), jobID)
			if err != nil {
				return toast("Failed to load metrics", err)
			}
			if a.printJSON(m) {
				return nil
			}
			a.printf("Runs:     %d (%d ok, %d failed)\n", m.TotalRuns, m.SuccessfulRuns, m.FailedRuns)
			a.printf("Average:  %s\n", time.Duration(m.AvgDurationSeconds*float64(time.Second)).Round(time.Second))
			a.printf("Records:  %d\n", m.RecordsProcessed)
			return nil
		}),
	}
}

func metricsSystemCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "system",
		Short: "Show backend resource usage",
		Args:  cobra.NoArgs,
		RunE: run(o, func(cmd *cobra.Command, _ []string, a *app) error {
			m, err := a.client.GetSystemMonitor(cmd.Context())
			if err != nil {
				return toast("Failed to load system monitor", err)
			}
			if a.printJSON(m) {
				return nil
			}
			a.printf("CPU %.0f%%  memory %.0f%%  disk %.0f%%\n", m.CPUPercent, m.MemoryPercent, m.DiskPercent)
			a.printf("%d active, %d queued\n", m.ActiveJobs, m.QueuedJobs)
			return nil
		}),
	}
}

func metricsRunsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "runs [job-id]",
		Short: "List previous runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(o, func(cmd *cobra.Command, args []string, a *app) error {
			var jobID string
			if len(args) == 1 {
				jobID = args[0]
			}
			runs, err := a.client.GetPreviousRuns(cmd.Context(), jobID)
			if err != nil {
				return toast("Failed to load runs", err)
			}
			if a.printJSON(runs) {
				return nil
			}
			tw := a.table("RUN", "JOB", "STATUS", "STARTED")
			for _, r := range runs {
				started := "-"
				if r.StartedAt != nil {
					started = r.StartedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RunID, r.JobID, r.Status, started)
			}
			return tw.Flush()
		}),
	}
}

func serveCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local workspace as a JSON API",
		Args:  cobra.NoArgs,
	}
	port := cmd.Flags().Int("port", 0, "Port to listen on (defaults to the configured port)")
	cmd.RunE = run(o, func(_ *cobra.Command, _ []string, a *app) error {
		p := a.cfg.Server.Port
		if *port > 0 {
			p = *port
		}
		if err := internal_http.StartServer(p, a.svc); err != nil {
			return toast("Server stopped", err)
		}
		return nil
	})
	return cmd
}
