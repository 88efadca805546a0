package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/spf13/cobra"
)

func jobsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage locally cached jobs and their backend counterparts",
	}
	cmd.AddCommand(
		jobsListCmd(o), jobsShowCmd(o), jobsCreateCmd(o), jobsDeleteCmd(o),
		jobsSyncCmd(o), jobsStatusCmd(o), jobsRunCmd(o), jobsPushCmd(o),
	)
	return cmd
}

func pipelineNames(refs []models.PipelineRef) string {
	if len(refs) == 0 {
		return "-"
	}
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	return strings.Join(names, ",")
}

func jobsListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs with their pipeline membership",
		Args:  cobra.NoArgs,
		RunE: run(o, func(_ *cobra.Command, _ []string, a *app) error {
			views, err := a.svc.ListJobs()
			if err != nil {
				return toast("Failed to list jobs", err)
			}
			if a.printJSON(views) {
				return nil
			}
			tw := a.table("ID", "NAME", "CATEGORY", "STATUS", "STAGES", "PIPELINES")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", v.ID, v.Name, v.Category, v.Status, len(v.Stages), pipelineNames(v.Pipelines))
			}
			return tw.Flush()
		}),
	}
}

func jobsShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job and its stages",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(_ *cobra.Command, args []string, a *app) error {
			v, err := a.svc.GetJob(args[0])
			if err != nil {
				return toast("Failed to load job", err)
			}
			if a.printJSON(v) {
				return nil
			}
			a.printf("%s  %s\n", v.ID, v.Name)
			a.printf("Category:  %s\nStatus:    %s\nPipelines: %s\n", v.Category, v.Status, pipelineNames(v.Pipelines))
			if v.Execution != nil {
				a.printf("Source:    %s\nTarget:    %s\nTrigger:   %s\n", v.Execution.DataSource, v.Execution.DataDestination, v.Execution.TriggerType)
			}
			tw := a.table("#", "ID", "TYPE", "NAME", "STATUS")
			for i, st := range v.Stages {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, st.ID, st.Type, st.Name, st.Status)
			}
			return tw.Flush()
		}),
	}
}

func jobsCreateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a local job",
		Args:  cobra.ExactArgs(1),
	}
	category := cmd.Flags().String("category", string(models.OtherCategory), "Job category")
	description := cmd.Flags().String("description", "", "Job description")
	cmd.RunE = run(o, func(_ *cobra.Command, args []string, a *app) error {
		c, err := models.ParseJobCategory(*category)
		if err != nil {
			return toast("Invalid category", err)
		}
		job, err := a.svc.CreateJob(models.Job{Name: args[0], Category: c, Description: *description})
		if err != nil {
			return toast("Failed to create job", err)
		}
		if a.printJSON(job) {
			return nil
		}
		a.printf("Created job %s\n", job.ID)
		return nil
	})
	return cmd
}

func jobsDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a local job and detach it from every pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(_ *cobra.Command, args []string, a *app) error {
			if err := a.svc.DeleteJob(args[0]); err != nil {
				return toast("Failed to delete job", err)
			}
			a.printf("Deleted job %s\n", args[0])
			return nil
		}),
	}
}

func jobsSyncCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Merge the backend job list into the local workspace",
		Args:  cobra.NoArgs,
		RunE: run(o, func(cmd *cobra.Command, _ []string, a *app) error {
			n, err := a.svc.SyncJobs(cmd.Context(), a.client)
			if err != nil {
				return toast("Failed to sync jobs", err)
			}
			a.printf("Synced %d jobs\n", n)
			return nil
		}),
	}
}

func jobsStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the backend execution status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(cmd *cobra.Command, args []string, a *app) error {
			st, err := a.client.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return toast("Failed to get job status", err)
			}
			if a.printJSON(st) {
				return nil
			}
			a.printf("%s: %s\n", st.JobID, st.Status)
			if st.ExecutionArn != "" {
				a.printf("Execution: %s\n", st.ExecutionArn)
			}
			return nil
		}),
	}
}

func jobsRunCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Start a backend run of one job",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(cmd *cobra.Command, args []string, a *app) error {
			resp, err := a.client.RunStepFunction(cmd.Context(), args[0])
			if err != nil {
				return toast("Failed to run job", err)
			}
			if a.printJSON(resp) {
				return nil
			}
			a.printf("Started %s\n", resp.ExecutionArn)
			return nil
		}),
	}
}

func jobsPushCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "push <job-id>",
		Short: "Send the local name, description, trigger and stages of a job to the backend",
		Args:  cobra.ExactArgs(1),
		RunE: run(o, func(cmd *cobra.Command, args []string, a *app) error {
			v, err := a.svc.GetJob(args[0])
			if err != nil {
				return toast("Failed to load job", err)
			}
			req := api.EditJobRequest{
				JobID:       v.ID,
				JobName:     v.Name,
				Description: v.Description,
				Stages:      v.Stages,
			}
			if v.Execution != nil {
				req.TriggerType = v.Execution.TriggerType
				req.Schedule = v.Execution.Schedule
			}
			if err := a.client.EditJob(cmd.Context(), req); err != nil {
				return toast("Failed to update job", err)
			}
			a.printf("Pushed job %s\n", v.ID)
			return nil
		}),
	}
}

func stagesCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Edit the stages of a local job",
	}
	cmd.AddCommand(stagesAddCmd(o), stagesReorderCmd(o), stagesRemoveCmd(o), stagesUpdateCmd(o), stagesCatalogCmd(o))
	return cmd
}

func stagesCatalogCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the stage types that can be added",
		Args:  cobra.NoArgs,
		RunE: run(o, func(_ *cobra.Command, _ []string, a *app) error {
			steps := models.AvailableSteps()
			if a.printJSON(steps) {
				return nil
			}
			tw := a.table("TYPE", "NAME", "DESCRIPTION")
			for _, s := range steps {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Type, s.Name, s.Description)
			}
			return tw.Flush()
		}),
	}
}

func stagesAddCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <job-id> <type>",
		Short: "Append a stage to a job",
		Args:  cobra.ExactArgs(2),
	}
	name := cmd.Flags().String("name", "", "Stage name (defaults to the catalog name)")
	description := cmd.Flags().String("description", "", "Stage description")
	cmd.RunE = run(o, func(_ *cobra.Command, args []string, a *app) error {
		typ, err := models.ParseStageType(args[1])
		if err != nil {
			return toast("Invalid stage type", err)
		}
		in := models.StageInput{Type: typ, Name: *name, Description: *description}
		if in.Name == "" {
			for _, s := range models.AvailableSteps() {
				if s.Type == typ {
					in.Name = s.Name
				}
			}
		}
		st, err := a.svc.AddStage(args[0], in)
		if err != nil {
			return toast("Failed to add stage", err)
		}
		if a.printJSON(st) {
			return nil
		}
		a.printf("Added stage %s\n", st.ID)
		return nil
	})
	return cmd
}

func stagesReorderCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <job-id> <from> <to> | <job-id> <stage-id>...",
		Short: "Move one stage by index, or give the full stage order by id",
		Args:  cobra.MinimumNArgs(2),
		RunE: run(o, func(_ *cobra.Command, args []string, a *app) error {
			jobID := args[0]
			var err error
			if len(args) == 3 {
				from, fromErr := strconv.Atoi(args[1])
				to, toErr := strconv.Atoi(args[2])
				if fromErr == nil && toErr == nil {
					err = a.svc.ReorderStages(jobID, from, to)
					if err != nil {
						return toast("Failed to reorder stages", err)
					}
					a.printf("Moved stage %d to %d\n", from, to)
					return nil
				}
			}
			if err = a.svc.SetStageOrder(jobID, args[1:]); err != nil {
				return toast("Failed to reorder stages", err)
			}
			a.printf("Reordered %d stages\n", len(args)-1)
			return nil
		}),
	}
}

func stagesRemoveCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id> <stage-id>",
		Short: "Remove a stage from a job",
		Args:  cobra.ExactArgs(2),
		RunE: run(o, func(_ *cobra.Command, args []string, a *app) error {
			if err := a.svc.RemoveStage(args[0], args[1]); err != nil {
				return toast("Failed to remove stage", err)
			}
			a.printf("Removed stage %s\n", args[1])
			return nil
		}),
	}
}

func stagesUpdateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <job-id> <stage-id>",
		Short: "Edit the name, description or status of a stage",
		Args:  cobra.ExactArgs(2),
	}
	flags := cmd.Flags()
	name := flags.String("name", "", "New name")
	description := flags.String("description", "", "New description")
	status := flags.String("status", "", "New status: pending, running, completed or failed")
	cmd.RunE = run(o, func(cmd *cobra.Command, args []string, a *app) error {
		var patch models.StagePatch
		if cmd.Flags().Changed("name") {
			patch.Name = name
		}
		if cmd.Flags().Changed("description") {
			patch.Description = description
		}
		if cmd.Flags().Changed("status") {
			s := models.StageStatus(strings.ToLower(*status))
			patch.Status = &s
		}
		st, err := a.svc.UpdateStage(args[0], args[1], patch)
		if err != nil {
			return toast("Failed to update stage", err)
		}
		if a.printJSON(st) {
			return nil
		}
		a.printf("Updated stage %s\n", st.ID)
		return nil
	})
	return cmd
}
