package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/ignatij/ingestctl/pkg/wizard"
	"github.com/spf13/cobra"
)

func wizardCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Create a backend job step by step",
		Long: `The wizard walks through upload, schema, rules, ner, bl, etl and schedule.
Progress is kept between invocations; "wizard status" shows where you are.`,
	}
	cmd.AddCommand(
		wizardStatusCmd(o), wizardSourceCmd(o), wizardDestinationCmd(o), wizardUploadCmd(o),
		wizardSchemaCmd(o), wizardRulesCmd(o), wizardNERCmd(o), wizardBLCmd(o),
		wizardETLCmd(o), wizardScheduleCmd(o), wizardBackCmd(o), wizardResetCmd(o),
	)
	return cmd
}

// guard opens step the way a page mount does.
func (a *app) guard(step wizard.Step) (wizard.Session, error) {
	s, err := a.wizard.Guard(step)
	if stderrors.Is(err, wizard.ErrStaleSession) {
		return s, toast("Session expired", fmt.Errorf("%w; start again with `ingestctl wizard source`", err))
	}
	if err != nil {
		return s, toast("Cannot open step "+string(step), err)
	}
	return s, nil
}

func (a *app) printSession(s wizard.Session) {
	if a.printJSON(s) {
		return
	}
	orNone := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}
	a.printf("Step:        %s\n", s.Step)
	a.printf("Input type:  %s\n", orNone(string(s.InputType)))
	a.printf("Source:      %s\n", orNone(s.SourcePath()))
	a.printf("Destination: %s\n", orNone(s.DestinationPath()))
	a.printf("Rules:       %s\n", orNone(string(s.Rules)))
	a.printf("NER:         %s\n", orNone(string(s.NER)))
	a.printf("Business:    %s\n", orNone(string(s.BusinessLogic)))
	a.printf("ETL method:  %s\n", orNone(s.ETLMethod))
}

func wizardStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current wizard session",
		Args:  cobra.NoArgs,
		RunE: run(o, func(_ *cobra.Command, _ []string, a *app) error {
			s, err := a.wizard.Load()
			if err != nil {
				return toast("Failed to load wizard", err)
			}
			a.printSession(s)
			return nil
		}),
	}
}

func wizardSourceCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Choose the file or table to ingest",
		Args:  cobra.NoArgs,
	}
	flags := cmd.Flags()
	inputType := flags.String("type", string(api.CSVInput), "Input type: csv, xlsx, parquet, database or snowflake")
	bucket := flags.String("bucket", "", "Source bucket")
	key := flags.String("key", "", "Source object key")
	var db api.DataSourceRequest
	flags.StringVar(&db.DBHost, "db-host", "", "Database host")
	flags.IntVar(&db.DBPort, "db-port", 0, "Database port")
	flags.StringVar(&db.DBUser, "db-user", "", "Database user")
	flags.StringVar(&db.DBPassword, "db-password", "", "Database password")
	flags.StringVar(&db.DBName, "db-name", "", "Database name")
	flags.StringVar(&db.Database, "database", "", "Warehouse database")
	flags.StringVar(&db.Schema, "schema", "", "Schema of the source table")
	flags.StringVar(&db.TableName, "table", "", "Source table")
	cmd.RunE = run(o, func(_ *cobra.Command, _ []string, a *app) error {
		t := api.InputType(strings.ToLower(*inputType))
		s, err := a.wizard.Apply(func(s wizard.Session) (wizard.Session, error) {
			if t.IsFile() {
				return s.SelectSource(t, *bucket, *key)
			}
			return s.SelectDatabase(t, db)
		})
		if err != nil {
			return toast("Invalid source", err)
		}
		a.printf("Source: %s\n", s.SourcePath())
		if s.SourcePath() == "" && t.IsFile() {
			a.printf("No file selected yet; pass --key\n")
		}
		return nil
	})
	return cmd
}

func wizardDestinationCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destination",
		Short: "Choose where processed data is written",
		Args:  cobra.NoArgs,
	}
	bucket := cmd.Flags().String("bucket", "", "Destination bucket")
	folder := cmd.Flags().String("folder", "", "Destination folder (defaults to the bucket root)")
	cmd.RunE = run(o, func(_ *cobra.Command, _ []string, a *app) error {
		s, err := a.wizard.Apply(func(s wizard.Session) (wizard.Session, error) {
			return s.SelectDestination(*bucket, *folder)
		})
		if err != nil {
			return toast("Invalid destination", err)
		}
		a.printf("Destination: %s\n", s.DestinationPath())
		return nil
	})
	return cmd
}

func wizardUploadCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Confirm the source and destination and continue to the schema step",
		Args:  cobra.NoArgs,
		RunE: run(o, func(_ *cobra.Command, _ []string, a *app) error {
			s, err := a.wizard.Apply(wizard.Session.ConfirmUpload)
			if err != nil {
				return toast("Missing required fields", err)
			}
			a.printf("%s -> %s\nNext: ingestctl wizard schema\n", s.SourcePath(), s.DestinationPath())
			return nil
		}),
	}
}

func wizardSchemaCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Analyse the source schema and continue to the rules step",
		Args:  cobra.NoArgs,
	}
	preview := cmd.Flags().Bool("preview", false, "Also print a preview of the data")
	relationships := cmd.Flags().Bool("relationships", false, "Also print relationships detected between tables")
	cmd.RunE = run(o, func(cmd *cobra.Command, _ []string, a *app) error {
		s, err := a.guard(wizard.StepSchema)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		analysis, err := a.client.RunSchemaAnalysis(ctx, s.DataSource())
		if err != nil {
			return toast("Schema analysis failed", err)
		}
		if !a.printJSON(analysis) {
			a.printf("%d rows\n", analysis.RowCount)
			tw := a.table("COLUMN", "TYPE", "NULLABLE")
			for _, c := range analysis.Columns {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", c.Name, c.DataType, c.Nullable)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		if *preview {
			p, err := a.client.PreviewData(ctx, s.DataSource())
			if err != nil {
				return toast("Preview failed", err)
			}
			if !a.printJSON(p) {
				tw := a.table(p.Columns...)
				for _, row := range p.Rows {
					cells := make([]string, len(p.Columns))
					for i, col := range p.Columns {
						cells[i] = fmt.Sprint(row[col])
					}
					fmt.Fprintln(tw, strings.Join(cells, "\t"))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
		}
		if *relationships {
			rels, err := a.client.ViewRelationship(ctx, api.RelationshipRequest{Sources: []api.DataSourceRequest{s.DataSource()}})
			if err != nil {
				return toast("Relationship analysis failed", err)
			}
			if !a.printJSON(rels) {
				tw := a.table("FROM", "TO", "KIND")
				for _, r := range rels.Relationships {
					fmt.Fprintf(tw, "%s.%s\t%s.%s\t%s\n", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn, r.Kind)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
		}
		if _, err := a.wizard.Apply(wizard.Session.ConfigureRules); err != nil {
			return toast("Cannot continue", err)
		}
		a.printf("Next: ingestctl wizard rules\n")
		return nil
	})
	return cmd
}

func wizardRulesCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Generate and run data quality rules, or skip them",
		Args:  cobra.NoArgs,
	}
	skip := cmd.Flags().Bool("skip", false, "Skip data quality checks")
	fix := cmd.Flags().Bool("fix", false, "Fix failing rows after validation")
	cmd.RunE = run(o, func(cmd *cobra.Command, _ []string, a *app) error {
		s, err := a.guard(wizard.StepRules)
		if err != nil {
			return err
		}
		if *skip {
			if _, err := a.wizard.Apply(wizard.Session.SkipRules); err != nil {
				return toast("Cannot skip rules", err)
			}
			a.printf("Skipped data quality checks\nNext: ingestctl wizard ner\n")
			return nil
		}
		ctx := cmd.Context()
		rules, err := a.client.GenerateDQRules(ctx, s.DataSource())
		if err != nil {
			return toast("Failed to generate rules", err)
		}
		enabled := rules.Enabled()
		result, err := a.client.RunDQValidation(ctx, api.DQValidationRequest{DataSourceRequest: s.DataSource(), Rules: enabled})
		if err != nil {
			return toast("Validation failed", err)
		}
		if !a.printJSON(result) {
			a.printf("%d of %d rules passed (%d%%)\n", result.RulesPassed, result.Total(), result.SuccessRate())
		}
		if *fix && result.RulesFailed > 0 {
			fixed, err := a.client.RunDQFixing(ctx, api.DQFixRequest{DataSourceRequest: s.DataSource(), Rules: enabled})
			if err != nil {
				return toast("Fixing failed", err)
			}
			a.printf("Fixed %d rows\n", fixed.FixedRows)
		}
		if _, err := a.wizard.Apply(wizard.Session.RunRules); err != nil {
			return toast("Cannot continue", err)
		}
		a.printf("Next: ingestctl wizard ner\n")
		return nil
	})
	return cmd
}

func wizardNERCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ner",
		Short: "Resolve entity name variants, or skip",
		Args:  cobra.NoArgs,
	}
	skip := cmd.Flags().Bool("skip", false, "Skip entity resolution")
	columns := cmd.Flags().StringSlice("column", nil, "Only resolve these columns")
	apply := cmd.Flags().Bool("apply", false, "Apply every proposed canonical name")
	cmd.RunE = run(o, func(cmd *cobra.Command, _ []string, a *app) error {
		s, err := a.guard(wizard.StepNER)
		if err != nil {
			return err
		}
		if *skip {
			if _, err := a.wizard.Apply(wizard.Session.SkipNER); err != nil {
				return toast("Cannot skip entity resolution", err)
			}
			a.printf("Skipped entity resolution\nNext: ingestctl wizard bl\n")
			return nil
		}
		ctx := cmd.Context()
		proposal, err := a.client.ResolveEntities(ctx, api.EntityRequest{DataSourceRequest: s.DataSource(), Columns: *columns})
		if err != nil {
			return toast("Entity resolution failed", err)
		}
		if !a.printJSON(proposal) {
			tw := a.table("COLUMN", "CANONICAL", "VARIANTS")
			for _, g := range proposal.Entities {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", g.Column, g.Canonical, strings.Join(g.Variants, ", "))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		if *apply && len(proposal.Entities) > 0 {
			choices := make([]api.EntityChoice, len(proposal.Entities))
			for i, g := range proposal.Entities {
				choices[i] = api.EntityChoice{Column: g.Column, Canonical: g.Canonical, Variants: g.Variants, Apply: true}
			}
			res, err := a.client.ChooseApply(ctx, api.ChooseApplyRequest{DataSourceRequest: s.DataSource(), Choices: choices})
			if err != nil {
				return toast("Failed to apply entities", err)
			}
			a.printf("Updated %d rows\n", res.UpdatedRows)
		}
		if _, err := a.wizard.Apply(wizard.Session.ProcessEntities); err != nil {
			return toast("Cannot continue", err)
		}
		a.printf("Next: ingestctl wizard bl\n")
		return nil
	})
	return cmd
}

func wizardBLCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bl",
		Short: "Check business logic rules, or skip",
		Args:  cobra.NoArgs,
	}
	skip := cmd.Flags().Bool("skip", false, "Skip business logic")
	rules := cmd.Flags().StringArray("rule", nil, "Business rule in plain words (repeatable)")
	cmd.RunE = run(o, func(cmd *cobra.Command, _ []string, a *app) error {
		s, err := a.guard(wizard.StepBusinessLogic)
		if err != nil {
			return err
		}
		if *skip || len(*rules) == 0 {
			if _, err := a.wizard.Apply(wizard.Session.SkipBusinessLogic); err != nil {
				return toast("Cannot skip business logic", err)
			}
			a.printf("Skipped business logic\nNext: ingestctl wizard etl\n")
			return nil
		}
		res, err := a.client.InvokeBusinessLogic(cmd.Context(), api.BusinessLogicRequest{DataSourceRequest: s.DataSource(), Rules: *rules})
		if err != nil {
			return toast("Business logic failed", err)
		}
		if !a.printJSON(res) {
			for _, v := range res.Violations {
				a.printf("%s: %s\n", v.Rule, v.Message)
			}
			a.printf("Valid: %t\n", res.Valid)
		}
		if _, err := a.wizard.Apply(wizard.Session.ContinueBusinessLogic); err != nil {
			return toast("Cannot continue", err)
		}
		a.printf("Next: ingestctl wizard etl\n")
		return nil
	})
	return cmd
}

func wizardETLCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Run the chosen ETL method and continue to the schedule step",
		Args:  cobra.NoArgs,
	}
	method := cmd.Flags().String("method", "", "ETL method")
	params := cmd.Flags().String("params", "", "ETL parameters as a JSON object")
	cmd.RunE = run(o, func(cmd *cobra.Command, _ []string, a *app) error {
		s, err := a.guard(wizard.StepETL)
		if err != nil {
			return err
		}
		if strings.TrimSpace(*method) == "" {
			return toast("Missing required fields", &wizard.FieldError{Field: "etl_method", Message: "an ETL method is required"})
		}
		var raw json.RawMessage
		if *params != "" {
			if !json.Valid([]byte(*params)) {
				return toast("Invalid ETL parameters", fmt.Errorf("--params is not valid JSON"))
			}
			raw = json.RawMessage(*params)
		}
		res, err := a.client.InvokeETL(cmd.Context(), api.ETLRequest{
			DataSourceRequest: s.DataSource(),
			Method:            *method,
			DestinationBucket: s.Destination.Bucket,
			DestinationFolder: s.Destination.Folder,
			Params:            raw,
		})
		if err != nil {
			return toast("ETL failed", err)
		}
		payload := res.Payload
		if len(payload) == 0 {
			payload = raw
		}
		if _, err := a.wizard.Apply(func(s wizard.Session) (wizard.Session, error) {
			return s.ResolveETL(*method, payload)
		}); err != nil {
			return toast("Cannot continue", err)
		}
		if !a.printJSON(res) {
			a.printf("ETL %s: %s\n", res.Status, res.Message)
		}
		a.printf("Next: ingestctl wizard schedule\n")
		return nil
	})
	return cmd
}

func wizardScheduleCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Name the job, choose its trigger and create it on the backend",
		Args:  cobra.NoArgs,
	}
	flags := cmd.Flags()
	name := flags.String("name", "", "Job name")
	category := flags.String("category", "", "Job category")
	description := flags.String("description", "", "Job description")
	var spec wizard.ScheduleSpec
	scheduleType := flags.String("trigger", string(wizard.TimeBased), "Trigger: time_based or file_arrival")
	flags.StringVar((*string)(&spec.Frequency), "frequency", "", "hourly, daily, weekly or monthly")
	flags.StringVar(&spec.TimeOfDay, "time", "", "Time of day, HH:MM")
	flags.StringVar(&spec.DayOfWeek, "day-of-week", "", "Day for weekly schedules")
	flags.IntVar(&spec.DayOfMonth, "day-of-month", 0, "Day for monthly schedules (1-28)")
	previewRuns := flags.Int("preview", 0, "Print the next N run times and stop")
	cmd.RunE = run(o, func(cmd *cobra.Command, _ []string, a *app) error {
		spec.Type = wizard.ScheduleType(strings.ToLower(*scheduleType))
		if *previewRuns > 0 {
			runs, err := spec.NextRuns(time.Now(), *previewRuns)
			if err != nil {
				return toast("Invalid schedule", err)
			}
			for _, t := range runs {
				a.printf("%s\n", t.Format(time.RFC1123))
			}
			return nil
		}
		if _, err := a.guard(wizard.StepSchedule); err != nil {
			return err
		}
		in := wizard.JobRequestInput{JobName: *name, Description: *description, Schedule: &spec}
		if *category != "" {
			c, err := models.ParseJobCategory(*category)
			if err != nil {
				return toast("Invalid category", err)
			}
			in.Category = c
		}
		resp, err := a.wizard.Submit(cmd.Context(), in, a.client)
		var verrs wizard.ValidationErrors
		if stderrors.As(err, &verrs) {
			return toast("Missing required fields", err)
		}
		if err != nil {
			return toast("Failed to create job", err)
		}
		if a.printJSON(resp) {
			return nil
		}
		a.printf("Created job %s\n", resp.JobID)
		return nil
	})
	return cmd
}

func wizardBackCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "back",
		Short: "Return to the previous step, keeping what was entered",
		Args:  cobra.NoArgs,
		RunE: run(o, func(_ *cobra.Command, _ []string, a *app) error {
			s, err := a.wizard.Apply(wizard.Session.Back)
			if err != nil {
				return toast("Cannot go back", err)
			}
			a.printf("Step: %s\n", s.Step)
			return nil
		}),
	}
}

func wizardResetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the wizard session",
		Args:  cobra.NoArgs,
		RunE: run(o, func(_ *cobra.Command, _ []string, a *app) error {
			if err := a.wizard.Reset(); err != nil {
				return toast("Failed to reset wizard", err)
			}
			a.printf("Wizard reset\n")
			return nil
		}),
	}
}
