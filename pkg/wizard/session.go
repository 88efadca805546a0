// Package wizard models job creation as a finite-state machine over one
// immutable Session. Every transition returns a new Session; the
// Orchestrator persists it as a single versioned blob.
package wizard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/pkg/errors"
)

// SessionVersion is the blob layout written by this package. Blobs with any
// other version are discarded on load.
const SessionVersion = 1

var (
	ErrIllegalTransition = errors.New("illegal wizard transition")
	ErrStaleSession      = errors.New("wizard session is missing data for this step")
)

type Step string

const (
	StepUpload        Step = "upload"
	StepSchema        Step = "schema"
	StepRules         Step = "rules"
	StepNER           Step = "ner"
	StepBusinessLogic Step = "business_logic"
	StepETL           Step = "etl"
	StepSchedule      Step = "schedule"
	StepDone          Step = "done"
)

var steps = []Step{StepUpload, StepSchema, StepRules, StepNER, StepBusinessLogic, StepETL, StepSchedule, StepDone}

func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

func ParseStep(s string) (Step, error) {
	want := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, st := range steps {
		if string(st) == want {
			return st, nil
		}
	}
	if want == "bl" || want == "businesslogic" {
		return StepBusinessLogic, nil
	}
	return "", fmt.Errorf("unknown wizard step %q", s)
}

// Index is the position of the step in the linear flow, or -1.
func (s Step) Index() int {
	for i, st := range steps {
		if st == s {
			return i
		}
	}
	return -1
}

// Outcome records whether an optional step was run or skipped.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeExecuted Outcome = "executed"
	OutcomeSkipped  Outcome = "skipped"
)

// ParseOutcome accepts "used" as an alias of executed.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return OutcomeNone, nil
	case "executed", "used":
		return OutcomeExecuted, nil
	case "skipped":
		return OutcomeSkipped, nil
	}
	return "", fmt.Errorf("unknown step outcome %q", s)
}

func (o *Outcome) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

type ObjectRef struct {
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`
}

type FolderRef struct {
	Bucket string `json:"bucket,omitempty"`
	Folder string `json:"folder,omitempty"`
}

// Session is the whole wizard state. The zero value is not usable; start
// from NewSession.
type Session struct {
	Version       int                    `json:"version"`
	Step          Step                   `json:"step"`
	InputType     api.InputType          `json:"input_type,omitempty"`
	Source        ObjectRef              `json:"source"`
	Destination   FolderRef              `json:"destination"`
	Database      *api.DataSourceRequest `json:"database,omitempty"`
	Rules         Outcome                `json:"rules,omitempty"`
	NER           Outcome                `json:"ner,omitempty"`
	BusinessLogic Outcome                `json:"business_logic,omitempty"`
	ETLMethod     string                 `json:"etl_method,omitempty"`
	ETLPayload    json.RawMessage        `json:"etl_payload,omitempty"`
	JobName       string                 `json:"job_name,omitempty"`
	Schedule      *ScheduleSpec          `json:"schedule,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func NewSession() Session {
	return Session{Version: SessionVersion, Step: StepUpload}
}

func (s Session) clone() Session {
	if s.Database != nil {
		db := *s.Database
		s.Database = &db
	}
	if s.Schedule != nil {
		sc := *s.Schedule
		s.Schedule = &sc
	}
	if s.ETLPayload != nil {
		s.ETLPayload = append(json.RawMessage(nil), s.ETLPayload...)
	}
	return s
}

func (s Session) at(want Step, op string) error {
	if s.Step != want {
		return errors.Wrapf(ErrIllegalTransition, "%s is only valid at step %s (current step %s)", op, want, s.Step)
	}
	return nil
}

// SourcePath is the concrete source location, or "" when one is not chosen.
func (s Session) SourcePath() string {
	if s.InputType.IsFile() || s.InputType == "" {
		if s.Source.Bucket == "" || s.Source.Key == "" {
			return ""
		}
		return "s3://" + s.Source.Bucket + "/" + strings.TrimLeft(s.Source.Key, "/")
	}
	if s.Database == nil || s.Database.TableName == "" {
		return ""
	}
	db := s.Database
	name := db.DBName
	if name == "" {
		name = db.Database
	}
	if db.Schema != "" {
		return fmt.Sprintf("%s://%s/%s.%s", s.InputType, name, db.Schema, db.TableName)
	}
	return fmt.Sprintf("%s://%s/%s", s.InputType, name, db.TableName)
}

// DestinationPath is the concrete destination folder, or "" when no bucket
// is chosen. An empty folder means the bucket root.
func (s Session) DestinationPath() string {
	if s.Destination.Bucket == "" {
		return ""
	}
	folder := strings.Trim(s.Destination.Folder, "/")
	if folder == "" {
		return "s3://" + s.Destination.Bucket + "/"
	}
	return "s3://" + s.Destination.Bucket + "/" + folder + "/"
}

// DataSource is the dataset selector the analysis endpoints expect.
func (s Session) DataSource() api.DataSourceRequest {
	if s.Database != nil && !s.InputType.IsFile() {
		req := *s.Database
		req.InputType = s.InputType
		return req
	}
	return api.DataSourceRequest{InputType: s.InputType, BucketName: s.Source.Bucket, Key: s.Source.Key}
}

// SelectSource chooses a file in object storage. An empty key keeps the
// bucket chosen with no file selected.
func (s Session) SelectSource(inputType api.InputType, bucket, key string) (Session, error) {
	if err := s.at(StepUpload, "select source"); err != nil {
		return s, err
	}
	if !inputType.IsFile() {
		return s, errors.Errorf("input type %q is not read from object storage", inputType)
	}
	next := s.clone()
	next.InputType = inputType
	next.Source = ObjectRef{Bucket: strings.TrimSpace(bucket), Key: strings.TrimSpace(key)}
	next.Database = nil
	return next, nil
}

// SelectDatabase chooses a table in a database or warehouse.
func (s Session) SelectDatabase(inputType api.InputType, db api.DataSourceRequest) (Session, error) {
	if err := s.at(StepUpload, "select database"); err != nil {
		return s, err
	}
	if !inputType.Valid() || inputType.IsFile() {
		return s, errors.Errorf("input type %q is not a database source", inputType)
	}
	next := s.clone()
	next.InputType = inputType
	db.InputType = inputType
	next.Database = &db
	next.Source = ObjectRef{}
	return next, nil
}

func (s Session) SelectDestination(bucket, folder string) (Session, error) {
	if err := s.at(StepUpload, "select destination"); err != nil {
		return s, err
	}
	next := s.clone()
	next.Destination = FolderRef{Bucket: strings.TrimSpace(bucket), Folder: strings.TrimSpace(folder)}
	return next, nil
}

// ConfirmUpload leaves the upload step once both ends are concrete paths.
func (s Session) ConfirmUpload() (Session, error) {
	if err := s.at(StepUpload, "confirm upload"); err != nil {
		return s, err
	}
	if err := s.requireUpload(); err != nil {
		return s, err
	}
	next := s.clone()
	next.Step = StepSchema
	return next, nil
}

func (s Session) requireUpload() error {
	var errs ValidationErrors
	if f := s.sourceError(); f != nil {
		errs = append(errs, f)
	}
	if f := s.destinationError(); f != nil {
		errs = append(errs, f)
	}
	return errs.OrNil()
}

func (s Session) ConfigureRules() (Session, error) {
	return s.advance(StepSchema, StepRules, "configure rules", nil)
}

func (s Session) RunRules() (Session, error) {
	return s.advance(StepRules, StepNER, "run rules", func(n *Session) { n.Rules = OutcomeExecuted })
}

func (s Session) SkipRules() (Session, error) {
	return s.advance(StepRules, StepNER, "skip rules", func(n *Session) { n.Rules = OutcomeSkipped })
}

func (s Session) ProcessEntities() (Session, error) {
	return s.advance(StepNER, StepBusinessLogic, "process entities", func(n *Session) { n.NER = OutcomeExecuted })
}

func (s Session) SkipNER() (Session, error) {
	return s.advance(StepNER, StepBusinessLogic, "skip entity resolution", func(n *Session) { n.NER = OutcomeSkipped })
}

func (s Session) ContinueBusinessLogic() (Session, error) {
	return s.advance(StepBusinessLogic, StepETL, "continue business logic", func(n *Session) { n.BusinessLogic = OutcomeExecuted })
}

func (s Session) SkipBusinessLogic() (Session, error) {
	return s.advance(StepBusinessLogic, StepETL, "skip business logic", func(n *Session) { n.BusinessLogic = OutcomeSkipped })
}

// ResolveETL records the chosen ETL method and its payload.
func (s Session) ResolveETL(method string, payload json.RawMessage) (Session, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return s, &FieldError{Field: "etl_method", Message: "an ETL method is required"}
	}
	return s.advance(StepETL, StepSchedule, "resolve ETL", func(n *Session) {
		n.ETLMethod = method
		n.ETLPayload = append(json.RawMessage(nil), payload...)
	})
}

func (s Session) advance(from, to Step, op string, set func(*Session)) (Session, error) {
	if err := s.at(from, op); err != nil {
		return s, err
	}
	next := s.clone()
	if set != nil {
		set(&next)
	}
	next.Step = to
	return next, nil
}

// Back moves one step backward. Data entered on later steps is kept.
func (s Session) Back() (Session, error) {
	i := s.Step.Index()
	if i <= 0 || s.Step == StepDone {
		return s, errors.Wrapf(ErrIllegalTransition, "cannot go back from step %s", s.Step)
	}
	next := s.clone()
	next.Step = steps[i-1]
	return next, nil
}

// Reset discards everything and returns to the upload step.
func (s Session) Reset() Session {
	return NewSession()
}

// Enter navigates directly to step, as a page mount does. It fails with
// ErrStaleSession when the data that step depends on is missing.
func (s Session) Enter(step Step) (Session, error) {
	if err := s.Requires(step); err != nil {
		return s, err
	}
	next := s.clone()
	next.Step = step
	return next, nil
}

// Requires reports whether the session holds everything step reads.
func (s Session) Requires(step Step) error {
	i := step.Index()
	if i < 0 || step == StepDone {
		return errors.Wrapf(ErrIllegalTransition, "cannot enter step %q", step)
	}
	missing := func(what string) error {
		return errors.Wrapf(ErrStaleSession, "step %s needs %s", step, what)
	}
	if i > StepUpload.Index() {
		if s.SourcePath() == "" {
			return missing("a source path")
		}
		if s.DestinationPath() == "" {
			return missing("a destination path")
		}
	}
	if i > StepRules.Index() && s.Rules == OutcomeNone {
		return missing("the data quality step to be run or skipped")
	}
	if i > StepNER.Index() && s.NER == OutcomeNone {
		return missing("the entity resolution step to be run or skipped")
	}
	if i > StepBusinessLogic.Index() && s.BusinessLogic == OutcomeNone {
		return missing("the business logic step to be run or skipped")
	}
	if i > StepETL.Index() && s.ETLMethod == "" {
		return missing("an ETL method")
	}
	return nil
}

// WithDetails records the job name and schedule typed on the last step.
func (s Session) WithDetails(in JobRequestInput) Session {
	next := s.clone()
	next.JobName = strings.TrimSpace(in.JobName)
	if in.Schedule != nil {
		sc := *in.Schedule
		next.Schedule = &sc
	}
	return next
}
