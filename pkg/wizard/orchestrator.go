package wizard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/pkg/errors"
)

// Per-field keys written by older clients. They are imported into the
// session blob once and then removed.
const (
	legacyBucketKey      = "selectedBucket"
	legacyFileKey        = "selectedFile"
	legacyDestBucketKey  = "selectedDestBucket"
	legacyDestFolderKey  = "selectedDestFolder"
	legacyInputTypeKey   = "input_type"
	legacyJobNameKey     = "jobName"
	legacyRulesKey       = "rules"
	legacyNERKey         = "ner"
	legacyBusinessLogKey = "businessLogic"
)

var legacyKeys = []string{
	legacyBucketKey, legacyFileKey, legacyDestBucketKey, legacyDestFolderKey,
	legacyInputTypeKey, legacyJobNameKey, legacyRulesKey, legacyNERKey, legacyBusinessLogKey,
}

// SessionKeys lists every key the wizard may leave in the store.
func SessionKeys() []string {
	return append([]string{storage.WizardSessionKey}, legacyKeys...)
}

// Orchestrator binds the session to a store. It does no locking across
// processes; the last write wins.
type Orchestrator struct {
	store storage.Store
	now   func() time.Time
}

func NewOrchestrator(store storage.Store) *Orchestrator {
	return &Orchestrator{store: store, now: time.Now}
}

func (o *Orchestrator) withTx(fn func(tx storage.Store) error) (err error) {
	tx, err := o.store.Begin()
	if err != nil {
		return errors.Wrap(err, "begin wizard transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = stderrors.Join(err, rbErr)
			}
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// Load returns the stored session. A missing, corrupt or differently
// versioned blob yields a fresh session at the upload step.
func (o *Orchestrator) Load() (s Session, err error) {
	err = o.withTx(func(tx storage.Store) error {
		s, err = load(tx)
		return err
	})
	return s, err
}

func load(tx storage.Store) (Session, error) {
	raw, err := tx.Get(storage.WizardSessionKey)
	if stderrors.Is(err, storage.ErrNotFound) {
		return importLegacy(tx)
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "load wizard session")
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.Version != SessionVersion || s.Step.Index() < 0 {
		return NewSession(), nil
	}
	return s, nil
}

func save(tx storage.Store, s Session) error {
	s.Version = SessionVersion
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode wizard session")
	}
	return errors.Wrap(tx.Set(storage.WizardSessionKey, string(raw)), "save wizard session")
}

func importLegacy(tx storage.Store) (Session, error) {
	values := make(map[string]string, len(legacyKeys))
	for _, k := range legacyKeys {
		v, err := tx.Get(k)
		if stderrors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return Session{}, errors.Wrapf(err, "read %s", k)
		}
		values[k] = v
	}
	s := NewSession()
	if len(values) == 0 {
		return s, nil
	}

	s.InputType = api.InputType(strings.ToLower(strings.TrimSpace(values[legacyInputTypeKey])))
	if !s.InputType.Valid() {
		s.InputType = api.CSVInput
	}
	s.Source = ObjectRef{Bucket: values[legacyBucketKey], Key: values[legacyFileKey]}
	s.Destination = FolderRef{Bucket: values[legacyDestBucketKey], Folder: values[legacyDestFolderKey]}
	s.JobName = values[legacyJobNameKey]
	// Unknown outcome spellings are dropped rather than failing the import.
	s.Rules, _ = ParseOutcome(values[legacyRulesKey])
	s.NER, _ = ParseOutcome(values[legacyNERKey])
	s.BusinessLogic, _ = ParseOutcome(values[legacyBusinessLogKey])

	// Resume at the furthest step the imported data supports.
	for _, st := range []Step{StepETL, StepBusinessLogic, StepNER, StepSchema} {
		if s.Requires(st) == nil {
			s.Step = st
			break
		}
	}
	if err := save(tx, s); err != nil {
		return Session{}, err
	}
	if err := tx.Delete(legacyKeys...); err != nil {
		return Session{}, errors.Wrap(err, "remove legacy wizard keys")
	}
	return s, nil
}

// Apply runs one transition against the stored session and saves the result.
// Nothing is written when fn fails.
func (o *Orchestrator) Apply(fn func(Session) (Session, error)) (s Session, err error) {
	err = o.withTx(func(tx storage.Store) error {
		cur, err := load(tx)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			s = cur
			return err
		}
		next.UpdatedAt = o.now().UTC()
		s = next
		return save(tx, next)
	})
	return s, err
}

// Guard is the check a step runs when it is opened directly. A session that
// lacks the data for step is sent back to the upload step, keeping what was
// entered, and ErrStaleSession is returned along with it.
func (o *Orchestrator) Guard(step Step) (s Session, err error) {
	var stale error
	err = o.withTx(func(tx storage.Store) error {
		cur, err := load(tx)
		if err != nil {
			return err
		}
		next, err := cur.Enter(step)
		if stderrors.Is(err, ErrStaleSession) {
			stale = err
			s = cur.clone()
			s.Step = StepUpload
			s.UpdatedAt = o.now().UTC()
			return save(tx, s)
		}
		if err != nil {
			return err
		}
		if next.Step != cur.Step {
			next.UpdatedAt = o.now().UTC()
			if err := save(tx, next); err != nil {
				return err
			}
		}
		s = next
		return nil
	})
	if err != nil {
		return s, err
	}
	return s, stale
}

// Reset discards the session and any legacy keys.
func (o *Orchestrator) Reset() error {
	return errors.Wrap(o.store.Delete(SessionKeys()...), "reset wizard session")
}

// Submit records the job details, posts the creation request and, on
// success, clears every wizard key. On any failure the session is kept for
// resubmission.
func (o *Orchestrator) Submit(ctx context.Context, in JobRequestInput, creator JobCreator) (api.CreateJobResponse, error) {
	s, err := o.Apply(func(s Session) (Session, error) {
		return s.WithDetails(in), nil
	})
	if err != nil {
		return api.CreateJobResponse{}, err
	}
	resp, err := Submit(ctx, s, in, creator)
	if err != nil {
		return api.CreateJobResponse{}, err
	}
	if err := o.Reset(); err != nil {
		return resp, errors.Wrap(err, "job created but wizard state was not cleared")
	}
	return resp, nil
}
