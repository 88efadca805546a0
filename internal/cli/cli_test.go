package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignatij/ingestctl/internal/cli"
	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/ignatij/ingestctl/pkg/wizard"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store   storage.Store
	backend *httptest.Server
}

func newHarness(t *testing.T, handler http.Handler) *harness {
	t.Helper()
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("INGESTCTL_CONFIG", "")
	return &harness{store: storage.NewMemoryStore(), backend: srv}
}

func (h *harness) run(args ...string) (string, error) {
	root := &cobra.Command{Use: "ingestctl"}
	cli.SetupCLI(root, cli.WithStore(h.store))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api-url", h.backend.URL}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(args...)
	require.NoError(t, err, out)
	return out
}

func report(err error) string {
	var buf bytes.Buffer
	cli.Report(&buf, err)
	return buf.String()
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestJobsAndStages(t *testing.T) {
	h := newHarness(t, nil)

	out := h.mustRun(t, "--json", "jobs", "create", "Customer Data ETL", "--category", "s3")
	var job models.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, models.S3Category, job.Category)

	for _, typ := range []string{"extraction", "transformation", "loading"} {
		h.mustRun(t, "stages", "add", job.ID, typ)
	}
	h.mustRun(t, "stages", "reorder", job.ID, "2", "0")

	out = h.mustRun(t, "--json", "jobs", "show", job.ID)
	var view models.JobView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Stages, 3)
	assert.Equal(t, models.LoadingStageType, view.Stages[0].Type)
	assert.Equal(t, "Data Loading", view.Stages[0].Name)
	assert.False(t, view.IsConnected)

	_, err := h.run("stages", "reorder", job.ID, "7", "0")
	assert.ErrorIs(t, err, models.ErrIndexOutOfRange)

	out = h.mustRun(t, "jobs", "list")
	assert.Contains(t, out, "Customer Data ETL")
	assert.Contains(t, out, "PIPELINES")
}

func TestUnknownStageType(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.run("stages", "add", "job-1", "teleport")
	require.Error(t, err)
	assert.Contains(t, report(err), "Error: Invalid stage type:")
}

func TestPipelineFromFlags(t *testing.T) {
	h := newHarness(t, nil)
	ids := make([]string, 2)
	for i, name := range []string{"J1", "J2"} {
		out := h.mustRun(t, "--json", "jobs", "create", name)
		var job models.Job
		require.NoError(t, json.Unmarshal([]byte(out), &job))
		ids[i] = job.ID
	}

	out := h.mustRun(t, "--json", "pipelines", "create", "P1", "--job", ids[0], "--job", ids[1], "--edge", ids[0]+":"+ids[1])
	var p models.Pipeline
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Len(t, p.Edges, 1)

	out = h.mustRun(t, "pipelines", "run", p.ID, "--dry-run")
	assert.Contains(t, out, ids[0]+" -> "+ids[1])

	out = h.mustRun(t, "--json", "jobs", "show", ids[1])
	var view models.JobView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.True(t, view.IsConnected)

	_, err := h.run("pipelines", "create", "loop", "--job", ids[0], "--edge", ids[0]+":"+ids[0])
	require.Error(t, err)
	assert.Contains(t, report(err), "Error: Invalid pipeline:")

	out = h.mustRun(t, "pipelines", "export", p.ID)
	assert.Contains(t, out, "name: P1")
}

func TestMissingTokenToast(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	_, err := h.run("buckets")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, api.ErrNoToken))
	assert.Equal(t, "Error: Failed to list buckets: you are not logged in; run `ingestctl login` first\n", report(err))
}

func TestBackendErrorToast(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(t, w, map[string]string{"detail": "bucket access denied"})
	}))
	require.NoError(t, h.store.Set(storage.AuthTokenKey, "tok"))
	_, err := h.run("buckets", "raw")
	require.Error(t, err)
	assert.Equal(t, "Error: Failed to list objects: bucket access denied\n", report(err))
}

func TestLoginLogout(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"access_token": "secret",
			"token_type":   "bearer",
			"user":         map[string]string{"id": "1", "username": "ada"},
		})
	}))
	out := h.mustRun(t, "login", "--username", "ada", "--password", "pw")
	assert.Equal(t, "Logged in as ada\n", out)
	tok, err := h.store.Get(storage.AuthTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "secret", tok)

	h.mustRun(t, "logout")
	_, err = h.store.Get(storage.AuthTokenKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWizardMissingFile(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	h.mustRun(t, "wizard", "source", "--bucket", "raw")
	h.mustRun(t, "wizard", "destination", "--bucket", "curated", "--folder", "orders")

	_, err := h.run("wizard", "upload")
	require.Error(t, err)
	assert.Contains(t, report(err), `Error: Missing required fields: source_path: source path is incomplete: bucket "raw" has no file selected`)

	out := h.mustRun(t, "wizard", "status")
	assert.Contains(t, out, "Step:        upload")
}

func TestWizardStaleStep(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.run("wizard", "rules", "--skip")
	require.Error(t, err)
	assert.ErrorIs(t, err, wizard.ErrStaleSession)
	assert.Contains(t, report(err), "Error: Session expired:")
}

func TestWizardEndToEnd(t *testing.T) {
	var created api.CreateJobRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/run-schema-analysis", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, api.SchemaAnalysis{Columns: []api.ColumnSchema{{Name: "id", DataType: "int"}}, RowCount: 3})
	})
	mux.HandleFunc("/invoke-etl", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, api.ETLResult{Status: "ok", Payload: json.RawMessage(`{"rows":3}`)})
	})
	mux.HandleFunc("/create-job-config", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		writeJSON(t, w, api.CreateJobResponse{JobID: "job-42"})
	})
	h := newHarness(t, mux)
	require.NoError(t, h.store.Set(storage.AuthTokenKey, "tok"))

	h.mustRun(t, "wizard", "source", "--bucket", "raw", "--key", "orders.csv")
	h.mustRun(t, "wizard", "destination", "--bucket", "curated", "--folder", "orders")
	h.mustRun(t, "wizard", "upload")
	out := h.mustRun(t, "wizard", "schema")
	assert.Contains(t, out, "3 rows")
	h.mustRun(t, "wizard", "rules", "--skip")
	h.mustRun(t, "wizard", "ner", "--skip")
	h.mustRun(t, "wizard", "bl", "--skip")
	h.mustRun(t, "wizard", "etl", "--method", "standard")

	_, err := h.run("wizard", "schedule", "--name", "Orders", "--frequency", "daily")
	require.Error(t, err)
	assert.Contains(t, report(err), "schedule.time")

	out = h.mustRun(t, "wizard", "schedule", "--name", "Orders", "--frequency", "daily", "--time", "02:30")
	assert.Equal(t, "Created job job-42\n", out)

	assert.Equal(t, "s3://raw/orders.csv", created.SourcePath)
	assert.Equal(t, "s3://curated/orders/", created.DestinationPath)
	assert.Equal(t, "30 2 * * *", created.Schedule.Cron)
	assert.Equal(t, "skipped", created.Steps.Rules)
	assert.Equal(t, "standard", created.ETLMethod)
	assert.JSONEq(t, `{"rows":3}`, string(created.ETLPayload))

	for _, key := range wizard.SessionKeys() {
		_, err := h.store.Get(key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
}

func TestSchedulePreview(t *testing.T) {
	h := newHarness(t, nil)
	out := h.mustRun(t, "wizard", "schedule", "--frequency", "hourly", "--time", "00:05", "--preview", "3")
	assert.Len(t, bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n")), 3)
}

func TestWizardRelationshipsAndRuleTotals(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/run-schema-analysis", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, api.SchemaAnalysis{RowCount: 10})
	})
	mux.HandleFunc("/viewrelationship", func(w http.ResponseWriter, r *http.Request) {
		var req api.RelationshipRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Sources, 1) {
			assert.Equal(t, "orders.csv", req.Sources[0].Key)
		}
		writeJSON(t, w, api.Relationships{Relationships: []api.Relationship{
			{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id", Kind: "many_to_one"},
		}})
	})
	mux.HandleFunc("/run-dq-rules-generation", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, api.DQRules{Rules: []api.DQRule{
			{ID: "r1", RuleType: "not_null", Enabled: true},
			{ID: "r2", RuleType: "unique", Enabled: false},
		}})
	})
	mux.HandleFunc("/run_dq_validation", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, api.DQValidationResult{TotalRules: 12, RulesPassed: 9, RulesFailed: 3})
	})
	h := newHarness(t, mux)
	require.NoError(t, h.store.Set(storage.AuthTokenKey, "tok"))

	h.mustRun(t, "wizard", "source", "--bucket", "raw", "--key", "orders.csv")
	h.mustRun(t, "wizard", "destination", "--bucket", "curated", "--folder", "orders")
	h.mustRun(t, "wizard", "upload")

	out := h.mustRun(t, "wizard", "schema", "--relationships")
	assert.Contains(t, out, "orders.customer_id")
	assert.Contains(t, out, "customers.id")
	assert.Contains(t, out, "many_to_one")

	out = h.mustRun(t, "wizard", "rules")
	assert.Contains(t, out, "9 of 12 rules passed (75%)")
}
