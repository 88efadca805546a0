package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	internal_http "github.com/ignatij/ingestctl/internal/http"
	internal_storage "github.com/ignatij/ingestctl/internal/storage"
	"github.com/ignatij/ingestctl/internal/testutil"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/ignatij/ingestctl/pkg/service"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logger struct{}

func (logger) Infof(format string, args ...interface{})  {}
func (logger) Errorf(format string, args ...interface{}) {}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestServerInMemory(t *testing.T) {
	runServerSuite(t, func(t *testing.T) storage.Store { return storage.NewMemoryStore() })
}

func TestServerPostgres(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	runServerSuite(t, func(t *testing.T) storage.Store {
		store, err := internal_storage.InitStore(internal_storage.PostgresDriver, testDB.ConnStr)
		require.NoError(t, err)
		t.Cleanup(func() {
			testDB.Truncate(t)
			store.Close()
		})
		return store
	})
}

func runServerSuite(t *testing.T, newStore func(t *testing.T) storage.Store) {
	newServer := func(t *testing.T) *httptest.Server {
		svc := service.NewWorkspaceService(newStore(t), logger{})
		srv := httptest.NewServer(internal_http.NewRouter(svc))
		t.Cleanup(srv.Close)
		return srv
	}

	createJob := func(t *testing.T, srv *httptest.Server, name string) models.Job {
		resp, body := do(t, srv, http.MethodPost, "/jobs", fmt.Sprintf(`{"name":%q,"category":"S3"}`, name))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var job models.Job
		require.NoError(t, json.Unmarshal(body, &job))
		return job
	}

	t.Run("HealthCheck", func(t *testing.T) {
		srv := newServer(t)
		resp, body := do(t, srv, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status":"ok"}`, string(body))
	})

	t.Run("CreateAndListJobs", func(t *testing.T) {
		srv := newServer(t)
		job := createJob(t, srv, "Customer Data ETL")
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, models.PendingJobStatus, job.Status)

		resp, body := do(t, srv, http.MethodGet, "/jobs", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var views []models.JobView
		require.NoError(t, json.Unmarshal(body, &views))
		require.Len(t, views, 1)
		assert.False(t, views[0].IsConnected)
		assert.Contains(t, string(body), `"isConnected":false`)
	})

	t.Run("CreateJobMissingName", func(t *testing.T) {
		srv := newServer(t)
		resp, body := do(t, srv, http.MethodPost, "/jobs", `{"name":""}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), "job name cannot be empty")
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		srv := newServer(t)
		resp, _ := do(t, srv, http.MethodPost, "/jobs", `{`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownJob", func(t *testing.T) {
		srv := newServer(t)
		resp, body := do(t, srv, http.MethodGet, "/jobs/nope", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, string(body), `"error"`)
	})

	t.Run("StageLifecycle", func(t *testing.T) {
		srv := newServer(t)
		job := createJob(t, srv, "Orders")

		var ids []string
		for _, typ := range []string{"extraction", "transformation", "loading"} {
			resp, body := do(t, srv, http.MethodPost, "/jobs/"+job.ID+"/stages", fmt.Sprintf(`{"type":%q,"name":%q}`, typ, typ))
			require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
			var st models.Stage
			require.NoError(t, json.Unmarshal(body, &st))
			assert.Regexp(t, `^stage_\d+$`, st.ID)
			assert.Equal(t, models.PendingStageStatus, st.Status)
			ids = append(ids, st.ID)
		}

		resp, body := do(t, srv, http.MethodPut, "/jobs/"+job.ID+"/stages/order", `{"from":2,"to":0}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		var view models.JobView
		require.NoError(t, json.Unmarshal(body, &view))
		assert.Equal(t, models.LoadingStageType, view.Stages[0].Type)

		resp, _ = do(t, srv, http.MethodPut, "/jobs/"+job.ID+"/stages/order", `{"from":9,"to":0}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = do(t, srv, http.MethodPut, "/jobs/"+job.ID+"/stages/order", fmt.Sprintf(`{"stage_ids":[%q]}`, ids[0]))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, _ = do(t, srv, http.MethodPut, "/jobs/"+job.ID+"/stages/order", fmt.Sprintf(`{"stage_ids":[%q,%q,%q]}`, ids[0], ids[0], ids[1]))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, body = do(t, srv, http.MethodPatch, "/jobs/"+job.ID+"/stages/"+ids[0], `{"status":"completed"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		assert.Contains(t, string(body), `"status":"completed"`)

		resp, _ = do(t, srv, http.MethodDelete, "/jobs/"+job.ID+"/stages/"+ids[1], "")
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp, body = do(t, srv, http.MethodGet, "/jobs/"+job.ID, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.Unmarshal(body, &view))
		assert.Len(t, view.Stages, 2)
	})

	t.Run("PipelineConnectivity", func(t *testing.T) {
		srv := newServer(t)
		j1 := createJob(t, srv, "J1")
		j2 := createJob(t, srv, "J2")

		payload := fmt.Sprintf(`{
			"name": "P1",
			"jobs": [%q, %q],
			"nodes": [
				{"id": "n1", "job_id": %q, "position": {"x": 0, "y": 0}},
				{"id": "n2", "job_id": %q, "position": {"x": 250, "y": 0}}
			],
			"edges": [{"id": "e1", "source": "n1", "target": "n2"}]
		}`, j1.ID, j2.ID, j1.ID, j2.ID)
		resp, body := do(t, srv, http.MethodPost, "/pipelines", payload)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var p models.Pipeline
		require.NoError(t, json.Unmarshal(body, &p))

		resp, body = do(t, srv, http.MethodGet, "/jobs/"+j1.ID, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var view models.JobView
		require.NoError(t, json.Unmarshal(body, &view))
		assert.True(t, view.IsConnected)
		assert.Equal(t, []models.PipelineRef{{ID: p.ID, Name: "P1"}}, view.Pipelines)

		resp, body = do(t, srv, http.MethodGet, "/pipelines/"+p.ID+"/order", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, fmt.Sprintf(`{"order":[%q,%q]}`, j1.ID, j2.ID), string(body))

		resp, _ = do(t, srv, http.MethodDelete, "/pipelines/"+p.ID, "")
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, body = do(t, srv, http.MethodGet, "/jobs/"+j1.ID, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.Unmarshal(body, &view))
		assert.False(t, view.IsConnected)
		assert.Empty(t, view.Pipelines)
	})

	t.Run("RejectInvalidGraph", func(t *testing.T) {
		srv := newServer(t)
		j1 := createJob(t, srv, "J1")
		payload := fmt.Sprintf(`{
			"name": "loop",
			"jobs": [%q],
			"nodes": [{"id": "n1", "job_id": %q, "position": {"x": 0, "y": 0}}],
			"edges": [{"id": "e1", "source": "n1", "target": "n1"}]
		}`, j1.ID, j1.ID)
		resp, body := do(t, srv, http.MethodPost, "/pipelines", payload)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), "edge source equals its target")

		resp, _ = do(t, srv, http.MethodGet, "/pipelines", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
