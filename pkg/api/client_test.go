package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc) (*api.Client, storage.Store, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	store := storage.NewMemoryStore()
	client, err := api.NewClient(srv.URL, store)
	require.NoError(t, err)
	return client, store, &hits
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := api.NewClient("ftp://example.com", storage.NewMemoryStore())
	assert.Error(t, err)
}

func TestMissingTokenMakesNoRequest(t *testing.T) {
	client, _, hits := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.ListBuckets(context.Background())
	require.ErrorIs(t, err, api.ErrNoToken)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestBearerHeaderAndDecoding(t *testing.T) {
	client, store, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/buckets/raw-data/objects", r.URL.Path)
		assert.Equal(t, "2024/", r.URL.Query().Get("prefix"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"objects": []map[string]any{{"key": "2024/customers.csv", "size": 42}},
		})
	})
	require.NoError(t, store.Set(storage.AuthTokenKey, "tok-123"))

	objects, err := client.ListObjects(context.Background(), "raw-data", "2024/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "2024/customers.csv", objects[0].Key)
	assert.Equal(t, int64(42), objects[0].Size)
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"bucket not found"}`, "bucket not found"},
		{"error", `{"error":"bad input"}`, "bad input"},
		{"message", `{"message":"try later"}`, "try later"},
		{"plain", "upstream exploded", "upstream exploded"},
		{"empty", "", "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &api.APIError{StatusCode: http.StatusNotFound, Body: tt.body}
			assert.Equal(t, tt.want, e.Message())
		})
	}
}

func TestNon2xxReturnsAPIError(t *testing.T) {
	client, store, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]string{"detail": "job_name is required"})
	})
	require.NoError(t, store.Set(storage.AuthTokenKey, "tok"))

	_, err := client.CreateJobConfig(context.Background(), api.CreateJobRequest{})
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "job_name is required", apiErr.Message())
}

func TestLoginCachesTokenAndUser(t *testing.T) {
	client, store, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var req api.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ada", req.Username)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"access_token": "fresh",
			"token_type":   "bearer",
			"user":         map[string]string{"id": "u1", "username": "ada"},
		})
	})

	resp, err := client.Login(context.Background(), "ada", "secret")
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.AccessToken)

	tok, err := store.Get(storage.AuthTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)

	user, err := client.CurrentUser()
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)

	require.NoError(t, client.Logout())
	_, err = store.Get(storage.AuthTokenKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = client.CurrentUser()
	assert.ErrorIs(t, err, api.ErrNoToken)
}

func TestLoginRequiresCredentials(t *testing.T) {
	client, _, hits := newClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.Login(context.Background(), "", "")
	assert.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestQueryParameters(t *testing.T) {
	client, store, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get_job_details":
			assert.Equal(t, "job-7", r.URL.Query().Get("job_id"))
			writeJSON(t, w, http.StatusOK, map[string]any{"job_id": "job-7", "job_name": "Orders", "status": "completed"})
		case "/containers/landing/file":
			assert.Equal(t, "in/orders.csv", r.URL.Query().Get("blob_name"))
			writeJSON(t, w, http.StatusOK, map[string]any{"key": "in/orders.csv", "content": "a,b"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	require.NoError(t, store.Set(storage.AuthTokenKey, "tok"))

	remote, err := client.GetJobDetails(context.Background(), "job-7")
	require.NoError(t, err)
	job, err := remote.ToJob()
	require.NoError(t, err)
	assert.Equal(t, models.PassedJobStatus, job.Status)
	assert.Equal(t, models.OtherCategory, job.Category)
	assert.Nil(t, job.Execution)

	file, err := client.GetContainerFile(context.Background(), "landing", "in/orders.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b", file.Content)
}

func TestViewRelationship(t *testing.T) {
	client, store, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/viewrelationship", r.URL.Path)
		var req api.RelationshipRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Sources, 2) {
			assert.Equal(t, "customers.csv", req.Sources[1].Key)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"relationships": []map[string]any{{
				"from_table": "orders", "from_column": "customer_id",
				"to_table": "customers", "to_column": "id",
				"kind": "many_to_one", "confidence": 0.9,
			}},
		})
	})
	require.NoError(t, store.Set(storage.AuthTokenKey, "tok"))

	rels, err := client.ViewRelationship(context.Background(), api.RelationshipRequest{Sources: []api.DataSourceRequest{
		{InputType: api.CSVInput, BucketName: "raw", Key: "orders.csv"},
		{InputType: api.CSVInput, BucketName: "raw", Key: "customers.csv"},
	}})
	require.NoError(t, err)
	require.Len(t, rels.Relationships, 1)
	assert.Equal(t, "customer_id", rels.Relationships[0].FromColumn)
	assert.Equal(t, "many_to_one", rels.Relationships[0].Kind)
	assert.InDelta(t, 0.9, rels.Relationships[0].Confidence, 1e-9)
}

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 75, api.DQValidationResult{TotalRules: 12, RulesPassed: 9, RulesFailed: 3}.SuccessRate())
	assert.Equal(t, 67, api.DQValidationResult{RulesPassed: 2, RulesFailed: 1}.SuccessRate())
	assert.Equal(t, 0, api.DQValidationResult{}.SuccessRate())
	assert.Equal(t, 12, api.DQValidationResult{TotalRules: 12, RulesPassed: 9}.Total())
	assert.Equal(t, 3, api.DQValidationResult{RulesPassed: 2, RulesFailed: 1}.Total())
}

func TestRemoteJobToJobRejectsUnknownStatus(t *testing.T) {
	_, err := api.RemoteJob{JobID: "j", Status: "exploded"}.ToJob()
	assert.Error(t, err)
}
