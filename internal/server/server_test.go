package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offloadhq/offload/pkg/registry"
)

func newTestServer(t *testing.T) (*Server, *registry.Store) {
	t.Helper()
	store := registry.NewStore(t.TempDir())
	return New(store, nil), store
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doGet(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestListJobs_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doGet(t, srv, "/api/v1/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []registry.RunRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	assert.Empty(t, runs)
}

func TestListJobs_ReturnsRecords(t *testing.T) {
	srv, store := newTestServer(t)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(&registry.RunRecord{
		JobID: "job-1", Resource: "localhost", Backend: "local",
		State: registry.RunStateCompleted, Command: "echo hi", CreatedAt: now,
	}))

	rec := doGet(t, srv, "/api/v1/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []registry.RunRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "job-1", runs[0].JobID)
	assert.Equal(t, registry.RunStateCompleted, runs[0].State)
}

func TestGetJob(t *testing.T) {
	srv, store := newTestServer(t)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(&registry.RunRecord{
		JobID: "job-1", Resource: "cluster", Backend: "slurm",
		State: registry.RunStateSubmitted, Command: "sleep 60",
		SubmissionID: "4242", CreatedAt: now,
	}))

	rec := doGet(t, srv, "/api/v1/jobs/job-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var got registry.RunRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "4242", got.SubmissionID)
	assert.Equal(t, "cluster", got.Resource)
}

func TestGetJob_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doGet(t, srv, "/api/v1/jobs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
