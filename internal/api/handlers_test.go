package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodgybits/shuffle/internal/store"
	shufflesync "github.com/dodgybits/shuffle/internal/sync"
	"github.com/dodgybits/shuffle/internal/types"
)

type fakeUploader struct {
	url string
}

func (f *fakeUploader) Upload(ctx context.Context, name, filePath string) error { return nil }

func (f *fakeUploader) PresignedURL(ctx context.Context, name string) (string, time.Time, error) {
	return f.url + name, time.Now().Add(time.Minute), nil
}

type testServer struct {
	store  *store.SQLiteStore
	router http.Handler
}

func newTestServer(t *testing.T, opts ...HandlerOption) *testServer {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	p := shufflesync.NewProcessor(shufflesync.Gateways{
		Contexts: s.Contexts(),
		Projects: s.Projects(),
		Tasks:    s.Tasks(),
	}, shufflesync.WithRecorder(s))

	h := NewHandler(s, p, testAPIKey, "1.2.3", opts...)
	return &testServer{store: s, router: NewRouter(h)}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

const syncBody = `{
	"sync_token": "abc",
	"new_contexts": [{"remote_id": 11, "name": "Home"}, {"remote_id": 12, "name": "Work"}],
	"new_projects": [{"remote_id": 21, "name": "House", "default_context_id": 11}],
	"new_tasks": [{"remote_id": 31, "description": "Paint fence", "project_id": 21, "context_id": 11}]
}`

func TestHealth_PublicWithCounts(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/sync", syncBody)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp types.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, int64(2), resp.ContextCount)
	assert.Equal(t, int64(1), resp.ProjectCount)
	assert.Equal(t, int64(1), resp.TaskCount)
	assert.NotNil(t, resp.LastSync)
}

func TestSync_AppliesDelta(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sync", syncBody)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result shufflesync.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.SyncID)
	assert.Equal(t, 2, result.Contexts.Added)
	assert.Equal(t, 1, result.Projects.Added)
	assert.Equal(t, 1, result.Tasks.Added)

	ctx := context.Background()
	home, err := ts.store.Contexts().GetByRemoteID(ctx, 11)
	require.NoError(t, err)
	task, err := ts.store.Tasks().GetByRemoteID(ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, home.LocalID, task.ContextID)
}

func TestSync_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(syncBody))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	n, err := ts.store.Contexts().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSync_InvalidRecord_422(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sync", `{"new_contexts": [{"remote_id": 11, "name": ""}]}`)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var p ProblemWithErrors
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "context", p.Kind)
	assert.Equal(t, int64(11), p.RemoteID)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "name", p.Errors[0].Field)
}

func TestSync_ZeroRemoteIDInPair_422KeepsLink(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sync", `{"new_contexts": [{"remote_id": 7, "name": "Errands"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err := ts.store.Contexts().GetByRemoteID(context.Background(), 7)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"added_context_id_pairs": [{"device_id": %d, "remote_id": 0}]}`, stored.LocalID)
	w = ts.do(t, http.MethodPost, "/api/v1/sync", body)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var p ProblemWithErrors
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "id_pair", p.Kind)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "remote_id", p.Errors[0].Field)

	got, err := ts.store.Contexts().Get(context.Background(), stored.LocalID)
	require.NoError(t, err)
	assert.Equal(t, types.ID(7), got.RemoteID)
}

func TestSync_UnknownModifiedEntity_404(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sync", `{"modified_tasks": [{"remote_id": 404, "description": "ghost"}]}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSync_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"new_contexts": [`},
		{"unknown field", `{"new_widgets": []}`},
		{"null payload", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			w := ts.do(t, http.MethodPost, "/api/v1/sync", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestSync_PayloadTooLarge(t *testing.T) {
	ts := newTestServer(t, WithMaxBodyBytes(32))

	w := ts.do(t, http.MethodPost, "/api/v1/sync", syncBody)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestList_Entities(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/sync", syncBody).Code)

	w := ts.do(t, http.MethodGet, "/api/v1/contexts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var contexts types.ListResponse[types.Context]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &contexts))
	assert.Equal(t, 2, contexts.Total)
	assert.Equal(t, "Home", contexts.Items[0].Name)

	w = ts.do(t, http.MethodGet, "/api/v1/projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	var projects types.ListResponse[types.Project]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	require.Equal(t, 1, projects.Total)
	assert.Equal(t, contexts.Items[0].LocalID, projects.Items[0].DefaultContextID)

	w = ts.do(t, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tasks types.ListResponse[types.Task]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Equal(t, 1, tasks.Total)
	assert.Equal(t, projects.Items[0].LocalID, tasks.Items[0].ProjectID)
}

func TestList_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/tasks", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items": [], "total": 0}`, w.Body.String())
}

func TestListSyncRuns(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/sync", syncBody)
	ts.do(t, http.MethodPost, "/api/v1/sync", `{"new_contexts": [{"remote_id": 99, "name": ""}]}`)

	w := ts.do(t, http.MethodGet, "/api/v1/sync/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	var runs types.ListResponse[types.SyncRun]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Equal(t, 2, runs.Total)

	statuses := []string{runs.Items[0].Status, runs.Items[1].Status}
	assert.ElementsMatch(t, []string{types.SyncStatusSucceeded, types.SyncStatusFailed}, statuses)
}

func TestListSyncRuns_InvalidLimit(t *testing.T) {
	ts := newTestServer(t)

	for _, q := range []string{"0", "-1", "abc", "501"} {
		w := ts.do(t, http.MethodGet, "/api/v1/sync/runs?limit="+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", q)
	}
}

func TestBackupURL(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(t, http.MethodGet, "/api/v1/backup/url", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("configured", func(t *testing.T) {
		ts := newTestServer(t, WithUploader(&fakeUploader{url: "https://s3.example.com/shuffle/"}))
		w := ts.do(t, http.MethodGet, "/api/v1/backup/url", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp BackupURLResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "https://s3.example.com/shuffle/current.db", resp.URL)
		assert.False(t, resp.ExpiresAt.IsZero())
	})
}
