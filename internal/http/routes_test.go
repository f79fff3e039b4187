package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-eval/internal/db"
	"audio-eval/internal/schemas"
	"audio-eval/internal/testutil"
	"audio-eval/internal/worker"
)

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func newTestServer(t *testing.T, token string, queue Enqueuer) *httptest.Server {
	t.Helper()
	s := &Server{DB: testutil.NewDB(t), Queue: queue}
	ts := httptest.NewServer(s.Router(token))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, header ...string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(b)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "", nil)
	code, body := do(t, http.MethodGet, ts.URL+"/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	var h schemas.HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &h))
	assert.Equal(t, "ok", h.Status)
	assert.NotEmpty(t, h.Timestamp)
}

func TestUserEndpoints(t *testing.T) {
	ts := newTestServer(t, "", nil)

	code, body := do(t, http.MethodPost, ts.URL+"/api/users", `{"id":"  bob  ","name":" Bob "}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.JSONEq(t, `"bob"`, mustField(t, body, "id"))
	assert.JSONEq(t, `"Bob"`, mustField(t, body, "name"))

	code, body = do(t, http.MethodPost, ts.URL+"/api/users", `{"id":"bob","name":"Robert"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, "User already exists, name updated")

	code, _ = do(t, http.MethodPost, ts.URL+"/api/users", `{"id":"alice"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body = do(t, http.MethodGet, ts.URL+"/api/users", "")
	require.Equal(t, http.StatusOK, code)
	var users []schemas.User
	require.NoError(t, json.Unmarshal([]byte(body), &users))
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	assert.ElementsMatch(t, []string{"alice", "Robert"}, names)

	code, _ = do(t, http.MethodGet, ts.URL+"/api/users/bob", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, http.MethodGet, ts.URL+"/api/users/nobody", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, http.MethodDelete, ts.URL+"/api/users/bob", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, http.MethodDelete, ts.URL+"/api/users/bob", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateUserValidation(t *testing.T) {
	ts := newTestServer(t, "", nil)
	tests := []struct {
		body string
		want string
	}{
		{`{}`, "User ID is required"},
		{`not json`, "User ID is required"},
		{`{"id":"   "}`, "User ID cannot be empty"},
		{`{"id":"` + strings.Repeat("x", 101) + `"}`, "User ID too long (max 100 characters)"},
	}
	for _, tt := range tests {
		code, body := do(t, http.MethodPost, ts.URL+"/api/users", tt.body)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body, tt.want)
	}
}

func TestProgressEndpoints(t *testing.T) {
	ts := newTestServer(t, "", nil)
	url := ts.URL + "/api/progress/mos/exp1/carol"

	code, body := do(t, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"userId":"carol","tool":"mos","experiment":"exp1","data":null,"updatedAt":null}`, body)

	code, body = do(t, http.MethodPost, url, `{"u1:GT":4,"u1:rebuild_01":null}`)
	require.Equal(t, http.StatusOK, code, body)

	code, body = do(t, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, code)
	var p schemas.ProgressData
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.JSONEq(t, `{"u1:GT":4,"u1:rebuild_01":null}`, string(p.Data))
	require.NotNil(t, p.UpdatedAt)

	// saving progress auto-registers the rater
	code, _ = do(t, http.MethodGet, ts.URL+"/api/users/carol", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/api/progress/comparison/exp1/carol", `{"u1":{"a":"good"},"u2":{"b":"bad"}}`)
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, http.MethodGet, ts.URL+"/api/users/carol/progress", "")
	require.Equal(t, http.StatusOK, code)
	var list schemas.UserProgressList
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	counts := map[string]int{}
	for _, s := range list.Progress {
		counts[s.Tool] = s.ItemCount
	}
	assert.Equal(t, map[string]int{"mos": 1, "comparison": 2}, counts)

	code, body = do(t, http.MethodGet, ts.URL+"/api/progress/export/carol", "")
	require.Equal(t, http.StatusOK, code)
	var export schemas.UserExport
	require.NoError(t, json.Unmarshal([]byte(body), &export))
	assert.Len(t, export.Progress, 2)

	code, _ = do(t, http.MethodDelete, url, "")
	require.Equal(t, http.StatusOK, code)
	_, body = do(t, http.MethodGet, url, "")
	assert.Contains(t, body, `"data":null`)

	code, _ = do(t, http.MethodGet, ts.URL+"/api/users/nobody/progress", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSaveProgressValidation(t *testing.T) {
	ts := newTestServer(t, "", nil)
	url := ts.URL + "/api/progress/abtest/exp1/dave"
	big := make(map[string]int, maxProgressEntries+1)
	for i := 0; i <= maxProgressEntries; i++ {
		big[fmt.Sprintf("k%d", i)] = i
	}
	bigBody, err := json.Marshal(big)
	require.NoError(t, err)

	for body, want := range map[string]string{
		`null`:          "Progress data is required",
		`"just text"`:   "must be an object or array",
		`42`:            "must be an object or array",
		`{"broken":`:    "invalid JSON",
		string(bigBody): "too large",
	} {
		code, got := do(t, http.MethodPost, url, body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.Contains(t, got, want)
	}

	code, _ := do(t, http.MethodPost, url, `["a","b"]`)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPITokenGuardsWrites(t *testing.T) {
	ts := newTestServer(t, "s3cret", nil)

	code, _ := do(t, http.MethodPost, ts.URL+"/api/users", `{"id":"erin"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/api/users", `{"id":"erin"}`, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusCreated, code)

	// reads stay open
	code, _ = do(t, http.MethodGet, ts.URL+"/api/users", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestArchive(t *testing.T) {
	q := &fakeQueue{}
	ts := newTestServer(t, "", q)
	code, body := do(t, http.MethodPost, ts.URL+"/api/progress/export/frank/archive", "")
	require.Equal(t, http.StatusAccepted, code, body)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, worker.TypeArchiveProgress, q.tasks[0].Type())
	assert.Contains(t, body, `"taskId":"task-1"`)

	failing := newTestServer(t, "", &fakeQueue{err: errors.New("redis down")})
	code, _ = do(t, http.MethodPost, failing.URL+"/api/progress/export/frank/archive", "")
	assert.Equal(t, http.StatusInternalServerError, code)

	none := newTestServer(t, "", nil)
	code, _ = do(t, http.MethodPost, none.URL+"/api/progress/export/frank/archive", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

type fakeArchives struct {
	objects map[string]schemas.UserExport
}

func (f *fakeArchives) GetJSON(_ context.Context, ref string, v any) error {
	e, ok := f.objects[ref]
	if !ok {
		return errors.New("no such object")
	}
	*(v.(*schemas.UserExport)) = e
	return nil
}

func TestArchiveListing(t *testing.T) {
	ctx := context.Background()
	dbx := testutil.NewDB(t)
	require.NoError(t, db.InsertArchive(ctx, dbx, db.Archive{
		ID: "a1", UserID: "frank", ObjectRef: "archives/frank/a1.json", Records: 2, CreatedAt: "2026-01-01T00:00:00Z",
	}))
	require.NoError(t, db.InsertArchive(ctx, dbx, db.Archive{
		ID: "a2", UserID: "frank", ObjectRef: "archives/frank/missing.json", Records: 0, CreatedAt: "2026-01-02T00:00:00Z",
	}))
	store := &fakeArchives{objects: map[string]schemas.UserExport{
		"archives/frank/a1.json": {UserID: "frank", ExportedAt: "2026-01-01T00:00:00Z"},
	}}
	ts := httptest.NewServer((&Server{DB: dbx, Archives: store}).Router(""))
	t.Cleanup(ts.Close)

	code, body := do(t, http.MethodGet, ts.URL+"/api/users/frank/archives", "")
	require.Equal(t, http.StatusOK, code)
	var list []schemas.ArchiveInfo
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID)

	code, body = do(t, http.MethodGet, ts.URL+"/api/users/nobody/archives", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)

	code, body = do(t, http.MethodGet, ts.URL+"/api/archives/a1", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, `"frank"`, mustField(t, body, "userId"))

	code, _ = do(t, http.MethodGet, ts.URL+"/api/archives/a2", "")
	assert.Equal(t, http.StatusBadGateway, code)
	code, _ = do(t, http.MethodGet, ts.URL+"/api/archives/zzz", "")
	assert.Equal(t, http.StatusNotFound, code)

	none := newTestServer(t, "", nil)
	code, _ = do(t, http.MethodGet, none.URL+"/api/archives/a1", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, "", nil)
	code, _ := do(t, http.MethodOptions, ts.URL+"/api/progress/mos/exp1/x", "")
	assert.Equal(t, http.StatusNoContent, code)
}

func TestMetricsExposed(t *testing.T) {
	ts := newTestServer(t, "", nil)
	do(t, http.MethodPost, ts.URL+"/api/progress/mos/exp9/gina", `{"a:b":1}`)
	code, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "audio_eval_progress_saves_total")
}

func mustField(t *testing.T, body, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return string(m[field])
}
