package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/autodev/apiclient"
	"github.com/randalmurphal/autodev/poll"
)

// fakeBackend routes "METHOD /path" to handlers and records the requests.
type fakeBackend struct {
	t        *testing.T
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []*http.Request
	bodies   []map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{t: t, routes: map[string]http.HandlerFunc{}}
}

func (f *fakeBackend) handle(route string, h http.HandlerFunc) {
	f.routes[route] = h
}

func (f *fakeBackend) reply(route string, status int, v any) {
	f.handle(route, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, v)
	})
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Header.Get("Content-Type") == "application/json" && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, body)
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
		return
	}
	h(w, r)
}

func (f *fakeBackend) last() (*http.Request, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.requests)
	n := len(f.requests) - 1
	return f.requests[n], f.bodies[n]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, code apiclient.Code, msg string) {
	writeJSON(w, status, apiclient.ErrorResponse{Error: true, ErrorCode: code, Message: msg})
}

func newTestAPI(t *testing.T, h http.Handler) *API {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := apiclient.New(srv.URL,
		apiclient.WithSleeper(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
		apiclient.WithRetryPolicy(apiclient.RetryPolicy{MaxAttempts: 3, Timeout: 5 * time.Second}))
	require.NoError(t, err)
	return New(c)
}

func TestProjects_CRUD(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("GET /api/projects/", 200, []map[string]any{{"id": "default", "name": "Default"}})
	fb.reply("POST /api/projects/", 200, map[string]any{"id": "p2", "name": "New", "description": "d"})
	fb.reply("PATCH /api/projects/p2", 200, map[string]any{"id": "p2", "name": "Renamed"})
	fb.reply("DELETE /api/projects/p2", 200, map[string]any{"status": "deleted", "id": "p2"})
	a := newTestAPI(t, fb)
	ctx := context.Background()

	list, err := a.Projects.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "default", list[0].ID)

	p, err := a.Projects.Create(ctx, "New", "d")
	require.NoError(t, err)
	assert.Equal(t, "p2", p.ID)
	_, body := fb.last()
	assert.Equal(t, map[string]any{"name": "New", "description": "d"}, body)

	name := "Renamed"
	p, err = a.Projects.Update(ctx, "p2", ProjectUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
	_, body = fb.last()
	assert.Equal(t, map[string]any{"name": "Renamed"}, body)

	del, err := a.Projects.Delete(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "deleted", del.Status)
}

func TestSources_ListDefaultsProject(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("GET /api/sources/", 200, []map[string]any{
		{"id": "s1", "type": "uploaded_file", "label": "log", "file": map[string]any{"file_name": "a.txt", "file_size": 12}},
	})
	a := newTestAPI(t, fb)

	got, err := a.Sources.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, SourceUploadedFile, got[0].Type)
	require.NotNil(t, got[0].File)
	assert.Equal(t, int64(12), got[0].File.FileSize)

	req, _ := fb.last()
	assert.Equal(t, "default", req.URL.Query().Get("project_id"))
}

func TestSources_ChatworkRooms(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("GET /api/sources/chatwork/rooms", 200, map[string]any{
		"rooms": []map[string]any{{"room_id": 42, "name": "dev", "type": "group"}},
	})
	a := newTestAPI(t, fb)

	rooms, err := a.Sources.ChatworkRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(42), rooms[0].RoomID)
}

func TestSources_ConnectChatwork(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("POST /api/sources/chatwork", 200, map[string]any{"id": "s9", "type": "chatwork_room"})
	a := newTestAPI(t, fb)

	src, err := a.Sources.ConnectChatwork(context.Background(), "42", "dev", "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceChatworkRoom, src.Type)
	_, body := fb.last()
	assert.Equal(t, map[string]any{"room_id": "42", "room_name": "dev", "project_id": "p1"}, body)
}

func TestIssues_ListFilter(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("GET /api/issues/", 200, []map[string]any{})
	a := newTestAPI(t, fb)

	_, err := a.Issues.List(context.Background(), "p1", IssueFilter{Status: IssueNew, PainLevel: PainHigh})
	require.NoError(t, err)

	req, _ := fb.last()
	q := req.URL.Query()
	assert.Equal(t, "p1", q.Get("project_id"))
	assert.Equal(t, "new", q.Get("status"))
	assert.Equal(t, "high", q.Get("pain_level"))
	assert.False(t, q.Has("source_id"))
}

func TestIssues_UpdateStatusUsesQuery(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("PATCH /api/issues/i1/status", 200, map[string]any{"id": "i1", "status": "done"})
	a := newTestAPI(t, fb)

	issue, err := a.Issues.UpdateStatus(context.Background(), "i1", IssueDone)
	require.NoError(t, err)
	assert.Equal(t, IssueDone, issue.Status)

	req, _ := fb.last()
	assert.Equal(t, "done", req.URL.Query().Get("status"))
}

func TestIssues_Extract(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("POST /api/issues/extract", 200, map[string]any{"status": "processing", "batch_id": "b1"})
	a := newTestAPI(t, fb)

	resp, err := a.Issues.Extract(context.Background(), "s1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "b1", resp.BatchID)
	_, body := fb.last()
	assert.Equal(t, map[string]any{"source_id": "s1", "project_id": "default"}, body)
}

func TestIssues_GetNotFound(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("GET /api/issues/missing", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, apiclient.CodeNotFound, "Issue not found")
	})
	a := newTestAPI(t, fb)

	_, err := a.Issues.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apiclient.IsNotFound(err))
	assert.Equal(t, "指定されたデータが見つかりません。", apiclient.Message(err))
}

func TestRequirements_UpdateOmitsNil(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("PATCH /api/requirements/r1", 200, map[string]any{"id": "r1", "status": "review"})
	a := newTestAPI(t, fb)

	status := RequirementReview
	_, err := a.Requirements.Update(context.Background(), "r1", RequirementUpdate{Status: &status})
	require.NoError(t, err)
	_, body := fb.last()
	assert.Equal(t, map[string]any{"status": "review"}, body)
}

func TestRequirements_WaitGenerated(t *testing.T) {
	fb := newFakeBackend(t)
	var mu sync.Mutex
	calls := 0
	fb.handle("GET /api/requirements/r1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Requirement not found"})
			return
		}
		writeJSON(w, 200, map[string]any{"id": "r1", "title": "Login", "status": "draft"})
	})
	a := newTestAPI(t, fb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := a.Requirements.WaitGenerated(ctx, "r1", poll.Config{Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "Login", req.Title)
}

func TestDevelopments_WaitSettled(t *testing.T) {
	fb := newFakeBackend(t)
	statuses := []string{"designing", "coding", "testing", "review"}
	var mu sync.Mutex
	i := 0
	fb.handle("GET /api/developments/d1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		s := statuses[min(i, len(statuses)-1)]
		i++
		mu.Unlock()
		writeJSON(w, 200, map[string]any{"id": "d1", "status": s})
	})
	a := newTestAPI(t, fb)

	var seen []DevelopmentStatus
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dev, err := a.Developments.WaitSettled(ctx, "d1", poll.Config{Interval: 2 * time.Millisecond},
		func(d Development) { seen = append(seen, d.Status) })
	require.NoError(t, err)
	assert.Equal(t, DevelopmentReview, dev.Status)
	assert.Equal(t, []DevelopmentStatus{"designing", "coding", "testing", "review"}, seen)
}

func TestDevelopments_ListStatus(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("GET /api/developments/", 200, []map[string]any{{"id": "d1", "status": "merged"}})
	a := newTestAPI(t, fb)

	devs, err := a.Developments.List(context.Background(), "", DevelopmentMerged)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	req, _ := fb.last()
	assert.Equal(t, "merged", req.URL.Query().Get("status"))
	assert.Equal(t, "default", req.URL.Query().Get("project_id"))
}

func TestSync_Now(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("POST /api/polling/sync", 200, map[string]any{"message": "Sync completed", "source_id": nil})
	a := newTestAPI(t, fb)

	resp, err := a.Sync.Now(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, resp.SourceID)
	_, body := fb.last()
	assert.Contains(t, body, "source_id")
	assert.Nil(t, body["source_id"])
}

func TestSync_StatusDecodesPoller(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply("GET /api/polling/status", 200, map[string]any{
		"chatwork_configured": true,
		"polling": map[string]any{
			"is_running": true, "interval_seconds": 60,
			"last_poll_at": "2025-01-10T12:00:00.123456", "poll_count": 4,
		},
	})
	a := newTestAPI(t, fb)

	st, err := a.Sync.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.ChatworkConfigured)
	assert.Equal(t, 60, st.Polling.IntervalSeconds)
	require.NotNil(t, st.Polling.LastPollAt)
	assert.Equal(t, 2025, st.Polling.LastPollAt.Year())
}
