package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/livechat-tender/chat"
	"github.com/onnwee/livechat-tender/db"
	"github.com/onnwee/livechat-tender/livechat"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fakeArchive struct {
	gotID    string
	gotSince time.Time
	gotLimit int
	comments []db.CommentRow
	sessions []db.SessionRow
	err      error
}

func (f *fakeArchive) ListComments(_ context.Context, id string, since time.Time, limit int) ([]db.CommentRow, error) {
	f.gotID, f.gotSince, f.gotLimit = id, since, limit
	return f.comments, f.err
}

func (f *fakeArchive) ListSessions(_ context.Context, limit int) ([]db.SessionRow, error) {
	f.gotLimit = limit
	return f.sessions, f.err
}

type fakeWatcher struct {
	mu    sync.Mutex
	added []chat.Target
}

func (f *fakeWatcher) Add(t chat.Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.added {
		if a == t {
			return chat.ErrDuplicateTarget
		}
	}
	f.added = append(f.added, t)
	return nil
}

func (f *fakeWatcher) Statuses() []chat.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Status, 0, len(f.added))
	for _, t := range f.added {
		out = append(out, chat.Status{Target: t.String(), State: chat.StateWaiting})
	}
	return out
}

func newTestRouter(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRouter(ctx, deps)
}

func do(h http.Handler, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndCorrelation(t *testing.T) {
	h := newTestRouter(t, Deps{})
	rec := do(h, http.MethodGet, "/healthz", "", map[string]string{"X-Correlation-ID": "corr-1"})
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-1" {
		t.Errorf("X-Correlation-ID = %q, want corr-1", got)
	}

	rec = do(h, http.MethodGet, "/healthz", "", nil)
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("no correlation id generated")
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
		want int
		fail string
	}{
		{"no database", Deps{Watcher: &fakeWatcher{}}, http.StatusServiceUnavailable, "database"},
		{"database down", Deps{DB: fakePinger{err: errors.New("down")}, Watcher: &fakeWatcher{}}, http.StatusServiceUnavailable, "database"},
		{"no recorders", Deps{DB: fakePinger{}}, http.StatusServiceUnavailable, "recorders"},
		{"ready", Deps{DB: fakePinger{}, Watcher: &fakeWatcher{}}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestRouter(t, tt.deps), http.MethodGet, "/readyz", "", nil)
			if rec.Code != tt.want {
				t.Fatalf("readyz = %d, want %d", rec.Code, tt.want)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["failed_check"] != tt.fail {
				t.Errorf("failed_check = %q, want %q", body["failed_check"], tt.fail)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestRouter(t, Deps{}), http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestCommentsEndpoint(t *testing.T) {
	ts := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)
	arch := &fakeArchive{comments: []db.CommentRow{{CommentID: "c1", BroadcastID: "abc123", Timestamp: ts}}}
	h := newTestRouter(t, Deps{Archive: arch})

	rec := do(h, http.MethodGet, "/broadcasts/abc123/comments?since=2024-10-15T14:00:00Z&limit=5000", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("comments = %d %s", rec.Code, rec.Body.String())
	}
	if arch.gotID != "abc123" || arch.gotLimit != db.MaxListLimit {
		t.Errorf("query id=%q limit=%d", arch.gotID, arch.gotLimit)
	}
	if want := time.Date(2024, 10, 15, 14, 0, 0, 0, time.UTC); !arch.gotSince.Equal(want) {
		t.Errorf("since = %v, want %v", arch.gotSince, want)
	}
	var rows []db.CommentRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil || len(rows) != 1 || rows[0].CommentID != "c1" {
		t.Errorf("rows = %+v err = %v", rows, err)
	}

	rec = do(h, http.MethodGet, "/broadcasts/abc123/comments?since=1729000800000", "", nil)
	if rec.Code != http.StatusOK || !arch.gotSince.Equal(time.UnixMilli(1729000800000)) {
		t.Errorf("unix ms since: code %d since %v", rec.Code, arch.gotSince)
	}

	rec = do(h, http.MethodGet, "/broadcasts/abc123/comments?since=yesterday", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since = %d, want 400", rec.Code)
	}
}

func TestCommentsEmptyIsArray(t *testing.T) {
	rec := do(newTestRouter(t, Deps{Archive: &fakeArchive{}}), http.MethodGet, "/broadcasts/x/comments", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}

func TestSessionsEndpoint(t *testing.T) {
	arch := &fakeArchive{sessions: []db.SessionRow{{ID: "s1", BroadcastID: "abc123"}}}
	h := newTestRouter(t, Deps{Archive: arch})
	rec := do(h, http.MethodGet, "/sessions?limit=3", "", nil)
	if rec.Code != http.StatusOK || arch.gotLimit != 3 {
		t.Fatalf("sessions = %d limit %d", rec.Code, arch.gotLimit)
	}

	arch.err = errors.New("db gone")
	rec = do(h, http.MethodGet, "/sessions", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("sessions on error = %d, want 500", rec.Code)
	}
}

func TestArchiveMissing(t *testing.T) {
	h := newTestRouter(t, Deps{})
	for _, p := range []string{"/sessions", "/broadcasts/x/comments", "/status", "/broadcasts/x/stream"} {
		if rec := do(h, http.MethodGet, p, "", nil); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s = %d, want 503", p, rec.Code)
		}
	}
}

func TestAdminWatch(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	w := &fakeWatcher{}
	h := newTestRouter(t, Deps{Watcher: w, AdminToken: "s3cret"})
	auth := map[string]string{"X-Admin-Token": "s3cret"}

	if rec := do(h, http.MethodPost, "/admin/watch", `{"channel_id":"UC1"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/admin/watch", `{"channel_id":"UC1"}`, map[string]string{"X-Admin-Token": "nope"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/admin/watch", `{"channel_id":"UC1"}`, auth); rec.Code != http.StatusAccepted {
		t.Errorf("add = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	bearer := map[string]string{"Authorization": "Bearer s3cret"}
	if rec := do(h, http.MethodPost, "/admin/watch", `{"channel_id":"UC1"}`, bearer); rec.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/admin/watch", `{"channel_id":"UC1","live_id":"v"}`, auth); rec.Code != http.StatusBadRequest {
		t.Errorf("both ids = %d, want 400", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/admin/watch", `not json`, auth); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}

	rec := do(h, http.MethodGet, "/status", "", nil)
	var body struct {
		Targets []chat.Status `json:"targets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(body.Targets) != 1 || body.Targets[0].Target != "channel:UC1" {
		t.Errorf("status targets = %+v", body.Targets)
	}
}

func TestAdminRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "1")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "2")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "60")
	h := newTestRouter(t, Deps{Watcher: &fakeWatcher{}})

	codes := make([]int, 0, 3)
	for _, id := range []string{"UC1", "UC2", "UC3"} {
		rec := do(h, http.MethodPost, "/admin/watch", `{"channel_id":"`+id+`"}`, nil)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [202 202 429]", codes)
	}

	// a different client has its own bucket
	rec := do(h, http.MethodPost, "/admin/watch", `{"channel_id":"UC4"}`, map[string]string{"X-Forwarded-For": "203.0.113.9"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("other client = %d, want 202", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("CORS_PERMISSIVE", "")
	rec := do(newTestRouter(t, Deps{}), http.MethodOptions, "/sessions", "", map[string]string{"Origin": "http://localhost:5173"})
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://app.example.com", "*.example.org"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://evil.com", false},
		{"https://sub.example.org", true},
		{"https://example.org", true},
		{"https://example.org.evil.com", false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	if got := clientIP(r); got != "192.0.2.1" {
		t.Errorf("clientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := clientIP(r); got != "198.51.100.7" {
		t.Errorf("clientIP forwarded = %q", got)
	}
}

func TestStreamDeliversComments(t *testing.T) {
	hub := NewHub(8)
	srv := httptest.NewServer(newTestRouter(t, Deps{Hub: hub}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/broadcasts/abc123/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers("abc123") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast("abc123", livechat.Comment{ID: "c1", Message: []livechat.MessagePart{{Text: "hello"}}})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) != 3 || lines[0] != "id: c1" || lines[1] != "event: comment" || !strings.HasPrefix(lines[2], "data: ") {
		t.Fatalf("event lines = %q", lines)
	}
	var c livechat.Comment
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &c); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if c.Text() != "hello" {
		t.Errorf("comment text = %q", c.Text())
	}
}
