// Package testutil provides an httptest stand-in for the streaming platform
// (watch pages, channel live pages and the live chat continuation endpoint).
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Token values embedded by WatchPage.
const (
	APIKey        = "test-api-key"
	Continuation  = "cont-0"
	ClientName    = "WEB"
	ClientVersion = "2.20240101.00.00"
)

// MockYouTubeServer serves scripted pages and chat responses.
type MockYouTubeServer struct {
	*httptest.Server

	mu        sync.Mutex
	pages     map[string]string
	chat      []string
	chatCode  int
	chatCalls int
	requests  []ChatRequest
	agents    []string
}

// ChatRequest is one recorded continuation request.
type ChatRequest struct {
	Key  string
	Body struct {
		Context struct {
			Client struct {
				ClientName    string `json:"clientName"`
				ClientVersion string `json:"clientVersion"`
			} `json:"client"`
		} `json:"context"`
		Continuation string `json:"continuation"`
	}
}

// NewMockYouTubeServer creates a new mock platform server closed on test cleanup.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		pages:    make(map[string]string),
		chatCode: http.StatusOK,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

func (m *MockYouTubeServer) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.agents = append(m.agents, r.Header.Get("User-Agent"))
	m.mu.Unlock()

	if r.Method == http.MethodPost && r.URL.Path == "/youtubei/v1/live_chat/get_live_chat" {
		m.serveChat(w, r)
		return
	}
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	m.mu.Lock()
	page, ok := m.pages[key]
	m.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, page) //nolint:errcheck // test mock response
}

func (m *MockYouTubeServer) serveChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	req.Key = r.URL.Query().Get("key")
	_ = json.NewDecoder(r.Body).Decode(&req.Body) //nolint:errcheck // recorded as-is

	m.mu.Lock()
	m.chatCalls++
	m.requests = append(m.requests, req)
	code := m.chatCode
	body := ChatResponse("")
	if len(m.chat) > 0 {
		body = m.chat[0]
		m.chat = m.chat[1:]
	}
	m.mu.Unlock()

	if code != http.StatusOK {
		w.WriteHeader(code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body) //nolint:errcheck // test mock response
}

// SetWatchPage serves body at /watch?v=liveID.
func (m *MockYouTubeServer) SetWatchPage(liveID, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages["/watch?v="+liveID] = body
}

// SetChannelPage serves body at /channel/channelID/live.
func (m *MockYouTubeServer) SetChannelPage(channelID, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages["/channel/"+channelID+"/live"] = body
}

// QueueChat appends continuation responses served in order. Once the queue
// is drained every poll gets an empty batch.
func (m *MockYouTubeServer) QueueChat(bodies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat = append(m.chat, bodies...)
}

// SetChatStatus makes the chat endpoint answer with code (200 restores normal responses).
func (m *MockYouTubeServer) SetChatStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatCode = code
}

// ChatCalls returns the number of continuation requests received.
func (m *MockYouTubeServer) ChatCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCalls
}

// ChatRequests returns a copy of the recorded continuation requests.
func (m *MockYouTubeServer) ChatRequests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// UserAgents returns the User-Agent header of every request received.
func (m *MockYouTubeServer) UserAgents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.agents...)
}

// WatchPage renders a minimal watch page embedding the session tokens.
func WatchPage() string {
	return fmt.Sprintf(`<html><script>var ytcfg={"INNERTUBE_API_KEY":"%s","INNERTUBE_CONTEXT":{"client":{"clientName":"%s","clientVersion":"%s"}}};`+
		`var ytInitialData={"contents":{"liveChatRenderer":{"continuations":[{"reloadContinuationData":{"continuation":"%s"}}]}}};</script></html>`,
		APIKey, ClientName, ClientVersion, Continuation)
}

// ChannelLivePage renders a channel /live page that points at liveID and carries the session tokens.
func ChannelLivePage(liveID string) string {
	return fmt.Sprintf(`<html><script>{"playabilityStatus":{"liveStreamability":{"liveStreamabilityRenderer":{"videoId":"%s","pollDelayMs":"15000"}}}}</script>%s</html>`,
		liveID, WatchPage())
}

// OfflinePage renders a page carrying the offline marker.
func OfflinePage() string {
	return `<html><script>{"status":"LIVE_STREAM_OFFLINE","reason":"This live event will begin in a few moments."}</script></html>`
}

// TextAction builds an addChatItemAction carrying a text message.
func TextAction(id, author, text string, ts time.Time) map[string]any {
	return map[string]any{
		"addChatItemAction": map[string]any{
			"item": map[string]any{
				"liveChatTextMessageRenderer": map[string]any{
					"id":                      id,
					"timestampUsec":           strconv.FormatInt(ts.UnixMicro(), 10),
					"authorExternalChannelId": "UC-" + author,
					"authorName":              map[string]any{"simpleText": author},
					"message":                 map[string]any{"runs": []map[string]any{{"text": text}}},
				},
			},
			"clientId": "client-" + id,
		},
	}
}

// HousekeepingAction is the trailing non-comment action the server appends to every batch.
func HousekeepingAction() map[string]any {
	return map[string]any{
		"addLiveChatTickerItemAction": map[string]any{"durationSec": "300"},
	}
}

// ChatResponse renders a continuation response. The housekeeping trailer is
// appended automatically. An empty next omits the continuation list.
func ChatResponse(next string, actions ...map[string]any) string {
	batch := append(append([]map[string]any{}, actions...), HousekeepingAction())
	cont := map[string]any{"actions": batch}
	if next != "" {
		cont["continuations"] = []map[string]any{
			{"invalidationContinuationData": map[string]any{"continuation": next, "timeoutMs": 10000}},
		}
	}
	b, _ := json.Marshal(map[string]any{ //nolint:errcheck // static shapes
		"continuationContents": map[string]any{"liveChatContinuation": cont},
	})
	return string(b)
}

// EndResponse renders the end-of-stream sentinel.
func EndResponse() string {
	return `{"continuationContents":{"messageRenderer":{"text":{"runs":[{"text":"This live stream recording is not available."}]}}}}`
}
