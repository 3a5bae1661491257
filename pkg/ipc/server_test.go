package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgrind/gitgrind/pkg/bus"
	"github.com/gitgrind/gitgrind/pkg/dedup"
	"github.com/gitgrind/gitgrind/pkg/github"
	"github.com/gitgrind/gitgrind/pkg/intercept"
	"github.com/gitgrind/gitgrind/pkg/normalize"
	"github.com/gitgrind/gitgrind/pkg/push"
	"github.com/gitgrind/gitgrind/pkg/record"
	"github.com/gitgrind/gitgrind/pkg/service"
	"github.com/gitgrind/gitgrind/pkg/storage"
)

type noopCommitter struct{}

func (noopCommitter) EnsureRepository(ctx context.Context, token string, repo github.RepoConfig) error {
	return nil
}

func (noopCommitter) Commit(ctx context.Context, token string, repo github.RepoConfig, rec *record.SubmissionRecord) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *bus.MemoryBus) {
	_, ts, b := newTestFixture(t)
	return ts, b
}

func newTestFixture(t *testing.T) (*Server, *httptest.Server, *bus.MemoryBus) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "ipc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })

	orch := push.New(noopCommitter{}, store, dedup.NewStore(0), b, nil, push.Options{})
	normalizer := normalize.New("https://practice.example.com", 0, nil)
	svc := service.New(store, nil, nil, noopCommitter{}, orch, normalizer, b, nil,
		"https://practice.example.com")

	srv := NewServer(Config{}, svc, b, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts, b
}

func postMessage(t *testing.T, ts *httptest.Server, env service.Envelope) service.Reply {
	t.Helper()
	body, err := json.Marshal(env)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/message", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply service.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return reply
}

func TestMessageEndpointRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	reply := postMessage(t, ts, service.Envelope{Type: service.TypeGetSettings})
	require.True(t, reply.OK, reply.Error)

	data, err := json.Marshal(reply.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"uploadEnabled":true`)
}

func TestMessageEndpointHandlerErrorsAreReplies(t *testing.T) {
	ts, _ := newTestServer(t)

	reply := postMessage(t, ts, service.Envelope{Type: "bogus"})
	assert.False(t, reply.OK)
	assert.NotEmpty(t, reply.Error)
}

func TestMessageEndpointMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/message", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	ts, _ := newTestServer(t)

	// Touch the message counter so the family is present.
	postMessage(t, ts, service.Envelope{Type: service.TypeGetSettings})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "gitgrind_ipc_messages_total")
}

func TestObserveFeedsInterceptionPort(t *testing.T) {
	srv, ts, _ := newTestFixture(t)

	var mu sync.Mutex
	var candidates []*intercept.Candidate
	observer := intercept.NewObserver(intercept.NewFilter(nil), func(c *intercept.Candidate) {
		mu.Lock()
		candidates = append(candidates, c)
		mu.Unlock()
	})
	srv.SetInterceptionPort(observer)

	post := func(phase, url string, body []byte) *http.Response {
		payload, err := json.Marshal(map[string]any{"phase": phase, "url": url, "body": body})
		require.NoError(t, err)
		resp, err := http.Post(ts.URL+"/api/observe", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	reqBody := []byte(`{"typed_code":"def solve(): pass","lang":"python3"}`)
	respBody := []byte(`{"status":{"description":"Accepted"}}`)
	url := "https://practice.example.com/problems/two-sum/submit/"

	assert.Equal(t, http.StatusOK, post("request", url, reqBody).StatusCode)
	assert.Equal(t, http.StatusOK, post("response", url, respBody).StatusCode)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, candidates, 1)
	assert.Equal(t, url, candidates[0].URL)
	assert.JSONEq(t, string(respBody), string(candidates[0].ResponseBody))
}

func TestObserveWithoutPortUnavailable(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/observe", "application/json",
		strings.NewReader(`{"phase":"response","url":"https://x/submit/","body":null}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPushStateStream(t *testing.T) {
	ts, b := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/push/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the subscription a moment to register before publishing.
	var got []byte
	require.Eventually(t, func() bool {
		_ = b.Publish(context.Background(), bus.SubjectPushState,
			[]byte(`{"state":"pushing","slug":"two-sum"}`))
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		got = data
		return true
	}, 3*time.Second, 50*time.Millisecond)

	var event push.StateEvent
	require.NoError(t, json.Unmarshal(got, &event))
	assert.Equal(t, push.StatePushing, event.State)
	assert.Equal(t, "two-sum", event.Slug)
}
