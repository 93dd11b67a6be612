package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gutcheck/internal/assistant"
	"gutcheck/internal/clock"
	"gutcheck/internal/dialog"
	"gutcheck/internal/insights"
	"gutcheck/internal/memory"
	"gutcheck/internal/perception"
	"gutcheck/internal/store"
	"gutcheck/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	dm     *dialog.Manager
	store  *store.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC))
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mem := memory.NewManager(memory.NewLocalStore(fake), st, fake, memory.Options{})
	ext := perception.NewExtractor(fake, mem)
	gate, err := perception.NewGate(nil, perception.GateConfig{})
	require.NoError(t, err)
	ob := assistant.NewOutbox(nil)
	dm := dialog.NewManager(mem, ext, ob, dialog.StaticLogThreshold(0.55), dialog.Config{})

	a, err := assistant.New(assistant.Deps{
		Pipeline: perception.NewPipeline(ext, gate, mem),
		Dialog:   dm,
		Memory:   mem,
		Store:    st,
		Outbox:   ob,
		Insights: insights.NewService(st, fake),
	}, assistant.Options{})
	require.NoError(t, err)

	h := NewHandler(a, perception.NewPipeline(ext, gate, nil), dm, time.UTC)
	return &testServer{router: NewRouter(gin.TestMode, h), dm: dm, store: st}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestMessage_LogsEntry(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/messages", MessageRequest{UserID: "u1", MessageID: "m1", Text: "ate pizza for dinner"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp assistant.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Logged, 1)
	assert.True(t, resp.Logged[0].Success)
	assert.Equal(t, types.IntentFood, resp.Logged[0].Parse.Intent)
	require.NotEmpty(t, resp.Replies)
	assert.Equal(t, assistant.KindAck, resp.Replies[len(resp.Replies)-1].Kind)

	rows, err := s.store.Query(context.Background(), "u1", store.Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMessage_Validation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "user_id is required")

	long := MessageRequest{UserID: "u1", Text: string(bytes.Repeat([]byte("a"), MaxTextLength+1))}
	w = s.do(t, http.MethodPost, "/v1/messages", long)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUnderstand_IsStateless(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/understand", UnderstandRequest{UserID: "u1", Text: "stomach hurts"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out UnderstandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, types.IntentSymptom, out.Parse.Intent)
	require.NotNil(t, out.Clarification)
	assert.Equal(t, dialog.TypeMissingSlot, out.Clarification.Type)

	assert.False(t, s.dm.Active(context.Background(), "u1"), "parsing does not open a dialog")
	rows, err := s.store.Query(context.Background(), "u1", store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUnderstand_ForcedIntent(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/understand", UnderstandRequest{Text: "toast", Intent: "food"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out UnderstandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, types.IntentFood, out.Parse.Intent)

	w = s.do(t, http.MethodPost, "/v1/understand", UnderstandRequest{Text: "toast", Intent: "breakfast"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutbox_Drains(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.dm.StartPostMealCheck(context.Background(), dialog.Message{UserID: "u1", Channel: "reminder"}, "pizza"))

	w := s.do(t, http.MethodGet, "/v1/users/u1/outbox", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Replies []assistant.Reply `json:"replies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Replies, 1)
	assert.Equal(t, assistant.KindQuestion, out.Replies[0].Kind)

	w = s.do(t, http.MethodGet, "/v1/users/u1/outbox", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Empty(t, out.Replies)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
