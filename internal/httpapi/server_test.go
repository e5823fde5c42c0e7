package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/knowme/internal/agent"
	"github.com/ilkoid/knowme/pkg/chain"
	"github.com/ilkoid/knowme/pkg/documents"
	"github.com/ilkoid/knowme/pkg/events"
	"github.com/ilkoid/knowme/pkg/llm"
)

type fakeChat struct {
	mu      sync.Mutex
	seen    []agent.Request
	err     error
	cleared []string
}

func (f *fakeChat) Chat(ctx context.Context, req agent.Request) (agent.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req)

	if req.Events != nil {
		req.Events.Emit(ctx, events.Event{
			Type: events.EventToolCall,
			Data: events.ToolCallData{Round: 1, Tool: "get_weather", Args: map[string]any{"location": "Paris"}},
		})
	}

	if strings.TrimSpace(req.Message) == "" {
		return agent.Result{}, agent.ErrEmptyMessage
	}
	if f.err != nil {
		return agent.Result{}, f.err
	}

	sid := req.SessionID
	if sid == "" {
		sid = fmt.Sprintf("generated-%d", len(f.seen))
	}
	return agent.Result{
		Text:      "echo: " + req.Message,
		ToolCalls: []chain.AuditEntry{},
		SessionID: sid,
		Usage:     llm.Usage{TotalTokens: 7},
	}, nil
}

func (f *fakeChat) ClearSession(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return nil
}

type fakeDocs struct {
	names    []string
	listErr  error
	lastUser string
}

func (f *fakeDocs) List(_ context.Context, userID string) ([]string, error) {
	f.lastUser = userID
	return f.names, f.listErr
}

func (f *fakeDocs) Delete(_ context.Context, name, userID string) (string, int, error) {
	f.lastUser = userID
	clean, err := documents.NormalizeName(name)
	if err != nil {
		return "", 0, err
	}
	switch clean {
	case "go.pdf":
		return clean, 3, nil
	case "broken.pdf":
		return clean, 0, errors.New("qdrant down")
	default:
		return clean, 0, fmt.Errorf("%w: %s", documents.ErrNotFound, clean)
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func TestRootAndHealth(t *testing.T) {
	h := NewHandler(&fakeChat{}, &fakeDocs{},
		HealthCheck{Name: "cache", Ping: func(context.Context) error { return nil }},
		HealthCheck{Name: "vector_index", Ping: func(context.Context) error { return errors.New("down") }},
	)

	rr, body := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, serviceName, body["message"])

	rr, body = do(t, h, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{
		"api":          "operational",
		"cache":        "operational",
		"vector_index": "unavailable",
	}, body["services"])
}

func TestChat_Success(t *testing.T) {
	chat := &fakeChat{}
	h := NewHandler(chat, nil)

	rr, body := do(t, h, http.MethodPost, "/v1/chat", `{"message":"hi","session_id":" s1 ","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "echo: hi", body["text"])
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, []any{}, body["tool_calls"])
	assert.Equal(t, map[string]any{"total_tokens": 7.0, "embedding_tokens": 0.0}, body["usage"])

	assert.Equal(t, agent.Request{Message: "hi", SessionID: "s1", UserID: "u1"}, chat.seen[0])
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		chatErr   error
		wantCode  int
		wantError string
	}{
		{"invalid json", `{"message":`, nil, http.StatusBadRequest, ""},
		{"empty message", `{"message":"  "}`, nil, http.StatusBadRequest, agent.ErrEmptyMessage.Error()},
		{"loop failure", `{"message":"hi"}`, errors.New("gemini: 500 secret details"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeChat{err: tt.chatErr}, nil)
			rr, body := do(t, h, http.MethodPost, "/v1/chat", tt.body)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, "/v1/chat", body["path"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			}
			assert.NotContains(t, rr.Body.String(), "secret details")
		})
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakeChat{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestCORS(t *testing.T) {
	h := NewHandler(&fakeChat{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	rr, _ = do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestClearSession(t *testing.T) {
	chat := &fakeChat{}
	h := NewHandler(chat, nil)

	rr, body := do(t, h, http.MethodDelete, "/v1/sessions/abc", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["cleared"])
	assert.Equal(t, []string{"abc"}, chat.cleared)
}

func TestPDFs_List(t *testing.T) {
	docs := &fakeDocs{names: []string{"a.pdf", "b.pdf"}}
	h := NewHandler(&fakeChat{}, docs)

	rr, body := do(t, h, http.MethodGet, "/v1/pdfs?user_id=u7", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"a.pdf", "b.pdf"}, body["pdfs"])
	assert.Equal(t, "u7", docs.lastUser)

	_, _ = do(t, h, http.MethodGet, "/v1/pdfs", "")
	assert.Equal(t, "anonymous", docs.lastUser)

	docs.listErr = errors.New("boom")
	rr, body = do(t, h, http.MethodGet, "/v1/pdfs", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 500.0, body["status_code"])
}

func TestPDFs_Delete(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantField string
		wantValue string
	}{
		{"deleted", "/v1/pdfs/go.pdf?user_id=u1", http.StatusOK, "message", "Successfully deleted all chunks for PDF 'go.pdf'"},
		{"not found", "/v1/pdfs/other.pdf", http.StatusNotFound, "error", "No PDF or chunks found for: other.pdf"},
		{"invalid", "/v1/pdfs/%20", http.StatusBadRequest, "error", "Invalid PDF name"},
		{"index failure", "/v1/pdfs/broken.pdf", http.StatusInternalServerError, "error", "Failed to delete PDF or chunks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeChat{}, &fakeDocs{})
			rr, body := do(t, h, http.MethodDelete, tt.target, "")
			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantValue, body[tt.wantField])
		})
	}
}

func TestPDFs_NotConfigured(t *testing.T) {
	h := NewHandler(&fakeChat{}, nil)
	rr, _ := do(t, h, http.MethodGet, "/v1/pdfs", "")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestChatWS_KeepsConnectionSession(t *testing.T) {
	chat := &fakeChat{}
	srv := httptest.NewServer(NewHandler(chat, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "one"}))
	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "echo: one", first["text"])
	sid := first["session_id"].(string)
	require.NotEmpty(t, sid)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var bad map[string]any
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Contains(t, bad["error"], "invalid json")

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "two"}))
	var second map[string]any
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, sid, second["session_id"])

	require.NoError(t, conn.WriteJSON(map[string]string{"message": ""}))
	var empty map[string]any
	require.NoError(t, conn.ReadJSON(&empty))
	assert.Equal(t, agent.ErrEmptyMessage.Error(), empty["error"])
}

func TestChatWS_StreamsEventsBeforeResult(t *testing.T) {
	srv := httptest.NewServer(NewHandler(&fakeChat{}, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"message": "weather?", "stream": true}))

	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "tool_call", event["type"])
	assert.Equal(t, "get_weather", event["data"].(map[string]any)["tool"])

	var final map[string]any
	require.NoError(t, conn.ReadJSON(&final))
	assert.Equal(t, "echo: weather?", final["text"])
}
