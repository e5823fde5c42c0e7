// Package httpapi — HTTP и WebSocket поверхность чат-сервиса.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ilkoid/knowme/internal/agent"
	"github.com/ilkoid/knowme/pkg/documents"
	"github.com/ilkoid/knowme/pkg/events"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
)

const (
	maxRequestBytes int64 = 1 << 20
	healthTimeout         = 2 * time.Second

	serviceName    = "knowme chat API"
	serviceVersion = "1.0.0"
)

// ChatService — обмены и сессии.
//
// *agent.Orchestrator реализует этот интерфейс.
type ChatService interface {
	Chat(ctx context.Context, req agent.Request) (agent.Result, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// DocumentService — загруженные документы пользователя.
//
// *documents.Service реализует этот интерфейс.
type DocumentService interface {
	List(ctx context.Context, userID string) ([]string, error)
	Delete(ctx context.Context, name, userID string) (string, int, error)
}

// HealthCheck — проверка зависимости для /v1/health.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type server struct {
	chat   ChatService
	docs   DocumentService
	checks []HealthCheck
}

// NewServer создаёт HTTP сервер. docs может быть nil.
func NewServer(addr string, chat ChatService, docs DocumentService, checks ...HealthCheck) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(chat, docs, checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewHandler возвращает корневой обработчик со всеми маршрутами.
func NewHandler(chat ChatService, docs DocumentService, checks ...HealthCheck) http.Handler {
	s := &server{chat: chat, docs: docs, checks: checks}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/chat/ws", s.handleChatWS)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleClearSession)
	mux.HandleFunc("GET /v1/pdfs", s.handleListPDFs)
	mux.HandleFunc("DELETE /v1/pdfs/{name}", s.handleDeletePDF)

	return withCORS(withRecover(mux))
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": serviceName,
		"version": serviceVersion,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	services := map[string]string{"api": "operational"}
	status := "healthy"
	for _, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			utils.Warn("Health check failed", "service", check.Name, "error", err)
			services[check.Name] = "unavailable"
			status = "degraded"
			continue
		}
		services[check.Name] = "operational"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"services": services,
	})
}

// chatRequest — тело POST /v1/chat и кадр /v1/chat/ws.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	// Stream — только для WebSocket: слать события обмена до ответа
	Stream bool `json:"stream"`
}

func (req chatRequest) toAgent() agent.Request {
	return agent.Request{
		Message:   req.Message,
		SessionID: strings.TrimSpace(req.SessionID),
		UserID:    strings.TrimSpace(req.UserID),
	}
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	result, err := s.chat.Chat(r.Context(), req.toAgent())
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeInternal(w, r, "chat failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// wsError — кадр ошибки WebSocket.
type wsError struct {
	Error string `json:"error"`
}

// handleChatWS — каждый входящий JSON кадр обрабатывается как запрос чата.
//
// Кадр без session_id продолжает сессию соединения. С "stream": true
// перед ответом приходят кадры событий {type, data, timestamp}.
func (s *server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Warn("Chat ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	var connSession string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				utils.Debug("Chat ws read ended", "error", err)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if werr := conn.WriteJSON(wsError{Error: fmt.Sprintf("invalid json: %v", err)}); werr != nil {
				return
			}
			continue
		}
		if strings.TrimSpace(req.SessionID) == "" {
			req.SessionID = connSession
		}

		result, err := s.chatWS(r.Context(), conn, req)
		var frame any = result
		switch {
		case errors.Is(err, agent.ErrEmptyMessage):
			frame = wsError{Error: err.Error()}
		case err != nil:
			frame = wsError{Error: "chat failed"}
		default:
			connSession = result.SessionID
		}

		if err := conn.WriteJSON(frame); err != nil {
			utils.Debug("Chat ws write failed", "error", err)
			return
		}
	}
}

// chatWS выполняет обмен; при req.Stream события пишутся в conn по мере поступления.
func (s *server) chatWS(ctx context.Context, conn *websocket.Conn, req chatRequest) (agent.Result, error) {
	agentReq := req.toAgent()
	if !req.Stream {
		return s.chat.Chat(ctx, agentReq)
	}

	emitter := events.NewChanEmitter(16)
	agentReq.Events = emitter

	done := make(chan struct{})
	go func() {
		defer close(done)
		writeFailed := false
		// Канал дочитывается до конца, иначе Emit заблокирует цикл
		for ev := range emitter.Subscribe().Events() {
			if writeFailed {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				utils.Debug("Chat ws event write failed", "error", err)
				writeFailed = true
			}
		}
	}()

	result, err := s.chat.Chat(ctx, agentReq)
	emitter.Close()
	<-done

	return result, err
}

func (s *server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "session id is required")
		return
	}
	if err := s.chat.ClearSession(r.Context(), id); err != nil {
		utils.Error("Failed to clear session", "session_id", id, "error", err)
		writeInternal(w, r, "failed to clear session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "session_id": id})
}

func (s *server) handleListPDFs(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		writeError(w, r, http.StatusNotImplemented, "documents are not configured")
		return
	}

	names, err := s.docs.List(r.Context(), userIDFrom(r))
	if err != nil {
		utils.Error("Failed to list documents", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list PDFs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pdfs": names})
}

func (s *server) handleDeletePDF(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		writeError(w, r, http.StatusNotImplemented, "documents are not configured")
		return
	}

	name, count, err := s.docs.Delete(r.Context(), r.PathValue("name"), userIDFrom(r))
	switch {
	case errors.Is(err, documents.ErrInvalidName):
		writeError(w, r, http.StatusBadRequest, "Invalid PDF name")
		return
	case errors.Is(err, documents.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "No PDF or chunks found for: "+name)
		return
	case err != nil:
		utils.Error("Failed to delete document", "name", name, "error", err)
		writeError(w, r, http.StatusInternalServerError, "Failed to delete PDF or chunks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        fmt.Sprintf("Successfully deleted all chunks for PDF '%s'", name),
		"deleted_chunks": count,
	})
}

// userIDFrom возвращает ?user_id= или anonymous.
func userIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("user_id")); id != "" {
		return id
	}
	return tools.AnonymousUser
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError пишет конверт ошибки {error, status_code, path}.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error":       msg,
		"status_code": status,
		"path":        r.URL.Path,
	})
}

// writeInternal пишет 500 без текста исходной ошибки.
func writeInternal(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "Internal server error",
		"message": msg,
		"path":    r.URL.Path,
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRecover превращает panic обработчика в 500.
func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				utils.Error("Handler panic", "path", r.URL.Path, "panic", fmt.Sprint(rec))
				writeInternal(w, r, "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
