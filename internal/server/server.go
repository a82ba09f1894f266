// Package server exposes the chat backend over HTTP.
//
// Endpoints:
//   - POST /v1/chats               - Create a chat
//   - GET  /v1/chats               - List chats
//   - GET  /v1/chats/{id}/messages - List a chat's messages
//   - POST /v1/chats/{id}/stream   - Send a message and stream the reply (NDJSON)
//   - GET  /v1/models              - List selectable models
//   - GET  /health                 - Health check
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatstream/internal/catalog"
	"chatstream/internal/relay"
	"chatstream/internal/store"
)

// maxRequestBodySize caps request bodies to prevent unbounded reads (1 MB).
const maxRequestBodySize = 1 * 1024 * 1024

// Server wires the HTTP layer to the relay and the store.
type Server struct {
	store          *store.Store
	relay          *relay.Relay
	defaultModel   string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// New creates a server. An empty defaultModel falls back to the catalog
// default; a zero requestTimeout disables the per-stream deadline; a nil
// logger falls back to slog.Default().
func New(chatStore *store.Store, streamRelay *relay.Relay, defaultModel string, requestTimeout time.Duration, logger *slog.Logger) *Server {
	if defaultModel == "" {
		defaultModel = catalog.Default().ID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:          chatStore,
		relay:          streamRelay,
		defaultModel:   defaultModel,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// Handler returns the routed handler with request logging applied.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chats", server.handleCreateChat)
	mux.HandleFunc("GET /v1/chats", server.handleListChats)
	mux.HandleFunc("GET /v1/chats/{id}/messages", server.handleListMessages)
	mux.HandleFunc("POST /v1/chats/{id}/stream", server.handleStream)
	mux.HandleFunc("GET /v1/models", server.handleListModels)
	mux.HandleFunc("GET /health", server.handleHealth)
	return server.withRequestLogging(mux)
}

type createChatRequest struct {
	Title      string `json:"title"`
	Visibility string `json:"visibility"`
}

func (server *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var body createChatRequest
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chat, err := server.store.CreateChat(r.Context(), body.Title, body.Visibility)
	if err != nil {
		server.logger.Error("failed to create chat", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (server *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := server.store.ListChats(r.Context())
	if err != nil {
		server.logger.Error("failed to list chats", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (server *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if _, err := server.store.GetChat(r.Context(), chatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		server.logger.Error("failed to load chat", "chat_id", chatID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}

	messages, err := server.store.ListMessages(r.Context(), chatID)
	if err != nil {
		server.logger.Error("failed to list messages", "chat_id", chatID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (server *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Available())
}

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type streamRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// handleStream validates the request, then hands the open response writer to
// the relay. Everything that can be rejected is rejected before the first
// chunk is written; after that, failures are either reported in-band by the
// relay or only logged.
func (server *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if _, err := server.store.GetChat(r.Context(), chatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		server.logger.Error("failed to load chat", "chat_id", chatID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}

	var body streamRequest
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(body.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	modelID := body.Model
	if modelID == "" {
		modelID = server.defaultModel
	}
	if _, err := catalog.Resolve(modelID); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown model %q", modelID))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")

	ctx := r.Context()
	if server.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, server.requestTimeout)
		defer cancel()
	}

	counting := &countingResponseWriter{ResponseWriter: w}
	if err := server.relay.Stream(ctx, chatID, message, modelID, counting); err != nil {
		if counting.wrote == 0 {
			// Nothing streamed yet: surface as a normal error response.
			server.logger.Error("chat stream failed before first chunk", "chat_id", chatID, "error", err.Error())
			writeError(w, http.StatusInternalServerError, "failed to stream response")
			return
		}
		// Chunks already on the wire; nothing left to do but record it.
		server.logger.Error("chat stream ended with error", "chat_id", chatID, "error", err.Error())
	}
}

// countingResponseWriter tracks whether any body bytes were written, so the
// stream handler knows whether an error can still become a status code.
type countingResponseWriter struct {
	http.ResponseWriter
	wrote int
}

func (w *countingResponseWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.wrote += n
	return n, err
}

func (w *countingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
