package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/db"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/llm"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/models"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/provider"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/threads"
	"go.uber.org/zap"
)

// SSE event names written by HandleMessage.
const (
	EventChatStream = "chat-stream"
	EventMessage    = "message"
	EventError      = "error"
)

// Defaults fill in what a message request leaves out.
type Defaults struct {
	Provider provider.Name
	Models   map[provider.Name]string
}

type Handler struct {
	db       *db.Database
	threads  *threads.Manager
	session  *threads.Session
	llm      *llm.Service
	defaults Defaults
	logger   *zap.Logger
}

func NewHandler(database *db.Database, manager *threads.Manager, session *threads.Session, llmService *llm.Service, defaults Defaults, logger *zap.Logger) *Handler {
	return &Handler{
		db:       database,
		threads:  manager,
		session:  session,
		llm:      llmService,
		defaults: defaults,
		logger:   logger,
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/message", h.HandleMessage)
	mux.HandleFunc("/api/threads", h.Threads)
	mux.HandleFunc("/api/threads/get", h.GetThread)
	mux.HandleFunc("/api/threads/update", h.UpdateThread)
	mux.HandleFunc("/api/threads/delete", h.DeleteThread)
	mux.HandleFunc("/api/threads/switch", h.SwitchThread)
	mux.HandleFunc("/api/threads/current", h.CurrentThread)
	mux.HandleFunc("/api/messages", h.GetMessages)
	mux.HandleFunc("/api/messages/delete", h.DeleteMessage)
	mux.HandleFunc("/api/validate-key", h.ValidateKey)
	mux.HandleFunc("/api/models", h.Models)
}

type MessageRequest struct {
	Content   string         `json:"content"`
	Images    []models.Image `json:"images"`
	Provider  string         `json:"provider"`
	APIKey    string         `json:"api_key"`
	Model     string         `json:"model"`
	MaxTokens *int           `json:"max_tokens"`
	// Stream defaults to true.
	Stream *bool `json:"stream"`
}

type ThreadRequest struct {
	Name string `json:"name"`
}

type ValidateKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

type CurrentThreadResponse struct {
	ThreadID *string `json:"threadId"`
}

type ModelsResponse struct {
	Provider     provider.Name `json:"provider"`
	Models       []string      `json:"models"`
	DefaultModel string        `json:"defaultModel"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var notFound *provider.ModelNotFoundError
	switch {
	case errors.Is(err, provider.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrThreadNotFound), errors.Is(err, db.ErrMessageNotFound), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	}

	var apiErr *provider.APIError
	var reqErr *provider.RequestError
	var jsonErr *provider.JSONError
	if errors.As(err, &apiErr) || errors.As(err, &reqErr) || errors.As(err, &jsonErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
	} else {
		h.logger.Debug("Request rejected",
			zap.Error(err),
			zap.Int("status", status),
			zap.String("path", r.URL.Path))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// resolveProvider returns the named provider or the configured default.
func (h *Handler) resolveProvider(name string) (provider.Name, error) {
	if name == "" {
		return h.defaults.Provider, nil
	}
	return provider.ParseName(name)
}

// HandleMessage runs a chat turn and streams it back as server-sent events:
// one chat-stream event per stream event, then the stored reply as a message
// event, or an error event. Failures before the first event are answered
// with a plain JSON error and a matching status instead.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "Invalid request body")
		return
	}
	if req.Content == "" && len(req.Images) == 0 {
		h.badRequest(w, "content or images required")
		return
	}

	name, err := h.resolveProvider(req.Provider)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		threadID, err = h.threads.EnsureThread(h.session)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	model := req.Model
	if model == "" {
		model = h.defaults.Models[name]
	}
	stream := req.Stream == nil || *req.Stream

	started := false
	send := func(event sse.Event) error {
		if !started {
			started = true
			w.Header().Set("Content-Type", sse.ContentType)
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
		}
		if err := sse.Encode(w, event); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	reply, err := h.llm.SendMessage(r.Context(), llm.SendRequest{
		ThreadID:  threadID,
		Content:   req.Content,
		Images:    req.Images,
		Provider:  name,
		APIKey:    req.APIKey,
		Model:     model,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}, func(event provider.StreamEvent) error {
		return send(sse.Event{Event: EventChatStream, Data: event})
	})

	if err != nil {
		if !started {
			h.writeError(w, r, err)
			return
		}
		h.logger.Warn("Chat stream failed", zap.Error(err), zap.String("thread_id", threadID))
		if sendErr := send(sse.Event{Event: EventError, Data: errorResponse{Error: err.Error()}}); sendErr != nil {
			h.logger.Debug("Failed to send error event", zap.Error(sendErr))
		}
		return
	}

	if err := send(sse.Event{Event: EventMessage, Data: reply}); err != nil {
		h.logger.Debug("Failed to send message event", zap.Error(err))
	}
}

// Threads lists threads on GET and creates one on POST.
func (h *Handler) Threads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.threads.ListThreads()
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		h.logger.Debug("Retrieved threads",
			zap.Int("count", len(list)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		h.writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var req ThreadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.badRequest(w, "Invalid request body")
			return
		}
		if req.Name == "" {
			req.Name = threads.DefaultThreadName
		}

		thread, err := h.threads.CreateThread(h.session, req.Name)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, thread)

	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) threadID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("thread_id")
	if id == "" {
		h.badRequest(w, "thread_id is required")
		return "", false
	}
	return id, true
}

func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, ok := h.threadID(w, r)
	if !ok {
		return
	}

	thread, err := h.threads.GetThread(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, thread)
}

func (h *Handler) UpdateThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	id, ok := h.threadID(w, r)
	if !ok {
		return
	}

	var req ThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		h.badRequest(w, "Invalid request body")
		return
	}

	if err := h.threads.UpdateThreadName(id, req.Name); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id, ok := h.threadID(w, r)
	if !ok {
		return
	}

	if err := h.threads.DeleteThread(h.session, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) SwitchThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, ok := h.threadID(w, r)
	if !ok {
		return
	}

	if err := h.threads.SwitchThread(h.session, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CurrentThreadResponse{ThreadID: &id})
}

func (h *Handler) CurrentThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	var resp CurrentThreadResponse
	if id, ok := h.session.Current(); ok {
		resp.ThreadID = &id
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, ok := h.threadID(w, r)
	if !ok {
		return
	}

	if _, err := h.threads.GetThread(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	messages, err := h.db.GetMessages(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id := r.URL.Query().Get("message_id")
	if id == "" {
		h.badRequest(w, "message_id is required")
		return
	}

	if err := h.db.DeleteMessage(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req ValidateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		h.badRequest(w, "Invalid request body")
		return
	}
	name, err := h.resolveProvider(req.Provider)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.llm.ValidateAPIKey(r.Context(), name, req.APIKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	name, err := h.resolveProvider(r.URL.Query().Get("provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	list, err := h.llm.AvailableModels(name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defaultModel := h.defaults.Models[name]
	if defaultModel == "" {
		defaultModel = list[0]
	}
	h.writeJSON(w, http.StatusOK, ModelsResponse{Provider: name, Models: list, DefaultModel: defaultModel})
}
