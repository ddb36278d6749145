package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/aloha/pkg/a2a"
	"github.com/kadirpekel/aloha/pkg/observability"
	"github.com/kadirpekel/aloha/pkg/server"
)

type RESTConfig struct {
	Address string
}

// RESTHandler serves the protocol as HTTP+JSON. Operations follow the
// gRPC transcoding style: custom verbs ride on the path, for example
// POST /v1/message:send and POST /v1/tasks/{id}:cancel.
type RESTHandler struct {
	config     RESTConfig
	handler    *server.RequestHandler
	httpServer *http.Server
}

func NewRESTHandler(config RESTConfig, handler *server.RequestHandler) *RESTHandler {
	if config.Address == "" {
		config.Address = ":12002"
	}
	return &RESTHandler{config: config, handler: handler}
}

func (h *RESTHandler) Start() error {
	h.httpServer = &http.Server{
		Addr:    h.config.Address,
		Handler: h.Router(),
	}

	slog.Info("REST transport starting", "address", h.config.Address)

	if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("REST server failed: %w", err)
	}
	return nil
}

func (h *RESTHandler) Stop(ctx context.Context) error {
	if h.httpServer == nil {
		return nil
	}
	if err := h.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown REST server: %w", err)
	}
	return nil
}

// Router builds the chi router, exported for tests.
func (h *RESTHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/.well-known/agent-card.json", h.handleAgentCard)
	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", observability.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/message:send", h.handleSendMessage)
		r.Post("/message:stream", h.handleStreamMessage)
		// chi's {id} segment also captures the ":cancel" suffix, so a
		// single pair of routes covers both the get and the custom verb.
		r.Get("/tasks/{id}", h.handleGetTask)
		r.Post("/tasks/{id}", h.handleCancelTask)
	})

	return r
}

func (h *RESTHandler) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.handler.AgentCard())
}

func (h *RESTHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *RESTHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var params a2a.MessageSendParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	t, err := h.handler.OnSendMessage(r.Context(), params)
	if err != nil {
		h.writeHandlerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *RESTHandler) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var params a2a.MessageSendParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	events, err := h.handler.OnSendMessageStream(r.Context(), params)
	if err != nil {
		h.writeHandlerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		data, err := a2a.MarshalEvent(event)
		if err != nil {
			slog.Error("failed to marshal stream event", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *RESTHandler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	params := a2a.TaskQueryParams{ID: id}
	if raw := r.URL.Query().Get("historyLength"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid historyLength: %q", raw))
			return
		}
		params.HistoryLength = &n
	}

	t, err := h.handler.OnGetTask(r.Context(), params)
	if err != nil {
		h.writeHandlerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *RESTHandler) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The route pattern captures "ID:cancel" as one segment.
	id, ok := strings.CutSuffix(id, ":cancel")
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown task operation")
		return
	}

	t, err := h.handler.OnCancelTask(r.Context(), a2a.TaskCancelParams{ID: id})
	if err != nil {
		h.writeHandlerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

// writeHandlerError maps handler errors onto HTTP status codes.
func (h *RESTHandler) writeHandlerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, a2a.ErrTaskNotFound):
		h.writeError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, a2a.ErrTaskNotCancelable):
		h.writeError(w, http.StatusConflict, "Task cannot be canceled")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
		},
	})
}
