// Package transport exposes the request handler over three wire
// protocols: gRPC, JSON-RPC 2.0 over HTTP, and HTTP+JSON/REST. Each
// adapter is a thin codec; task semantics live in pkg/server.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kadirpekel/aloha/pkg/a2a"
	"github.com/kadirpekel/aloha/pkg/server"
)

type JSONRPCConfig struct {
	Address string
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC 2.0 error codes plus the protocol-specific range.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	TaskNotFoundError      = -32001
	TaskNotCancelableError = -32002
)

// JSONRPCHandler serves the protocol as JSON-RPC 2.0 on a single
// endpoint. message/stream responds with an SSE stream whose frames
// are full JSON-RPC response envelopes echoing the request id.
type JSONRPCHandler struct {
	config     JSONRPCConfig
	handler    *server.RequestHandler
	httpServer *http.Server
}

func NewJSONRPCHandler(config JSONRPCConfig, handler *server.RequestHandler) *JSONRPCHandler {
	if config.Address == "" {
		config.Address = ":12001"
	}
	return &JSONRPCHandler{config: config, handler: handler}
}

func (h *JSONRPCHandler) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleRoot)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	h.httpServer = &http.Server{
		Addr:    h.config.Address,
		Handler: metricsMiddleware(mux),
	}

	slog.Info("JSON-RPC transport starting", "address", h.config.Address)

	if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("JSON-RPC server failed: %w", err)
	}
	return nil
}

func (h *JSONRPCHandler) Stop(ctx context.Context) error {
	if h.httpServer == nil {
		return nil
	}
	if err := h.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown JSON-RPC server: %w", err)
	}
	return nil
}

// Handler returns the root handler, for tests and embedding.
func (h *JSONRPCHandler) Handler() http.Handler {
	return http.HandlerFunc(h.handleRoot)
}

func (h *JSONRPCHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.sendError(w, nil, ParseError, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var rpcReq JSONRPCRequest
	if err := json.Unmarshal(body, &rpcReq); err != nil {
		h.sendError(w, nil, ParseError, "Invalid JSON")
		return
	}
	if rpcReq.JSONRPC != "2.0" {
		h.sendError(w, rpcReq.ID, InvalidRequest, "Invalid JSON-RPC version")
		return
	}

	slog.Debug("JSON-RPC request", "method", rpcReq.Method, "id", rpcReq.ID)

	if rpcReq.Method == "message/stream" {
		h.handleStream(w, r, rpcReq)
		return
	}

	result, rpcErr := h.dispatch(r.Context(), rpcReq.Method, rpcReq.Params)
	if rpcErr != nil {
		h.sendErrorObj(w, rpcReq.ID, rpcErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      rpcReq.ID,
		Result:  result,
	})
}

func (h *JSONRPCHandler) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, *RPCError) {
	switch method {
	case "message/send":
		var p a2a.MessageSendParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		}
		t, err := h.handler.OnSendMessage(ctx, p)
		if err != nil {
			return nil, mapRPCError(err)
		}
		return t, nil

	case "tasks/get":
		var p a2a.TaskQueryParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		}
		t, err := h.handler.OnGetTask(ctx, p)
		if err != nil {
			return nil, mapRPCError(err)
		}
		return t, nil

	case "tasks/cancel":
		var p a2a.TaskCancelParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		}
		t, err := h.handler.OnCancelTask(ctx, p)
		if err != nil {
			return nil, mapRPCError(err)
		}
		return t, nil

	default:
		return nil, &RPCError{Code: MethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
	}
}

func (h *JSONRPCHandler) handleStream(w http.ResponseWriter, r *http.Request, rpcReq JSONRPCRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.sendError(w, rpcReq.ID, InternalError, "streaming not supported")
		return
	}

	var p a2a.MessageSendParams
	if err := json.Unmarshal(rpcReq.Params, &p); err != nil {
		h.sendError(w, rpcReq.ID, InvalidParams, fmt.Sprintf("invalid params: %v", err))
		return
	}

	events, err := h.handler.OnSendMessageStream(r.Context(), p)
	if err != nil {
		h.sendErrorObj(w, rpcReq.ID, mapRPCError(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		resp := JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      rpcReq.ID,
			Result:  event,
		}
		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error("failed to marshal stream frame", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *JSONRPCHandler) sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	h.sendErrorObj(w, id, &RPCError{Code: code, Message: message})
}

func (h *JSONRPCHandler) sendErrorObj(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcErr,
	})
}

// mapRPCError translates handler errors to protocol error codes.
func mapRPCError(err error) *RPCError {
	switch {
	case errors.Is(err, a2a.ErrTaskNotFound):
		return &RPCError{Code: TaskNotFoundError, Message: "Task not found"}
	case errors.Is(err, a2a.ErrTaskNotCancelable):
		return &RPCError{Code: TaskNotCancelableError, Message: "Task cannot be canceled"}
	default:
		return &RPCError{Code: InternalError, Message: err.Error()}
	}
}
