package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kadirpekel/aloha/pkg/a2a"
	"github.com/kadirpekel/aloha/pkg/executor"
	"github.com/kadirpekel/aloha/pkg/reasoner"
	"github.com/kadirpekel/aloha/pkg/server"
	"github.com/kadirpekel/aloha/pkg/task"
	"github.com/kadirpekel/aloha/pkg/tools"
)

func newTestRequestHandler(t *testing.T) *server.RequestHandler {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register("roll_dice", tools.NewDiceTool()))
	require.NoError(t, reg.Register("check_prime", tools.NewPrimeTool()))

	exec := executor.NewAgentExecutor(reasoner.NewRuleReasoner(reg))
	return server.NewRequestHandler(task.NewMemoryStore(), exec)
}

func messageBody(text string) map[string]interface{} {
	return map[string]interface{}{
		"message": map[string]interface{}{
			"kind": "message",
			"role": "user",
			"parts": []map[string]interface{}{
				{"kind": "text", "text": text},
			},
		},
	}
}

// ============================================================================
// JSON-RPC
// ============================================================================

func rpcCall(t *testing.T, h http.Handler, body string) JSONRPCResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func rpcRequest(t *testing.T, id interface{}, method string, params interface{}) string {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	return string(raw)
}

func TestJSONRPCSendMessage(t *testing.T) {
	h := NewJSONRPCHandler(JSONRPCConfig{}, newTestRequestHandler(t)).Handler()

	resp := rpcCall(t, h, rpcRequest(t, 1, "message/send", messageBody("Is 17 prime?")))
	require.Nil(t, resp.Error)
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, float64(1), resp.ID)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var got a2a.Task
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, "17 are prime numbers.", got.Artifacts[0].Parts[0].Text)
}

func TestJSONRPCErrorCodes(t *testing.T) {
	handler := newTestRequestHandler(t)
	h := NewJSONRPCHandler(JSONRPCConfig{}, handler).Handler()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", "{not json", ParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"tasks/get"}`, InvalidRequest},
		{"unknown method", rpcRequest(t, 2, "tasks/list", nil), MethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","id":3,"method":"tasks/get","params":"nope"}`, InvalidParams},
		{"task not found", rpcRequest(t, 4, "tasks/get", map[string]string{"id": "missing"}), TaskNotFoundError},
		{"cancel unknown task", rpcRequest(t, 5, "tasks/cancel", map[string]string{"id": "missing"}), TaskNotFoundError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpcCall(t, h, tt.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestJSONRPCCancelTerminalTask(t *testing.T) {
	handler := newTestRequestHandler(t)
	h := NewJSONRPCHandler(JSONRPCConfig{}, handler).Handler()

	done, err := handler.OnSendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.Message{Kind: "message", Role: a2a.MessageRoleUser, Parts: []a2a.Part{a2a.NewTextPart("Is 17 prime?")}},
	})
	require.NoError(t, err)

	resp := rpcCall(t, h, rpcRequest(t, 7, "tasks/cancel", map[string]string{"id": done.ID}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, TaskNotCancelableError, resp.Error.Code)
}

func TestJSONRPCStream(t *testing.T) {
	h := NewJSONRPCHandler(JSONRPCConfig{}, newTestRequestHandler(t)).Handler()

	body := rpcRequest(t, "stream-1", "message/stream", messageBody("Is 17 prime?"))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	// Each SSE frame is a complete JSON-RPC envelope echoing the id.
	var frames []JSONRPCResponse
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var resp JSONRPCResponse
		require.NoError(t, json.Unmarshal([]byte(data), &resp))
		assert.Equal(t, "stream-1", resp.ID)
		frames = append(frames, resp)
	}
	require.Len(t, frames, 4)

	last, err := json.Marshal(frames[3].Result)
	require.NoError(t, err)
	event, err := a2a.UnmarshalEvent(last)
	require.NoError(t, err)
	final, ok := event.(*a2a.StatusUpdateEvent)
	require.True(t, ok)
	assert.True(t, final.Final)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
}

// ============================================================================
// REST
// ============================================================================

func TestRESTSendAndGet(t *testing.T) {
	router := NewRESTHandler(RESTConfig{}, newTestRequestHandler(t)).Router()

	body, err := json.Marshal(messageBody("Roll a 6-sided dice"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/message:send", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var sent a2a.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, a2a.TaskStateCompleted, sent.Status.State)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/tasks/%s?historyLength=0", sent.ID), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got a2a.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Empty(t, got.History)
}

func TestRESTErrorStatuses(t *testing.T) {
	handler := newTestRequestHandler(t)
	router := NewRESTHandler(RESTConfig{}, handler).Router()

	done, err := handler.OnSendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.Message{Kind: "message", Role: a2a.MessageRoleUser, Parts: []a2a.Part{a2a.NewTextPart("Is 17 prime?")}},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"unknown task", http.MethodGet, "/v1/tasks/missing", "", http.StatusNotFound},
		{"cancel unknown task", http.MethodPost, "/v1/tasks/missing:cancel", "", http.StatusNotFound},
		{"cancel terminal task", http.MethodPost, "/v1/tasks/" + done.ID + ":cancel", "", http.StatusConflict},
		{"bad history length", http.MethodGet, "/v1/tasks/" + done.ID + "?historyLength=nope", "", http.StatusBadRequest},
		{"bad send body", http.MethodPost, "/v1/message:send", "{not json", http.StatusBadRequest},
		{"unknown verb", http.MethodPost, "/v1/tasks/" + done.ID + ":restart", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRESTStream(t *testing.T) {
	router := NewRESTHandler(RESTConfig{}, newTestRequestHandler(t)).Router()

	body, err := json.Marshal(messageBody("Is 17 prime?"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/message:stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []a2a.Event
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		event, err := a2a.UnmarshalEvent([]byte(data))
		require.NoError(t, err)
		events = append(events, event)
	}
	require.Len(t, events, 4)

	final, ok := events[3].(*a2a.StatusUpdateEvent)
	require.True(t, ok)
	assert.True(t, final.Final)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
}

func TestRESTAgentCard(t *testing.T) {
	handler := newTestRequestHandler(t)
	_, err := NewServer(ServerConfig{
		AgentName: "aloha",
		JSONRPC:   &JSONRPCConfig{Address: ":12001"},
		REST:      &RESTConfig{Address: ":12002"},
	}, handler)
	require.NoError(t, err)

	router := NewRESTHandler(RESTConfig{}, handler).Router()
	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent-card.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var card a2a.AgentCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))

	assert.Equal(t, "aloha", card.Name)
	assert.True(t, card.Capabilities.Streaming)

	// Only the bound transports are advertised.
	var transports []string
	for _, iface := range card.AdditionalInterfaces {
		transports = append(transports, iface.Transport)
	}
	assert.ElementsMatch(t, []string{a2a.TransportJSONRPC, a2a.TransportHTTPJSON}, transports)
	assert.Equal(t, a2a.TransportJSONRPC, card.PreferredTransport)

	var skills []string
	for _, s := range card.Skills {
		skills = append(skills, s.ID)
	}
	assert.ElementsMatch(t, []string{"roll_dice", "check_prime"}, skills)
}

// ============================================================================
// gRPC
// ============================================================================

// recordStream is a minimal grpc.ServerStream capturing sent messages.
type recordStream struct {
	grpc.ServerStream
	ctx  context.Context
	sent []interface{}
}

func (s *recordStream) Context() context.Context        { return s.ctx }
func (s *recordStream) SendMsg(m interface{}) error     { s.sent = append(s.sent, m); return nil }
func (s *recordStream) SetHeader(metadata.MD) error     { return nil }
func (s *recordStream) SendHeader(metadata.MD) error    { return nil }
func (s *recordStream) SetTrailer(metadata.MD)          {}
func (s *recordStream) RecvMsg(m interface{}) error     { return nil }

func TestGRPCSendMessage(t *testing.T) {
	svc := NewA2AService(newTestRequestHandler(t))

	got, err := svc.SendMessage(context.Background(), &a2a.MessageSendParams{
		Message: a2a.Message{Kind: "message", Role: a2a.MessageRoleUser, Parts: []a2a.Part{a2a.NewTextPart("Is 17 prime?")}},
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
}

func TestGRPCStatusCodes(t *testing.T) {
	handler := newTestRequestHandler(t)
	svc := NewA2AService(handler)
	ctx := context.Background()

	_, err := svc.GetTask(ctx, &a2a.TaskQueryParams{ID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = svc.GetTask(ctx, &a2a.TaskQueryParams{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	done, err := svc.SendMessage(ctx, &a2a.MessageSendParams{
		Message: a2a.Message{Kind: "message", Role: a2a.MessageRoleUser, Parts: []a2a.Part{a2a.NewTextPart("Is 17 prime?")}},
	})
	require.NoError(t, err)

	_, err = svc.CancelTask(ctx, &a2a.TaskCancelParams{ID: done.ID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = svc.CancelTask(ctx, &a2a.TaskCancelParams{ID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCStreamingMessage(t *testing.T) {
	svc := NewA2AService(newTestRequestHandler(t))
	stream := &recordStream{ctx: context.Background()}

	err := svc.SendStreamingMessage(&a2a.MessageSendParams{
		Message: a2a.Message{Kind: "message", Role: a2a.MessageRoleUser, Parts: []a2a.Part{a2a.NewTextPart("Is 17 prime?")}},
	}, stream)
	require.NoError(t, err)
	require.Len(t, stream.sent, 4)

	final, ok := stream.sent[3].(*a2a.StatusUpdateEvent)
	require.True(t, ok)
	assert.True(t, final.Final)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
}

func TestGRPCAgentCard(t *testing.T) {
	handler := newTestRequestHandler(t)
	_, err := NewServer(ServerConfig{GRPC: &GRPCConfig{Address: ":12000"}}, handler)
	require.NoError(t, err)

	svc := NewA2AService(handler)
	card, err := svc.GetAgentCard(context.Background(), &struct{}{})
	require.NoError(t, err)
	assert.Equal(t, a2a.TransportGRPC, card.PreferredTransport)
	require.Len(t, card.AdditionalInterfaces, 1)
	assert.Equal(t, a2a.TransportGRPC, card.AdditionalInterfaces[0].Transport)
}
