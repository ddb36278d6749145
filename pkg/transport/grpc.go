package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kadirpekel/aloha/pkg/a2a"
	"github.com/kadirpekel/aloha/pkg/server"
)

type GRPCConfig struct {
	Address string
}

// jsonCodec carries the protocol's JSON shapes over gRPC frames. The
// service is registered with a hand-written descriptor, so no protobuf
// types are involved.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "json" }

// A2AService implements the a2a.v1.A2AService methods on top of the
// request handler. Transports and tests can call it directly.
type A2AService struct {
	handler *server.RequestHandler
}

func NewA2AService(handler *server.RequestHandler) *A2AService {
	return &A2AService{handler: handler}
}

func (s *A2AService) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (*a2a.Task, error) {
	t, err := s.handler.OnSendMessage(ctx, *params)
	if err != nil {
		return nil, mapGRPCError(err)
	}
	return t, nil
}

func (s *A2AService) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	if params.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "task id is required")
	}
	t, err := s.handler.OnGetTask(ctx, *params)
	if err != nil {
		return nil, mapGRPCError(err)
	}
	return t, nil
}

func (s *A2AService) CancelTask(ctx context.Context, params *a2a.TaskCancelParams) (*a2a.Task, error) {
	if params.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "task id is required")
	}
	t, err := s.handler.OnCancelTask(ctx, *params)
	if err != nil {
		return nil, mapGRPCError(err)
	}
	return t, nil
}

func (s *A2AService) GetAgentCard(ctx context.Context, _ *struct{}) (*a2a.AgentCard, error) {
	card := s.handler.AgentCard()
	return &card, nil
}

// SendStreamingMessage streams the task's events. Each frame is one
// event encoded by the JSON codec.
func (s *A2AService) SendStreamingMessage(params *a2a.MessageSendParams, stream grpc.ServerStream) error {
	events, err := s.handler.OnSendMessageStream(stream.Context(), *params)
	if err != nil {
		return mapGRPCError(err)
	}
	for event := range events {
		if err := stream.SendMsg(event); err != nil {
			return err
		}
	}
	return nil
}

// mapGRPCError translates handler errors onto gRPC status codes.
func mapGRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, a2a.ErrTaskNotFound):
		return status.Error(codes.NotFound, "Task not found")
	case errors.Is(err, a2a.ErrTaskNotCancelable):
		return status.Error(codes.FailedPrecondition, "Task cannot be canceled")
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ============================================================================
// SERVICE DESCRIPTOR
// Hand-written so the JSON codec can serve the service without
// generated protobuf stubs.
// ============================================================================

func sendMessageHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(a2a.MessageSendParams)
	if err := dec(in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if interceptor == nil {
		return srv.(*A2AService).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/a2a.v1.A2AService/SendMessage"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*A2AService).SendMessage(ctx, req.(*a2a.MessageSendParams))
	})
}

func getTaskHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(a2a.TaskQueryParams)
	if err := dec(in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if interceptor == nil {
		return srv.(*A2AService).GetTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/a2a.v1.A2AService/GetTask"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*A2AService).GetTask(ctx, req.(*a2a.TaskQueryParams))
	})
}

func cancelTaskHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(a2a.TaskCancelParams)
	if err := dec(in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if interceptor == nil {
		return srv.(*A2AService).CancelTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/a2a.v1.A2AService/CancelTask"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*A2AService).CancelTask(ctx, req.(*a2a.TaskCancelParams))
	})
}

func getAgentCardHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(struct{})
	if err := dec(in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if interceptor == nil {
		return srv.(*A2AService).GetAgentCard(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/a2a.v1.A2AService/GetAgentCard"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*A2AService).GetAgentCard(ctx, req.(*struct{}))
	})
}

func sendStreamingMessageHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(a2a.MessageSendParams)
	if err := stream.RecvMsg(in); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return srv.(*A2AService).SendStreamingMessage(in, stream)
}

var a2aServiceDesc = grpc.ServiceDesc{
	ServiceName: "a2a.v1.A2AService",
	HandlerType: (*A2AService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: sendMessageHandler},
		{MethodName: "GetTask", Handler: getTaskHandler},
		{MethodName: "CancelTask", Handler: cancelTaskHandler},
		{MethodName: "GetAgentCard", Handler: getAgentCardHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SendStreamingMessage", Handler: sendStreamingMessageHandler, ServerStreams: true},
	},
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// GRPCHandler binds the A2A service to a listener.
type GRPCHandler struct {
	config     GRPCConfig
	service    *A2AService
	grpcServer *grpc.Server
}

func NewGRPCHandler(config GRPCConfig, handler *server.RequestHandler) *GRPCHandler {
	if config.Address == "" {
		config.Address = ":12000"
	}
	return &GRPCHandler{
		config:  config,
		service: NewA2AService(handler),
	}
}

func (h *GRPCHandler) Start() error {
	lis, err := net.Listen("tcp", h.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.config.Address, err)
	}

	h.grpcServer = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	h.grpcServer.RegisterService(&a2aServiceDesc, h.service)

	slog.Info("gRPC transport starting", "address", h.config.Address)

	if err := h.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}

func (h *GRPCHandler) Stop(ctx context.Context) error {
	if h.grpcServer == nil {
		return nil
	}
	stopped := make(chan struct{})
	go func() {
		h.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		h.grpcServer.Stop()
		return ctx.Err()
	}
}
