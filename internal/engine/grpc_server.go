package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса. Сообщения — google.protobuf.Struct,
// поэтому клиенту не нужен сгенерированный код: JSON-поля те же, что и в HTTP API.
const ServiceName = "aasp.sandbox.v1.PolicySandbox"

// DefaultDecidedBy — кем подписывается решение, если оператор не представился.
const DefaultDecidedBy = "Demo User"

// SandboxServer — контракт gRPC-сервиса.
type SandboxServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DryRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResolveApproval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc регистрируется через grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SandboxServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: unaryHandler("Evaluate", SandboxServer.Evaluate)},
		{MethodName: "DryRun", Handler: unaryHandler("DryRun", SandboxServer.DryRun)},
		{MethodName: "ResolveApproval", Handler: unaryHandler("ResolveApproval", SandboxServer.ResolveApproval)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aasp/sandbox/v1/sandbox.proto",
}

func unaryHandler(method string, call func(SandboxServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SandboxServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SandboxServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// FullMethod возвращает путь метода для клиентского conn.Invoke.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type GRPCGatewayServer struct {
	core   *Core
	logger *zap.Logger
}

func NewGRPCGatewayServer(core *Core, logger *zap.Logger) *GRPCGatewayServer {
	return &GRPCGatewayServer{core: core, logger: logger.Named("grpc")}
}

// Register вешает сервис на grpc.Server.
func (s *GRPCGatewayServer) Register(srv *grpc.Server) {
	srv.RegisterService(&ServiceDesc, s)
}

func (s *GRPCGatewayServer) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	// 1. Struct -> доменный запрос (через JSON, как в HTTP)
	var in domain.ActionRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	// 2. Единый пайплайн обработки (тот же, что и для HTTP!)
	eval, err := s.core.EvaluateAction(ctx, in)
	if err != nil {
		return nil, s.toStatus(err)
	}

	// 3. Собираем ответ обратно в Protobuf
	return encodeStruct(eval)
}

func (s *GRPCGatewayServer) DryRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in domain.DryRunRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	result, err := s.core.DryRun(ctx, in.Action, in.Candidates())
	if err != nil {
		return nil, s.toStatus(err)
	}
	return encodeStruct(result)
}

func (s *GRPCGatewayServer) ResolveApproval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in domain.ApprovalDecision
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	decidedBy := in.DecidedBy
	if decidedBy == "" {
		decidedBy = callerID(ctx)
	}

	resolved, err := s.core.ResolveApproval(ctx, in.ID, in.Decision, decidedBy, in.Reason)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return encodeStruct(resolved)
}

// toStatus маппит доменные ошибки в коды gRPC. Внутренние детали уходят только в лог.
func (s *GRPCGatewayServer) toStatus(err error) error {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return status.Error(codes.InvalidArgument, domain.PublicMessage(err))
	case domain.KindNotFound:
		return status.Error(codes.NotFound, domain.PublicMessage(err))
	default:
		s.logger.Error("grpc call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

func decodeStruct(in *structpb.Struct, out interface{}) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encodeStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
