package engine

import (
	"context"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// methodScopes — какой scope нужен методу. Пустая строка: достаточно валидного токена.
var methodScopes = map[string]string{
	FullMethod("Evaluate"):        domain.ScopeActionsSubmit,
	FullMethod("DryRun"):          "",
	FullMethod("ResolveApproval"): domain.ScopeApprovalsDecide,
}

// UnaryAuthInterceptor проверяет JWT в метаданных gRPC вызова.
// validator == nil: аутентификация выключена (демо-режим).
func UnaryAuthInterceptor(validator auth.TokenValidator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if validator == nil {
			return handler(ctx, req)
		}

		// 1. Извлекаем метаданные из контекста
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}

		// 2. Ищем токен (в gRPC заголовки обычно в нижнем регистре)
		tokens := md.Get("authorization")
		if len(tokens) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing access token")
		}

		// 3. Проверяем подпись и срок жизни (та же логика, что и в HTTP)
		claims, err := validator.VerifyToken(tokens[0])
		if err != nil {
			logger.Warn("grpc auth failure", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, auth.FailureMessage(err))
		}

		if scope := methodScopes[info.FullMethod]; scope != "" && !claims.HasScope(scope) {
			return nil, status.Errorf(codes.PermissionDenied, "token does not grant scope %s", scope)
		}

		// 4. Обогащаем контекст и идем дальше по цепочке
		return handler(auth.WithClaims(ctx, claims), req)
	}
}

// UnaryTraceInterceptor берет x-trace-id из метаданных (или генерирует), как TracingMiddleware в HTTP.
func UnaryTraceInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		traceID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-trace-id"); len(ids) > 0 {
				traceID = ids[0]
			}
		}
		if traceID == "" {
			traceID = newTraceID()
		}
		return handler(WithTraceID(ctx, traceID), req)
	}
}

// callerID — кто принимает решение: пользователь из токена или демо-оператор.
func callerID(ctx context.Context) string {
	if id := auth.UserID(ctx); id != "" {
		return id
	}
	return DefaultDecidedBy
}
