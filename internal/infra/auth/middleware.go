package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс, который реализуют HTTP и gRPC проверки
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type claimsKey struct{}

func WithClaims(ctx context.Context, claims *domain.CustomClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext возвращает nil, если запрос не аутентифицирован.
func ClaimsFromContext(ctx context.Context) *domain.CustomClaims {
	claims, _ := ctx.Value(claimsKey{}).(*domain.CustomClaims)
	return claims
}

// UserID — идентификатор оператора из токена или пустая строка.
func UserID(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				writeAuthError(w, http.StatusUnauthorized, FailureMessage(err))
				return
			}

			// Прокидываем данные в контекст
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireScope пропускает запрос только с нужным scope (admin открывает всё).
// Ставится после NewMiddleware.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ClaimsFromContext(r.Context()).HasScope(scope) {
				writeAuthError(w, http.StatusForbidden, "token does not grant scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FailureMessage — безопасный для клиента текст ошибки проверки токена.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing bearer token"
	case errors.Is(err, ErrTokenExpired):
		return "bearer token expired"
	case errors.Is(err, ErrNoOperator):
		return "bearer token does not identify an operator"
	default:
		return "invalid bearer token"
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"kind": "unauthorized", "message": message},
	})
}
