package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"go.uber.org/zap"
)

type TokenIssuer interface {
	GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error)
}

type AuthHandler struct {
	service TokenIssuer
	logger  *zap.Logger
}

func NewAuthHandler(s TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: s, logger: logger.Named("auth-handler")}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, h.logger, domain.ValidationError("username and password are required"))
		return
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
		h.logger.Warn("login failed", zap.String("username", req.Username), zap.Error(err))
		writeJSON(w, http.StatusUnauthorized, map[string]errorBody{
			"error": {Kind: "unauthorized", Message: "invalid credentials"},
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
