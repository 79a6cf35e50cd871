package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Scopes консоли. "admin" открывает всё.
const (
	ScopeAdmin           = "admin"
	ScopeActionsSubmit   = "actions.submit"
	ScopePoliciesWrite   = "policies.write"
	ScopeApprovalsDecide = "approvals.decide"
	ScopeSandboxReset    = "sandbox.reset"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "admin": true или "policies.write": true
	jwt.RegisteredClaims
}

// HasScope — admin неявно включает любой scope.
func (c *CustomClaims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	return c.Scopes[ScopeAdmin] || c.Scopes[scope]
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// User — оператор консоли. Источник — секция auth.users конфига.
type User struct {
	ID           string   `json:"id" mapstructure:"id"`
	Username     string   `json:"username" mapstructure:"username"`
	PasswordHash string   `json:"-" mapstructure:"password_hash"` // bcrypt, никогда не отправляем на фронт
	Scopes       []string `json:"scopes" mapstructure:"scopes"`
}
