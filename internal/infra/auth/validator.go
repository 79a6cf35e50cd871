package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
)

// Ошибки проверки токена. Транспорт решает, что из этого показать клиенту.
var (
	ErrTokenMissing = errors.New("token is missing")
	ErrTokenExpired = errors.New("token is expired")
	ErrTokenInvalid = errors.New("token is invalid")
	ErrNoOperator   = errors.New("token does not identify an operator")
)

// ClockSkew — допустимое расхождение часов консоли и проверяющего сервиса.
const ClockSkew = 30 * time.Second

// BaseValidator проверяет токены консоли: RS256, обязательный exp и user_id,
// ведь решения по заявкам подписываются именем оператора из токена.
type BaseValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewBaseValidator(pubKey *rsa.PublicKey) *BaseValidator {
	return &BaseValidator{
		publicKey: pubKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(ClockSkew),
		),
	}
}

// VerifyToken реализует интерфейс auth.TokenValidator.
// Принимает токен как есть или со схемой "Bearer ".
func (v *BaseValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenStr), "Bearer "))
	if tokenStr == "" {
		return nil, ErrTokenMissing
	}

	claims := &domain.CustomClaims{}
	_, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrNoOperator
	}
	return claims, nil
}

// ParseRSAPublicKey превращает PEM в ключ проверки подписи.
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

// ParseRSAPrivateKey превращает PEM в ключ подписи (выдача токенов в /auth/token).
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("private key data is empty")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}
