package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials не уточняет, что именно неверно (логин или пароль)
var ErrInvalidCredentials = errors.New("invalid credentials")

const tokenIssuer = "aasp-console"

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// StaticUsers — операторы из секции auth.users конфига
type StaticUsers map[string]domain.User

func NewStaticUsers(users []domain.User) StaticUsers {
	m := make(StaticUsers, len(users))
	for _, u := range users {
		m[u.Username] = u
	}
	return m
}

func (s StaticUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := s[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type AuthService struct {
	repo       AuthProvider
	privateKey *rsa.PrivateKey
	ttl        time.Duration
	now        func() time.Time
}

func NewAuthService(repo AuthProvider, privateKey *rsa.PrivateKey, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		repo:       repo,
		privateKey: privateKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды: конфиг)
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Проверка пароля (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. Формирование Claims
	now := s.now()
	expiresAt := now.Add(s.ttl)
	scopes := make(map[string]bool, len(user.Scopes))
	for _, sc := range user.Scopes {
		scopes[sc] = true
	}
	claims := &domain.CustomClaims{
		UserID: user.ID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	if s.privateKey == nil {
		return nil, fmt.Errorf("token signing is not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

// HashPassword — bcrypt-хэш для секции auth.users.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
