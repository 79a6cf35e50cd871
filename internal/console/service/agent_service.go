package service

import (
	"context"
	"time"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/policy"
	"go.uber.org/zap"
)

// SandboxRepository описывает требования к хранилищу для реестра агентов и дашборда
type SandboxRepository interface {
	Agents() []domain.Agent
	GetAgent(id string) (domain.Agent, bool)
	ListPolicies() []domain.Policy
	Stats(now time.Time) domain.Stats
	Reset()
}

// AgentService обслуживает реестр агентов, сводку дашборда и сброс песочницы.
type AgentService struct {
	repo     SandboxRepository
	patterns *policy.PatternCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewAgentService(repo SandboxRepository, patterns *policy.PatternCache, logger *zap.Logger) *AgentService {
	return &AgentService{
		repo:     repo,
		patterns: patterns,
		logger:   logger.Named("agent-service"),
		now:      time.Now,
	}
}

// ListAgents возвращает список всех агентов песочницы.
// Фронтенд получает пустой массив [], а не null.
func (s *AgentService) ListAgents(_ context.Context) []domain.Agent {
	agents := s.repo.Agents()
	if agents == nil {
		return []domain.Agent{}
	}
	return agents
}

func (s *AgentService) GetAgent(_ context.Context, id string) (domain.Agent, error) {
	agent, ok := s.repo.GetAgent(id)
	if !ok {
		return domain.Agent{}, domain.NotFoundError("agent not found: %s", id)
	}
	return agent, nil
}

// GetGlobalStats — агрегаты дашборда на текущий момент.
func (s *AgentService) GetGlobalStats(_ context.Context) domain.Stats {
	return s.repo.Stats(s.now())
}

// Reset возвращает песочницу к исходному seed. Подписчики получают событие reset.
func (s *AgentService) Reset(_ context.Context) {
	s.repo.Reset()
	if s.patterns != nil {
		policies := s.repo.ListPolicies()
		s.patterns.Retain(policy.Patterns(policies))
		policy.Warmup(s.patterns, policies)
	}
	s.logger.Info("sandbox reset requested")
}
