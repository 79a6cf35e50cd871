package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/policy"
	"go.uber.org/zap"
)

// PolicyRepository описывает требования сервиса к хранилищу политик
type PolicyRepository interface {
	ListPolicies() []domain.Policy
	GetPolicy(id string) (domain.Policy, bool)
	CreatePolicy(p domain.Policy) domain.Policy
	UpdatePolicy(id string, patch domain.PolicyPatch) (domain.Policy, bool)
	DeletePolicy(id string) bool
	TogglePolicy(id string) (domain.Policy, bool)
}

// PolicyUpdate — тело PUT /policies/{id}. Отсутствующее поле не меняется.
type PolicyUpdate struct {
	Name        *string              `json:"name,omitempty"`
	Description *string              `json:"description,omitempty"`
	Enabled     *bool                `json:"enabled,omitempty"`
	Rules       *[]domain.PolicyRule `json:"rules,omitempty"`
}

type PolicyService struct {
	repo     PolicyRepository
	patterns *policy.PatternCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewPolicyService(repo PolicyRepository, patterns *policy.PatternCache, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		repo:     repo,
		patterns: patterns,
		logger:   logger.Named("policy-service"),
		now:      time.Now,
	}
}

// GetAll возвращает политики в порядке оценки
func (s *PolicyService) GetAll(_ context.Context) []domain.Policy {
	return s.repo.ListPolicies()
}

func (s *PolicyService) GetByID(_ context.Context, id string) (domain.Policy, error) {
	p, ok := s.repo.GetPolicy(id)
	if !ok {
		return domain.Policy{}, domain.NotFoundError("policy not found: %s", id)
	}
	return p, nil
}

// Create сохраняет политику в конец списка. ID политики генерируется всегда,
// ID правил: если клиент их не прислал.
func (s *PolicyService) Create(_ context.Context, in domain.PolicyInput) (domain.Policy, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Policy{}, domain.ValidationError("name is required")
	}
	if in.Rules == nil {
		return domain.Policy{}, domain.ValidationError("rules is required")
	}

	p := in.ToPolicy()
	p.ID = uuid.New().String()
	p.CreatedAt = s.now().UTC()

	rules, err := prepareRules(p.Rules)
	if err != nil {
		return domain.Policy{}, err
	}
	p.Rules = rules

	created := s.repo.CreatePolicy(p)
	s.logger.Info("policy created", zap.String("policy_id", created.ID), zap.Int("rules", len(created.Rules)))
	return created, nil
}

// Update применяет частичное обновление и инициирует инвалидацию кэша паттернов
func (s *PolicyService) Update(_ context.Context, id string, upd PolicyUpdate) (domain.Policy, error) {
	patch := domain.PolicyPatch{
		Name:        upd.Name,
		Description: upd.Description,
		Enabled:     upd.Enabled,
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return domain.Policy{}, domain.ValidationError("name must not be empty")
	}
	if upd.Rules != nil {
		rules, err := prepareRules(*upd.Rules)
		if err != nil {
			return domain.Policy{}, err
		}
		patch.Rules = &rules
	}

	updated, ok := s.repo.UpdatePolicy(id, patch)
	if !ok {
		return domain.Policy{}, domain.NotFoundError("policy not found: %s", id)
	}
	s.prunePatterns()
	s.logger.Info("policy updated", zap.String("policy_id", id))
	return updated, nil
}

// Delete удаляет политику
func (s *PolicyService) Delete(_ context.Context, id string) error {
	if !s.repo.DeletePolicy(id) {
		return domain.NotFoundError("policy not found: %s", id)
	}
	s.prunePatterns()
	s.logger.Info("policy deleted", zap.String("policy_id", id))
	return nil
}

// Toggle инвертирует enabled. Правила не трогаются.
func (s *PolicyService) Toggle(_ context.Context, id string) (domain.Policy, error) {
	p, ok := s.repo.TogglePolicy(id)
	if !ok {
		return domain.Policy{}, domain.NotFoundError("policy not found: %s", id)
	}
	s.logger.Info("policy toggled", zap.String("policy_id", id), zap.Bool("enabled", p.Enabled))
	return p, nil
}

// prunePatterns выкидывает из кэша регулярки, которых больше нет в правилах.
func (s *PolicyService) prunePatterns() {
	if s.patterns != nil {
		s.patterns.Retain(policy.Patterns(s.repo.ListPolicies()))
	}
}

// prepareRules проверяет правила и проставляет недостающие ID.
func prepareRules(in []domain.PolicyRule) ([]domain.PolicyRule, error) {
	if err := domain.ValidateRules(in); err != nil {
		return nil, err
	}
	rules := make([]domain.PolicyRule, len(in))
	for i, r := range in {
		r = r.Clone()
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		rules[i] = r
	}
	return rules, nil
}
