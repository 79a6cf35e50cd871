package service

import (
	"context"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/engine"
)

// MaxActionsLimit — верхняя граница размера страницы ленты
const MaxActionsLimit = 1000

// ActionRepository — чтение ленты действий
type ActionRepository interface {
	ListActions(limit int, filter domain.ActionFilter) []domain.Action
	GetAction(id string) (domain.Action, bool)
}

// Evaluator — пайплайн оценки (engine.Core)
type Evaluator interface {
	EvaluateAction(ctx context.Context, req domain.ActionRequest) (*engine.Evaluation, error)
	DryRun(ctx context.Context, req domain.ActionRequest, candidates *[]domain.Policy) (domain.EvaluationResult, error)
}

type ActionService struct {
	repo        ActionRepository
	core        Evaluator
	defaultPage int
}

func NewActionService(repo ActionRepository, core Evaluator, defaultPage int) *ActionService {
	if defaultPage <= 0 {
		defaultPage = 50
	}
	return &ActionService{repo: repo, core: core, defaultPage: defaultPage}
}

func (s *ActionService) Evaluate(ctx context.Context, req domain.ActionRequest) (*engine.Evaluation, error) {
	return s.core.EvaluateAction(ctx, req)
}

// List возвращает ленту, новые первыми. limit == 0: размер страницы по умолчанию.
func (s *ActionService) List(_ context.Context, limit int, filter domain.ActionFilter) ([]domain.Action, error) {
	switch {
	case limit < 0:
		return nil, domain.ValidationError("limit must not be negative")
	case limit == 0:
		limit = s.defaultPage
	case limit > MaxActionsLimit:
		limit = MaxActionsLimit
	}
	if filter.Decision != "" && !filter.Decision.Valid() {
		return nil, domain.ValidationError("decision must be one of allow, block, require_approval")
	}

	list := s.repo.ListActions(limit, filter)
	if list == nil {
		return []domain.Action{}, nil
	}
	return list, nil
}

func (s *ActionService) Get(_ context.Context, id string) (domain.Action, error) {
	a, ok := s.repo.GetAction(id)
	if !ok {
		return domain.Action{}, domain.NotFoundError("action not found: %s", id)
	}
	return a, nil
}

// DryRun оценивает запрос без записи. Кандидатный набор проверяет ядро.
func (s *ActionService) DryRun(ctx context.Context, req domain.DryRunRequest) (domain.EvaluationResult, error) {
	return s.core.DryRun(ctx, req.Action, req.Candidates())
}
