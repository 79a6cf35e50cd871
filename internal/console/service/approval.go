package service

import (
	"context"
	"strings"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/engine"
	"github.com/xela07ax/aasp-sandbox/internal/infra/auth"
)

// ApprovalRepository — чтение очереди заявок
type ApprovalRepository interface {
	ListApprovals(status domain.ApprovalStatus) []domain.ApprovalRequest
	GetApproval(id string) (domain.ApprovalRequest, bool)
}

// ApprovalResolver — запись решения идет через ядро (метрики, лог, события)
type ApprovalResolver interface {
	ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, decidedBy, reason string) (domain.ApprovalRequest, error)
}

type ApprovalService struct {
	repo ApprovalRepository
	core ApprovalResolver
}

func NewApprovalService(repo ApprovalRepository, core ApprovalResolver) *ApprovalService {
	return &ApprovalService{repo: repo, core: core}
}

// GetApprovals возвращает заявки, новые первыми. Пустой статус: все.
func (s *ApprovalService) GetApprovals(_ context.Context, status string) ([]domain.ApprovalRequest, error) {
	st := domain.ApprovalStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, domain.ValidationError("status must be one of pending, approved, rejected")
	}
	list := s.repo.ListApprovals(st)
	if list == nil {
		return []domain.ApprovalRequest{}, nil
	}
	return list, nil
}

// PendingCount — размер очереди ожидающих заявок независимо от фильтра списка.
func (s *ApprovalService) PendingCount(_ context.Context) int {
	return len(s.repo.ListApprovals(domain.StatusPending))
}

func (s *ApprovalService) GetApproval(_ context.Context, id string) (domain.ApprovalRequest, error) {
	ap, ok := s.repo.GetApproval(id)
	if !ok {
		return domain.ApprovalRequest{}, domain.NotFoundError("approval not found: %s", id)
	}
	return ap, nil
}

// DecideApproval фиксирует решение оператора. Если decided_by не передан,
// подотчетность берется из токена, а без аутентификации: демо-оператор.
func (s *ApprovalService) DecideApproval(ctx context.Context, d domain.ApprovalDecision) (domain.ApprovalRequest, error) {
	decidedBy := strings.TrimSpace(d.DecidedBy)
	if decidedBy == "" {
		decidedBy = auth.UserID(ctx)
	}
	if decidedBy == "" {
		decidedBy = engine.DefaultDecidedBy
	}
	return s.core.ResolveApproval(ctx, d.ID, d.Decision, decidedBy, d.Reason)
}
