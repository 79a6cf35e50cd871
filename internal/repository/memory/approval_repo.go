package memory

/*
Файл approval_repo.go содержит очередь заявок Human-in-the-loop.
Резолв линеаризуем: проверка статуса и переход выполняются под одной блокировкой.
*/

import (
	"fmt"
	"time"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"go.uber.org/zap"
)

// ListApprovals возвращает заявки в обратном порядке создания. Пустой status: все заявки.
func (s *Store) ListApprovals(status domain.ApprovalStatus) []domain.ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ApprovalRequest, 0, len(s.approvals))
	for i := len(s.approvals) - 1; i >= 0; i-- {
		if status == "" || s.approvals[i].Status == status {
			out = append(out, s.approvals[i].Clone())
		}
	}
	return out
}

func (s *Store) GetApproval(id string) (domain.ApprovalRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.approvalIdx[id]
	if !ok {
		return domain.ApprovalRequest{}, false
	}
	return s.approvals[i].Clone(), true
}

// ResolveApproval переводит заявку pending -> approved|rejected и каскадно меняет
// решение по действию (approved -> allow, rejected -> block).
// Неизвестная или уже решенная заявка возвращает false без побочных эффектов.
func (s *Store) ResolveApproval(
	id string,
	status domain.ApprovalStatus,
	decidedBy string,
	reason string,
	at time.Time,
) (domain.ApprovalRequest, bool) {
	s.mu.Lock()

	i, ok := s.approvalIdx[id]
	if !ok {
		s.mu.Unlock()
		return domain.ApprovalRequest{}, false
	}

	ap := &s.approvals[i]
	if err := ap.CanTransitionTo(status); err != nil {
		s.mu.Unlock()
		s.logger.Debug("approval resolve rejected",
			zap.String("approval_id", id),
			zap.String("status", string(ap.Status)),
			zap.Error(err))
		return domain.ApprovalRequest{}, false
	}

	// 1. Переход конечного автомата
	decidedAt := at
	ap.Status = status
	ap.DecidedAt = &decidedAt
	ap.DecidedBy = decidedBy
	ap.Reason = reason

	// 2. Каскад на действие в ленте
	actionReason := reason
	if actionReason == "" {
		actionReason = fmt.Sprintf("%s by %s", status, decidedBy)
	}
	if j, found := s.actionIdx[ap.ActionID]; found {
		action := &s.actions[j]
		action.Decision = status.Outcome()
		action.Reason = actionReason
		ap.Action = action.Clone()
	} else {
		ap.Action.Decision = status.Outcome()
		ap.Action.Reason = actionReason
	}

	out := ap.Clone()
	s.commitLocked(pending{eventType: events.ApprovalResolved, data: out.Clone()})
	return out, true
}
