package memory

import (
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/events"
)

// RecordEvaluation фиксирует действие и (при require_approval) заявку одним шагом:
// наблюдатель никогда не увидит действие без его заявки.
func (s *Store) RecordEvaluation(action domain.Action, approval *domain.ApprovalRequest) {
	storedAction := action.Clone()

	s.mu.Lock()
	s.actionIdx[storedAction.ID] = len(s.actions)
	s.actions = append(s.actions, storedAction)

	batch := []pending{{eventType: events.ActionCreated, data: storedAction.Clone()}}
	if approval != nil {
		storedApproval := approval.Clone()
		s.approvalIdx[storedApproval.ID] = len(s.approvals)
		s.approvals = append(s.approvals, storedApproval)
		batch = append(batch, pending{eventType: events.ApprovalCreated, data: storedApproval.Clone()})
	}
	s.commitLocked(batch...)
}

// ListActions — лента действий, новые первыми. "Новее" значит "позже записано":
// порядок берется из append-only ленты, а не из Timestamp. limit <= 0 означает
// "без ограничения".
func (s *Store) ListActions(limit int, filter domain.ActionFilter) []domain.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Action, 0)
	for i := len(s.actions) - 1; i >= 0; i-- {
		if !filter.Match(s.actions[i]) {
			continue
		}
		out = append(out, s.actions[i].Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Store) GetAction(id string) (domain.Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.actionIdx[id]
	if !ok {
		return domain.Action{}, false
	}
	return s.actions[i].Clone(), true
}
