package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/events"
)

// AuditEvent — одна запись журнала: факт оценки действия или решение оператора.
type AuditEvent struct {
	ID         string                  `json:"id"`          // UUID записи
	Kind       string                  `json:"kind"`        // action.created | approval.resolved
	ActionID   string                  `json:"action_id"`   // Какое действие
	ApprovalID string                  `json:"approval_id"` // Заявка (только для approval.resolved)
	AgentID    string                  `json:"agent_id"`    // Кто делал
	ActionType domain.ActionType       `json:"action_type"` // Что хотел сделать
	Target     string                  `json:"target"`
	Params     map[string]domain.Value `json:"params"` // С какими данными

	// Результат
	Decision  domain.Decision `json:"decision"`
	Reason    string          `json:"reason"`
	PolicyID  string          `json:"policy_id"`  // Какая политика сработала
	DecidedBy string          `json:"decided_by"` // Оператор (HITL)

	Timestamp  time.Time `json:"timestamp"`
	DurationMs float64   `json:"duration_ms"` // Время оценки
}

// FromEvent превращает событие ленты в запись аудита.
// Остальные типы событий (политики, reset) в журнал не попадают.
func FromEvent(evt events.Event) (AuditEvent, bool) {
	switch data := evt.Data.(type) {
	case domain.Action:
		if evt.Type != events.ActionCreated {
			return AuditEvent{}, false
		}
		return fromAction(evt.Type, data, evt.Timestamp), true

	case domain.ApprovalRequest:
		if evt.Type != events.ApprovalResolved {
			return AuditEvent{}, false
		}
		rec := fromAction(evt.Type, data.Action, evt.Timestamp)
		rec.ApprovalID = data.ID
		rec.DecidedBy = data.DecidedBy
		if data.DecidedAt != nil {
			rec.Timestamp = *data.DecidedAt
		}
		return rec, true
	}
	return AuditEvent{}, false
}

func fromAction(kind string, a domain.Action, at time.Time) AuditEvent {
	return AuditEvent{
		ID:         uuid.New().String(),
		Kind:       kind,
		ActionID:   a.ID,
		AgentID:    a.AgentID,
		ActionType: a.ActionType,
		Target:     a.Target,
		Params:     a.Params,
		Decision:   a.Decision,
		Reason:     a.Reason,
		PolicyID:   a.PolicyID,
		Timestamp:  at,
		DurationMs: a.DurationMs,
	}
}
