package domain

import (
	"maps"
	"time"
)

// ActionRequest — входной запрос агента на выполнение действия.
type ActionRequest struct {
	AgentID    string           `json:"agent_id" validate:"required"`
	ActionType ActionType       `json:"action_type" validate:"required,oneof=api_call db_query file_access external"`
	Target     string           `json:"target" validate:"required"` // URL, SQL, путь или селектор сервиса
	Params     map[string]Value `json:"params"`
}

// Action — зафиксированный результат оценки одного запроса.
// После создания меняется только через резолв Approval (Decision и Reason).
type Action struct {
	ID         string           `json:"id"`
	AgentID    string           `json:"agent_id"`
	AgentName  string           `json:"agent_name"`
	ActionType ActionType       `json:"action_type"`
	Target     string           `json:"target"`
	Params     map[string]Value `json:"params"`
	Decision   Decision         `json:"decision"`
	Reason     string           `json:"reason"`
	PolicyID   string           `json:"policy_id,omitempty"`
	PolicyName string           `json:"policy_name,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	DurationMs float64          `json:"duration_ms"` // Время оценки
}

func (a Action) Clone() Action {
	cp := a
	cp.Params = maps.Clone(a.Params)
	return cp
}

// ActionFilter — фильтры для выборки ленты действий. Пустое поле не фильтрует.
type ActionFilter struct {
	AgentID  string
	Decision Decision
}

func (f ActionFilter) Match(a Action) bool {
	if f.AgentID != "" && a.AgentID != f.AgentID {
		return false
	}
	if f.Decision != "" && a.Decision != f.Decision {
		return false
	}
	return true
}
