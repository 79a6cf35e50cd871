package domain

import (
	"errors"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Outcome — во что превращается решение по действию после резолва.
func (s ApprovalStatus) Outcome() Decision {
	if s == StatusApproved {
		return DecisionAllow
	}
	return DecisionBlock
}

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
)

// ApprovalRequest создается ровно тогда, когда решение по Action: require_approval.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	ActionID    string         `json:"action_id"` // Ссылка на действие в ленте
	Action      Action         `json:"action"`    // Копия действия на момент последнего изменения
	RequestedAt time.Time      `json:"requested_at"`
	Status      ApprovalStatus `json:"status"`

	DecidedAt *time.Time `json:"decided_at,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата: pending -> approved | rejected.
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if next != StatusApproved && next != StatusRejected {
		return ErrInvalidTransition
	}
	return nil
}

func (a ApprovalRequest) Clone() ApprovalRequest {
	cp := a
	cp.Action = a.Action.Clone()
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		cp.DecidedAt = &t
	}
	return cp
}

// ApprovalDecision — решение оператора. ID берется из пути (HTTP) или из тела (gRPC).
type ApprovalDecision struct {
	ID        string         `json:"id,omitempty"`
	Decision  ApprovalStatus `json:"decision"`
	DecidedBy string         `json:"decided_by,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}
