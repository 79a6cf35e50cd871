package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"go.uber.org/zap"
)

// ApprovalService Описываем, что нам нужно от сервиса
type ApprovalService interface {
	GetApproval(ctx context.Context, id string) (domain.ApprovalRequest, error)
	GetApprovals(ctx context.Context, status string) ([]domain.ApprovalRequest, error)
	PendingCount(ctx context.Context) int
	DecideApproval(ctx context.Context, d domain.ApprovalDecision) (domain.ApprovalRequest, error)
}

type ApprovalHandler struct {
	service ApprovalService
	logger  *zap.Logger
}

func NewApprovalHandler(s ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{service: s, logger: logger.Named("approval-handler")}
}

// approvalList: pending считается по всей очереди, а не по отфильтрованному списку.
type approvalList struct {
	listResponse[domain.ApprovalRequest]
	Pending int `json:"pending"`
}

func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	approval, err := h.service.GetApproval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// List GET /api/v1/approvals?status=... Без статуса: вся очередь.
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.GetApprovals(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, approvalList{
		listResponse: listResponse[domain.ApprovalRequest]{Data: list, Total: len(list)},
		Pending:      h.service.PendingCount(r.Context()),
	})
}

// Decide POST /api/v1/approvals/{id}/decide
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req domain.ApprovalDecision
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.ID = chi.URLParam(r, "id")

	resolved, err := h.service.DecideApproval(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}
