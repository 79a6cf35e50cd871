package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/aasp-sandbox/internal/console/service"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"go.uber.org/zap"
)

type PolicyService interface {
	GetAll(ctx context.Context) []domain.Policy
	GetByID(ctx context.Context, id string) (domain.Policy, error)
	Create(ctx context.Context, in domain.PolicyInput) (domain.Policy, error)
	Update(ctx context.Context, id string, upd service.PolicyUpdate) (domain.Policy, error)
	Delete(ctx context.Context, id string) error
	Toggle(ctx context.Context, id string) (domain.Policy, error)
}

type PolicyHandler struct {
	service PolicyService
	logger  *zap.Logger
}

func NewPolicyHandler(s PolicyService, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{service: s, logger: logger.Named("policy-handler")}
}

// Get возвращает детали конкретной политики по её ID.
// GET /api/v1/policies/{id}
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// List возвращает политики в порядке оценки
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	policies := h.service.GetAll(r.Context())
	writeJSON(w, http.StatusOK, listResponse[domain.Policy]{Data: policies, Total: len(policies)})
}

// Create добавляет политику в конец списка
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.PolicyInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.service.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Update частично обновляет политику (например, меняет Conditions)
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd service.PolicyUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete удаляет политику и инициирует инвалидацию кэша
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Toggle POST /api/v1/policies/{id}/toggle
func (h *PolicyHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
