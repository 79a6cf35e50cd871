package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/engine"
	"go.uber.org/zap"
)

type ActionService interface {
	Evaluate(ctx context.Context, req domain.ActionRequest) (*engine.Evaluation, error)
	List(ctx context.Context, limit int, filter domain.ActionFilter) ([]domain.Action, error)
	Get(ctx context.Context, id string) (domain.Action, error)
	DryRun(ctx context.Context, req domain.DryRunRequest) (domain.EvaluationResult, error)
}

type ActionHandler struct {
	service ActionService
	logger  *zap.Logger
}

func NewActionHandler(s ActionService, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{service: s, logger: logger.Named("action-handler")}
}

// List GET /api/v1/actions?limit=&agent_id=&decision=
func (h *ActionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, domain.ValidationError("limit must be an integer"))
			return
		}
		limit = n
	}

	filter := domain.ActionFilter{
		AgentID:  q.Get("agent_id"),
		Decision: domain.Decision(q.Get("decision")),
	}
	actions, err := h.service.List(r.Context(), limit, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Action]{Data: actions, Total: len(actions)})
}

// Get GET /api/v1/actions/{id}
func (h *ActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	action, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// Evaluate POST /api/v1/actions: действие агента проходит через PDP и попадает в ленту
func (h *ActionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req domain.ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	eval, err := h.service.Evaluate(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, eval)
}

// DryRun POST /api/v1/policies/evaluate: оценка без записи и событий
func (h *ActionHandler) DryRun(w http.ResponseWriter, r *http.Request) {
	var req domain.DryRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.service.DryRun(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
