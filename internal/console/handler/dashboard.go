package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"go.uber.org/zap"
)

// DashboardService Описываем, что нам нужно от сервиса
type DashboardService interface {
	ListAgents(ctx context.Context) []domain.Agent
	GetAgent(ctx context.Context, id string) (domain.Agent, error)
	GetGlobalStats(ctx context.Context) domain.Stats
	Reset(ctx context.Context)
}

type DashboardHandler struct {
	service DashboardService
	logger  *zap.Logger
}

func NewDashboardHandler(s DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{service: s, logger: logger.Named("dashboard-handler")}
}

// ListAgents GET /api/v1/agents
func (h *DashboardHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.service.ListAgents(r.Context())
	writeJSON(w, http.StatusOK, listResponse[domain.Agent]{Data: agents, Total: len(agents)})
}

// GetAgent GET /api/v1/agents/{id}
func (h *DashboardHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.service.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// GetStats GET /api/v1/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GetGlobalStats(r.Context()))
}

// Reset POST /api/v1/reset
func (h *DashboardHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.service.Reset(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "sandbox state reset"})
}
