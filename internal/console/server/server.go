package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/aasp-sandbox/internal/console/handler"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/engine"
	"github.com/xela07ax/aasp-sandbox/internal/infra/auth"
	"go.uber.org/zap"
)

// Handlers — обработчики бизнес-доменов
type Handlers struct {
	Auth      *handler.AuthHandler      // /auth/token, nil если выдача токенов не настроена
	Dashboard *handler.DashboardHandler // /api/v1/agents, /stats, /reset
	Actions   *handler.ActionHandler    // /api/v1/actions, /policies/evaluate
	Approvals *handler.ApprovalHandler  // /api/v1/approvals (HITL)
	Policies  *handler.PolicyHandler    // /api/v1/policies
	Stream    *handler.StreamHandler    // /api/v1/stream
}

type Options struct {
	// Проверка токенов (RS256). nil: демо-режим без аутентификации.
	Validator     auth.TokenValidator
	CORSOrigins   []string
	EvaluateRPS   float64 // 0: без лимита
	EvaluateBurst int
	Gatherer      prometheus.Gatherer // nil: /metrics не публикуется
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	opts   Options
	h      Handlers
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(opts Options, h Handlers, logger *zap.Logger) *ConsoleServer {
	s := &ConsoleServer{
		router: chi.NewRouter(),
		logger: logger.Named("console-api"),
		opts:   opts,
		h:      h,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)
	r.Use(cors.Handler(s.corsOptions()))

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		if s.h.Auth != nil {
			r.Post("/auth/token", s.h.Auth.Login)
		}

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		if s.opts.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. API песочницы. Чтение открыто, мутации требуют токен со scope ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/agents", s.h.Dashboard.ListAgents)
		r.Get("/agents/{id}", s.h.Dashboard.GetAgent)
		r.Get("/stats", s.h.Dashboard.GetStats)
		r.With(s.guard(domain.ScopeSandboxReset)...).Post("/reset", s.h.Dashboard.Reset)

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", s.h.Actions.List)
			r.Get("/{id}", s.h.Actions.Get)

			submit := s.guard(domain.ScopeActionsSubmit)
			if s.opts.EvaluateRPS > 0 {
				submit = append(submit, engine.RateLimitMiddleware(s.opts.EvaluateRPS, s.opts.EvaluateBurst))
			}
			r.With(submit...).Post("/", s.h.Actions.Evaluate)
		})

		// Human-in-the-loop (Approvals)
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", s.h.Approvals.List) // Очередь запросов на проверку
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Approvals.GetDetails)
				r.With(s.guard(domain.ScopeApprovalsDecide)...).Post("/decide", s.h.Approvals.Decide)
			})
		})

		// Управление Политиками (Policy Engine)
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", s.h.Policies.List)
			// Dry-run ничего не пишет, поэтому открыт
			r.Post("/evaluate", s.h.Actions.DryRun)

			r.Group(func(r chi.Router) {
				r.Use(s.guard(domain.ScopePoliciesWrite)...)
				r.Post("/", s.h.Policies.Create)
				r.Put("/{id}", s.h.Policies.Update)
				r.Delete("/{id}", s.h.Policies.Delete)
				r.Post("/{id}/toggle", s.h.Policies.Toggle)
			})
			r.Get("/{id}", s.h.Policies.Get)
		})

		r.Get("/stream", s.h.Stream.SSE)
		r.Get("/stream/ws", s.h.Stream.WebSocket)
	})
}

// guard — цепочка аутентификации для мутирующего роута.
func (s *ConsoleServer) guard(scope string) []func(http.Handler) http.Handler {
	if s.opts.Validator == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{
		auth.NewMiddleware(s.opts.Validator, s.logger),
		auth.RequireScope(scope),
	}
}

func (s *ConsoleServer) corsOptions() cors.Options {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Trace-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// requestLogger — access-лог через zap вместо middleware.Logger.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
