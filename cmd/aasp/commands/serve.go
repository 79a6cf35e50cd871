package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xela07ax/aasp-sandbox/internal/audit"
	"github.com/xela07ax/aasp-sandbox/internal/console/handler"
	"github.com/xela07ax/aasp-sandbox/internal/console/server"
	"github.com/xela07ax/aasp-sandbox/internal/console/service"
	"github.com/xela07ax/aasp-sandbox/internal/engine"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"github.com/xela07ax/aasp-sandbox/internal/infra"
	"github.com/xela07ax/aasp-sandbox/internal/infra/auth"
	"github.com/xela07ax/aasp-sandbox/internal/repository/postgres"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sandbox: Console API, event stream and optional gRPC surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg, a.logger)
		},
	}
}

func runServe(ctx context.Context, cfg *infra.Config, logger *zap.Logger) error {
	// 1. Ядро песочницы
	sb, err := buildSandbox(cfg, logger)
	if err != nil {
		return err
	}

	// 2. Журнал аудита (лог или Postgres через предохранитель)
	if cfg.Audit.Enabled {
		sink, closeSink, err := buildAuditSink(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeSink()

		afs := audit.NewAgentFS(sink, audit.Options{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
			BufferGauge:   sb.metrics.AuditBufferFill,
		}, logger)
		afs.Start()
		afs.Attach(sb.feed)
		// Stop срабатывает после закрытия HTTP/gRPC: журнал дописывается до конца
		defer afs.Stop()
	}

	// 3. Зеркало ленты в Redis
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		go events.NewRedisMirror(rdb, cfg.Redis.Channel, 0, logger).Run(ctx, sb.feed)
	}

	// 4. Аутентификация (RS256). Без публичного ключа: демо-режим.
	var validator auth.TokenValidator
	var authHandler *handler.AuthHandler
	if cfg.Auth.Enabled() {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return err
		}
		validator = auth.NewBaseValidator(pub)

		if len(cfg.Auth.PrivateKey) > 0 {
			priv, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
			if err != nil {
				return err
			}
			users := service.NewStaticUsers(cfg.Auth.Users)
			authHandler = handler.NewAuthHandler(service.NewAuthService(users, priv, cfg.Auth.TokenTTL), logger)
		}
	} else {
		logger.Warn("auth disabled: no public key configured, mutating routes are open")
	}

	// 5. Console API
	console := server.NewConsoleServer(server.Options{
		Validator:     validator,
		CORSOrigins:   cfg.Sandbox.CORSOrigins,
		EvaluateRPS:   cfg.Sandbox.EvaluateRPS,
		EvaluateBurst: cfg.Sandbox.EvaluateBurst,
		Gatherer:      sb.registry,
	}, server.Handlers{
		Auth:      authHandler,
		Dashboard: handler.NewDashboardHandler(service.NewAgentService(sb.store, sb.patterns, logger), logger),
		Actions:   handler.NewActionHandler(service.NewActionService(sb.store, sb.core, cfg.Sandbox.ActionsPageSize), logger),
		Approvals: handler.NewApprovalHandler(service.NewApprovalService(sb.store, sb.core), logger),
		Policies:  handler.NewPolicyHandler(service.NewPolicyService(sb.store, sb.patterns, logger), logger),
		Stream:    handler.NewStreamHandler(sb.feed, cfg.Sandbox.HeartbeatInterval, cfg.Sandbox.SubscriberBuffer, logger),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           console,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		// Отмена корневого контекста закрывает долгие SSE/WebSocket соединения
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// 6. gRPC поверхность ядра
	var grpcSrv *grpc.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen gRPC: %w", err)
		}
		grpcSrv = grpc.NewServer(grpc.ChainUnaryInterceptor(
			engine.UnaryTraceInterceptor(),
			engine.UnaryAuthInterceptor(validator, logger),
		))
		engine.NewGRPCGatewayServer(sb.core, logger).Register(grpcSrv)

		go func() {
			logger.Info("gRPC server started", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	// 7. Graceful Shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	sb.feed.Close()

	logger.Info("sandbox exited properly")
	return nil
}

// buildAuditSink выбирает хранилище журнала. closeFn закрывает пул БД, если он был.
func buildAuditSink(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (audit.StorageInterface, func(), error) {
	if cfg.Database.URL == "" {
		return audit.NewLogStorage(logger), func() {}, nil
	}

	repo, err := postgres.NewAuditRepo(cfg.Database.URL, postgres.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repo.Init(initCtx); err != nil {
		_ = repo.Close()
		return nil, nil, fmt.Errorf("database unreachable: %w", err)
	}

	sink := audit.NewReliableStorage(repo, audit.ReliabilityOptions{Attempts: cfg.Audit.RetryAttempts}, logger)
	return sink, func() { _ = repo.Close() }, nil
}
