package commands

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/xela07ax/aasp-sandbox/internal/engine"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"github.com/xela07ax/aasp-sandbox/internal/infra"
	"github.com/xela07ax/aasp-sandbox/internal/policy"
	"github.com/xela07ax/aasp-sandbox/internal/repository/memory"
	"go.uber.org/zap"
)

// sandbox — ядро песочницы без транспортов: хранилище, PDP, нотификатор, метрики.
type sandbox struct {
	registry *prometheus.Registry
	metrics  *engine.Metrics
	feed     *events.Broadcaster
	store    *memory.Store
	patterns *policy.PatternCache
	core     *engine.Core
}

func buildSandbox(cfg *infra.Config, logger *zap.Logger) (*sandbox, error) {
	// 1. Seed (файл или встроенный демо-набор)
	seed, err := loadSeed(cfg.Sandbox.SeedFile, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := engine.NewMetrics(reg)

	// 3. Нотификатор и хранилище
	feed := events.NewBroadcaster(cfg.Sandbox.SubscriberBuffer, metrics, logger)
	store := memory.NewStore(seed, feed, logger)

	// 4. PDP
	patterns := policy.NewPatternCache(cfg.Sandbox.PatternCacheSize, logger)
	policy.Warmup(patterns, store.ListPolicies())
	core := engine.NewCore(store, policy.NewEvaluator(patterns), metrics, logger)

	logger.Info("sandbox initialized",
		zap.Int("agents", len(seed.Agents)),
		zap.Int("policies", len(seed.Policies)),
		zap.String("seed_file", cfg.Sandbox.SeedFile),
	)

	return &sandbox{
		registry: reg,
		metrics:  metrics,
		feed:     feed,
		store:    store,
		patterns: patterns,
		core:     core,
	}, nil
}

func loadSeed(path string, createdAt time.Time) (memory.Seed, error) {
	if path == "" {
		return memory.DefaultSeed(createdAt), nil
	}
	return memory.LoadSeedFile(path, createdAt)
}
