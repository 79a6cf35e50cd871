package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ReliableStorage оборачивает хранилище журнала предохранителем и повторами:
// кратковременный сбой БД не теряет пачку, а долгий не вешает воркер.
type ReliableStorage struct {
	next     StorageInterface
	cb       *gobreaker.CircuitBreaker
	attempts uint
	timeout  time.Duration
	logger   *zap.Logger
}

type ReliabilityOptions struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration // Время, через которое CB попробует "закрыться"
	Attempts    uint
	CallTimeout time.Duration
}

func NewReliableStorage(next StorageInterface, opts ReliabilityOptions, logger *zap.Logger) *ReliableStorage {
	if opts.MaxRequests == 0 {
		opts.MaxRequests = 3
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}

	logger = logger.Named("audit-storage")

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit-storage",
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд, открываемся (не долбим лежащую БД)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &ReliableStorage{
		next:     next,
		cb:       cb,
		attempts: opts.Attempts,
		timeout:  opts.CallTimeout,
		logger:   logger,
	}
}

func (s *ReliableStorage) WriteBatch(ctx context.Context, batch []AuditEvent) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(s.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			return s.next.WriteBatch(tCtx, batch)
		})
	})
	if err != nil {
		return fmt.Errorf("audit write failed (%d records): %w", len(batch), err)
	}
	return nil
}

// State — текущее состояние предохранителя (для логов и тестов).
func (s *ReliableStorage) State() gobreaker.State {
	return s.cb.State()
}
