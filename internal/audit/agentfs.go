package audit

/*
Файл agentfs.go реализует компонент Agent File System — асинхронный сборщик
журнала аудита песочницы.

Ключевые особенности архитектуры:
- Non-blocking Logging: события приходят из ленты нотификатора и кладутся
  в буферизированный канал без блокировки; хранилище песочницы не ждет записи.
- Batching & Efficiency: накопление событий в памяти и пакетная запись (Bulk Insert)
  по таймеру или при достижении лимита пачки.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается полностью
  и выполняется Final Flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться записи
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []AuditEvent) error
}

type Auditor interface {
	Log(event AuditEvent)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	BufferGauge   prometheus.Gauge // Заполненность буфера, может быть nil
}

type AgentFS struct {
	ch     chan AuditEvent  // Буфер для асинхронности
	repo   StorageInterface // Интерфейс для Postgres/лога
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup

	// Закрытие канала и запись в него разделены RWMutex: Log после Stop безопасен
	mu       sync.RWMutex
	isClosed bool

	unsubscribe func()
}

func NewAgentFS(repo StorageInterface, opts Options, logger *zap.Logger) *AgentFS {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000 // Очередь на 10к событий
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &AgentFS{
		ch:     make(chan AuditEvent, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "agentfs")),
	}
}

func (fs *AgentFS) Start() {
	fs.wg.Add(1)
	go fs.worker()
}

// Attach подписывает журнал на ленту событий песочницы.
func (fs *AgentFS) Attach(b *events.Broadcaster) {
	fs.unsubscribe = b.SubscribeFunc("audit", func(evt events.Event) {
		if rec, ok := FromEvent(evt); ok {
			fs.Log(rec)
		}
	})
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (fs *AgentFS) Stop() {
	if fs.unsubscribe != nil {
		fs.unsubscribe()
	}

	fs.mu.Lock()
	if fs.isClosed {
		fs.mu.Unlock()
		return
	}
	fs.isClosed = true

	// Закрываем (Drain Pattern). Завершение горутины происходит исключительно через закрытие входного канала.
	fs.logger.Info("stopping auditor: closing channel and flushing buffer...")
	close(fs.ch)
	fs.mu.Unlock()

	fs.wg.Wait() // Ждем, пока воркер вычитает остатки из канала и вызовет flush().
	fs.logger.Info("auditor stopped gracefully")
}

func (fs *AgentFS) Log(event AuditEvent) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if fs.isClosed {
		fs.logger.Warn("audit event dropped: auditor is stopping", zap.String("id", event.ID))
		return
	}

	// используем стратегию Load Shedding (сброс нагрузки)
	select {
	case fs.ch <- event:
		fs.observeBuffer()
	default:
		// Если канал переполнен (Backpressure), оставляем след хотя бы в логе
		fs.logger.Error("audit_buffer_overflow",
			zap.String("kind", event.Kind),
			zap.String("action_id", event.ActionID),
			zap.String("agent_id", event.AgentID),
		)
	}
}

func (fs *AgentFS) observeBuffer() {
	if fs.opts.BufferGauge != nil {
		fs.opts.BufferGauge.Set(float64(len(fs.ch)))
	}
}

func (fs *AgentFS) worker() {
	defer fs.wg.Done()

	batch := make([]AuditEvent, 0, fs.opts.BatchSize)
	ticker := time.NewTicker(fs.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background, так как основной контекст может быть уже закрыт
			if err := fs.repo.WriteBatch(context.Background(), batch); err != nil {
				fs.logger.Error("audit flush failed", zap.Int("count", len(batch)), zap.Error(err))
			}
			batch = batch[:0]
		}
		fs.observeBuffer()
	}

	for {
		select {
		case event, ok := <-fs.ch:
			if !ok {
				// Канал закрыт в Stop(): очередь уже вычитана, делаем финальный сброс
				flush()
				fs.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= fs.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
