package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMirror транслирует ленту событий в Redis Pub/Sub, чтобы внешние
// дашборды и `aasp tail` видели мутации песочницы без HTTP-стрима.
type RedisMirror struct {
	rdb     *redis.Client
	channel string
	buffer  int
	timeout time.Duration
	logger  *zap.Logger
}

func NewRedisMirror(rdb *redis.Client, channel string, buffer int, logger *zap.Logger) *RedisMirror {
	if buffer <= 0 {
		buffer = 1024
	}
	return &RedisMirror{
		rdb:     rdb,
		channel: channel,
		buffer:  buffer,
		timeout: 2 * time.Second,
		logger:  logger.Named("redis-mirror"),
	}
}

// Run блокируется до отмены контекста. Если нотификатор отключил зеркало
// из-за переполнения, подписка восстанавливается (часть событий теряется).
func (m *RedisMirror) Run(ctx context.Context, b *Broadcaster) {
	for {
		sub := b.Subscribe(m.buffer)
		m.logger.Info("redis mirror subscribed", zap.String("channel", m.channel))

		if !m.pump(ctx, sub) {
			sub.Close()
			return
		}
		if !sub.Dropped() {
			// Нотификатор закрыт штатно
			return
		}
		m.logger.Warn("redis mirror fell behind, resubscribing")
	}
}

// pump возвращает false, если пора завершаться по контексту.
func (m *RedisMirror) pump(ctx context.Context, sub *Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-sub.C():
			if !ok {
				return true
			}
			m.forward(ctx, evt)
		}
	}
}

func (m *RedisMirror) forward(ctx context.Context, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		m.logger.Error("failed to encode event", zap.String("event", evt.Type), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.rdb.Publish(pubCtx, m.channel, payload).Err(); err != nil {
		m.logger.Warn("event signal delivery failed",
			zap.String("channel", m.channel),
			zap.String("event", evt.Type),
			zap.Error(err))
	}
}

// ListenResilient — "живучая" подписка на канал событий в Redis.
// Переподключается при обрыве, onConnect вызывается после каждой успешной подписки.
func ListenResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onConnect func(),
	onEvent func(Event),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		if onConnect != nil {
			onConnect()
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					logger.Error("invalid event format", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				onEvent(evt)
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
