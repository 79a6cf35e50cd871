package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"go.uber.org/zap"
)

const DefaultHeartbeat = 30 * time.Second

const wsWriteTimeout = 10 * time.Second

// Subscriber — источник ленты (events.Broadcaster)
type Subscriber interface {
	Subscribe(buffer int) *events.Subscription
}

// StreamHandler отдает ленту событий: SSE и WebSocket с одинаковыми кадрами.
// Первым идет connected, далее события хранилища и периодический heartbeat.
type StreamHandler struct {
	feed      Subscriber
	heartbeat time.Duration
	buffer    int
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func NewStreamHandler(feed Subscriber, heartbeat time.Duration, buffer int, logger *zap.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		feed:      feed,
		heartbeat: heartbeat,
		buffer:    buffer,
		upgrader: websocket.Upgrader{
			// CORS уже решен на уровне роутера
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("stream-handler"),
	}
}

// SSE GET /api/v1/stream
func (h *StreamHandler) SSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Подписываемся до отправки connected: все, что случится после, клиент увидит
	sub := h.feed.Subscribe(h.buffer)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(evt events.Event) bool {
		data, err := json.Marshal(evt)
		if err != nil {
			h.logger.Error("failed to encode event", zap.String("type", evt.Type), zap.Error(err))
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	h.pump(r, nil, sub, send)
}

// WebSocket GET /api/v1/stream/ws: те же кадры JSON-сообщениями
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.feed.Subscribe(h.buffer)
	defer sub.Close()

	// Читатель нужен, чтобы заметить закрытие соединения клиентом
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read", zap.Error(err))
				}
				return
			}
		}
	}()

	send := func(evt events.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(evt) == nil
	}

	h.pump(r, gone, sub, send)
}

// pump крутит цикл доставки, пока клиент подключен и запись проходит.
// gone == nil: признак отключения только через контекст запроса.
func (h *StreamHandler) pump(r *http.Request, gone <-chan struct{}, sub *events.Subscription, send func(events.Event) bool) {
	if !send(events.New(events.Connected, nil)) {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case evt, ok := <-sub.C():
			if !ok {
				if sub.Dropped() {
					h.logger.Info("stream subscriber dropped", zap.String("remote", r.RemoteAddr))
				}
				return
			}
			if !send(evt) {
				return
			}
		case <-ticker.C:
			if !send(events.New(events.Heartbeat, nil)) {
				return
			}
		}
	}
}
