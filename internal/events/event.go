package events

import "time"

// Типы событий, которые публикует хранилище песочницы.
const (
	ActionCreated    = "action.created"
	PolicyCreated    = "policy.created"
	PolicyUpdated    = "policy.updated"
	PolicyDeleted    = "policy.deleted"
	PolicyToggled    = "policy.toggled"
	ApprovalCreated  = "approval.created"
	ApprovalResolved = "approval.resolved"
	Reset            = "reset"

	// Служебные события транспорта (в Broadcaster не публикуются)
	Connected = "connected"
	Heartbeat = "heartbeat"
)

// Event — единица ленты событий.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func New(eventType string, data interface{}) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
}

// Publisher — то, что нужно хранилищу от нотификатора.
type Publisher interface {
	Publish(eventType string, data interface{})
}

// Observer получает сигналы о состоянии подписчиков (метрики).
type Observer interface {
	SubscribersChanged(n int)
	SubscriberDropped()
}

type nopObserver struct{}

func (nopObserver) SubscribersChanged(int) {}
func (nopObserver) SubscriberDropped()     {}
