package events

import (
	"sync"

	"go.uber.org/zap"
)

const DefaultBuffer = 64

// Broadcaster — fan-out нотификатор: по буферизированному каналу на подписчика.
// Publish никогда не блокируется: внешний подписчик (Subscribe) с переполненным
// буфером отключается, медленный потребитель не может затормозить хранилище.
// Внутренние listener-ы (SubscribeFunc) не отключаются: у них очередь без предела.
type Broadcaster struct {
	mu       sync.Mutex
	subs     []*Subscription // В порядке регистрации
	closed   bool
	buffer   int
	observer Observer
	logger   *zap.Logger
	wg       sync.WaitGroup // Горутины-диспетчеры SubscribeFunc
}

func NewBroadcaster(buffer int, observer Observer, logger *zap.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		buffer:   buffer,
		observer: observer,
		logger:   logger.Named("notifier"),
	}
}

// Subscription — подписка на ленту. C закрывается при отписке или отключении.
type Subscription struct {
	b       *Broadcaster
	ch      chan Event
	dropped bool
	closed  bool

	// Только у SubscribeFunc: очередь диспетчера и сигнал о новых событиях.
	mailbox []Event
	wake    chan struct{}
}

func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped сообщает, была ли подписка отключена из-за переполнения буфера.
func (s *Subscription) Dropped() bool {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.dropped
}

// Close идемпотентен.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.removeLocked(s)
}

// Subscribe регистрирует подписчика. Событий, опубликованных до подписки, он не получит.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = b.buffer
	}
	sub := &Subscription{b: b, ch: make(chan Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.subs = append(b.subs, sub)
	b.observer.SubscribersChanged(len(b.subs))
	return sub
}

// SubscribeFunc — observer-вариант: listener вызывается в отдельной горутине,
// паника внутри listener изолируется и логируется. Отставший listener не теряет
// событий: они копятся в его очереди, а Publish по-прежнему не ждет.
// Возвращает функцию отписки (идемпотентна): она доставляет уже поставленные
// в очередь события и ждет диспетчера. Нельзя вызывать изнутри listener.
func (b *Broadcaster) SubscribeFunc(name string, listener func(Event)) (unsubscribe func()) {
	sub := &Subscription{b: b, wake: make(chan struct{}, 1)}
	done := make(chan struct{})

	b.mu.Lock()
	if b.closed {
		sub.closed = true
		close(sub.wake)
	} else {
		b.subs = append(b.subs, sub)
		b.observer.SubscribersChanged(len(b.subs))
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer close(done)
		for {
			_, open := <-sub.wake

			b.mu.Lock()
			batch := sub.mailbox
			sub.mailbox = nil
			b.mu.Unlock()

			for _, evt := range batch {
				b.dispatch(name, listener, evt)
			}
			if !open {
				return
			}
		}
	}()

	return func() {
		sub.Close()
		<-done
	}
}

func (b *Broadcaster) dispatch(name string, listener func(Event), evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				zap.String("listener", name),
				zap.String("event", evt.Type),
				zap.Any("panic", r))
		}
	}()
	listener(evt)
}

// Publish рассылает событие всем, кто подписан на момент вызова.
func (b *Broadcaster) Publish(eventType string, data interface{}) {
	b.Send(New(eventType, data))
}

func (b *Broadcaster) Send(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	var slow []*Subscription
	for _, sub := range b.subs {
		if sub.wake != nil {
			sub.mailbox = append(sub.mailbox, evt)
			select {
			case sub.wake <- struct{}{}:
			default: // Диспетчер уже разбужен
			}
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			slow = append(slow, sub)
		}
	}

	// Отключаем тех, кто не успевает (Load Shedding)
	for _, sub := range slow {
		sub.dropped = true
		b.removeLocked(sub)
		b.observer.SubscriberDropped()
		b.logger.Warn("slow subscriber disconnected", zap.String("event", evt.Type))
	}
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close отключает всех подписчиков и ждет завершения диспетчеров SubscribeFunc.
// Нельзя вызывать изнутри listener.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, sub := range b.subs {
			sub.shutLocked()
		}
		b.subs = nil
		b.observer.SubscribersChanged(0)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Broadcaster) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.shutLocked()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.observer.SubscribersChanged(len(b.subs))
}

func (s *Subscription) shutLocked() {
	s.closed = true
	if s.wake != nil {
		close(s.wake)
		return
	}
	close(s.ch)
}
