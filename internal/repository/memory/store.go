package memory

/*
Файл store.go содержит агрегат песочницы: агенты, политики, лента действий и очередь
заявок живут в одной структуре под одним RWMutex. Состояние волатильное, Reset
возвращает его к снимку seed.
*/

import (
	"sync"
	"time"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"github.com/xela07ax/aasp-sandbox/internal/policy"
	"go.uber.org/zap"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

// pending — событие, которое уйдет подписчикам после применения мутации.
type pending struct {
	eventType string
	data      interface{}
}

type Store struct {
	mu    sync.RWMutex
	pubMu sync.Mutex // Порядок публикации совпадает с порядком мутаций

	agents    []domain.Agent
	policies  []domain.Policy
	actions   []domain.Action          // В порядке создания
	approvals []domain.ApprovalRequest // В порядке создания

	actionIdx   map[string]int
	approvalIdx map[string]int

	seed      Seed
	publisher events.Publisher
	logger    *zap.Logger
}

// NewStore создает хранилище, инициализированное копией seed.
// publisher вызывается под pubMu и не должен синхронно обращаться к хранилищу.
func NewStore(seed Seed, publisher events.Publisher, logger *zap.Logger) *Store {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		seed:      seed.clone(),
		publisher: publisher,
		logger:    logger.Named("store"),
	}
	s.restoreLocked()
	return s
}

func (s *Store) restoreLocked() {
	snapshot := s.seed.clone()
	s.agents = snapshot.Agents
	s.policies = snapshot.Policies
	if s.policies == nil {
		s.policies = []domain.Policy{}
	}
	s.actions = nil
	s.approvals = nil
	s.actionIdx = make(map[string]int)
	s.approvalIdx = make(map[string]int)
}

// commitLocked снимает блокировку агрегата и публикует события мутации.
// pubMu берется до Unlock: следующая мутация дождется, пока уйдут события
// предыдущей, поэтому подписчики видят события в порядке применения.
func (s *Store) commitLocked(batch ...pending) {
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	for _, e := range batch {
		s.publisher.Publish(e.eventType, e.data)
	}
}

// Reset возвращает агрегат к исходному seed (включая createdAt политик).
// Повторный вызов дает то же самое состояние.
func (s *Store) Reset() {
	s.mu.Lock()
	s.restoreLocked()
	s.logger.Info("sandbox state reset to seed")
	s.commitLocked(pending{eventType: events.Reset})
}

// Agents возвращает реестр агентов (только чтение).
func (s *Store) Agents() []domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Agent(nil), s.agents...)
}

func (s *Store) GetAgent(id string) (domain.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Agent{}, false
}

// Stats собирает агрегаты дашборда на момент now.
func (s *Store) Stats(now time.Time) domain.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.Stats{
		TotalActions:   len(s.actions),
		PolicyCoverage: policy.Coverage(s.policies),
	}

	since := now.Add(-24 * time.Hour)
	for _, a := range s.actions {
		if a.Timestamp.After(since) {
			stats.ActionsLast24h++
		}
		switch a.Decision {
		case domain.DecisionAllow:
			stats.Allowed++
		case domain.DecisionBlock:
			stats.Blocked++
		}
	}
	for _, ap := range s.approvals {
		if ap.Status == domain.StatusPending {
			stats.PendingApprovals++
		}
	}
	for _, p := range s.policies {
		if p.Enabled {
			stats.ActivePolicies++
		}
	}
	return stats
}
