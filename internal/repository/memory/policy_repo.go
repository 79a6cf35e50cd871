package memory

import (
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/events"
)

// ListPolicies возвращает снимок политик в порядке хранения (он же порядок оценки).
func (s *Store) ListPolicies() []domain.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Policy, len(s.policies))
	for i, p := range s.policies {
		out[i] = p.Clone()
	}
	return out
}

func (s *Store) GetPolicy(id string) (domain.Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.policyIndexLocked(id); i >= 0 {
		return s.policies[i].Clone(), true
	}
	return domain.Policy{}, false
}

// CreatePolicy добавляет политику в конец списка. Идентификаторы и createdAt
// проставляет вызывающий (сервисный слой).
func (s *Store) CreatePolicy(p domain.Policy) domain.Policy {
	stored := p.Clone()

	s.mu.Lock()
	s.policies = append(s.policies, stored)
	out := stored.Clone()
	s.commitLocked(pending{eventType: events.PolicyCreated, data: out.Clone()})
	return out
}

// UpdatePolicy применяет частичное обновление. ID и CreatedAt не меняются.
func (s *Store) UpdatePolicy(id string, patch domain.PolicyPatch) (domain.Policy, bool) {
	s.mu.Lock()
	i := s.policyIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.Policy{}, false
	}

	p := &s.policies[i]
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Enabled != nil {
		p.Enabled = *patch.Enabled
	}
	if patch.Rules != nil {
		p.Rules = domain.Policy{Rules: *patch.Rules}.Clone().Rules
	}
	out := p.Clone()
	s.commitLocked(pending{eventType: events.PolicyUpdated, data: out.Clone()})
	return out, true
}

func (s *Store) DeletePolicy(id string) bool {
	s.mu.Lock()
	i := s.policyIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	deleted := s.policies[i].Clone()
	s.policies = append(s.policies[:i], s.policies[i+1:]...)
	s.commitLocked(pending{eventType: events.PolicyDeleted, data: deleted})
	return true
}

// TogglePolicy инвертирует Enabled.
func (s *Store) TogglePolicy(id string) (domain.Policy, bool) {
	s.mu.Lock()
	i := s.policyIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.Policy{}, false
	}
	s.policies[i].Enabled = !s.policies[i].Enabled
	out := s.policies[i].Clone()
	s.commitLocked(pending{eventType: events.PolicyToggled, data: out.Clone()})
	return out, true
}

func (s *Store) policyIndexLocked(id string) int {
	for i := range s.policies {
		if s.policies[i].ID == id {
			return i
		}
	}
	return -1
}
