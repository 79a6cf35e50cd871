package policy

import "github.com/xela07ax/aasp-sandbox/internal/domain"

// Coverage считает, сколько включенных правил применимо к каждому типу действия.
// Правило без ActionType засчитывается всем типам.
func Coverage(policies []domain.Policy) map[domain.ActionType]int {
	coverage := make(map[domain.ActionType]int, len(domain.ActionTypes))
	for _, t := range domain.ActionTypes {
		coverage[t] = 0
	}

	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		for _, r := range p.Rules {
			if r.ActionType != "" {
				coverage[r.ActionType]++
				continue
			}
			for _, t := range domain.ActionTypes {
				coverage[t]++
			}
		}
	}
	return coverage
}
