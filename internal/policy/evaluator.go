package policy

import (
	"strings"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
)

// Evaluator — first-match интерпретатор политик.
type Evaluator struct {
	patterns *PatternCache
}

func NewEvaluator(patterns *PatternCache) *Evaluator {
	if patterns == nil {
		patterns = NewPatternCache(0, nil)
	}
	return &Evaluator{patterns: patterns}
}

// Evaluate обходит включенные политики и их правила в порядке хранения.
// Побеждает первое совпавшее правило (first-match, а не best-match).
func (e *Evaluator) Evaluate(req domain.ActionRequest, policies []domain.Policy) domain.EvaluationResult {
	for i := range policies {
		p := &policies[i]
		if !p.Enabled {
			continue
		}
		for j := range p.Rules {
			rule := &p.Rules[j]
			if !e.ruleMatches(rule, req) {
				continue
			}

			matchedPolicy := p.Clone()
			matchedRule := rule.Clone()
			return domain.EvaluationResult{
				Decision:      rule.Effect,
				Reason:        Reason(rule.Effect, p, rule),
				MatchedPolicy: &matchedPolicy,
				MatchedRule:   &matchedRule,
			}
		}
	}

	return domain.EvaluationResult{
		Decision: domain.DecisionAllow,
		Reason:   DefaultAllowReason,
	}
}

func (e *Evaluator) ruleMatches(rule *domain.PolicyRule, req domain.ActionRequest) bool {
	// 1. Тип действия
	if rule.ActionType != "" && rule.ActionType != req.ActionType {
		return false
	}

	// 2. Паттерн цели. Невалидный паттерн пропускается, а не исключает правило.
	if rule.TargetPattern != "" {
		if re, err := e.patterns.Compile(rule.TargetPattern); err == nil && !re.MatchString(req.Target) {
			return false
		}
	}

	// 3. Условия (AND)
	for _, cond := range rule.Conditions {
		if !e.conditionHolds(cond, req.Params) {
			return false
		}
	}
	return true
}

func (e *Evaluator) conditionHolds(cond domain.Condition, params map[string]domain.Value) bool {
	value, ok := params[cond.Field]
	if !ok {
		return false
	}

	switch cond.Operator {
	case domain.OpEq:
		return value.Equal(cond.Value)
	case domain.OpNeq:
		return !value.Equal(cond.Value)
	case domain.OpGt, domain.OpLt, domain.OpGte, domain.OpLte:
		return compareNumbers(cond.Operator, value, cond.Value)
	case domain.OpContains:
		s, ok := value.AsString()
		return ok && strings.Contains(s, cond.Value.Text())
	case domain.OpMatches:
		s, ok := value.AsString()
		if !ok {
			return false
		}
		re, err := e.patterns.Compile(cond.Value.Text())
		if err != nil {
			return false
		}
		return re.MatchString(s)
	default:
		return false
	}
}

func compareNumbers(op domain.Operator, left, right domain.Value) bool {
	l, ok := left.AsNumber()
	if !ok {
		return false
	}
	r, ok := right.AsNumber()
	if !ok {
		return false
	}

	switch op {
	case domain.OpGt:
		return l > r
	case domain.OpLt:
		return l < r
	case domain.OpGte:
		return l >= r
	case domain.OpLte:
		return l <= r
	}
	return false
}

// Patterns собирает все регулярки набора политик (для Retain кэша).
func Patterns(policies []domain.Policy) []string {
	var out []string
	for _, p := range policies {
		for _, r := range p.Rules {
			if r.TargetPattern != "" {
				out = append(out, r.TargetPattern)
			}
			for _, c := range r.Conditions {
				if c.Operator == domain.OpMatches {
					out = append(out, c.Value.Text())
				}
			}
		}
	}
	return out
}
