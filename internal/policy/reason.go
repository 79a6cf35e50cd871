package policy

import (
	"fmt"
	"strings"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
)

// Reason формирует человекочитаемое объяснение решения.
// Используется только для отображения и аудита, на control flow не влияет.
func Reason(decision domain.Decision, p *domain.Policy, rule *domain.PolicyRule) string {
	switch decision {
	case domain.DecisionAllow:
		return fmt.Sprintf("Allowed by policy %q", p.Name)

	case domain.DecisionBlock:
		if rule.TargetPattern != "" {
			return fmt.Sprintf("Blocked by policy %q - target matches restricted pattern", p.Name)
		}
		if len(rule.Conditions) > 0 {
			return fmt.Sprintf("Blocked by policy %q - %s", p.Name, describeConditions(rule.Conditions))
		}
		return fmt.Sprintf("Blocked by policy %q", p.Name)

	case domain.DecisionRequireApproval:
		if len(rule.Conditions) > 0 {
			return fmt.Sprintf("Requires approval - %s (Policy: %s)", describeConditions(rule.Conditions), p.Name)
		}
		if rule.TargetPattern != "" {
			return fmt.Sprintf("Requires approval per policy %q - target matches protected pattern", p.Name)
		}
		return fmt.Sprintf("Requires approval per policy %q", p.Name)
	}

	return fmt.Sprintf("Unknown decision %q by policy %q", decision, p.Name)
}

// describeConditions: "amount gt 10000, currency eq usd"
func describeConditions(conds []domain.Condition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value.Text()))
	}
	return strings.Join(parts, ", ")
}
