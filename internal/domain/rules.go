package domain

import "strings"

// Validate проверяет правило до того, как оно попадет в PDP: эффект из трех
// решений, известный тип действия, условия со скалярным значением.
func (r PolicyRule) Validate() error {
	if !r.Effect.Valid() {
		return ValidationError("effect must be one of allow, block, require_approval")
	}
	if r.ActionType != "" && !r.ActionType.Valid() {
		return ValidationError("action_type %q is unknown", r.ActionType)
	}
	for j, c := range r.Conditions {
		if strings.TrimSpace(c.Field) == "" {
			return ValidationError("conditions[%d].field is required", j)
		}
		if !c.Operator.Valid() {
			return ValidationError("conditions[%d].operator %q is unknown", j, c.Operator)
		}
		if !c.Value.IsScalar() {
			return ValidationError("conditions[%d].value must be a string, number or boolean, got %s", j, c.Value.Kind())
		}
	}
	return nil
}

// ValidateRules проверяет правила одной политики, путь ошибки: rules[i].<поле>.
func ValidateRules(rules []PolicyRule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return ValidationError("rules[%d].%s", i, PublicMessage(err))
		}
	}
	return nil
}

// ValidatePolicies проверяет кандидатный набор dry-run.
func ValidatePolicies(policies []Policy) error {
	for pi, p := range policies {
		if err := ValidateRules(p.Rules); err != nil {
			return ValidationError("policies[%d].%s", pi, PublicMessage(err))
		}
	}
	return nil
}
