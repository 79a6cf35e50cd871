package domain

import (
	"time"
)

// ActionType — категория действия агента.
type ActionType string

const (
	ActionAPICall    ActionType = "api_call"
	ActionDBQuery    ActionType = "db_query"
	ActionFileAccess ActionType = "file_access"
	ActionExternal   ActionType = "external"
)

// ActionTypes — все известные типы действий в порядке отображения.
var ActionTypes = []ActionType{ActionAPICall, ActionDBQuery, ActionFileAccess, ActionExternal}

func (t ActionType) Valid() bool {
	switch t {
	case ActionAPICall, ActionDBQuery, ActionFileAccess, ActionExternal:
		return true
	}
	return false
}

// Decision определяет, что делать с действием агента (эффект правила).
type Decision string

const (
	DecisionAllow           Decision = "allow"            // Разрешить
	DecisionBlock           Decision = "block"            // Заблокировать
	DecisionRequireApproval Decision = "require_approval" // Human-in-the-loop: ждать решения оператора
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionAllow, DecisionBlock, DecisionRequireApproval:
		return true
	}
	return false
}

// Operator — оператор сравнения в условии правила.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpMatches  Operator = "matches" // Регулярное выражение, без учета регистра
)

func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte, OpContains, OpMatches:
		return true
	}
	return false
}

// Condition — атомарный предикат над params действия.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    Value    `json:"value" yaml:"value"`
}

// PolicyRule — единица enforcement. Пустые ActionType/TargetPattern/Conditions
// означают "без ограничения" по соответствующему признаку.
type PolicyRule struct {
	ID            string      `json:"id" yaml:"id"`
	ActionType    ActionType  `json:"action_type,omitempty" yaml:"action_type,omitempty"`
	TargetPattern string      `json:"target_pattern,omitempty" yaml:"target_pattern,omitempty"` // regexp, без учета регистра
	Conditions    []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`         // AND
	Effect        Decision    `json:"effect" yaml:"effect"`

	// Approvers — только метаданные, маршрутизации по ним нет.
	Approvers []string `json:"approvers,omitempty" yaml:"approvers,omitempty"`
}

// Policy — именованный упорядоченный набор правил.
type Policy struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Enabled     bool         `json:"enabled" yaml:"enabled"`
	Rules       []PolicyRule `json:"rules" yaml:"rules"`
	CreatedAt   time.Time    `json:"created_at" yaml:"-"`
}

// PolicyPatch — частичное обновление политики. nil означает "не менять".
// ID и CreatedAt не редактируются.
type PolicyPatch struct {
	Name        *string
	Description *string
	Enabled     *bool
	Rules       *[]PolicyRule
}

// Clone возвращает глубокую копию политики, чтобы снаружи нельзя было
// мутировать состояние хранилища.
func (p Policy) Clone() Policy {
	cp := p
	if p.Rules != nil {
		cp.Rules = make([]PolicyRule, len(p.Rules))
		for i, r := range p.Rules {
			cp.Rules[i] = r.Clone()
		}
	}
	return cp
}

func (r PolicyRule) Clone() PolicyRule {
	cp := r
	if r.Conditions != nil {
		cp.Conditions = append([]Condition(nil), r.Conditions...)
	}
	if r.Approvers != nil {
		cp.Approvers = append([]string(nil), r.Approvers...)
	}
	return cp
}

// EvaluationResult — результат работы Evaluator.
type EvaluationResult struct {
	Decision      Decision    `json:"decision"`
	Reason        string      `json:"reason"`
	MatchedPolicy *Policy     `json:"matched_policy,omitempty"`
	MatchedRule   *PolicyRule `json:"matched_rule,omitempty"`
}

// PolicyInput — политика в том виде, в каком ее присылает клиент (создание, dry-run).
// Отсутствующий enabled трактуется как true.
type PolicyInput struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Enabled     *bool        `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Rules       []PolicyRule `json:"rules" yaml:"rules"`
}

func (in PolicyInput) ToPolicy() Policy {
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	return Policy{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		Enabled:     enabled,
		Rules:       Policy{Rules: in.Rules}.Clone().Rules,
	}
}

// DryRunRequest — запрос на пробную оценку. Policies == nil означает
// "оценить по сохраненным политикам"; пустой массив: по пустому набору.
type DryRunRequest struct {
	Action   ActionRequest  `json:"action"`
	Policies *[]PolicyInput `json:"policies,omitempty"`
}

// Candidates переводит кандидатный набор в политики (nil сохраняется).
func (r DryRunRequest) Candidates() *[]Policy {
	if r.Policies == nil {
		return nil
	}
	out := make([]Policy, 0, len(*r.Policies))
	for _, in := range *r.Policies {
		out = append(out, in.ToPolicy())
	}
	return &out
}
