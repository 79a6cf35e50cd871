package policy

import (
	"strings"
	"testing"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
)

func rulePolicy(id string, enabled bool, rules ...domain.PolicyRule) domain.Policy {
	return domain.Policy{ID: id, Name: strings.ToUpper(id), Enabled: enabled, Rules: rules}
}

func TestEvaluator_Operators(t *testing.T) {
	t.Parallel()

	params := map[string]domain.Value{
		"amount":   domain.Number(500),
		"currency": domain.String("usd"),
		"channel":  domain.String("#Support-External"),
		"urgent":   domain.Bool(true),
		"tags":     domain.Composite([]byte(`["a","b"]`)),
	}

	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"eq string", domain.Condition{Field: "currency", Operator: domain.OpEq, Value: domain.String("usd")}, true},
		{"eq type mismatch", domain.Condition{Field: "amount", Operator: domain.OpEq, Value: domain.String("500")}, false},
		{"eq bool", domain.Condition{Field: "urgent", Operator: domain.OpEq, Value: domain.Bool(true)}, true},
		{"eq composite", domain.Condition{Field: "tags", Operator: domain.OpEq, Value: domain.Composite([]byte(`[ "a", "b" ]`))}, true},
		{"neq", domain.Condition{Field: "currency", Operator: domain.OpNeq, Value: domain.String("eur")}, true},
		{"neq type mismatch", domain.Condition{Field: "amount", Operator: domain.OpNeq, Value: domain.String("500")}, true},
		{"gt", domain.Condition{Field: "amount", Operator: domain.OpGt, Value: domain.Number(499)}, true},
		{"gt equal", domain.Condition{Field: "amount", Operator: domain.OpGt, Value: domain.Number(500)}, false},
		{"gte equal", domain.Condition{Field: "amount", Operator: domain.OpGte, Value: domain.Number(500)}, true},
		{"lt", domain.Condition{Field: "amount", Operator: domain.OpLt, Value: domain.Number(501)}, true},
		{"lte", domain.Condition{Field: "amount", Operator: domain.OpLte, Value: domain.Number(499)}, false},
		{"gt on string", domain.Condition{Field: "currency", Operator: domain.OpGt, Value: domain.Number(1)}, false},
		{"gt with string operand", domain.Condition{Field: "amount", Operator: domain.OpGt, Value: domain.String("1")}, false},
		{"contains case sensitive", domain.Condition{Field: "channel", Operator: domain.OpContains, Value: domain.String("external")}, false},
		{"contains", domain.Condition{Field: "channel", Operator: domain.OpContains, Value: domain.String("External")}, true},
		{"contains on number", domain.Condition{Field: "amount", Operator: domain.OpContains, Value: domain.String("5")}, false},
		{"matches ignores case", domain.Condition{Field: "channel", Operator: domain.OpMatches, Value: domain.String("^#support-")}, true},
		{"matches invalid regexp", domain.Condition{Field: "channel", Operator: domain.OpMatches, Value: domain.String("([")}, false},
		{"matches on number", domain.Condition{Field: "amount", Operator: domain.OpMatches, Value: domain.String("5")}, false},
		{"missing field", domain.Condition{Field: "nope", Operator: domain.OpNeq, Value: domain.String("x")}, false},
		{"unknown operator", domain.Condition{Field: "amount", Operator: "between", Value: domain.Number(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewEvaluator(nil)
			policies := []domain.Policy{rulePolicy("p", true, domain.PolicyRule{
				ID: "r", Conditions: []domain.Condition{tt.cond}, Effect: domain.DecisionBlock,
			})}

			res := e.Evaluate(domain.ActionRequest{ActionType: domain.ActionAPICall, Target: "t", Params: params}, policies)
			if got := res.Decision == domain.DecisionBlock; got != tt.want {
				t.Errorf("matched = %v, want %v (result %+v)", got, tt.want, res)
			}
		})
	}
}

func TestEvaluator_MissingFieldNeverMatches(t *testing.T) {
	t.Parallel()

	operands := map[domain.Operator]domain.Value{
		domain.OpEq:       domain.String("x"),
		domain.OpNeq:      domain.String("x"),
		domain.OpGt:       domain.Number(0),
		domain.OpLt:       domain.Number(0),
		domain.OpGte:      domain.Number(0),
		domain.OpLte:      domain.Number(0),
		domain.OpContains: domain.String(""),
		domain.OpMatches:  domain.String(".*"),
	}

	for op, operand := range operands {
		t.Run(string(op), func(t *testing.T) {
			t.Parallel()
			e := NewEvaluator(nil)
			policies := []domain.Policy{rulePolicy("p", true, domain.PolicyRule{
				ID:         "r",
				Conditions: []domain.Condition{{Field: "absent", Operator: op, Value: operand}},
				Effect:     domain.DecisionBlock,
			})}

			res := e.Evaluate(domain.ActionRequest{
				ActionType: domain.ActionAPICall,
				Target:     "t",
				Params:     map[string]domain.Value{"present": domain.String("x")},
			}, policies)
			if res.Decision != domain.DecisionAllow || res.MatchedRule != nil {
				t.Errorf("%s on a missing field matched: %+v", op, res)
			}
		})
	}
}

func TestEvaluator_FirstMatchWins(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(nil)

	policies := []domain.Policy{
		rulePolicy("disabled", false, domain.PolicyRule{ID: "d1", Effect: domain.DecisionBlock}),
		rulePolicy("typed", true, domain.PolicyRule{ID: "t1", ActionType: domain.ActionDBQuery, Effect: domain.DecisionBlock}),
		rulePolicy("first", true,
			domain.PolicyRule{ID: "f1", TargetPattern: "stripe", Effect: domain.DecisionRequireApproval},
			domain.PolicyRule{ID: "f2", Effect: domain.DecisionAllow},
		),
		rulePolicy("second", true, domain.PolicyRule{ID: "s1", Effect: domain.DecisionBlock}),
	}

	res := e.Evaluate(domain.ActionRequest{ActionType: domain.ActionAPICall, Target: "https://API.STRIPE.com"}, policies)
	if res.Decision != domain.DecisionRequireApproval || res.MatchedRule.ID != "f1" || res.MatchedPolicy.ID != "first" {
		t.Fatalf("result = %+v", res)
	}

	res = e.Evaluate(domain.ActionRequest{ActionType: domain.ActionAPICall, Target: "https://example.com"}, policies)
	if res.Decision != domain.DecisionAllow || res.MatchedRule.ID != "f2" {
		t.Fatalf("fallthrough result = %+v", res)
	}
	if res.Reason != `Allowed by policy "FIRST"` {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestEvaluator_DefaultAllow(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(nil)

	for _, policies := range [][]domain.Policy{
		nil,
		{},
		{rulePolicy("off", false, domain.PolicyRule{ID: "x", Effect: domain.DecisionBlock})},
	} {
		res := e.Evaluate(domain.ActionRequest{ActionType: domain.ActionExternal, Target: "x"}, policies)
		if res.Decision != domain.DecisionAllow || res.Reason != DefaultAllowReason {
			t.Errorf("result = %+v", res)
		}
		if res.MatchedPolicy != nil || res.MatchedRule != nil {
			t.Errorf("default allow must not carry a match: %+v", res)
		}
	}
}

func TestEvaluator_InvalidPatternSkipsTargetCheck(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(nil)

	policies := []domain.Policy{rulePolicy("broken", true, domain.PolicyRule{
		ID: "b1", TargetPattern: "([", Effect: domain.DecisionBlock,
	})}
	res := e.Evaluate(domain.ActionRequest{ActionType: domain.ActionFileAccess, Target: "/anything"}, policies)
	if res.Decision != domain.DecisionBlock {
		t.Errorf("decision = %q, want block", res.Decision)
	}
}

func TestEvaluator_ResultIsDetached(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(nil)

	policies := []domain.Policy{rulePolicy("p", true, domain.PolicyRule{
		ID:         "r",
		Conditions: []domain.Condition{{Field: "n", Operator: domain.OpGt, Value: domain.Number(1)}},
		Effect:     domain.DecisionBlock,
	})}
	res := e.Evaluate(domain.ActionRequest{Params: map[string]domain.Value{"n": domain.Number(2)}}, policies)

	res.MatchedRule.Conditions[0].Field = "mutated"
	res.MatchedPolicy.Name = "mutated"
	if policies[0].Rules[0].Conditions[0].Field != "n" || policies[0].Name != "P" {
		t.Error("mutating the result leaked into the policy set")
	}
}

func TestReason(t *testing.T) {
	t.Parallel()

	p := &domain.Policy{Name: "Payment Controls"}
	cond := []domain.Condition{
		{Field: "amount", Operator: domain.OpGt, Value: domain.Number(10000)},
		{Field: "currency", Operator: domain.OpEq, Value: domain.String("usd")},
	}

	tests := []struct {
		name     string
		decision domain.Decision
		rule     domain.PolicyRule
		want     string
	}{
		{"allow", domain.DecisionAllow, domain.PolicyRule{}, `Allowed by policy "Payment Controls"`},
		{"block pattern", domain.DecisionBlock, domain.PolicyRule{TargetPattern: "x", Conditions: cond},
			`Blocked by policy "Payment Controls" - target matches restricted pattern`},
		{"block conditions", domain.DecisionBlock, domain.PolicyRule{Conditions: cond},
			`Blocked by policy "Payment Controls" - amount gt 10000, currency eq usd`},
		{"block bare", domain.DecisionBlock, domain.PolicyRule{}, `Blocked by policy "Payment Controls"`},
		{"approval conditions", domain.DecisionRequireApproval, domain.PolicyRule{TargetPattern: "x", Conditions: cond[:1]},
			"Requires approval - amount gt 10000 (Policy: Payment Controls)"},
		{"approval pattern", domain.DecisionRequireApproval, domain.PolicyRule{TargetPattern: "x"},
			`Requires approval per policy "Payment Controls" - target matches protected pattern`},
		{"approval bare", domain.DecisionRequireApproval, domain.PolicyRule{}, `Requires approval per policy "Payment Controls"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Reason(tt.decision, p, &tt.rule); got != tt.want {
				t.Errorf("Reason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCoverage(t *testing.T) {
	t.Parallel()

	policies := []domain.Policy{
		rulePolicy("a", true,
			domain.PolicyRule{ActionType: domain.ActionAPICall, Effect: domain.DecisionAllow},
			domain.PolicyRule{Effect: domain.DecisionBlock}, // без типа: всем
		),
		rulePolicy("off", false, domain.PolicyRule{ActionType: domain.ActionDBQuery, Effect: domain.DecisionBlock}),
	}

	got := Coverage(policies)
	want := map[domain.ActionType]int{
		domain.ActionAPICall:    2,
		domain.ActionDBQuery:    1,
		domain.ActionFileAccess: 1,
		domain.ActionExternal:   1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("coverage[%s] = %d, want %d", k, got[k], v)
		}
	}

	empty := Coverage(nil)
	if len(empty) != len(domain.ActionTypes) {
		t.Errorf("coverage must list every action type, got %v", empty)
	}
}
