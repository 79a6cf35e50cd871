package memory

import (
	"fmt"
	"os"
	"time"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"gopkg.in/yaml.v3"
)

// Seed — исходное состояние песочницы, к которому возвращает Reset.
type Seed struct {
	Agents   []domain.Agent  `yaml:"agents"`
	Policies []domain.Policy `yaml:"policies"`
}

func (s Seed) clone() Seed {
	cp := Seed{Agents: append([]domain.Agent(nil), s.Agents...)}
	if s.Policies != nil {
		cp.Policies = make([]domain.Policy, len(s.Policies))
		for i, p := range s.Policies {
			cp.Policies[i] = p.Clone()
		}
	}
	return cp
}

// Validate проверяет целостность seed до старта: уникальные ID и валидные перечисления.
func (s Seed) Validate() error {
	agents := make(map[string]struct{}, len(s.Agents))
	for _, a := range s.Agents {
		if a.ID == "" {
			return fmt.Errorf("seed: agent without id")
		}
		if _, dup := agents[a.ID]; dup {
			return fmt.Errorf("seed: duplicate agent id %q", a.ID)
		}
		agents[a.ID] = struct{}{}
	}

	policies := make(map[string]struct{}, len(s.Policies))
	for _, p := range s.Policies {
		if p.ID == "" {
			return fmt.Errorf("seed: policy without id")
		}
		if _, dup := policies[p.ID]; dup {
			return fmt.Errorf("seed: duplicate policy id %q", p.ID)
		}
		policies[p.ID] = struct{}{}

		for _, r := range p.Rules {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("seed: policy %q rule %q: %s", p.ID, r.ID, domain.PublicMessage(err))
			}
		}
	}
	return nil
}

// LoadSeedFile читает seed из YAML. createdAt политик проставляется в createdAt,
// чтобы Reset восстанавливал идентичные значения.
func LoadSeedFile(path string, createdAt time.Time) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file: %w", err)
	}
	for i := range seed.Policies {
		seed.Policies[i].CreatedAt = createdAt
	}

	if err := seed.Validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// DefaultSeed — демо-набор: пять агентов и пять политик (Rate Limiting выключена).
func DefaultSeed(createdAt time.Time) Seed {
	return Seed{
		Agents: []domain.Agent{
			{
				ID:          "invoice-bot",
				Name:        "Invoice Processor",
				Icon:        "FileText",
				Description: "Automates invoice processing and payment workflows",
				Color:       "#3B82F6",
			},
			{
				ID:          "data-analyst",
				Name:        "Data Analyst",
				Icon:        "BarChart3",
				Description: "Queries databases and generates analytical reports",
				Color:       "#10B981",
			},
			{
				ID:          "customer-support",
				Name:        "Support Agent",
				Icon:        "MessageSquare",
				Description: "Handles customer inquiries and ticket resolution",
				Color:       "#8B5CF6",
			},
			{
				ID:          "code-assistant",
				Name:        "Code Assistant",
				Icon:        "Code",
				Description: "Assists with code generation and repository access",
				Color:       "#F59E0B",
			},
			{
				ID:          "security-scanner",
				Name:        "Security Scanner",
				Icon:        "Shield",
				Description: "Performs automated security audits and vulnerability scans",
				Color:       "#EF4444",
			},
		},
		Policies: []domain.Policy{
			{
				ID:          "payment-controls",
				Name:        "Payment Controls",
				Description: "Require approval for payments over $10,000",
				Enabled:     true,
				Rules: []domain.PolicyRule{
					{
						ID:            "pc-1",
						ActionType:    domain.ActionAPICall,
						TargetPattern: `.*stripe.*|.*payment.*`,
						Conditions:    []domain.Condition{{Field: "amount", Operator: domain.OpGt, Value: domain.Number(10000)}},
						Effect:        domain.DecisionRequireApproval,
						Approvers:     []string{"finance-team"},
					},
					{
						ID:            "pc-2",
						ActionType:    domain.ActionAPICall,
						TargetPattern: `.*stripe.*|.*payment.*`,
						Effect:        domain.DecisionAllow,
					},
				},
				CreatedAt: createdAt,
			},
			{
				ID:          "data-access",
				Name:        "Sensitive Data Access",
				Description: "Block access to PII and financial data without authorization",
				Enabled:     true,
				Rules: []domain.PolicyRule{
					{
						ID:            "da-1",
						ActionType:    domain.ActionDBQuery,
						TargetPattern: `.*users.*|.*customers.*|.*pii.*`,
						Conditions:    []domain.Condition{{Field: "operation", Operator: domain.OpEq, Value: domain.String("delete")}},
						Effect:        domain.DecisionBlock,
					},
					{
						ID:            "da-2",
						ActionType:    domain.ActionDBQuery,
						TargetPattern: `.*financial.*|.*salary.*|.*ssn.*`,
						Effect:        domain.DecisionRequireApproval,
						Approvers:     []string{"data-governance"},
					},
				},
				CreatedAt: createdAt,
			},
			{
				ID:          "file-restrictions",
				Name:        "File Access Restrictions",
				Description: "Control access to sensitive file paths",
				Enabled:     true,
				Rules: []domain.PolicyRule{
					{
						ID:            "fr-1",
						ActionType:    domain.ActionFileAccess,
						TargetPattern: `.*\.env.*|.*credentials.*|.*secret.*`,
						Effect:        domain.DecisionBlock,
					},
					{
						ID:            "fr-2",
						ActionType:    domain.ActionFileAccess,
						TargetPattern: `.*/confidential/.*`,
						Effect:        domain.DecisionRequireApproval,
						Approvers:     []string{"compliance-team"},
					},
				},
				CreatedAt: createdAt,
			},
			{
				ID:          "rate-limiting",
				Name:        "Rate Limiting",
				Description: "Prevent excessive API calls",
				Enabled:     false,
				Rules: []domain.PolicyRule{
					{
						ID:         "rl-1",
						ActionType: domain.ActionAPICall,
						Conditions: []domain.Condition{{Field: "rate", Operator: domain.OpGt, Value: domain.Number(100)}},
						Effect:     domain.DecisionBlock,
					},
				},
				CreatedAt: createdAt,
			},
			{
				ID:          "external-comms",
				Name:        "External Communications",
				Description: "Monitor and control external messaging",
				Enabled:     true,
				Rules: []domain.PolicyRule{
					{
						ID:            "ec-1",
						ActionType:    domain.ActionExternal,
						TargetPattern: `.*slack.*|.*email.*|.*teams.*`,
						Conditions:    []domain.Condition{{Field: "channel", Operator: domain.OpContains, Value: domain.String("external")}},
						Effect:        domain.DecisionRequireApproval,
						Approvers:     []string{"communications-team"},
					},
				},
				CreatedAt: createdAt,
			},
		},
	}
}

// SampleRequests — типовые запросы агентов для демонстрации (`aasp evaluate --samples`).
func SampleRequests() []domain.ActionRequest {
	return []domain.ActionRequest{
		{
			AgentID:    "invoice-bot",
			ActionType: domain.ActionAPICall,
			Target:     "https://api.stripe.com/v1/charges",
			Params: map[string]domain.Value{
				"amount":      domain.Number(15000),
				"currency":    domain.String("usd"),
				"description": domain.String("Invoice #INV-2024-001"),
			},
		},
		{
			AgentID:    "data-analyst",
			ActionType: domain.ActionDBQuery,
			Target:     "SELECT * FROM customers WHERE region = ?",
			Params: map[string]domain.Value{
				"table":     domain.String("customers"),
				"operation": domain.String("read"),
				"region":    domain.String("EMEA"),
			},
		},
		{
			AgentID:    "code-assistant",
			ActionType: domain.ActionFileAccess,
			Target:     "/src/config/.env.production",
			Params:     map[string]domain.Value{"operation": domain.String("read")},
		},
		{
			AgentID:    "customer-support",
			ActionType: domain.ActionExternal,
			Target:     "slack://post-message",
			Params: map[string]domain.Value{
				"channel": domain.String("#support-external"),
				"message": domain.String("Customer escalation resolved"),
			},
		},
		{
			AgentID:    "security-scanner",
			ActionType: domain.ActionAPICall,
			Target:     "https://api.github.com/repos/org/app/vulnerabilities",
			Params: map[string]domain.Value{
				"scan_type":            domain.String("full"),
				"include_dependencies": domain.Bool(true),
			},
		},
	}
}
