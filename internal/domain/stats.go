package domain

// Stats — сводка для дашборда песочницы.
type Stats struct {
	TotalActions     int `json:"total_actions"`
	ActionsLast24h   int `json:"actions_last_24h"`
	Allowed          int `json:"allowed"`
	Blocked          int `json:"blocked"`
	PendingApprovals int `json:"pending_approvals"`
	ActivePolicies   int `json:"active_policies"`

	// Сколько включенных правил покрывает каждый тип действия
	PolicyCoverage map[ActionType]int `json:"policy_coverage"`
}
