package policy

import "github.com/xela07ax/aasp-sandbox/internal/domain"

// Decider — Policy Decision Point. Чистая функция: не блокирует, не пишет состояние
// и никогда не возвращает ошибку (любые несовпадения типов деградируют в "false").
type Decider interface {
	Evaluate(req domain.ActionRequest, policies []domain.Policy) domain.EvaluationResult
}

// DefaultAllowReason — причина при отсутствии совпадений.
// Fail-open здесь осознанный выбор песочницы; боевой PDP должен работать как Default Deny.
const DefaultAllowReason = "No matching policy found — action allowed by default."
