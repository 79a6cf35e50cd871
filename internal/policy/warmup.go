package policy

import (
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"go.uber.org/zap"
)

// Warmup прогревает кэш паттернами всех правил, чтобы первый запрос не платил
// за компиляцию. Возвращает невалидные паттерны: такие правила оцениваются
// без проверки цели.
func Warmup(cache *PatternCache, policies []domain.Policy) []string {
	var invalid []string
	for _, p := range Patterns(policies) {
		if _, err := cache.Compile(p); err != nil {
			invalid = append(invalid, p)
		}
	}

	if len(invalid) > 0 {
		cache.logger.Warn("policies contain invalid target patterns",
			zap.Strings("patterns", invalid))
	}
	cache.logger.Debug("pattern cache warmed", zap.Int("count", cache.Len()))
	return invalid
}
