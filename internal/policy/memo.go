package policy

import (
	"regexp"
	"sync"

	"go.uber.org/zap"
)

const defaultCacheLimit = 1024

type compiled struct {
	re  *regexp.Regexp
	err error // Невалидные паттерны тоже кэшируем, чтобы не компилировать их на каждом запросе
}

// PatternCache — потокобезопасный кэш скомпилированных регулярных выражений.
// Ключ: исходный текст паттерна, поэтому правка правила автоматически
// приводит к новому ключу; старые записи вычищает Retain.
type PatternCache struct {
	mu      sync.RWMutex
	entries map[string]compiled
	limit   int
	logger  *zap.Logger
}

func NewPatternCache(limit int, logger *zap.Logger) *PatternCache {
	if limit <= 0 {
		limit = defaultCacheLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatternCache{
		entries: make(map[string]compiled),
		limit:   limit,
		logger:  logger.Named("patterns"),
	}
}

// Compile возвращает регулярку без учета регистра. Это "Hot Path" оценщика.
func (c *PatternCache) Compile(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	entry, ok := c.entries[pattern]
	c.mu.RUnlock()
	if ok {
		return entry.re, entry.err
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		c.logger.Debug("invalid pattern cached", zap.String("pattern", pattern), zap.Error(err))
	}

	c.mu.Lock()
	// Защита от бесконтрольного роста (dry-run может присылать произвольные паттерны)
	if len(c.entries) >= c.limit {
		c.entries = make(map[string]compiled)
	}
	c.entries[pattern] = compiled{re: re, err: err}
	c.mu.Unlock()

	return re, err
}

// Retain оставляет в кэше только переданные паттерны (актуальный набор правил).
func (c *PatternCache) Retain(patterns []string) {
	keep := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		keep[p] = struct{}{}
	}

	c.mu.Lock()
	for p := range c.entries {
		if _, ok := keep[p]; !ok {
			delete(c.entries, p)
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.logger.Debug("pattern cache pruned", zap.Int("count", size))
}

func (c *PatternCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
