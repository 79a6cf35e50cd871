package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "aasp"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanEvents — зеркало ленты событий песочницы (действия, политики, заявки).
	RedisChanEvents = RedisNamespace + ":events"
)
