package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
)

// EnvPrefix — префикс переменных окружения: AASP_SERVER_PORT перекроет server.port.
const EnvPrefix = "AASP"

// Config — корневая структура конфигурации песочницы.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера (Console API).
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"` // 0: без ограничения (SSE-стрим живет долго)
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCConfig — gRPC-поверхность. Пустой Addr выключает сервер.
type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig описывает подключение к PostgreSQL (экспорт аудита). Пустой URL: без БД.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int           `mapstructure:"max_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig описывает подключение к Redis (зеркало ленты событий). Пустой Addr: без Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
// Без публичного ключа аутентификация выключена (демо-режим).
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для выдачи токенов
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost" validate:"omitempty,min=4,max=31"`
	Users          []domain.User `mapstructure:"users"`
	PublicKey      []byte        `mapstructure:"-"`
	PrivateKey     []byte        `mapstructure:"-"`
}

func (a AuthConfig) Enabled() bool { return len(a.PublicKey) > 0 }

// SandboxConfig — поведение самой песочницы.
type SandboxConfig struct {
	SeedFile          string        `mapstructure:"seed_file"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gt=0"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer" validate:"gt=0"`
	PatternCacheSize  int           `mapstructure:"pattern_cache_size"`
	EvaluateRPS       float64       `mapstructure:"evaluate_rps" validate:"gte=0"` // 0: без лимита
	EvaluateBurst     int           `mapstructure:"evaluate_burst" validate:"gte=0"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	ActionsPageSize   int           `mapstructure:"actions_page_size" validate:"gt=0"`
}

// AuditConfig — асинхронный журнал (AgentFS).
type AuditConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size" validate:"gte=0"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=0"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"` // debug, info, warn, error
	Format string `mapstructure:"format" validate:"oneof=json console"`          // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// path — явный путь к файлу (флаг --config); пустой — поиск config.yaml.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")    // имя файла без расширения
		v.SetConfigType("yaml")      // формат
		v.AddConfigPath(".")         // ищем в корне
		v.AddConfigPath("./configs") // и в папке с конфигами
	}

	// 2. Настройка переменных окружения (ENV)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет, работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет, читаем файл по указанному пути
	var err error
	if cfg.Auth.PublicKey, err = loadKeyResource(cfg.Auth.PublicKeyPath, EnvPrefix+"_AUTH_PUBLIC_KEY_DATA"); err != nil {
		return nil, err
	}
	if cfg.Auth.PrivateKey, err = loadKeyResource(cfg.Auth.PrivateKeyPath, EnvPrefix+"_AUTH_PRIVATE_KEY_DATA"); err != nil {
		return nil, err
	}

	// 7. Валидация
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Каждый ключ должен быть известен viper, иначе AutomaticEnv его не подхватит при Unmarshal
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("grpc.addr", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", RedisChanEvents)
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("sandbox.seed_file", "")
	v.SetDefault("sandbox.heartbeat_interval", 30*time.Second)
	v.SetDefault("sandbox.subscriber_buffer", 64)
	v.SetDefault("sandbox.pattern_cache_size", 1024)
	v.SetDefault("sandbox.evaluate_rps", 0)
	v.SetDefault("sandbox.evaluate_burst", 20)
	v.SetDefault("sandbox.cors_origins", []string{"*"})
	v.SetDefault("sandbox.actions_page_size", 50)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 10000)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.flush_interval", 500*time.Millisecond)
	v.SetDefault("audit.retry_attempts", 3)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource — ключ из ENV (PEM целиком) или из файла по пути.
func loadKeyResource(path string, envDataKey string) ([]byte, error) {
	// Если ключ прилетел напрямую в ENV
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data), nil
	}
	// Иначе читаем файл по пути из конфига
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	return data, nil
}
