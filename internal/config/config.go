package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию игрового сервера.
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Режим движка: "parser" (детерминированный) или "generator".
	EngineMode string `envconfig:"ENGINE_MODE" default:"generator"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки Redis (кэш снапшотов). Пустой адрес отключает кэш.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string

	// Настройки RabbitMQ. Пустой URL отключает публикацию событий.
	RabbitMQURL      string `envconfig:"RABBITMQ_URL" default:""`
	ActionEventQueue string `envconfig:"ACTION_EVENT_QUEUE" default:"player_actions"`

	// Настройки AI
	AIProvider   string        `envconfig:"AI_PROVIDER" default:"openai"`
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:""`
	AIModel      string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxRetries int           `envconfig:"AI_MAX_RETRIES" default:"2"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// readSecret читает секрет из Docker Secrets, с откатом на переменную
// окружения для локального запуска без оркестратора.
func readSecret(secretName, envFallback string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err == nil {
		secret := strings.TrimSpace(string(secretBytes))
		if secret == "" {
			return "", fmt.Errorf("secret file %s is empty", filePath)
		}
		return secret, nil
	}
	if v := os.Getenv(envFallback); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("failed to read secret %s (file %s or env %s)", secretName, filePath, envFallback)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации сервера: %w", err)
	}

	var loadErr error
	cfg.DBPassword, loadErr = readSecret("db_password", "DB_PASSWORD")
	if loadErr != nil {
		return nil, loadErr
	}

	// AI ключ обязателен только для openai-провайдера.
	cfg.AIAPIKey, loadErr = readSecret("ai_api_key", "AI_API_KEY")
	if loadErr != nil && strings.ToLower(cfg.AIProvider) != "ollama" {
		return nil, loadErr
	}

	// Пароль Redis опционален.
	cfg.RedisPassword, _ = readSecret("redis_password", "REDIS_PASSWORD")

	log.Printf("Конфигурация сервера загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  EngineMode: %s", cfg.EngineMode)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  Redis Addr: %s", cfg.RedisAddr)
	log.Printf("  RabbitMQ URL set: %t", cfg.RabbitMQURL != "")
	log.Printf("  Action Event Queue: %s", cfg.ActionEventQueue)
	log.Printf("  AI Provider: %s, Model: %s", cfg.AIProvider, cfg.AIModel)

	return &cfg, nil
}
