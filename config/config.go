package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay server.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// AllowedOrigins is used for both CORS and the websocket origin check.
	AllowedOrigins []string

	// History storage
	Store       string // memory, redis, dynamodb, postgres, sqlite
	KeyPrefix   string
	HistoryTTL  time.Duration
	RedisURL    string
	PostgresURI string
	SQLitePath  string
	DynamoURL   string
	DynamoTable string
	AWSRegion   string

	// Generation
	Generator     string // ollama, openai
	OllamaHost    string
	OpenAIBaseURL string
	OpenAIKey     string
	DefaultModel  string
	ContextWindow int
	// GeneratorIdleTimeout bounds the wait for each fragment; 0 disables it.
	GeneratorIdleTimeout time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		Store:       strings.ToLower(getEnv("STORE", "memory")),
		KeyPrefix:   getEnv("HISTORY_KEY_PREFIX", "chat:"),
		HistoryTTL:  getDuration("HISTORY_TTL", 0),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PostgresURI: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "chat.db"),
		DynamoURL:   os.Getenv("DYNAMODB_ENDPOINT"),
		DynamoTable: getEnv("DYNAMODB_TABLE", "ChatHistories"),
		AWSRegion:   getEnv("AWS_REGION", "us-east-1"),

		Generator:     strings.ToLower(getEnv("GENERATOR", "ollama")),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIKey:     GetOpenAIKey(),
		DefaultModel:  getEnv("DEFAULT_MODEL", "llama3.2:latest"),
		ContextWindow: getInt("CONTEXT_WINDOW", 25),

		GeneratorIdleTimeout: getDuration("GENERATOR_IDLE_TIMEOUT", 60*time.Second),

		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.Env == "production" {
		if cfg.Store == "postgres" && cfg.PostgresURI == "" {
			panic("DATABASE_URL is required when STORE=postgres")
		}
		if cfg.Generator == "openai" && cfg.OpenAIKey == "" && cfg.OpenAIBaseURL == "" {
			panic("OPENAI_API_KEY or OPENAI_BASE_URL is required when GENERATOR=openai")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func GetOpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v < 0 {
		return defaultValue
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
