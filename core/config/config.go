package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env    string
	Port   string
	OTel   OTelConfig
	Redis  RedisConfig
	Queue  QueueConfig
	OpenAI OpenAIConfig
	Review ReviewConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	Stream      string
	Group       string
	DLQStream   string
	Consumer    string
	MaxAttempts int
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ReviewConfig struct {
	// MaxCodeBytes is the submit ceiling; oversized input is rejected
	// synchronously and never enters the pipeline.
	MaxCodeBytes int
	// ChunkThreshold is the line count above which detection-phase input
	// is split into chunks.
	ChunkThreshold int
	// ImplementationChunkThreshold gates chunking for the implementation
	// phase, which tolerates much larger single requests.
	ImplementationChunkThreshold int
	// MaxConcurrency bounds concurrent outbound LLM calls per review.
	MaxConcurrency int
	// RecordTTL is the review record expiry; every read and write refreshes it.
	RecordTTL time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the pipeline worker
//
// Falls back to .env if the service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("REVIEWD_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("REVIEWD_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "reviewd"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Queue: QueueConfig{
			Stream:      getEnv("REVIEW_TASK_STREAM", "review_tasks"),
			Group:       getEnv("REVIEW_CONSUMER_GROUP", "review_workers"),
			DLQStream:   getEnv("REVIEW_DLQ_STREAM", "review_tasks_dlq"),
			Consumer:    getEnv("REVIEW_CONSUMER_NAME", "worker-1"),
			MaxAttempts: getEnvInt("REVIEW_MAX_ATTEMPTS", 3),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Review: ReviewConfig{
			MaxCodeBytes:                 getEnvInt("REVIEW_MAX_CODE_BYTES", 500000),
			ChunkThreshold:               getEnvInt("REVIEW_CHUNK_THRESHOLD", 100),
			ImplementationChunkThreshold: getEnvInt("REVIEW_IMPL_CHUNK_THRESHOLD", 500),
			MaxConcurrency:               getEnvInt("REVIEW_MAX_CONCURRENCY", 4),
			RecordTTL:                    time.Duration(getEnvInt("REVIEW_RECORD_TTL_SECONDS", 300)) * time.Second,
		},
	}

	if serviceType == ServiceTypeWorker && cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required for the worker")
	}

	if cfg.Review.MaxConcurrency < 1 {
		return Config{}, fmt.Errorf("REVIEW_MAX_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
