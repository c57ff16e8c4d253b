// Package config provides configuration for the memory service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// LLM gateway (OpenAI-compatible)
	LLMBaseURL string
	LLMAPIKey  string
	LLMTimeout time.Duration
	ChatModel  string
	EmbedModel string

	// Personalities
	PersonalitiesDir string

	// Hybrid retrieval
	ShortTermLimit   int // recent messages per interactive turn
	SummaryTermLimit int // recent messages for summary queries
	MaxResults       int // default long-term matches per query

	// Embedding pipeline
	PipelineInterval   time.Duration
	StalenessThreshold time.Duration
	ChunkSize          int
	RetryFailed        bool // reset failed messages to pending at run start

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:        getEnv("DATABASE_URL", "file:recall.db?cache=shared&mode=rwc"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMTimeout:         time.Duration(getEnvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		ChatModel:          getEnv("CHAT_MODEL", "gpt-4o"),
		EmbedModel:         getEnv("EMBED_MODEL", "text-embedding-3-small"),
		PersonalitiesDir:   getEnv("PERSONALITIES_DIR", "personalities"),
		ShortTermLimit:     getEnvInt("SHORT_TERM_LIMIT", 10),
		SummaryTermLimit:   getEnvInt("SUMMARY_TERM_LIMIT", 20),
		MaxResults:         getEnvInt("MAX_RESULTS", 3),
		PipelineInterval:   time.Duration(getEnvInt("PIPELINE_INTERVAL_MS", 300000)) * time.Millisecond,
		StalenessThreshold: time.Duration(getEnvInt("STALENESS_THRESHOLD_MS", 3600000)) * time.Millisecond,
		ChunkSize:          getEnvInt("CHUNK_SIZE", 5),
		RetryFailed:        getEnvBool("PIPELINE_RETRY_FAILED", false),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
