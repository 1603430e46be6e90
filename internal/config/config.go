package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported LLM providers.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type providerDefaults struct {
	model   string
	baseURL string
}

var defaultsByProvider = map[string]providerDefaults{
	ProviderGroq:   {model: "llama-3.1-8b-instant", baseURL: "https://api.groq.com/openai/v1"},
	ProviderOpenAI: {model: "gpt-4o-mini", baseURL: "https://api.openai.com/v1"},
	ProviderGemini: {model: "gemini-1.5-flash", baseURL: "https://generativelanguage.googleapis.com/v1beta"},
}

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis (optional)
	RedisURL string

	// CORS
	FrontendURL string

	// Chat endpoints
	ChatRateLimitPerMin int

	// Retention
	RetentionDays     int
	RetentionInterval time.Duration

	LLM LLMConfig
}

// LLMConfig is built once at startup and shared read-only by the adapter
// and the orchestrator.
type LLMConfig struct {
	Provider           string
	APIKey             string
	Model              string
	BaseURL            string
	MaxTokens          int
	Temperature        float32
	MaxHistory         int
	MaxInputChars      int
	Timeout            time.Duration
	ConcurrentRequests int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	provider := strings.ToLower(strings.TrimSpace(getEnvOrDefault("LLM_PROVIDER", ProviderGroq)))
	defaults, ok := defaultsByProvider[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM provider %q (expected groq, openai or gemini)", provider)
	}

	llm := LLMConfig{
		Provider:           provider,
		Model:              getEnvOrDefault("LLM_MODEL", defaults.model),
		BaseURL:            strings.TrimRight(getEnvOrDefault("LLM_BASE_URL", defaults.baseURL), "/"),
		MaxTokens:          getEnvAsIntOrDefault("LLM_MAX_TOKENS", 500),
		Temperature:        getEnvAsFloatOrDefault("LLM_TEMPERATURE", 0.7),
		MaxHistory:         getEnvAsIntOrDefault("LLM_MAX_HISTORY", 10),
		MaxInputChars:      getEnvAsIntOrDefault("LLM_MAX_INPUT_CHARS", 2000),
		Timeout:            getEnvAsDurationOrDefault("LLM_TIMEOUT", 30*time.Second),
		ConcurrentRequests: getEnvAsIntOrDefault("LLM_CONCURRENT_REQUESTS", 5),
	}
	// Gemini never reaches the network, so it runs without a key.
	if provider == ProviderGemini {
		llm.APIKey = os.Getenv("LLM_API_KEY")
	} else {
		llm.APIKey = mustGetEnv("LLM_API_KEY")
	}
	if llm.ConcurrentRequests < 1 {
		llm.ConcurrentRequests = 1
	}

	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8081"),
		Env:                 getEnvOrDefault("ENV", "development"),
		DatabaseURL:         mustGetEnv("DATABASE_URL"),
		RedisURL:            getEnvOrDefault("REDIS_URL", ""),
		FrontendURL:         getEnvOrDefault("CORS_ORIGINS", getEnvOrDefault("FRONTEND_URL", "*")),
		ChatRateLimitPerMin: getEnvAsIntOrDefault("CHAT_RATE_LIMIT_PER_MIN", 30),
		RetentionDays:       getEnvAsIntOrDefault("RETENTION_DAYS", 0),
		RetentionInterval:   getEnvAsDurationOrDefault("RETENTION_INTERVAL", time.Hour),
		LLM:                 llm,
	}

	return cfg, nil
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float32) float32 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return defaultVal
	}
	return float32(f)
}

// getEnvAsDurationOrDefault accepts Go durations ("45s") or bare seconds ("45").
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}
