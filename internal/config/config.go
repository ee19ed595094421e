package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// Provider selects the game master backend: anthropic, openai,
	// claude-cli, gemini-cli or mock.
	Provider string

	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	ClaudeCLIModel  string
	GeminiModel     string

	// TurnTimeout bounds one full GM turn, including provider latency.
	TurnTimeout time.Duration

	RewardsURL   string
	RewardsToken string

	AdminToken string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		Provider: strings.ToLower(getEnv("GM_PROVIDER", "mock")),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ClaudeCLIModel:  getEnv("CLAUDE_CLI_MODEL", "sonnet"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		TurnTimeout: parseDuration(getEnv("TURN_TIMEOUT_SECONDS", "120")),

		RewardsURL:   os.Getenv("REWARDS_URL"),
		RewardsToken: os.Getenv("REWARDS_TOKEN"),

		AdminToken: os.Getenv("ADMIN_TOKEN"),
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(seconds string) time.Duration {
	n, err := strconv.Atoi(seconds)
	if err != nil || n <= 0 {
		return 120 * time.Second
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
