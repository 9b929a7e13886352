package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ai-workout-planner/internal/llm"
)

const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultFallbackModels = "gemini-1.5-flash,gemini-1.5-pro"
)

// Config holds the configuration for the application.
type Config struct {
	Port         string
	AppEnv       string
	DatabasePath string

	// Generation
	Model          string
	FallbackModels []string
	MaxRetries     int
	RetryBaseDelay time.Duration
	AttemptTimeout time.Duration
	GeminiAPIKey   string
	GroqAPIKey     string
	ForceRules     bool

	GiphyAPIKey string

	// Identity and guests
	AuthJWTSecret   string
	RedisURL        string
	GuestSessionTTL time.Duration
	RateLimitPerMin int
	CORSOrigins     []string

	// Telegram Config
	TelegramBotToken     string
	TelegramWebhookURL   string
	TelegramAllowUserIDs []int64
	AdminTelegramID      int64

	OTelEnabled      bool
	OTelSamplerRatio float64
}

// NewFromEnv creates a new Config object from environment variables. Every
// setting has a default; only malformed Telegram ids are an error.
func NewFromEnv() (*Config, error) {
	allow, err := int64List("TELEGRAM_ALLOW_USER_IDS")
	if err != nil {
		return nil, err
	}
	var admin int64
	if v := str("ADMIN_TELEGRAM_ID", ""); v != "" {
		admin, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not a number: %q", v)
		}
	}

	return &Config{
		Port:         str("PORT", "8080"),
		AppEnv:       str("APP_ENV", "development"),
		DatabasePath: str("DATABASE_PATH", "data/workout.db"),

		Model:          str("MODEL", DefaultModel),
		FallbackModels: list("GEMINI_FALLBACK_MODELS", DefaultFallbackModels),
		MaxRetries:     integer("GEMINI_MAX_RETRIES", 4),
		RetryBaseDelay: time.Duration(integer("GEMINI_RETRY_BASE_MS", 400)) * time.Millisecond,
		AttemptTimeout: time.Duration(integer("GEMINI_TIMEOUT_MS", 20000)) * time.Millisecond,
		GeminiAPIKey:   str("GEMINI_API_KEY", ""),
		GroqAPIKey:     str("GROQ_API_KEY", ""),
		ForceRules:     boolean("FORCE_RULES", false),

		GiphyAPIKey: str("GIPHY_API_KEY", ""),

		AuthJWTSecret:   str("AUTH_JWT_SECRET", ""),
		RedisURL:        str("REDIS_URL", ""),
		GuestSessionTTL: time.Duration(integer("GUEST_SESSION_TTL_HOURS", 168)) * time.Hour,
		RateLimitPerMin: integer("RATE_LIMIT_PER_MIN", 40),
		CORSOrigins:     list("CORS_ORIGINS", "*"),

		TelegramBotToken:     str("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookURL:   str("TELEGRAM_WEBHOOK_URL", ""),
		TelegramAllowUserIDs: allow,
		AdminTelegramID:      admin,

		OTelEnabled:      boolean("OTEL_ENABLED", false),
		OTelSamplerRatio: float("OTEL_SAMPLER_RATIO", 1),
	}, nil
}

// Models is the model try order: the default model then the fallbacks,
// without blanks or repeats.
func (c *Config) Models() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range append([]string{c.Model}, c.FallbackModels...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// UsableModels is Models filtered to those whose provider has a key:
// "groq:" models need GROQ_API_KEY, everything else GEMINI_API_KEY.
func (c *Config) UsableModels() []string {
	var out []string
	for _, m := range c.Models() {
		key := c.GeminiAPIKey
		if strings.HasPrefix(m, llm.GroqPrefix) {
			key = c.GroqAPIKey
		}
		if key != "" {
			out = append(out, m)
		}
	}
	return out
}

// GenerationEnabled reports whether at least one configured model can be
// called.
func (c *Config) GenerationEnabled() bool {
	return !c.ForceRules && len(c.UsableModels()) > 0
}

// RequireTelegram checks what the bot binary cannot run without.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if len(c.TelegramAllowUserIDs) == 0 {
		return fmt.Errorf("TELEGRAM_ALLOW_USER_IDS environment variable not set")
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.AppEnv) {
	case "prod", "production":
		return true
	}
	return false
}

func str(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func integer(name string, def int) int {
	i, err := strconv.Atoi(str(name, ""))
	if err != nil {
		return def
	}
	return i
}

func float(name string, def float64) float64 {
	f, err := strconv.ParseFloat(str(name, ""), 64)
	if err != nil {
		return def
	}
	return f
}

func boolean(name string, def bool) bool {
	switch strings.ToLower(str(name, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func list(name, def string) []string {
	var out []string
	for _, part := range strings.Split(str(name, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func int64List(name string) ([]int64, error) {
	var out []int64
	for _, part := range list(name, "") {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s contains a non-numeric id: %q", name, part)
		}
		out = append(out, id)
	}
	return out, nil
}
