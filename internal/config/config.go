// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database paths, channel credentials, AI safety knobs, outbound
// rate limiting and retry policy, and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// TwilioConfig defines the WhatsApp channel credentials and toggles.
type TwilioConfig struct {
	AccountSID string // TWILIO_ACCOUNT_SID
	AuthToken  string // TWILIO_AUTH_TOKEN (also the webhook signing secret)
	// FromNumber is the default sender in E.164; ignored when
	// MessagingServiceSID is set.
	FromNumber          string // TWILIO_FROM_NUMBER
	MessagingServiceSID string // TWILIO_MESSAGING_SERVICE_SID
	// WebhookURL is the operator-configured public URL signatures are
	// validated against (deployments behind proxies rewrite the request
	// URL, so the configured one is authoritative).
	WebhookURL    string        // TWILIO_WEBHOOK_URL
	APIBaseURL    string        // TWILIO_API_BASE_URL (tests/mocks)
	HTTPTimeout   time.Duration // TWILIO_HTTP_TIMEOUT
	TypingEnabled bool          // TYPING_INDICATOR_ENABLED
}

// AIConfig defines the text-generation capability and safety-layer bounds.
type AIConfig struct {
	APIKey        string        // OPENAI_API_KEY
	BaseURL       string        // OPENAI_BASE_URL (OpenAI-compatible override)
	Model         string        // AI_MODEL
	Timeout       time.Duration // AI_TIMEOUT (per generation attempt)
	MaxRetries    int           // AI_MAX_RETRIES (extra attempts after the first)
	MinReplyChars int           // AI_MIN_REPLY_CHARS
	SystemPrompt  string        // AI_SYSTEM_PROMPT
}

// RateLimitConfig defines the sender-level token bucket.
type RateLimitConfig struct {
	Capacity     int           // RATE_CAPACITY (bucket size)
	RefillPerSec float64       // RATE_REFILL_PER_SEC (tokens per second)
	MaxWait      time.Duration // RATE_MAX_WAIT (blocking acquire budget)
	IdleTTL      time.Duration // RATE_IDLE_TTL (stale bucket eviction window)
}

// RetryConfig defines the outbound delivery retry policy.
type RetryConfig struct {
	MaxAttempts int           // SEND_MAX_ATTEMPTS
	BaseDelay   time.Duration // SEND_BASE_DELAY
	MaxDelay    time.Duration // SEND_MAX_DELAY
}

// SweepConfig defines the cron-driven failed-send re-delivery endpoint.
type SweepConfig struct {
	Secret    string // SWEEP_SECRET (bearer token)
	BatchSize int    // SWEEP_BATCH_SIZE
}

// CORSConfig defines Cross-Origin Resource Sharing settings for the
// operator-facing endpoints (health, metrics dashboards).
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-wa-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath         string // SQLite path
	HistoryLimit   int    // prior messages loaded as generation context
	TitleMaxWords  int    // auto-generated chat title length
	RequireSecrets bool   // refuse to boot without channel credentials

	// Channel / AI / delivery policy
	Twilio    TwilioConfig
	AI        AIConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Sweep     SweepConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:         getenv("DB_PATH", "gateway.db"),
		HistoryLimit:   getint("HISTORY_LIMIT", 20),
		TitleMaxWords:  getint("TITLE_MAX_WORDS", 6),
		RequireSecrets: getbool("REQUIRE_SECRETS", true),

		Twilio: TwilioConfig{
			AccountSID:          getenv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:           getenv("TWILIO_AUTH_TOKEN", ""),
			FromNumber:          getenv("TWILIO_FROM_NUMBER", ""),
			MessagingServiceSID: getenv("TWILIO_MESSAGING_SERVICE_SID", ""),
			WebhookURL:          getenv("TWILIO_WEBHOOK_URL", ""),
			APIBaseURL:          getenv("TWILIO_API_BASE_URL", ""),
			HTTPTimeout:         getdur("TWILIO_HTTP_TIMEOUT", 15*time.Second),
			TypingEnabled:       getbool("TYPING_INDICATOR_ENABLED", false),
		},

		AI: AIConfig{
			APIKey:        getenv("OPENAI_API_KEY", ""),
			BaseURL:       getenv("OPENAI_BASE_URL", ""),
			Model:         getenv("AI_MODEL", ""),
			Timeout:       getdur("AI_TIMEOUT", 30*time.Second),
			MaxRetries:    getint("AI_MAX_RETRIES", 2),
			MinReplyChars: getint("AI_MIN_REPLY_CHARS", 1),
			SystemPrompt:  getenv("AI_SYSTEM_PROMPT", ""),
		},

		RateLimit: RateLimitConfig{
			Capacity:     getint("RATE_CAPACITY", 80),
			RefillPerSec: getfloat("RATE_REFILL_PER_SEC", 80.0),
			MaxWait:      getdur("RATE_MAX_WAIT", 5*time.Second),
			IdleTTL:      getdur("RATE_IDLE_TTL", 5*time.Minute),
		},

		Retry: RetryConfig{
			MaxAttempts: getint("SEND_MAX_ATTEMPTS", 3),
			BaseDelay:   getdur("SEND_BASE_DELAY", time.Second),
			MaxDelay:    getdur("SEND_MAX_DELAY", 30*time.Second),
		},

		Sweep: SweepConfig{
			Secret:    getenv("SWEEP_SECRET", ""),
			BatchSize: getint("SWEEP_BATCH_SIZE", 50),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-wa-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.HistoryLimit < 0 {
		return cfg, errors.New("HISTORY_LIMIT must be >= 0")
	}
	if cfg.RateLimit.Capacity < 1 {
		return cfg, errors.New("RATE_CAPACITY must be >= 1")
	}
	if cfg.RateLimit.RefillPerSec <= 0 {
		return cfg, errors.New("RATE_REFILL_PER_SEC must be > 0")
	}
	if cfg.RateLimit.MaxWait <= 0 || cfg.RateLimit.IdleTTL <= 0 {
		return cfg, errors.New("RATE_MAX_WAIT and RATE_IDLE_TTL must be > 0")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return cfg, errors.New("SEND_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Retry.BaseDelay < 0 || cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return cfg, errors.New("SEND_BASE_DELAY must be >= 0 and SEND_MAX_DELAY >= SEND_BASE_DELAY")
	}
	if cfg.AI.Timeout <= 0 {
		return cfg, errors.New("AI_TIMEOUT must be > 0")
	}
	if cfg.AI.MaxRetries < 0 {
		return cfg, errors.New("AI_MAX_RETRIES must be >= 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	if cfg.RequireSecrets {
		if strings.TrimSpace(cfg.Twilio.AccountSID) == "" || strings.TrimSpace(cfg.Twilio.AuthToken) == "" {
			return cfg, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required (set REQUIRE_SECRETS=false for local runs)")
		}
		// Signature validation always uses the configured URL, so a missing
		// one would silently fail every webhook. Fail at boot instead.
		if strings.TrimSpace(cfg.Twilio.WebhookURL) == "" {
			return cfg, errors.New("TWILIO_WEBHOOK_URL is required (signatures are validated against the configured URL)")
		}
		if strings.TrimSpace(cfg.Twilio.FromNumber) == "" && strings.TrimSpace(cfg.Twilio.MessagingServiceSID) == "" {
			return cfg, errors.New("one of TWILIO_FROM_NUMBER or TWILIO_MESSAGING_SERVICE_SID is required")
		}
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
