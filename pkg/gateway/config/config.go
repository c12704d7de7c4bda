package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	// Gemini upstream.
	GeminiAPIKey      string
	SystemInstruction string
	VideoPollInterval time.Duration

	// Postgres. Empty means sessions and settings live in process memory only.
	DatabaseURL string

	// WorkOS user management. Tokens are verified against the WorkOS API;
	// auth_mode=disabled serves a single local user without verification.
	AuthMode       AuthMode
	WorkOSAPIKey   string
	WorkOSClientID string

	// Stripe billing. Empty key means every user resolves to the free plan.
	StripeAPIKey           string
	StripeProLookupKey     string
	StripeQuantumLookupKey string
	PlanCacheTTL           time.Duration

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Per-user request throttling. RPS or burst at zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	MaxBodyBytes int64

	// Chat behavior.
	TitleTimeout time.Duration

	// Voice controller defaults handed to each live connection.
	VoiceConversationTimeout time.Duration
	VoiceRestartDelay        time.Duration

	// Live WebSocket.
	LiveWriteTimeout time.Duration
	LivePingInterval time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                     envOr("YUSRA_ADDR", ":8080"),
		GeminiAPIKey:             strings.TrimSpace(os.Getenv("YUSRA_GEMINI_API_KEY")),
		SystemInstruction:        os.Getenv("YUSRA_SYSTEM_INSTRUCTION"),
		VideoPollInterval:        envDurationOr("YUSRA_VIDEO_POLL_INTERVAL", 5*time.Second),
		DatabaseURL:              strings.TrimSpace(os.Getenv("YUSRA_DATABASE_URL")),
		AuthMode:                 AuthMode(envOr("YUSRA_AUTH_MODE", string(AuthModeDisabled))),
		WorkOSAPIKey:             strings.TrimSpace(os.Getenv("YUSRA_WORKOS_API_KEY")),
		WorkOSClientID:           strings.TrimSpace(os.Getenv("YUSRA_WORKOS_CLIENT_ID")),
		StripeAPIKey:             strings.TrimSpace(os.Getenv("YUSRA_STRIPE_API_KEY")),
		StripeProLookupKey:       envOr("YUSRA_STRIPE_PRO_LOOKUP_KEY", "yusra_pro"),
		StripeQuantumLookupKey:   envOr("YUSRA_STRIPE_QUANTUM_LOOKUP_KEY", "yusra_quantum"),
		PlanCacheTTL:             envDurationOr("YUSRA_PLAN_CACHE_TTL", 5*time.Minute),
		CORSAllowedOrigins:       make(map[string]struct{}),
		RateLimitRPS:             envFloatOr("YUSRA_RATE_LIMIT_RPS", 0),
		RateLimitBurst:           int(envInt64Or("YUSRA_RATE_LIMIT_BURST", 0)),
		MaxBodyBytes:             envInt64Or("YUSRA_MAX_BODY_BYTES", 32<<20), // 32 MiB
		TitleTimeout:             envDurationOr("YUSRA_TITLE_TIMEOUT", 15*time.Second),
		VoiceConversationTimeout: envDurationOr("YUSRA_VOICE_CONVERSATION_TIMEOUT", 20*time.Second),
		VoiceRestartDelay:        envDurationOr("YUSRA_VOICE_RESTART_DELAY", 400*time.Millisecond),
		LiveWriteTimeout:         envDurationOr("YUSRA_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LivePingInterval:         envDurationOr("YUSRA_LIVE_WS_PING_INTERVAL", 20*time.Second),
		ReadHeaderTimeout:        envDurationOr("YUSRA_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:              envDurationOr("YUSRA_READ_TIMEOUT", 60*time.Second),
		ShutdownGracePeriod:      envDurationOr("YUSRA_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("YUSRA_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, origin := range splitCSV(os.Getenv("YUSRA_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("YUSRA_GEMINI_API_KEY must be set")
	}
	if cfg.AuthMode != AuthModeDisabled && cfg.WorkOSAPIKey == "" {
		return Config{}, fmt.Errorf("YUSRA_WORKOS_API_KEY must be set when YUSRA_AUTH_MODE=%s", cfg.AuthMode)
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return Config{}, fmt.Errorf("YUSRA_RATE_LIMIT_RPS and YUSRA_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("YUSRA_MAX_BODY_BYTES must be > 0")
	}
	if cfg.VideoPollInterval <= 0 {
		return Config{}, fmt.Errorf("YUSRA_VIDEO_POLL_INTERVAL must be > 0")
	}
	if cfg.TitleTimeout <= 0 {
		return Config{}, fmt.Errorf("YUSRA_TITLE_TIMEOUT must be > 0")
	}
	if cfg.VoiceConversationTimeout <= 0 {
		return Config{}, fmt.Errorf("YUSRA_VOICE_CONVERSATION_TIMEOUT must be > 0")
	}
	if cfg.VoiceRestartDelay <= 0 {
		return Config{}, fmt.Errorf("YUSRA_VOICE_RESTART_DELAY must be > 0")
	}
	if cfg.LiveWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("YUSRA_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LivePingInterval <= 0 {
		return Config{}, fmt.Errorf("YUSRA_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.PlanCacheTTL <= 0 {
		return Config{}, fmt.Errorf("YUSRA_PLAN_CACHE_TTL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("YUSRA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("YUSRA_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("YUSRA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloatOr(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
