package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults for the session lifecycle policy values. The timeouts are
// deliberately configuration, not literals: deployments with slow links
// widen them without a rebuild.
const (
	defaultCallTimeout = 5 * time.Second
	defaultInitCeiling = 8 * time.Second
	defaultIdleWindow  = 5 * time.Minute
)

// Config holds environment-driven settings for the API server and the
// session lifecycle subsystem.
type Config struct {
	Port           string        // HTTP listen port
	PGDSN          string        // PostgreSQL DSN for identity and audit tables
	ProviderURL    string        // identity provider base URL
	ProviderAnon   string        // anon (publishable) API key
	ProviderSecret string        // service-role key for admin endpoints
	JWTSecret      string        // HS256 secret the provider signs access tokens with
	JWTIssuer      string        // expected issuer claim
	RedirectURL    string        // redirect target embedded in one-time sign-in links
	CallTimeout    time.Duration // bound on each individual remote read
	InitCeiling    time.Duration // absolute ceiling on session initialization
	IdleWindow     time.Duration // inactivity period before forced sign-out
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("GESTAORH_PORT", "8080"),
		PGDSN:          os.Getenv("GESTAORH_PG_DSN"),
		ProviderURL:    getEnv("GESTAORH_PROVIDER_URL", "http://localhost:9999"),
		ProviderAnon:   os.Getenv("GESTAORH_PROVIDER_ANON_KEY"),
		ProviderSecret: os.Getenv("GESTAORH_PROVIDER_SERVICE_KEY"),
		JWTSecret:      os.Getenv("GESTAORH_JWT_SECRET"),
		JWTIssuer:      getEnv("GESTAORH_JWT_ISSUER", "gestaorh"),
		RedirectURL:    getEnv("GESTAORH_REDIRECT_URL", ""),
		CallTimeout:    defaultCallTimeout,
		InitCeiling:    defaultInitCeiling,
		IdleWindow:     defaultIdleWindow,
	}

	var err error
	if cfg.CallTimeout, err = durationEnv("GESTAORH_CALL_TIMEOUT", cfg.CallTimeout); err != nil {
		return nil, err
	}
	if cfg.InitCeiling, err = durationEnv("GESTAORH_INIT_CEILING", cfg.InitCeiling); err != nil {
		return nil, err
	}
	if cfg.IdleWindow, err = durationEnv("GESTAORH_IDLE_WINDOW", cfg.IdleWindow); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("GESTAORH_PORT cannot be empty")
	}
	if strings.TrimSpace(c.ProviderURL) == "" {
		return fmt.Errorf("GESTAORH_PROVIDER_URL cannot be empty")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("GESTAORH_CALL_TIMEOUT must be positive")
	}
	if c.InitCeiling < c.CallTimeout {
		return fmt.Errorf("GESTAORH_INIT_CEILING must be at least the per-call timeout")
	}
	if c.IdleWindow <= 0 {
		return fmt.Errorf("GESTAORH_IDLE_WINDOW must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
