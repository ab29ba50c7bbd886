package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "WORKTRACKER_"

// Config carries all externally supplied runtime settings. Nothing in here is
// hard-coded into the enforcement logic.
type Config struct {
	Addr  string
	PGDSN string

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string

	MaxBodyBytes int64

	// Paths served without authentication. Empty means the built-in list.
	PublicPaths []string

	// Requests per minute by rate-limit category.
	RateLimits map[string]int

	AuditRetention time.Duration
	AuditBuffer    int

	SessionSweepInterval   time.Duration
	RateLimitSweepInterval time.Duration
}

// FromEnv reads configuration from WORKTRACKER_* environment variables and
// validates it. The access and refresh signing secrets are mandatory and must
// differ so the two token kinds are never interchangeable.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:                   envString("ADDR", ":8080"),
		PGDSN:                  envString("PG_DSN", ""),
		AccessSecret:           envString("ACCESS_SECRET", ""),
		RefreshSecret:          envString("REFRESH_SECRET", ""),
		Issuer:                 envString("ISSUER", "worktracker"),
		MaxBodyBytes:           10 << 20,
		AuditBuffer:            1024,
		SessionSweepInterval:   5 * time.Minute,
		RateLimitSweepInterval: time.Minute,
	}

	var err error
	if cfg.AccessTTL, err = envDuration("ACCESS_TTL", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDuration("REFRESH_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.AuditRetention, err = envDuration("AUDIT_RETENTION", 7*365*24*time.Hour); err != nil {
		return Config{}, err
	}

	if raw := envString("PUBLIC_PATHS", ""); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.PublicPaths = append(cfg.PublicPaths, p)
			}
		}
	}

	cfg.RateLimits = map[string]int{}
	for category, def := range map[string]int{"default": 60, "auth": 10, "ai": 20, "heavy": 10} {
		limit, err := envInt("RATE_"+strings.ToUpper(category), def)
		if err != nil {
			return Config{}, err
		}
		if limit <= 0 {
			return Config{}, fmt.Errorf("config: rate limit for %q must be positive", category)
		}
		cfg.RateLimits[category] = limit
	}

	if cfg.AccessSecret == "" {
		return Config{}, errors.New("config: " + envPrefix + "ACCESS_SECRET is required")
	}
	if cfg.RefreshSecret == "" {
		return Config{}, errors.New("config: " + envPrefix + "REFRESH_SECRET is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return Config{}, errors.New("config: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return Config{}, errors.New("config: token TTLs must be positive")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return Config{}, errors.New("config: access TTL must be shorter than refresh TTL")
	}
	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	return v, nil
}
