package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Provider names accepted in HANDLE_PROVIDERS and PROFILE_PROVIDERS.
const (
	ProviderNeynar   = "neynar"
	ProviderWarpcast = "warpcast"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port             string `env:"PORT,default=8080"`
	ReadTimeoutSecs  int    `env:"SERVER_READ_TIMEOUT,default=15"`
	WriteTimeoutSecs int    `env:"SERVER_WRITE_TIMEOUT,default=15"`
	IdleTimeoutSecs  int    `env:"SERVER_IDLE_TIMEOUT,default=60"`

	DBURL             string `env:"DB_URL"`
	DBMaxConns        int    `env:"DB_MAX_CONNS,default=20"`
	DBMinConns        int    `env:"DB_MIN_CONNS,default=2"`
	DBMaxIdleSecs     int    `env:"DB_MAX_CONN_IDLE_SECS,default=300"`
	DBMaxLifeSecs     int    `env:"DB_MAX_CONN_LIFETIME_SECS,default=3600"`
	DBConnTimeoutSecs int    `env:"DB_CONN_TIMEOUT_SECS,default=10"`
	DBStatementCache  int    `env:"DB_STATEMENT_CACHE_CAPACITY,default=256"`
	MigrateOnStart    bool   `env:"MIGRATE_ON_START,default=false"`

	RedisURL string `env:"REDIS_URL"`

	NeynarAPIKey        string `env:"NEYNAR_API_KEY"`
	NeynarBaseURL       string `env:"NEYNAR_BASE_URL,default=https://api.neynar.com/v2/farcaster"`
	NeynarAllowCastURL  bool   `env:"NEYNAR_ALLOW_CAST_URL,default=false"`
	WarpcastBaseURL     string `env:"WARPCAST_BASE_URL,default=https://api.warpcast.com/v2"`
	IdentityTimeoutSecs int    `env:"IDENTITY_TIMEOUT_SECS,default=5"`
	HandleProvidersRaw  string `env:"HANDLE_PROVIDERS,default=neynar warpcast"`
	ProfileProvidersRaw string `env:"PROFILE_PROVIDERS,default=warpcast neynar"`

	RaterHeader            string `env:"RATER_HEADER,default=X-Farcaster-Fid"`
	AllowBodyRaterFallback bool   `env:"ALLOW_BODY_RATER_FALLBACK,default=false"`

	CORSAllowedOrigins  string `env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRequests   int    `env:"RATE_LIMIT_REQUESTS,default=120"`
	RateLimitWindowSecs int    `env:"RATE_LIMIT_WINDOW_SECS,default=60"`
	DebugRoutes         bool   `env:"DEBUG_ROUTES,default=false"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	// Resolved by Load from the *Raw fields above.
	HandleProviders  []string
	ProfileProviders []string
}

// Load reads configuration from environment variables, applying defaults and validation.
// A .env file (ENV_FILE, default ".env") is loaded first when present; real
// environment variables always win over it.
func Load() (Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.IdentityTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("IDENTITY_TIMEOUT_SECS must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.RateLimitRequests < 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_REQUESTS must be non-negative")
	}
	if cfg.RateLimitWindowSecs <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW_SECS must be positive")
	}
	if strings.TrimSpace(cfg.RaterHeader) == "" {
		return Config{}, fmt.Errorf("RATER_HEADER cannot be blank")
	}
	if cfg.NeynarAllowCastURL && cfg.NeynarAPIKey == "" {
		return Config{}, fmt.Errorf("NEYNAR_ALLOW_CAST_URL requires NEYNAR_API_KEY")
	}

	var err error
	if cfg.HandleProviders, err = parseProviders("HANDLE_PROVIDERS", cfg.HandleProvidersRaw, cfg.NeynarAPIKey != ""); err != nil {
		return Config{}, err
	}
	if cfg.ProfileProviders, err = parseProviders("PROFILE_PROVIDERS", cfg.ProfileProvidersRaw, cfg.NeynarAPIKey != ""); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// CORSOrigins splits CORS_ALLOWED_ORIGINS on commas and whitespace.
func (c Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// parseProviders validates an ordered provider list. Without a Neynar key the
// neynar entry is dropped rather than rejected so the defaults stay usable.
func parseProviders(name, raw string, haveNeynarKey bool) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range splitList(strings.ToLower(raw)) {
		if p != ProviderNeynar && p != ProviderWarpcast {
			return nil, fmt.Errorf("%s: unknown provider %q", name, p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if p == ProviderNeynar && !haveNeynarKey {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s must name at least one usable provider", name)
	}
	return out, nil
}

func splitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
