package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	JWTIssuer            string        `mapstructure:"JWT_ISSUER"`
	TokenTTL             time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	LoginRatePerMin      int           `mapstructure:"LOGIN_RATE_PER_MIN"`
	BodyLimit            string        `mapstructure:"BODY_LIMIT"`
	UploadDir            string        `mapstructure:"UPLOAD_DIR"`
	LogRetentionDays     int           `mapstructure:"LOG_RETENTION_DAYS"`
	SessionPurgeSchedule string        `mapstructure:"SESSION_PURGE_SCHEDULE"`
	LogPruneSchedule     string        `mapstructure:"LOG_PRUNE_SCHEDULE"`
}

// minSecretLen is the shortest HS256 key accepted outside development.
const minSecretLen = 32

// devSecret signs tokens when ENV=development and no JWT_SECRET is configured.
const devSecret = "curameet-development-secret-do-not-use"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ISSUER", "curameet")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("LOGIN_RATE_PER_MIN", 10)
	v.SetDefault("BODY_LIMIT", "6M")
	v.SetDefault("UPLOAD_DIR", "./storage/medical-records")
	v.SetDefault("LOG_RETENTION_DAYS", 90)
	v.SetDefault("SESSION_PURGE_SCHEDULE", "@hourly")
	v.SetDefault("LOG_PRUNE_SCHEDULE", "0 3 * * *")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"JWT_SECRET", "JWT_ISSUER", "TOKEN_TTL", "CORS_ORIGINS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOGIN_RATE_PER_MIN", "BODY_LIMIT",
		"UPLOAD_DIR", "LOG_RETENTION_DAYS", "SESSION_PURGE_SCHEDULE", "LOG_PRUNE_SCHEDULE",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitOrigins(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devSecret
	}

	return cfg, nil
}

// splitOrigins turns the comma separated CORS_ORIGINS value into a clean list.
func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesDevSecret reports whether tokens are signed with the built-in development key.
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecret == devSecret
}

// Validate checks that the configuration is safe to run. Outside development a
// JWT_SECRET of at least 32 bytes is mandatory, and the CORS allow-list may
// not contain a wildcard.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" || c.UsesDevSecret() {
			return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
		}
		for _, o := range c.CORSOrigins {
			if o == "*" {
				return fmt.Errorf("CORS_ORIGINS must be an explicit allow-list outside development")
			}
		}
	}
	if len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", minSecretLen, len(c.JWTSecret))
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.LogRetentionDays < 1 || c.LogRetentionDays > 365 {
		return fmt.Errorf("LOG_RETENTION_DAYS must be between 1 and 365, got %d", c.LogRetentionDays)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
