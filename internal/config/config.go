package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds the runtime settings of the storefront
type Config struct {
	Env  string
	Port string

	MongoURI      string
	MongoDatabase string

	StripeSecretKey string
	Currency        string

	JWTSecret string
	JWTTTL    time.Duration

	FrontendURL string

	RedisAddr       string
	CacheTTL        time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration

	PendingOrderTTL time.Duration
	SweepInterval   time.Duration
}

// devJWTSecret is only accepted outside production
const devJWTSecret = "dev-secret-change-me"

// Load reads .env files (if present) and then the process environment
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment only
func FromEnv() (*Config, error) {
	var errs []error
	dur := func(key string, def time.Duration) time.Duration {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return def
		}
		return d
	}
	num := func(key string, def int) int {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid number %q", key, v))
			return def
		}
		return n
	}

	cfg := &Config{
		Env:             strings.ToLower(getenv("APP_ENV", EnvDevelopment)),
		Port:            getenv("PORT", "5000"),
		MongoURI:        os.Getenv("MONGODB_URI"),
		MongoDatabase:   getenv("MONGODB_DATABASE", "isaks-store"),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		Currency:        strings.ToLower(getenv("PAYMENT_CURRENCY", "usd")),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTTTL:          dur("JWT_TTL", 7*24*time.Hour),
		FrontendURL:     getenv("FRONTEND_URL", "http://localhost:3000"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		CacheTTL:        dur("CACHE_TTL", time.Minute),
		RateLimitMax:    num("RATE_LIMIT_MAX", 100),
		RateLimitWindow: dur("RATE_LIMIT_WINDOW", 15*time.Minute),
		PendingOrderTTL: dur("PENDING_ORDER_TTL", 24*time.Hour),
		SweepInterval:   dur("SWEEP_INTERVAL", 10*time.Minute),
	}

	switch cfg.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV: unknown environment %q", cfg.Env))
	}
	if cfg.IsProduction() {
		if cfg.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if cfg.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required in production"))
		}
		if cfg.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required in production"))
		}
	} else if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string { return ":" + c.Port }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
