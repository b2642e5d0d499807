// Package config centralizes environment-driven configuration for the
// server binary.
package config

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port string

	// Persistence. Empty DatabaseURL falls back to the in-memory store.
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// Stake limits. Zero disables the corresponding check.
	MaxStakePerEvent    decimal.Decimal
	MaxOutstandingStake decimal.Decimal

	// Web Push (VAPID). Empty keys disable push delivery.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

// Load reads configuration from environment variables, applying defaults
// suitable for local development.
func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		CacheTTL:    getDuration("CACHE_TTL", 30*time.Second),

		MaxStakePerEvent:    getDecimal("MAX_STAKE_PER_EVENT", decimal.NewFromInt(500)),
		MaxOutstandingStake: getDecimal("MAX_OUTSTANDING_STAKE", decimal.NewFromInt(2000)),

		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@wagerpals.app"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return fallback
}
