package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string
	// DatabaseURL empty means the in-memory store.
	DatabaseURL string
	DBMigrate   bool
	DBMaxConns  int
	// RedisAddr empty disables the stream publisher and shared limit
	// tracking.
	RedisAddr string
	// WebhookURL empty disables the webhook notifier.
	WebhookURL  string
	QRSecret    string
	MaxInflight int
}

// Load reads .env when present (production relies on real env vars) and
// applies defaults.
func Load() *Config {
	_ = godotenv.Load()

	cpu := runtime.GOMAXPROCS(0)
	return &Config{
		Env:         getEnv("BANK_ENV", "development"),
		HTTPAddr:    getEnv("BANK_HTTP_ADDR", ":8080"),
		DatabaseURL: getEnv("BANK_DB_DSN", ""),
		DBMigrate:   getEnv("BANK_DB_MIGRATE", "0") == "1",
		DBMaxConns:  getIntEnv("BANK_DB_MAX_CONNS", clamp(cpu*4, 4, 50)),
		RedisAddr:   getEnv("BANK_REDIS_ADDR", ""),
		WebhookURL:  getEnv("BANK_WEBHOOK_URL", ""),
		QRSecret:    getEnv("BANK_QR_SECRET", "insecure-dev-secret"),
		MaxInflight: getIntEnv("BANK_HTTP_MAX_INFLIGHT", 64),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
