package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MetricsAddr    string
	StoreDriver    string // mysql|memory
	MySQLDSN       string
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	CacheTTL       time.Duration
	SessionSecret  string
	SessionTTL     time.Duration
	GeminiBase     string
	GeminiKey      string
	GeminiModel    string
	GeminiRPS      int
	TxnMaxAttempts int
	SeedWorkers    int
	SeedCount      int
	SeedReviews    int
}

func Load() Config {
	// a local .env is optional
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		MetricsAddr:    env("METRICS_ADDR", ""),
		StoreDriver:    env("STORE_DRIVER", "mysql"),
		MySQLDSN:       env("MYSQL_DSN", "root:root@tcp(localhost:3306)/friendlyeats?charset=utf8mb4&loc=UTC"),
		RedisAddr:      env("REDIS_ADDR", "localhost:6379"),
		RedisDB:        atoi("REDIS_DB", 0),
		RedisPass:      env("REDIS_PASSWORD", ""),
		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		SessionSecret:  env("SESSION_SECRET", ""),
		SessionTTL:     time.Duration(atoi("SESSION_TTL_SECONDS", 3600)) * time.Second,
		GeminiBase:     env("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiKey:      env("GEMINI_API_KEY", ""),
		GeminiModel:    env("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiRPS:      atoi("GEMINI_RPS", 2),
		TxnMaxAttempts: atoi("TXN_MAX_ATTEMPTS", DefaultMaxAttempts),
		SeedWorkers:    atoi("SEED_WORKERS", 8),
		SeedCount:      atoi("SEED_RESTAURANTS", 20),
		SeedReviews:    atoi("SEED_REVIEWS", 5),
	}
	if c.SessionSecret == "" {
		log.Warn().Msg("SESSION_SECRET is empty; using an insecure development secret")
		c.SessionSecret = "friendlyeats-dev-secret"
	}
	if c.GeminiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is empty; review summaries are disabled")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
